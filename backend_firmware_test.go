package onewire

import (
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// decodeCmd is the test-side mirror of submit's encoding step: it recovers
// the firmwareCmd a mock coprocessor would have to understand to answer.
// Runs on the mock goroutine, not the test goroutine, so failures go through
// Errorf rather than Fatalf (FailNow is only safe from the Test function
// itself).
func decodeCmd(t *testing.T, frame []byte) firmwareCmd {
	t.Helper()
	var cmd firmwareCmd
	if err := cbor.Unmarshal(frame, &cmd); err != nil {
		t.Errorf("decode command frame: %v", err)
	}
	return cmd
}

func encodeReply(t *testing.T, reply firmwareReply) []byte {
	t.Helper()
	frame, err := cbor.Marshal(reply)
	if err != nil {
		t.Errorf("encode reply frame: %v", err)
	}
	return frame
}

// TestFirmwareMasterSubmitDispatchRoundTrip exercises Reset and Complex end
// to end through a mock coprocessor standing on the other side of
// NewFirmwareLinkChan: each sent frame is decoded, answered, and the
// corresponding call observes the matching data.
func TestFirmwareMasterSubmitDispatchRoundTrip(t *testing.T) {
	link, sent, inject := NewFirmwareLinkChan()
	m := NewFirmwareMaster(link)
	defer m.Close()

	go func() {
		for frame := range sent {
			cmd := decodeCmd(t, frame)
			reply := firmwareReply{Seq: cmd.Seq}
			if cmd.Read > 0 {
				reply.Data = []byte{0xAA, 0xBB}[:cmd.Read]
			}
			inject <- encodeReply(t, reply)
		}
	}()

	presence, alarmed, err := m.Reset()
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if !presence || alarmed {
		t.Fatalf("Reset = presence=%v alarmed=%v, want true/false", presence, alarmed)
	}

	result := m.Complex(Transaction{Write: []byte{0x44}, ReadLen: 2}, time.Now().Add(3*time.Second))
	if result.Err != nil {
		t.Fatalf("Complex: %v", result.Err)
	}
	if len(result.Read) != 2 || result.Read[0] != 0xAA || result.Read[1] != 0xBB {
		t.Fatalf("Complex data = %v, want [0xAA 0xBB]", result.Read)
	}
}

// TestFirmwareMasterBlockRefusesStandalone checks that Block, no longer
// reachable from composeTransaction now that full transactions dispatch
// through Complex, fails explicitly instead of silently mis-addressing the
// bus (the same posture SearchStep already takes for unsupported calls).
func TestFirmwareMasterBlockRefusesStandalone(t *testing.T) {
	link, sent, _ := NewFirmwareLinkChan()
	m := NewFirmwareMaster(link)
	defer m.Close()
	go func() {
		for range sent {
		}
	}()

	if _, err := m.Block([]byte{0x55, 0x01, 0x02}, 0); err == nil {
		t.Fatalf("Block succeeded, want an explicit refusal")
	}
}

// TestFirmwareMasterSubmitTimeout checks that a command the mock
// coprocessor never answers fails with Timeout once its deadline passes,
// and does not leave the pending table holding its channel.
func TestFirmwareMasterSubmitTimeout(t *testing.T) {
	link, sent, _ := NewFirmwareLinkChan()
	m := NewFirmwareMaster(link)
	defer m.Close()

	go func() {
		for range sent {
			// mock coprocessor never replies
		}
	}()

	_, err := m.submit(firmwareCmd{Reset: true}, time.Now().Add(20*time.Millisecond))
	if kind, ok := KindOf(err); !ok || kind != Timeout {
		t.Fatalf("submit timeout: err=%v, want Timeout", err)
	}

	m.mu.Lock()
	n := len(m.pending)
	m.mu.Unlock()
	if n != 0 {
		t.Fatalf("pending table still holds %d entries after timeout", n)
	}
}

// TestFirmwareMasterComplexOrderingUnderConcurrency is the S6 scenario: a
// skip-ROM Complex with a two-byte read is submitted (here, several of
// them at once from independent callers, the way the executor's worker
// and any direct caller can both reach Complex). The mock coprocessor
// answers deliberately out of submission order; each caller must still
// receive exactly its own reply, matched by sequence number, not whichever
// reply happens to arrive first. Each caller tags its own Write byte with
// its index so a misrouted reply is detectable rather than merely
// well-formed.
func TestFirmwareMasterComplexOrderingUnderConcurrency(t *testing.T) {
	link, sent, inject := NewFirmwareLinkChan()
	m := NewFirmwareMaster(link)
	defer m.Close()

	const n = 5
	cmds := make(chan firmwareCmd, n)
	go func() {
		for frame := range sent {
			cmds <- decodeCmd(t, frame)
		}
	}()

	type tagged struct {
		marker byte
		result Result
	}
	results := make(chan tagged, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			tx := Transaction{
				Write:   []byte{byte(i)},
				ReadLen: 2,
			}
			results <- tagged{marker: byte(i), result: m.Complex(tx, time.Now().Add(3*time.Second))}
		}(i)
	}

	// Collect every submitted command, then answer in reverse order: the
	// last caller to submit gets the first reply. The reply echoes the
	// marker the caller put in Write, keyed by that command's own Seq, so
	// a demux mistake shows up as the wrong marker rather than as a
	// merely well-formed pair.
	received := make([]firmwareCmd, 0, n)
	for i := 0; i < n; i++ {
		received = append(received, <-cmds)
	}
	for i := len(received) - 1; i >= 0; i-- {
		cmd := received[i]
		marker := cmd.Write[0]
		inject <- encodeReply(t, firmwareReply{
			Seq:  cmd.Seq,
			Data: []byte{marker, marker},
		})
	}

	for i := 0; i < n; i++ {
		got := <-results
		if got.result.Err != nil {
			t.Fatalf("Complex: %v", got.result.Err)
		}
		if len(got.result.Read) != 2 {
			t.Fatalf("Complex read len = %d, want 2", len(got.result.Read))
		}
		if got.result.Read[0] != got.marker || got.result.Read[1] != got.marker {
			t.Fatalf("caller tagged %d received reply %v meant for another caller", got.marker, got.result.Read)
		}
	}
}
