package onewire

import "testing"

func TestPassiveResetNoPresence(t *testing.T) {
	transport := newMockTransport([]byte{0xFF})
	m := NewPassiveMaster(transport)
	presence, alarmed, err := m.Reset()
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if presence || alarmed {
		t.Fatalf("got presence=%v alarmed=%v, want both false", presence, alarmed)
	}
}

func TestPassiveResetPresence(t *testing.T) {
	transport := newMockTransport([]byte{0x10})
	m := NewPassiveMaster(transport)
	presence, _, err := m.Reset()
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if !presence {
		t.Fatalf("got presence=false, want true")
	}
}

func TestPassiveWriteByteConflict(t *testing.T) {
	transport := newMockTransport([]byte{0x00}, []byte{0x00}, []byte{0x00}, []byte{0x00}, []byte{0x00}, []byte{0x00}, []byte{0x00}, []byte{0x00})
	m := NewPassiveMaster(transport)
	_, err := m.Block([]byte{0x01}, 0)
	if err == nil {
		t.Fatalf("expected BusConflict, got nil error")
	}
	if kind, ok := KindOf(err); !ok || kind != BusConflict {
		t.Fatalf("got %v, want BusConflict", err)
	}
}

func TestPassiveBlockRoundTrip(t *testing.T) {
	// write 0x44 (8 bit-echoes matching what was sent), then read back one
	// byte 0xAA worth of bit echoes.
	writeEchoes := bitEchoesFor(0x44)
	readEchoes := bitEchoesFor(0xAA)
	var replies [][]byte
	for _, b := range writeEchoes {
		replies = append(replies, []byte{b})
	}
	for _, b := range readEchoes {
		replies = append(replies, []byte{b})
	}
	transport := newMockTransport(replies...)
	m := NewPassiveMaster(transport)
	out, err := m.Block([]byte{0x44}, 1)
	if err != nil {
		t.Fatalf("Block: %v", err)
	}
	if len(out) != 1 || out[0] != 0xAA {
		t.Fatalf("got %x, want [AA]", out)
	}
}

func bitEchoesFor(b byte) []byte {
	out := make([]byte, 8)
	for n := 0; n < 8; n++ {
		if (b>>n)&1 != 0 {
			out[n] = 0xFF
		}
	}
	return out
}
