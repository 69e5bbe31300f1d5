package onewire

import (
	"bytes"
	"testing"
)

// Property 5: escape idempotence. For every buffer, unescape(escape(b)) ==
// b, and escape(b) never contains an unescaped 0xE3.
func TestEscapeIdempotenceProperty(t *testing.T) {
	cases := [][]byte{
		nil,
		{0x01},
		{0xE3},
		{0xE3, 0xE3},
		{0x00, 0xE3, 0x01, 0xE3, 0xE3, 0xFF},
		bytes.Repeat([]byte{0xE3}, 5),
	}
	for _, c := range cases {
		escaped := escapeData(c)
		if got := unescapeData(escaped); !bytes.Equal(got, c) {
			t.Fatalf("unescape(escape(%x)) = %x, want %x", c, got, c)
		}
		for i := 0; i < len(escaped); i++ {
			if escaped[i] != modeSwitchCommand {
				continue
			}
			if i+1 >= len(escaped) || escaped[i+1] != modeSwitchCommand {
				t.Fatalf("escape(%x) contains an unescaped 0xE3 at index %d: %x", c, i, escaped)
			}
			i++
		}
	}
}

// S4 / property 7: reset reply mask classification.
func TestActiveResetMaskClassification(t *testing.T) {
	cases := []struct {
		reply           byte
		wantPresence    bool
		wantAlarm       bool
	}{
		{0b11111111, false, false}, // mask 0b11: no device
		{0b11111110, true, true},   // mask 0b10: alarm present
		{0b11111100, true, false},  // mask 0b00: presence, no alarm
	}
	for _, c := range cases {
		transport := newMockTransport([]byte{c.reply})
		m := NewActiveMaster(transport)
		presence, alarmed, err := m.Reset()
		if err != nil {
			t.Fatalf("Reset() with reply 0x%02x: %v", c.reply, err)
		}
		if presence != c.wantPresence || alarmed != c.wantAlarm {
			t.Fatalf("reply 0x%02x: got presence=%v alarmed=%v, want presence=%v alarmed=%v",
				c.reply, presence, alarmed, c.wantPresence, c.wantAlarm)
		}
	}
}

func TestActiveResetRetriesOnceOnBadAck(t *testing.T) {
	transport := newMockTransport([]byte{0x00}, []byte{0b11111100})
	m := NewActiveMaster(transport)
	presence, _, err := m.Reset()
	if err != nil {
		t.Fatalf("Reset() after one bad ack: %v", err)
	}
	if !presence {
		t.Fatalf("expected presence=true after retry succeeds")
	}
}

func TestPackUnpackSearchDirectivesRoundTrip(t *testing.T) {
	known := make([]searchDirective, 64)
	for i := range known {
		known[i] = searchDirective{known: i%3 == 0, direction: byte(i % 2)}
	}
	packed := packSearchDirectives(known)
	if len(packed) != 16 {
		t.Fatalf("packed length = %d, want 16", len(packed))
	}
}
