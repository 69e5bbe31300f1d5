package onewire

import (
	"time"
)

// mockTransport is the ByteTransport test double SPEC_FULL.md's test
// tooling section describes: writes are logged for assertions, reads are
// served from a queue of canned byte slices so backend/search/executor
// logic can be exercised without hardware.
type mockTransport struct {
	writes [][]byte
	replies [][]byte
	baud    int
	closed  bool
}

func newMockTransport(replies ...[]byte) *mockTransport {
	return &mockTransport{replies: replies, baud: 9600}
}

func (t *mockTransport) Write(p []byte) (int, error) {
	t.writes = append(t.writes, append([]byte{}, p...))
	return len(p), nil
}

func (t *mockTransport) Read(p []byte, _ time.Time) (int, error) {
	if len(t.replies) == 0 {
		return 0, newBusError("", "read", TransportLost, nil)
	}
	reply := t.replies[0]
	t.replies = t.replies[1:]
	n := copy(p, reply)
	return n, nil
}

func (t *mockTransport) SetBaud(rate int) error {
	t.baud = rate
	return nil
}

func (t *mockTransport) ResetErrors() error { return nil }

func (t *mockTransport) Close() error {
	t.closed = true
	return nil
}
