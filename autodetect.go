package onewire

import (
	"bytes"
	"time"
)

const autodetectAttempts = 100

var (
	autodetectTiming = []byte{0xC1}
	autodetectProbe  = []byte{0x17, 0x45, 0x5B, 0x0F, 0x91}
)

// autodetectReplies lists the known DS2480 (active) and DS9097 (passive)
// probe-reply signatures of spec.md §6 that classifyProbeReply matches.
var autodetectReplies = []struct {
	pattern []byte
	kind    BackendKind
}{
	{[]byte{0x16, 0x44, 0x5A, 0x00, 0x90}, Active},
	{[]byte{0x16, 0x44, 0x5A, 0x00, 0x93}, Active},
	{[]byte{0x17, 0x45, 0x5B, 0x0F, 0x91}, Active},
	{[]byte{0x17, 0x0A, 0x5B, 0x0F, 0x02}, Passive},
	{[]byte{0x00, 0x17, 0x0A, 0x5B, 0x0F, 0x02}, Passive},
	{[]byte{0x30, 0xF8, 0x00}, Passive},
}

// AutodetectBackend opens t at 9600 8N1, sends the timing byte, and probes
// up to 100 times, classifying each reply against the DS2480/DS9097
// signature table (spec.md §6). It returns whichever backend kind the bus
// announces, downgrading transparently from active to passive — S5 of the
// testable-properties scenarios.
func AutodetectBackend(t ByteTransport, logger Logger) (BackendKind, error) {
	if logger == nil {
		logger = nopLogger{}
	}
	if err := t.SetBaud(9600); err != nil {
		return 0, err
	}
	if err := t.ResetErrors(); err != nil {
		return 0, err
	}
	if _, err := t.Write(autodetectTiming); err != nil {
		return 0, newBusError("", "autodetect", TransportLost, err)
	}

	for attempt := 0; attempt < autodetectAttempts; attempt++ {
		if _, err := t.Write(autodetectProbe); err != nil {
			return 0, newBusError("", "autodetect", TransportLost, err)
		}

		reply := make([]byte, 6)
		n, _ := t.Read(reply, time.Now().Add(500*time.Millisecond))
		reply = reply[:n]

		if kind, ok := classifyProbeReply(reply); ok {
			logger.Debugf("autodetect: backend=%s after %d attempt(s)", kind, attempt+1)
			return kind, nil
		}
		logger.Debugf("autodetect: unrecognized reply % x, retrying", reply)
		time.Sleep(500 * time.Millisecond)
	}
	return 0, newBusError("", "autodetect", Timeout, nil)
}

func classifyProbeReply(reply []byte) (BackendKind, bool) {
	for _, candidate := range autodetectReplies {
		if bytes.Equal(reply, candidate.pattern) {
			return candidate.kind, true
		}
	}
	return 0, false
}
