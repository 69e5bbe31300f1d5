package onewire

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// SerialTransport realizes ByteTransport over a host serial device, the
// transport the Active and Passive backends both run on. It is a thin,
// mutex-free wrapper: callers (the backend, itself serialized by the
// executor's single worker) are responsible for not sharing one instance
// across goroutines concurrently.
type SerialTransport struct {
	device string
	port   serial.Port
	mode   serial.Mode
}

// OpenSerialTransport opens device at the given initial baud rate, 8 data
// bits, no parity, one stop bit — the framing every 1-Wire UART trick
// (Maxim AN214) depends on.
func OpenSerialTransport(device string, baud int) (*SerialTransport, error) {
	t := &SerialTransport{
		device: device,
		mode: serial.Mode{
			BaudRate: baud,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		},
	}
	p, err := serial.Open(device, &t.mode)
	if err != nil {
		return nil, fmt.Errorf("onewire: open %s: %w", device, err)
	}
	t.port = p
	_ = p.SetDTR(true)
	return t, nil
}

func (t *SerialTransport) Device() string { return t.device }

func (t *SerialTransport) Write(p []byte) (int, error) {
	return t.port.Write(p)
}

func (t *SerialTransport) Read(p []byte, deadline time.Time) (int, error) {
	if d := time.Until(deadline); d > 0 {
		_ = t.port.SetReadTimeout(d)
	}
	return t.port.Read(p)
}

func (t *SerialTransport) SetBaud(rate int) error {
	if t.mode.BaudRate == rate {
		return nil
	}
	t.mode.BaudRate = rate
	return t.port.SetMode(&t.mode)
}

func (t *SerialTransport) ResetErrors() error {
	if err := t.port.ResetOutputBuffer(); err != nil {
		return err
	}
	return t.port.ResetInputBuffer()
}

func (t *SerialTransport) Close() error {
	if t.port == nil {
		return nil
	}
	return t.port.Close()
}
