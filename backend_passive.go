package onewire

import "time"

// passiveReadDeadline bounds how long one readExactly call waits for its
// echo before giving up — the passive backend has no chunk/backoff
// schedule of its own (spec.md §4.3's is active-backend-specific), but
// still needs a finite per-transaction read budget so a dead line surfaces
// Timeout instead of blocking forever, letting the executor's
// force-reset-on-timeout path (spec.md §4.8/§7) actually run.
const passiveReadDeadline = time.Second

// PassiveMaster is the DS9097-class bit-banging backend. It encodes every
// 1-Wire bit as one UART byte at 115200 baud (0xFF samples a 1, 0x00 drives
// a 0; the readback byte echoes the line state) and a 1-Wire reset as one
// byte at 9600 baud (0xF0 out, presence read back from the reply byte).
// Byte I/O is eight consecutive bit operations, LSB-first for writes.
//
// Grounded directly on the teacher's UARTAdapter.reset/readBit/writeBit —
// this backend is the teacher's bus driver generalized behind the Backend
// interface.
type PassiveMaster struct {
	transport ByteTransport
	bitBaud   int
	resetBaud int
}

// NewPassiveMaster wraps transport, which must already be open. Bit
// operations run at 115200 baud, resets at 9600, per spec.md §4.4.
func NewPassiveMaster(transport ByteTransport) *PassiveMaster {
	return &PassiveMaster{transport: transport, bitBaud: 115200, resetBaud: 9600}
}

func (m *PassiveMaster) Kind() BackendKind { return Passive }

func (m *PassiveMaster) Close() error { return m.transport.Close() }

// Reset sends the 9600-baud presence pulse and restores 115200 baud
// afterward regardless of outcome. The passive backend has no alarm-flag
// side channel, so alarmed is always false (Design Note §9's open
// question: presence diagnostics beyond "did anyone answer" are not
// differentiated here — a TODO, not a contract this backend can fulfil
// without a real bus to characterize reply bytes against).
func (m *PassiveMaster) Reset() (presence bool, alarmed bool, err error) {
	if err = m.transport.SetBaud(m.resetBaud); err != nil {
		return false, false, err
	}
	defer func() {
		if rerr := m.transport.SetBaud(m.bitBaud); rerr != nil && err == nil {
			err = rerr
		}
	}()

	if err = m.transport.ResetErrors(); err != nil {
		return false, false, err
	}
	reply, rerr := m.txrx9600(0xF0)
	if rerr != nil {
		return false, false, rerr
	}
	// TODO(onewire): classify short-circuit vs. genuine no-presence from
	// the exact reply byte instead of a single threshold.
	if reply == 0xFF {
		return false, false, nil
	}
	return true, false, nil
}

func (m *PassiveMaster) txrx9600(b byte) (byte, error) {
	if _, err := m.transport.Write([]byte{b}); err != nil {
		return 0, err
	}
	var buf [1]byte
	if _, err := readExactly(m.transport, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// Block writes write and then reads back readLen bytes (none when readLen
// is 0), one 0xFF time-fill byte per requested read byte, one byte at a
// time via eight bit operations each.
func (m *PassiveMaster) Block(write []byte, readLen int) ([]byte, error) {
	if err := m.transport.ResetErrors(); err != nil {
		return nil, err
	}
	for _, b := range write {
		if err := m.writeByte(b); err != nil {
			return nil, err
		}
	}
	out := make([]byte, readLen)
	for i := range out {
		b, err := m.readByte()
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

func (m *PassiveMaster) writeByte(data byte) error {
	for n := 0; n < 8; n++ {
		if err := m.writeBit((data >> n) & 1); err != nil {
			return err
		}
	}
	return nil
}

func (m *PassiveMaster) readByte() (byte, error) {
	var data byte
	for n := 0; n < 8; n++ {
		bit, err := m.readBit()
		if err != nil {
			return 0, err
		}
		if bit != 0 {
			data |= 1 << uint(n)
		}
	}
	return data, nil
}

func (m *PassiveMaster) writeBit(data byte) error {
	out := byte(0x00)
	if data != 0 {
		out = 0xFF
	}
	echo, err := m.txrxBit(out)
	if err != nil {
		return err
	}
	if echo != out {
		return newBusError("", "write-bit", BusConflict, nil)
	}
	return nil
}

func (m *PassiveMaster) readBit() (byte, error) {
	echo, err := m.txrxBit(0xFF)
	if err != nil {
		return 0, err
	}
	if echo == 0xFF {
		return 1, nil
	}
	return 0, nil
}

func (m *PassiveMaster) txrxBit(out byte) (byte, error) {
	if _, err := m.transport.Write([]byte{out}); err != nil {
		return 0, err
	}
	var buf [1]byte
	if _, err := readExactly(m.transport, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// SearchStep reads the id bit and its complement, writes direction when the
// caller has already resolved this position (a discrepancy branch) or the
// id bit itself when there's no discrepancy, and reports what the bus said.
func (m *PassiveMaster) SearchStep(mode searchMode, bit int, direction byte) (idBit, cmpBit byte, err error) {
	if idBit, err = m.readBit(); err != nil {
		return 0, 0, err
	}
	if cmpBit, err = m.readBit(); err != nil {
		return 0, 0, err
	}
	if idBit != cmpBit {
		direction = idBit
	}
	if err = m.writeBit(direction); err != nil {
		return 0, 0, err
	}
	return idBit, cmpBit, nil
}

// readExactly blocks on transport.Read until buf is full, passiveReadDeadline
// elapses, or an error occurs; passive-backend bit/byte operations always
// expect an exact echo. A deadline with nothing read is a Timeout, not a
// TransportLost — the echo may yet arrive on a slower line, and the caller
// (the executor) reacts to Timeout by forcing a reset before the next
// request.
func readExactly(t ByteTransport, buf []byte) (int, error) {
	deadline := time.Now().Add(passiveReadDeadline)
	read := 0
	for read < len(buf) {
		n, err := t.Read(buf[read:], deadline)
		if err != nil {
			return read, err
		}
		if n == 0 {
			return read, newBusError("", "read", Timeout, nil)
		}
		read += n
	}
	return read, nil
}
