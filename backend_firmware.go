package onewire

import (
	"fmt"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// FirmwareLink is the narrow contract the firmware backend needs from its
// coprocessor client: submit one encoded command, receive encoded replies
// asynchronously. Real deployments implement this against whatever talks
// to the coprocessor pin (spec.md treats it as an external collaborator);
// firmwareLinkChan below is the in-process realization used for tests.
type FirmwareLink interface {
	Send(frame []byte) error
	Replies() <-chan []byte
	Close() error
}

// firmwareCmd mirrors the coprocessor command envelope from spec.md §4.6:
// reset?, skip?, select:romid?, write:bytes?, read:n?, delay:ms?, packaged
// into one request instead of five separate wire commands. CBOR map keys
// follow the small-int-key convention Fusain's NewPacketWithPayload uses
// for its command payloads.
type firmwareCmd struct {
	Reset   bool   `cbor:"0,keyasint,omitempty"`
	Skip    bool   `cbor:"1,keyasint,omitempty"`
	Select  []byte `cbor:"2,keyasint,omitempty"`
	Write   []byte `cbor:"3,keyasint,omitempty"`
	Read    int    `cbor:"4,keyasint,omitempty"`
	DelayMs int64  `cbor:"5,keyasint,omitempty"`
	Seq     uint32 `cbor:"6,keyasint"`
}

// firmwareReply is the coprocessor's READ_REPLY envelope: the echoed
// sequence number and address (all-zero placeholder for skip-ROM
// transactions), the read bytes, and an error string when the transaction
// failed on the coprocessor side.
type firmwareReply struct {
	Seq     uint32 `cbor:"0,keyasint"`
	Address []byte `cbor:"1,keyasint"`
	Data    []byte `cbor:"2,keyasint,omitempty"`
	Err     string `cbor:"3,keyasint,omitempty"`
}

// FirmwareMaster is the FRM backend: transactions are packaged into a
// single coprocessor command and the result arrives later as a READ_REPLY,
// demultiplexed by sequence number rather than by ROM id (a skip-ROM
// transaction's address is all zeros, per spec.md §4.6).
type FirmwareMaster struct {
	link FirmwareLink

	mu      sync.Mutex
	nextSeq uint32
	pending map[uint32]chan firmwareReply

	closeOnce sync.Once
	stop      chan struct{}
}

// NewFirmwareMaster starts a reply-dispatch goroutine over link's Replies
// channel and returns a ready backend.
func NewFirmwareMaster(link FirmwareLink) *FirmwareMaster {
	m := &FirmwareMaster{
		link:    link,
		pending: make(map[uint32]chan firmwareReply),
		stop:    make(chan struct{}),
	}
	go m.dispatch()
	return m
}

func (m *FirmwareMaster) Kind() BackendKind { return Firmware }

func (m *FirmwareMaster) dispatch() {
	for {
		select {
		case <-m.stop:
			return
		case frame, ok := <-m.link.Replies():
			if !ok {
				m.failAllPending(newBusError("", "firmware", TransportLost, nil))
				return
			}
			var reply firmwareReply
			if err := cbor.Unmarshal(frame, &reply); err != nil {
				continue
			}
			m.deliver(reply)
		}
	}
}

func (m *FirmwareMaster) deliver(reply firmwareReply) {
	m.mu.Lock()
	ch, ok := m.pending[reply.Seq]
	if ok {
		delete(m.pending, reply.Seq)
	}
	m.mu.Unlock()
	if ok {
		ch <- reply
	}
}

func (m *FirmwareMaster) failAllPending(err error) {
	m.mu.Lock()
	pending := m.pending
	m.pending = make(map[uint32]chan firmwareReply)
	m.mu.Unlock()
	for _, ch := range pending {
		ch <- firmwareReply{Err: err.Error()}
	}
}

// submit encodes cmd, dispatches it over the link, and blocks for its
// matching reply (or deadline).
func (m *FirmwareMaster) submit(cmd firmwareCmd, deadline time.Time) (firmwareReply, error) {
	m.mu.Lock()
	m.nextSeq++
	seq := m.nextSeq
	cmd.Seq = seq
	ch := make(chan firmwareReply, 1)
	m.pending[seq] = ch
	m.mu.Unlock()

	frame, err := cbor.Marshal(cmd)
	if err != nil {
		m.mu.Lock()
		delete(m.pending, seq)
		m.mu.Unlock()
		return firmwareReply{}, err
	}
	if err := m.link.Send(frame); err != nil {
		m.mu.Lock()
		delete(m.pending, seq)
		m.mu.Unlock()
		return firmwareReply{}, newBusError("", "firmware", TransportLost, err)
	}

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	select {
	case reply := <-ch:
		if reply.Err != "" {
			return reply, newBusError("", "firmware", ProtocolFraming, fmt.Errorf("%s", reply.Err))
		}
		return reply, nil
	case <-timer.C:
		m.mu.Lock()
		delete(m.pending, seq)
		m.mu.Unlock()
		return firmwareReply{}, newBusError("", "firmware", Timeout, nil)
	}
}

// Reset issues a reset-only command. The firmware backend has no
// independent alarm-flag side channel; alarmed is always false.
func (m *FirmwareMaster) Reset() (presence bool, alarmed bool, err error) {
	_, err = m.submit(firmwareCmd{Reset: true}, time.Now().Add(3*time.Second))
	if err != nil {
		if kind, _ := KindOf(err); kind == NoPresence {
			return false, false, nil
		}
		return false, false, err
	}
	return true, false, nil
}

// Block is not meaningful standalone on the firmware backend: every
// transaction's reset/select/write/read/delay is packaged into one command
// by Complex, which composeTransaction dispatches to directly. A write
// payload reaching Block has no addressing information (composeTransaction
// never builds a bare select-ROM byte string for a complexTransactor), so
// there is no safe way to turn it into a correctly-addressed coprocessor
// command; rather than guess skip-ROM and silently mis-address a targeted
// transaction, Block refuses the call the same way SearchStep does.
func (m *FirmwareMaster) Block([]byte, int) ([]byte, error) {
	return nil, newBusError("", "block", ProtocolFraming, fmt.Errorf("firmware backend does not support standalone Block; use Complex"))
}

// SearchStep has no firmware-backend realization: ROM search on FRM is the
// coprocessor's job, not something this driver bit-bangs itself. Any call
// is a programming error — the enumerator must not select the firmware
// backend for discover/alarm loops without a FRM-native search primitive.
func (m *FirmwareMaster) SearchStep(searchMode, int, byte) (byte, byte, error) {
	return 0, 0, newBusError("", "search", ProtocolFraming, fmt.Errorf("firmware backend does not support bit-level search"))
}

// Complex packages a full Transaction into one coprocessor command and
// blocks for its result — the synchronous face of what the executor's
// async flavor also exposes via SubmitAsync.
func (m *FirmwareMaster) Complex(tx Transaction, deadline time.Time) Result {
	cmd := firmwareCmd{
		Reset:   tx.Reset,
		Write:   tx.Write,
		Read:    tx.ReadLen,
		DelayMs: tx.Delay.Milliseconds(),
	}
	if tx.Target != nil {
		code := tx.Target.Bytes()
		cmd.Select = append([]byte{}, code[:]...)
	} else {
		cmd.Skip = true
	}
	reply, err := m.submit(cmd, deadline)
	if err != nil {
		return Result{Err: err}
	}
	return Result{Read: reply.Data}
}

func (m *FirmwareMaster) Close() error {
	m.closeOnce.Do(func() { close(m.stop) })
	return m.link.Close()
}

// firmwareLinkChan is the in-process FirmwareLink realization used by
// tests: two channels stand in for the coprocessor's command/reply stream.
type firmwareLinkChan struct {
	out     chan []byte
	in      chan []byte
	closed  chan struct{}
	onClose func()
}

// NewFirmwareLinkChan returns a FirmwareLink plus the raw channels a mock
// coprocessor driver uses to observe sent frames and inject replies.
func NewFirmwareLinkChan() (link FirmwareLink, sent <-chan []byte, inject chan<- []byte) {
	l := &firmwareLinkChan{
		out:    make(chan []byte, 16),
		in:     make(chan []byte, 16),
		closed: make(chan struct{}),
	}
	return l, l.out, l.in
}

func (l *firmwareLinkChan) Send(frame []byte) error {
	select {
	case l.out <- frame:
		return nil
	case <-l.closed:
		return newBusError("", "firmware", TransportLost, nil)
	}
}

func (l *firmwareLinkChan) Replies() <-chan []byte { return l.in }

func (l *firmwareLinkChan) Close() error {
	select {
	case <-l.closed:
	default:
		close(l.closed)
	}
	return nil
}
