package onewire

import "time"

// Transaction is the unit of work the executor dispatches: an optional
// reset+select, a write payload, a fixed number of read bytes, a mandatory
// post-completion delay, and an opaque context token handed back to the
// caller verbatim.
type Transaction struct {
	// Reset, when true, requires a presence pulse before anything else.
	Reset bool
	// Target selects one device by ROM id (match-ROM); nil means skip-ROM.
	Target *RomId
	// Write is transmitted, LSB-first per byte, after selection.
	Write []byte
	// ReadLen is how many bytes to collect after Write, each initiated by
	// a 0xFF time-fill byte.
	ReadLen int
	// Delay is the mandatory wait after completion, for slave-side
	// conversion or EEPROM-write times.
	Delay time.Duration
	// Context is returned verbatim to the completion callback.
	Context interface{}
	// AllowAbsent permits a Reset with no presence pulse to succeed
	// instead of failing with NoPresence (used by probes that expect an
	// empty bus).
	AllowAbsent bool
}

const (
	cmdMatchRom byte = 0x55
	cmdSkipRom  byte = 0xCC
)

// Result is what a completed Transaction produced.
type Result struct {
	Read []byte
	Err  error
}

// complexDeadlineSlack bounds how long a complexTransactor backend gets to
// complete a whole packaged transaction, on top of tx.Delay itself — the
// same round-trip allowance FirmwareMaster's own Reset gives a single
// coprocessor command.
const complexDeadlineSlack = 3 * time.Second

// composeTransaction runs reset → select → write → read → delay against
// backend, in that order, as spec.md §4.6 requires. It is the single
// transaction primitive shared by every slave driver, regardless of which
// backend or executor flavor dispatches it — except a backend that
// implements complexTransactor, which packages all five steps into one
// wire-level operation itself (the firmware backend's coprocessor protocol);
// composeTransaction hands the whole Transaction to it directly rather than
// decomposing it into three separate backend calls.
func composeTransaction(backend Backend, tx Transaction) Result {
	if ct, ok := backend.(complexTransactor); ok {
		return ct.Complex(tx, time.Now().Add(tx.Delay+complexDeadlineSlack))
	}

	if tx.Reset {
		presence, _, err := backend.Reset()
		if err != nil {
			return Result{Err: err}
		}
		if !presence && !tx.AllowAbsent {
			return Result{Err: newBusError("", "reset", NoPresence, nil)}
		}
	}

	var selectCmd []byte
	if tx.Target != nil {
		code := tx.Target.Bytes()
		selectCmd = append([]byte{cmdMatchRom}, code[:]...)
	} else {
		selectCmd = []byte{cmdSkipRom}
	}

	if _, err := backend.Block(selectCmd, 0); err != nil {
		return Result{Err: err}
	}

	var read []byte
	if len(tx.Write) > 0 || tx.ReadLen > 0 {
		out, err := backend.Block(tx.Write, tx.ReadLen)
		if err != nil {
			return Result{Err: err}
		}
		read = out
	}

	if tx.Delay > 0 {
		time.Sleep(tx.Delay)
	}

	if len(read) != tx.ReadLen {
		return Result{Err: newBusError("", "complex", ProtocolFraming, nil)}
	}
	return Result{Read: read}
}
