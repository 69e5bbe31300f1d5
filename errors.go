package onewire

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind classifies why a bus operation failed, per the taxonomy every
// backend and the executor agree on. Kinds, not Go types: every failure path
// in this package returns a *BusError tagged with one of these.
type ErrorKind int

const (
	// TransportLost means a write came back short or a read produced
	// nothing at all: the underlying device node disappeared.
	TransportLost ErrorKind = iota
	// Timeout means a deadline expired waiting for bytes or a completion.
	Timeout
	// ProtocolFraming means the active master replied with the wrong byte
	// count or a mode-mask mismatch.
	ProtocolFraming
	// NoPresence means a reset was issued and no slave answered.
	NoPresence
	// CrcMismatch means a ROM or data CRC failed verification.
	CrcMismatch
	// BusConflict means two devices contended, or a slot sampled 0b11 when
	// a device was expected to drive it.
	BusConflict
	// Cancelled means a termination sentinel interrupted the request.
	Cancelled
)

func (k ErrorKind) String() string {
	switch k {
	case TransportLost:
		return "transport-lost"
	case Timeout:
		return "timeout"
	case ProtocolFraming:
		return "protocol-framing"
	case NoPresence:
		return "no-presence"
	case CrcMismatch:
		return "crc-mismatch"
	case BusConflict:
		return "bus-conflict"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// BusError is the error value every public operation in this module
// returns on failure. It names the bus, the operation that failed, and
// carries the original cause (with a stack trace via github.com/pkg/errors
// so the CLI's -v diagnostic can print one).
type BusError struct {
	Bus  string
	Op   string
	Kind ErrorKind
	Err  error
}

func (e *BusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %s", e.Bus, e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Bus, e.Op, e.Kind)
}

func (e *BusError) Unwrap() error {
	return e.Err
}

// newBusError wraps cause with a stack trace (if it doesn't already carry
// one) and tags it with kind, bus and op for the caller-facing diagnostic.
func newBusError(bus, op string, kind ErrorKind, cause error) *BusError {
	var wrapped error
	if cause != nil {
		wrapped = errors.WithStack(cause)
	}
	return &BusError{Bus: bus, Op: op, Kind: kind, Err: wrapped}
}

// KindOf extracts the ErrorKind from err if it (or something it wraps) is a
// *BusError, returning ok=false otherwise.
func KindOf(err error) (ErrorKind, bool) {
	var be *BusError
	if errors.As(err, &be) {
		return be.Kind, true
	}
	return 0, false
}
