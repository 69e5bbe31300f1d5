package onewire

import "time"

// BackendKind tags which wire encoding a Backend speaks, selected at
// initialization from the configuration string (spec.md §6).
type BackendKind int

const (
	// Active is the DS2480-class command/data-mode framing master.
	Active BackendKind = iota
	// Passive is the DS9097-class bit-banged master.
	Passive
	// Firmware defers transactions to a coprocessor that reports results
	// asynchronously.
	Firmware
)

func (k BackendKind) String() string {
	switch k {
	case Active:
		return "active"
	case Passive:
		return "passive"
	case Firmware:
		return "firmware"
	default:
		return "unknown"
	}
}

// searchMode selects which of the two search commands (0xF0 discover,
// 0xEC alarm) a search step issues.
type searchMode byte

const (
	searchDiscover searchMode = 0xF0
	searchAlarm    searchMode = 0xEC
)

// Backend is the shared capability set every bus master implements: reset
// with presence detection, a block transaction primitive, and one search
// step. It is the "tagged variant with a shared capability set" of Design
// Note §9, modeled as a Go interface rather than a string-tag dispatch.
type Backend interface {
	// Kind reports which wire encoding this backend speaks.
	Kind() BackendKind
	// Reset issues a 1-Wire reset and reports presence. alarmed reports
	// whether the reply indicated a set alarm flag (active backend only;
	// passive/firmware backends return false).
	Reset() (presence bool, alarmed bool, err error)
	// Block writes write and then reads readLen bytes, each initiated by a
	// 0xFF time-fill byte, returning exactly those readLen bytes.
	Block(write []byte, readLen int) ([]byte, error)
	// SearchStep performs one read/compare/write triple at bit index bit
	// (1-based) for the given mode, given the direction to take if this
	// bit is a discrepancy. It returns the id bit and complement bit the
	// bus reported.
	SearchStep(mode searchMode, bit int, direction byte) (idBit, cmpBit byte, err error)
	// Close releases the backend's transport.
	Close() error
}

// LevelChanger is the optional strong-pull-up capability; only ActiveMaster
// implements it (Design Note §9: "level? is optional").
type LevelChanger interface {
	// SetStrongPullup enables or disables the strong pull-up level.
	SetStrongPullup(on bool) error
}

// searchAccelerator is an optional capability that lets a search loop hand
// all 64 branch directions to the backend in one burst instead of 128
// individual bit operations — only ActiveMaster implements it, via the
// DS2480 search accelerator command.
type searchAccelerator interface {
	// AcceleratedSearch runs a full 64-bit search round given the known
	// bits so far (direction for known positions, discrepancy markers for
	// the rest), returning the 64 id bits the bus reported and, for each
	// bit, whether it was a discrepancy.
	AcceleratedSearch(mode searchMode, known []searchDirective) (result []searchStepResult, err error)
}

// complexTransactor is an optional capability a backend implements when it
// can package an entire Transaction's reset/select/write/read/delay into
// one wire-level operation instead of composeTransaction driving them as
// separate Reset/Block round trips — only FirmwareMaster implements it,
// since spec.md §4.6 packages all five coprocessor steps into one command.
type complexTransactor interface {
	Complex(tx Transaction, deadline time.Time) Result
}

// searchDirective is what the search state machine already knows about one
// bit position before issuing a search round: either "take this direction"
// (a previously resolved bit) or "unknown, let the bus report it".
type searchDirective struct {
	known     bool
	direction byte
}

// searchStepResult is what one bit position of a search round reported.
type searchStepResult struct {
	idBit  byte
	cmpBit byte
}
