package onewire

// SearchState holds the three counters the classical 1-Wire search carries
// across successive steps: the bit index of the most recent branch point,
// the same confined to the first 8 bits (the family byte), and a terminal
// flag. It is owned by whichever enumerator drives a search sequence; a
// fresh instance belongs to exactly one sequence.
type SearchState struct {
	lastDiscrepancy       int
	lastFamilyDiscrepancy int
	done                  bool
	lastRom               *RomId
}

// NewSearchState returns a cleared state, as spec.md §3 requires of
// "first": last_discrepancy and last_family_discrepancy both zero, done
// false.
func NewSearchState() *SearchState {
	return &SearchState{}
}

// Done reports whether a prior search step reached the end of the device
// list (last_discrepancy fell to zero after a complete round).
func (s *SearchState) Done() bool { return s.done }

// reset clears the state back to its "first" condition; called on CRC
// failure or a reset that finds no presence, per spec.md §4.5.
func (s *SearchState) reset() {
	s.lastDiscrepancy = 0
	s.lastFamilyDiscrepancy = 0
	s.done = false
	s.lastRom = nil
}

// Next runs one branch-and-bound search round against backend in the given
// mode, returning the next ROM id. ok is false once the round after the
// last device has been consumed (search exhausted, not an error).
//
// When backend implements searchAccelerator (the active master's DS2480
// search command), the whole 64-bit round is sent and answered in one
// burst instead of 128 individual bit operations; otherwise it falls back
// to SearchStep bit by bit. Both paths resolve each bit identically via
// resolveBit, so the discovered ROM and the resulting state transition are
// the same regardless of which path ran.
func Next(backend Backend, state *SearchState, mode searchMode) (rom *RomId, ok bool, err error) {
	if state.done {
		return nil, false, nil
	}

	presence, _, err := backend.Reset()
	if err != nil {
		state.reset()
		return nil, false, err
	}
	if !presence {
		state.reset()
		return nil, false, nil
	}

	cmd := byte(mode)
	if _, err := backend.Block([]byte{cmd}, 0); err != nil {
		state.reset()
		return nil, false, err
	}

	directives := searchDirectivesFor(state)
	var idBits [64]byte
	lastZero := 0
	noDevice := false

	if accel, hasAccel := backend.(searchAccelerator); hasAccel {
		results, serr := accel.AcceleratedSearch(mode, directives)
		if serr != nil {
			state.reset()
			return nil, false, serr
		}
		for bitIdx := 1; bitIdx <= 64; bitIdx++ {
			r := results[bitIdx-1]
			var direction byte
			direction, noDevice = resolveBit(bitIdx, r.idBit, r.cmpBit, directives[bitIdx-1].direction, state, &lastZero)
			if noDevice {
				break
			}
			idBits[bitIdx-1] = direction
		}
	} else {
		for bitIdx := 1; bitIdx <= 64; bitIdx++ {
			preferred := directives[bitIdx-1].direction
			idBit, cmpBit, serr := backend.SearchStep(mode, bitIdx, preferred)
			if serr != nil {
				state.reset()
				return nil, false, serr
			}
			var direction byte
			direction, noDevice = resolveBit(bitIdx, idBit, cmpBit, preferred, state, &lastZero)
			if noDevice {
				break
			}
			idBits[bitIdx-1] = direction
		}
	}
	if noDevice {
		state.reset()
		return nil, false, nil
	}

	state.lastDiscrepancy = lastZero
	if lastZero == 0 {
		state.done = true
	}

	found := romIdFromBits(idBits[:])
	if !found.Valid() {
		state.reset()
		return nil, false, newBusError("", "search", CrcMismatch, nil)
	}
	state.lastRom = found
	return found, true, nil
}

// resolveBit applies one bit position's id/complement bits to state, shared
// by both the accelerated and bit-at-a-time paths of Next: no device
// responded (idBit==cmpBit==1), every present device agrees
// (idBit != cmpBit), or a genuine discrepancy (both a 0 and a 1 are out
// there, direction is whatever was already driven as preferred).
func resolveBit(bitIdx int, idBit, cmpBit, preferred byte, state *SearchState, lastZero *int) (direction byte, noDevice bool) {
	if idBit == 1 && cmpBit == 1 {
		return 0, true
	}
	if idBit != cmpBit {
		return idBit, false
	}
	direction = preferred
	if direction == 0 {
		*lastZero = bitIdx
		if bitIdx < 9 {
			state.lastFamilyDiscrepancy = bitIdx
		}
	}
	return direction, false
}

// directionFor resolves the direction to drive at bitIdx if it turns out to
// be a discrepancy (both a 0 and a 1 answered): below the last discrepancy,
// repeat the previous ROM's bit; at the last discrepancy, branch the other
// way this time (1); beyond it, always take 0 first. If idBit and cmpBit
// disagree at the bus, the caller ignores this value and uses idBit
// instead — a true discrepancy is the only case this choice matters for.
func directionFor(state *SearchState, bitIdx int) byte {
	switch {
	case bitIdx < state.lastDiscrepancy:
		return state.lastRom.bits()[bitIdx-1]
	case bitIdx == state.lastDiscrepancy:
		return 1
	default:
		return 0
	}
}

// searchDirectivesFor renders state's per-bit knowledge as the 64-entry
// directive slice AcceleratedSearch expects: known=true for bits below the
// last discrepancy (the direction is fixed, not a preference), known=false
// everywhere else (the bus reports the real bit unless there's a
// discrepancy, in which case direction is the tiebreak to drive).
func searchDirectivesFor(state *SearchState) []searchDirective {
	out := make([]searchDirective, 64)
	for bitIdx := 1; bitIdx <= 64; bitIdx++ {
		out[bitIdx-1] = searchDirective{
			known:     bitIdx < state.lastDiscrepancy,
			direction: directionFor(state, bitIdx),
		}
	}
	return out
}

// Verify seeds state as a single-step search confined to candidate's own
// bits and reports whether the bus round-trip reproduces it exactly —
// spec.md §4.5's "verify is a fixed point of discover" property.
func Verify(backend Backend, candidate *RomId) (bool, error) {
	state := &SearchState{lastDiscrepancy: 64, lastRom: candidate}
	found, ok, err := Next(backend, state, searchDiscover)
	if err != nil || !ok {
		return false, err
	}
	return found.Equal(candidate), nil
}
