package onewire

import "sync"

// maxSearchAttempts bounds a discover/alarm-scan loop against a
// misbehaving bus that never sets done (spec.md §4.7: "cap total attempts
// to bound misbehaving buses").
const maxSearchAttempts = 256

// DeviceRoster holds the two sets of ROM ids spec.md §3 describes: present
// (from the last discover) and alarmed (from the last alarm-scan). It is
// written only by BusController with the results of discover/alarmScan and
// read by clients through snapshot copies — callers never get a live
// reference to the internal maps.
type DeviceRoster struct {
	mu      sync.RWMutex
	present map[RomId]struct{}
	alarmed map[RomId]struct{}
}

// NewDeviceRoster returns an empty roster.
func NewDeviceRoster() *DeviceRoster {
	return &DeviceRoster{
		present: make(map[RomId]struct{}),
		alarmed: make(map[RomId]struct{}),
	}
}

// Present returns a snapshot of the current present set.
func (r *DeviceRoster) Present() []*RomId {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return snapshot(r.present)
}

// Alarmed returns a snapshot of the current alarmed set.
func (r *DeviceRoster) Alarmed() []*RomId {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return snapshot(r.alarmed)
}

func snapshot(set map[RomId]struct{}) []*RomId {
	out := make([]*RomId, 0, len(set))
	for code := range set {
		c := code
		out = append(out, &RomId{code: c.code})
	}
	return out
}

func (r *DeviceRoster) replacePresent(ids []*RomId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := make(map[RomId]struct{}, len(ids))
	for _, id := range ids {
		next[RomId{code: id.code}] = struct{}{}
	}
	r.present = next
}

func (r *DeviceRoster) replaceAlarmed(ids []*RomId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := make(map[RomId]struct{}, len(ids))
	for _, id := range ids {
		next[RomId{code: id.code}] = struct{}{}
	}
	r.alarmed = next
}

// RosterDiff describes what changed between two successive discover calls,
// handed to the façade's caller so the host's naming/binding policy can
// autocreate, adopt, or retire slave bindings — the core itself has no
// opinion on device lifecycle, per spec.md §4.9.
type RosterDiff struct {
	Added   []*RomId
	Removed []*RomId
}

func diffRoster(before, after []*RomId) RosterDiff {
	beforeSet := make(map[RomId]struct{}, len(before))
	for _, id := range before {
		beforeSet[RomId{code: id.code}] = struct{}{}
	}
	afterSet := make(map[RomId]struct{}, len(after))
	for _, id := range after {
		afterSet[RomId{code: id.code}] = struct{}{}
	}

	var diff RosterDiff
	for _, id := range after {
		if _, ok := beforeSet[RomId{code: id.code}]; !ok {
			diff.Added = append(diff.Added, id)
		}
	}
	for _, id := range before {
		if _, ok := afterSet[RomId{code: id.code}]; !ok {
			diff.Removed = append(diff.Removed, id)
		}
	}
	return diff
}

// discover runs search(discover) to exhaustion and returns every ROM id
// found, as spec.md §4.7's discover loop: clear roster-present, repeat
// until done, insert each hit.
func discover(backend Backend) ([]*RomId, error) {
	return runSearchLoop(backend, searchDiscover)
}

// alarmScan runs search(alarm) to exhaustion and returns every alarmed ROM
// id found.
func alarmScan(backend Backend) ([]*RomId, error) {
	return runSearchLoop(backend, searchAlarm)
}

func runSearchLoop(backend Backend, mode searchMode) ([]*RomId, error) {
	state := NewSearchState()
	var found []*RomId
	for attempt := 0; attempt < maxSearchAttempts; attempt++ {
		rom, ok, err := Next(backend, state, mode)
		if err != nil {
			if kind, isBus := KindOf(err); isBus && kind == CrcMismatch {
				// A CRC failure aborts only this round; Next has already
				// reset the search state so the next attempt starts fresh.
				// The enumerator itself gives up rather than loop forever
				// against a bus that can't produce a clean round.
				return found, err
			}
			return found, err
		}
		if !ok {
			break
		}
		found = append(found, rom)
		if state.Done() {
			break
		}
	}
	return found, nil
}
