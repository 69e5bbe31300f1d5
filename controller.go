package onewire

import (
	"fmt"
	"sync"
	"time"
)

const minKickInterval = 15 * time.Second

var cmdConvertT = []byte{0x44}

// BusController is the single entry point slave drivers and host code use:
// the façade spec.md §4.9 describes, sitting on top of one Executor/Backend
// pair. It owns the device roster and the sticky alarm flag, and schedules
// the periodic conversion "kick" a host opts into via its configured
// interval.
type BusController struct {
	name   string
	logger Logger

	executor *Executor
	roster   *DeviceRoster

	mu           sync.RWMutex
	followAlarms bool
	alarmed      bool
	interval     time.Duration
}

// New opens cfg's backend, starts its executor, and (when cfg.Interval is
// non-zero) schedules the periodic kick — spec.md §4.9's init operation.
func New(cfg Config, logger Logger) (*BusController, error) {
	if logger == nil {
		logger = nopLogger{}
	}
	backend, err := openBackend(cfg, logger)
	if err != nil {
		return nil, err
	}

	bc := &BusController{
		name:         cfg.Name,
		logger:       logger.WithField("bus", cfg.Name),
		executor:     NewExecutor(cfg.Name, backend, logger),
		roster:       NewDeviceRoster(),
		followAlarms: cfg.FollowAlarms,
		interval:     cfg.Interval,
	}
	if cfg.Interval > 0 && cfg.KickEnabled {
		if err := bc.executor.SetKick(cfg.Interval, bc.kick); err != nil {
			bc.executor.Close()
			return nil, err
		}
	}
	return bc, nil
}

// Name reports the bus name this controller was configured with.
func (bc *BusController) Name() string { return bc.name }

// Reset issues a bus reset and updates the sticky alarm flag from its
// reply (spec.md §7: cleared on r2==3, set on r2==2). When FollowAlarms is
// on and the reply reports an alarm, an alarm-scan is triggered
// immediately after.
func (bc *BusController) Reset() (presence bool, err error) {
	var alarmed bool
	err = bc.executor.RunAtomic(func(b Backend) error {
		var rerr error
		presence, alarmed, rerr = b.Reset()
		return rerr
	})
	if err != nil {
		return false, err
	}

	bc.mu.Lock()
	bc.alarmed = alarmed
	followAlarms := bc.followAlarms
	bc.mu.Unlock()

	if alarmed && followAlarms {
		if _, aerr := bc.Alarms(); aerr != nil {
			bc.logger.Warnf("follow-alarms scan after reset failed: %v", aerr)
		}
	}
	return presence, nil
}

// Alarmed reports the sticky alarm flag last observed on Reset.
func (bc *BusController) Alarmed() bool {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.alarmed
}

// Interval reports the kick cadence currently configured, so a caller that
// wants to change only the follow-alarms policy can pass this straight back
// into Set rather than guessing at it.
func (bc *BusController) Interval() time.Duration {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.interval
}

// FollowAlarms reports the follow-alarms policy currently configured, so a
// caller that wants to change only the interval can pass this straight back
// into Set rather than guessing at it.
func (bc *BusController) FollowAlarms() bool {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.followAlarms
}

// Discover runs a full search(discover) round, replaces the present set of
// the roster, and returns what changed since the previous discover —
// spec.md §4.9's discover operation. Binding policy (autocreate/adopt/
// retire) belongs to the caller; this only publishes the diff.
func (bc *BusController) Discover() (RosterDiff, error) {
	before := bc.roster.Present()
	var found []*RomId
	err := bc.executor.RunAtomic(func(b Backend) error {
		var derr error
		found, derr = discover(b)
		return derr
	})
	if err != nil {
		return RosterDiff{}, err
	}
	bc.roster.replacePresent(found)
	return diffRoster(before, found), nil
}

// Alarms runs a full search(alarm) round, replaces the roster's alarmed
// set, and returns it.
func (bc *BusController) Alarms() ([]*RomId, error) {
	var found []*RomId
	err := bc.executor.RunAtomic(func(b Backend) error {
		var aerr error
		found, aerr = alarmScan(b)
		return aerr
	})
	if err != nil {
		return nil, err
	}
	bc.roster.replaceAlarmed(found)
	return found, nil
}

// Roster exposes the current present/alarmed snapshot.
func (bc *BusController) Roster() *DeviceRoster { return bc.roster }

// Verify runs the seeded single-step search of spec.md §4.5 against id.
func (bc *BusController) Verify(id *RomId) (bool, error) {
	var ok bool
	err := bc.executor.RunAtomic(func(b Backend) error {
		var verr error
		ok, verr = Verify(b, id)
		return verr
	})
	return ok, err
}

// Complex builds and dispatches a Transaction synchronously, per spec.md
// §4.9's complex operation: reset, select target (or skip-ROM if nil),
// write, read readLen bytes, wait delay.
func (bc *BusController) Complex(target *RomId, write []byte, readLen int, delay time.Duration) ([]byte, error) {
	result := bc.executor.Execute(Transaction{
		Reset:   true,
		Target:  target,
		Write:   write,
		ReadLen: readLen,
		Delay:   delay,
	})
	return result.Read, result.Err
}

// ComplexAsync dispatches tx without blocking the caller; its Result
// arrives through Poll tagged with ctx. Used for long-running conversions;
// over the firmware backend both this and Complex reach the coprocessor.
func (bc *BusController) ComplexAsync(target *RomId, write []byte, readLen int, delay time.Duration, ctx interface{}) error {
	return bc.executor.SubmitAsync(Transaction{
		Reset:   true,
		Target:  target,
		Write:   write,
		ReadLen: readLen,
		Delay:   delay,
		Context: ctx,
	})
}

// Poll drains completed ComplexAsync submissions, invoking afterExecute
// for each in submission order.
func (bc *BusController) Poll(afterExecute func(ctx interface{}, tx Transaction, result Result)) int {
	return bc.executor.Poll(afterExecute)
}

// kick runs directly on the executor's worker goroutine: skip-ROM convert-T
// broadcast, then the mandatory 500ms wait, per spec.md §4.9.
func (bc *BusController) kick(b Backend) {
	result := composeTransaction(b, Transaction{
		Reset: true,
		Write: cmdConvertT,
		Delay: 500 * time.Millisecond,
	})
	if result.Err != nil {
		bc.logger.Warnf("periodic kick failed: %v", result.Err)
		return
	}
	bc.logger.Infof("periodic kick broadcast")
}

// Set adjusts the kick cadence and follow-alarms policy (spec.md §4.9's set
// operation). interval below minKickInterval is rejected.
func (bc *BusController) Set(interval time.Duration, followAlarms bool) error {
	if interval != 0 && interval < minKickInterval {
		return fmt.Errorf("onewire: %s: interval must be >= %s", bc.name, minKickInterval)
	}
	bc.mu.Lock()
	bc.interval = interval
	bc.followAlarms = followAlarms
	bc.mu.Unlock()

	if interval > 0 {
		return bc.executor.SetKick(interval, bc.kick)
	}
	return bc.executor.SetKick(0, nil)
}

// Close shuts down the executor and its backend's transport.
func (bc *BusController) Close() error {
	return bc.executor.Close()
}
