package onewire

import (
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// workItem is one unit of worker-goroutine work: an arbitrary closure that
// exclusively owns the backend while it runs, plus an optional channel to
// report completion to a waiting caller. Grounded on omSquare-zen-bus's
// Bus.processWork ("work chan func() error"), generalized from I2C alert
// polling to 1-Wire transaction/search dispatch.
type workItem struct {
	fn   func() error
	done chan error
}

type completion struct {
	context interface{}
	tx      Transaction
	result  Result
}

// Executor serializes every bus operation — complex transactions, whole
// search rounds, resets — behind a single worker goroutine, the only
// context that ever touches the backend's transport (spec.md §5:
// "Transports are owned exclusively by the worker"). It exposes both
// executor flavors of spec.md §4.8 over the same work queue: Execute
// blocks the calling context until the backend returns; SubmitAsync
// enqueues and returns immediately, delivering its result through Poll.
type Executor struct {
	name    string
	backend Backend
	logger  Logger

	work      chan workItem
	responses chan completion
	closeCh   chan struct{}
	closeOnce sync.Once
	g         *errgroup.Group

	kickInterval time.Duration
	kickFn       func(Backend)
	lastKick     time.Time
}

// NewExecutor starts the worker goroutine over backend and returns ready
// to accept work. logger may be nil (defaults to a no-op sink).
func NewExecutor(name string, backend Backend, logger Logger) *Executor {
	if logger == nil {
		logger = nopLogger{}
	}
	e := &Executor{
		name:      name,
		backend:   backend,
		logger:    logger,
		work:      make(chan workItem),
		responses: make(chan completion, 1024),
		closeCh:   make(chan struct{}),
		g:         new(errgroup.Group),
	}
	e.g.Go(func() error {
		e.run()
		return nil
	})
	return e
}

func (e *Executor) run() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-e.closeCh:
			e.drain()
			return

		case item := <-e.work:
			err := item.fn()
			if item.done != nil {
				item.done <- err
			}
			if kind, ok := KindOf(err); ok && kind == Timeout {
				e.logger.Warnf("bus %s: transaction timed out, forcing reset before next request", e.name)
				if _, _, rerr := e.backend.Reset(); rerr != nil {
					e.logger.Errorf("bus %s: force-reset after timeout failed: %v", e.name, rerr)
				}
			}

		case <-ticker.C:
			if e.kickInterval > 0 && time.Since(e.lastKick) >= e.kickInterval && e.kickFn != nil {
				e.lastKick = time.Now()
				// Runs directly against e.backend on this same goroutine —
				// never through call()/Execute(), which would deadlock
				// trying to re-enqueue onto the worker that is running it.
				e.kickFn(e.backend)
			}
		}
	}
}

func (e *Executor) drain() {
	for {
		select {
		case item := <-e.work:
			if item.done != nil {
				item.done <- newBusError(e.name, "execute", Cancelled, nil)
			}
		default:
			return
		}
	}
}

// call runs fn exclusively on the worker goroutine and blocks until it
// completes, reporting Cancelled if the executor is closing.
func (e *Executor) call(fn func() error) error {
	item := workItem{fn: fn, done: make(chan error, 1)}
	select {
	case e.work <- item:
	case <-e.closeCh:
		return newBusError(e.name, "execute", Cancelled, nil)
	}
	select {
	case err := <-item.done:
		return err
	case <-e.closeCh:
		return newBusError(e.name, "execute", Cancelled, nil)
	}
}

// RunAtomic runs fn against the real backend as a single indivisible unit
// of worker time — no other request can interleave partway through. The
// enumerator uses this to run a whole discover/alarm-scan round atomically,
// and the façade uses it for reset/verify, so a multi-step bus sequence
// never gets sliced across two clients.
func (e *Executor) RunAtomic(fn func(Backend) error) error {
	return e.call(func() error { return fn(e.backend) })
}

// Execute runs tx's full reset→select→write→read→delay sequence as one
// atomic unit and blocks until it completes — the synchronous executor
// flavor, used directly by the active/passive backends.
func (e *Executor) Execute(tx Transaction) Result {
	var result Result
	if err := e.call(func() error {
		result = composeTransaction(e.backend, tx)
		return nil
	}); err != nil {
		return Result{Err: err}
	}
	return result
}

// SubmitAsync enqueues tx and returns immediately; its Result arrives via
// Poll, tagged with tx.Context — the asynchronous executor flavor, used by
// the firmware backend (whose wire work is inherently deferred) and for
// long-running conversions the caller doesn't want to block on.
func (e *Executor) SubmitAsync(tx Transaction) error {
	item := workItem{fn: func() error {
		result := composeTransaction(e.backend, tx)
		select {
		case e.responses <- completion{context: tx.Context, tx: tx, result: result}:
		case <-e.closeCh:
		}
		return result.Err
	}}
	select {
	case e.work <- item:
		return nil
	case <-e.closeCh:
		return newBusError(e.name, "submit", Cancelled, nil)
	}
}

// Poll drains completed async submissions in FIFO (enqueue) order,
// invoking afterExecute for each, and returns how many were dispatched.
func (e *Executor) Poll(afterExecute func(context interface{}, tx Transaction, result Result)) int {
	n := 0
	for {
		select {
		case c := <-e.responses:
			afterExecute(c.context, c.tx, c.result)
			n++
		default:
			return n
		}
	}
}

// SetKick installs interval as the periodic-kick cadence and fn as the
// callback the worker invokes every time that much time has elapsed,
// passing it direct access to the backend (the worker's own goroutine
// already owns it). Configuration is read on the worker and written via
// this request message, never by direct mutation from the client context
// (spec.md §5).
func (e *Executor) SetKick(interval time.Duration, fn func(Backend)) error {
	return e.call(func() error {
		e.kickInterval = interval
		e.kickFn = fn
		e.lastKick = time.Now()
		return nil
	})
}

// Close drains pending work with Cancelled, stops the worker, and closes
// the backend's transport. It waits for the worker goroutine to actually
// exit via the errgroup before closing the backend, so the backend is never
// touched by the worker and the caller's Close concurrently.
func (e *Executor) Close() error {
	e.closeOnce.Do(func() { close(e.closeCh) })
	e.g.Wait()
	return e.backend.Close()
}
