// Package reactor implements the single-threaded, run-to-completion
// dispatch loop spec.md section 5 requires: "there is no internal locking...
// there must also be no nested invocation of a context operation from
// within another of its own callbacks -- violating operations instead
// re-post themselves via the loop's dispatch".
//
// Every other package in this module that spec.md places "out of scope"
// under an assumed external event loop (section 1: "the event loop and
// socket/channel abstractions... assumed: a run-to-completion
// single-threaded reactor exposing connect/accept/read/write/timer/
// dispatch") instead drives itself through a Loop from this package. No
// third-party library in the retrieval pack implements a cooperative
// single-goroutine scheduler (goridge itself is blocking-I/O-per-goroutine
// with sync.Map/mutexes, which spec.md's no-internal-locking rule
// explicitly rules out); this is built on channels and goroutines only,
// the minimum the standard library offers for an in-process actor loop.
package reactor

import (
	"sync"
	"time"
)

// Loop is a single-goroutine work queue plus a cancellable one-shot timer
// registry. All RPC engine and pipeline state mutation happens inside jobs
// run by a Loop's own goroutine, never directly from a caller's goroutine
// or a timer's own goroutine.
type Loop struct {
	jobs   chan func()
	done   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// NewLoop starts a Loop's dispatch goroutine. queueDepth bounds how many
// pending jobs may be queued before Dispatch blocks; 0 chooses a sensible
// default.
func NewLoop(queueDepth int) *Loop {
	if queueDepth <= 0 {
		queueDepth = 1024
	}
	l := &Loop{
		jobs: make(chan func(), queueDepth),
		done: make(chan struct{}),
	}
	l.wg.Add(1)
	go l.run()
	return l
}

func (l *Loop) run() {
	defer l.wg.Done()
	for {
		select {
		case job := <-l.jobs:
			job()
		case <-l.done:
			// Drain any jobs queued before shutdown so a Dispatch
			// caller's pending work is not silently lost mid-drain.
			for {
				select {
				case job := <-l.jobs:
					job()
				default:
					return
				}
			}
		}
	}
}

// Dispatch posts fn to run on the loop's goroutine. It never runs fn
// synchronously, even when called from the loop's own goroutine, matching
// spec.md's requirement that re-entrant paths "re-enter via the loop's
// dispatch to preserve ordering invariants". Dispatch is a no-op (drops fn)
// once the loop has been stopped, since spec.md's no_event_loop error is
// the caller-visible signal for that condition, not a panic.
func (l *Loop) Dispatch(fn func()) {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return
	}
	select {
	case l.jobs <- fn:
	case <-l.done:
	}
}

// Timer is a cancellable handle returned by Schedule.
type Timer struct {
	t        *time.Timer
	cancelCh chan struct{}
	once     sync.Once
}

// Cancel prevents a not-yet-fired timer from posting its callback. It is
// safe to call multiple times and after the timer has already fired.
func (tm *Timer) Cancel() {
	tm.once.Do(func() {
		tm.t.Stop()
		close(tm.cancelCh)
	})
}

// Schedule arranges for fn to be dispatched onto the loop after d elapses,
// unless cancelled first. The callback itself always runs on the loop's
// goroutine, never on the timer's own goroutine, so it shares the same
// no-nested-invocation guarantee as any other loop job.
func (l *Loop) Schedule(d time.Duration, fn func()) *Timer {
	tm := &Timer{cancelCh: make(chan struct{})}
	tm.t = time.AfterFunc(d, func() {
		select {
		case <-tm.cancelCh:
			return
		default:
		}
		l.Dispatch(fn)
	})
	return tm
}

// Close stops the loop after draining any jobs already queued. It blocks
// until the loop's goroutine has exited.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()
	close(l.done)
	l.wg.Wait()
}
