package rpcengine

import (
	"runtime"
	"sync/atomic"

	"github.com/logicmill/armi-go/pkg/errcode"
)

// Promise is the promise-returning stub shape's handle (spec.md section
// 4.5 table, "Promise returning"): resolving it sends the success reply,
// rejecting it sends the error reply, and it settles at most once.
//
// original_source/include/logicmill/armi/method_stub.h's promise-returning
// shape logs and drops a promise that is released without ever being
// resolved or rejected; spec.md's distillation keeps that behavior (no
// reply emitted, the client eventually times out); the original keeps no
// counter for it. SPEC_FULL.md's SUPPLEMENTED FEATURES section adds
// Stats.AbandonedPromises purely for observability: a runtime.SetFinalizer
// increments it if a Promise is garbage collected while still pending,
// since Go has no destructor to hook this on directly.
type Promise struct {
	stats   *Stats
	settled int32
	resolve func(values ...any) error
	reject  func(code errcode.Code) error
}

// NewPromise returns a Promise wired to reply (a *ReplyProxy) and stats
// (the owning ServerContext's counters).
func NewPromise(reply *ReplyProxy, stats *Stats) *Promise {
	p := &Promise{
		stats:   stats,
		resolve: reply.Success,
		reject:  reply.Fail,
	}
	runtime.SetFinalizer(p, func(p *Promise) {
		if atomic.LoadInt32(&p.settled) == 0 {
			atomic.AddInt64(&stats.AbandonedPromises, 1)
		}
	})
	return p
}

// Resolve sends the success reply with values, settling the promise.
func (p *Promise) Resolve(values ...any) error {
	if !atomic.CompareAndSwapInt32(&p.settled, 0, 1) {
		return nil
	}
	return p.resolve(values...)
}

// Reject sends the failure reply with code, settling the promise.
func (p *Promise) Reject(code errcode.Code) error {
	if !atomic.CompareAndSwapInt32(&p.settled, 0, 1) {
		return nil
	}
	return p.reject(code)
}
