package pipeline

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/logicmill/armi-go/pkg/buffer"
	"github.com/logicmill/armi-go/reactor"
	"github.com/roadrunner-server/errors"
)

// ByteChannel is the external collaborator spec.md section 1 places out of
// scope ("the event loop and socket/channel abstractions"): a connected
// duplex byte stream. Anything satisfying io.ReadWriteCloser qualifies (a
// net.Conn, a pipe, an in-memory test double).
type ByteChannel = io.ReadWriteCloser

// DefaultHighWaterMark is the anchor's default outstanding-write threshold
// (spec.md section 4.3: "default 16 MiB").
const DefaultHighWaterMark = 16 << 20

// Anchor is the bottom-most pipeline layer: it owns a ByteChannel and
// translates it into the duplex byte surface. Writes exceeding the
// high-water mark are queued locally and a control(stop) is emitted
// upward; the queue drains on a dedicated writer goroutine whose
// completions are dispatched back onto loop, so every Upstream callback
// still runs on the single reactor goroutine.
type Anchor struct {
	ch   ByteChannel
	loop *reactor.Loop

	upstream Upstream

	mu            sync.Mutex
	highWater     int
	queued        int64 // bytes queued but not yet confirmed written
	pastHighWater bool
	writeCh       chan []byte
	closeOnce     sync.Once
	closed        int32

	readStarted bool
	stopRead    chan struct{}
}

// AnchorOption configures an Anchor at construction.
type AnchorOption func(*Anchor)

// WithHighWaterMark overrides DefaultHighWaterMark.
func WithHighWaterMark(n int) AnchorOption {
	return func(a *Anchor) { a.highWater = n }
}

// NewAnchor binds ch to loop. Reads do not start until ControlDown(true) is
// called by the layer above (spec.md: "On control start from above, call
// the channel's start_read").
func NewAnchor(ch ByteChannel, loop *reactor.Loop, opts ...AnchorOption) *Anchor {
	a := &Anchor{
		ch:        ch,
		loop:      loop,
		upstream:  discardUpstream,
		highWater: DefaultHighWaterMark,
		writeCh:   make(chan []byte, 256),
		stopRead:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	go a.writeLoop()
	return a
}

func (a *Anchor) SetUpstream(u Upstream) {
	if u == nil {
		u = discardUpstream
	}
	a.upstream = u
}

// writeLoop drains queued writes on its own goroutine (the reactor model
// assumes an async, non-blocking write primitive; a real socket write can
// block, so it is pushed off the single dispatch goroutine here and its
// completion dispatched back on).
func (a *Anchor) writeLoop() {
	for b := range a.writeCh {
		_, err := a.ch.Write(b)
		n := len(b)
		a.loop.Dispatch(func() {
			a.onWriteDrained(n, err)
		})
	}
}

func (a *Anchor) onWriteDrained(n int, err error) {
	if err != nil {
		a.upstream.OnError(err)
		_ = a.Close()
		return
	}
	a.mu.Lock()
	a.queued -= int64(n)
	q := a.queued
	was := a.pastHighWater
	if q < int64(a.highWater) {
		a.pastHighWater = false
	}
	a.mu.Unlock()
	if was && q < int64(a.highWater) {
		a.upstream.OnControl(true)
	}
}

// WriteDown enqueues bufs for the channel. If the outstanding queue
// exceeds the high-water mark, a control(stop) is emitted upward.
func (a *Anchor) WriteDown(bufs ...*buffer.Mutable) error {
	const op = errors.Op("anchor_write_down")
	if atomic.LoadInt32(&a.closed) != 0 {
		return errors.E(op, errors.Str("channel_closed"))
	}
	total := 0
	for _, b := range bufs {
		total += b.Len()
	}
	a.mu.Lock()
	a.queued += int64(total)
	crossed := !a.pastHighWater && a.queued >= int64(a.highWater)
	if crossed {
		a.pastHighWater = true
	}
	a.mu.Unlock()

	for _, b := range bufs {
		cp := make([]byte, b.Len())
		copy(cp, b.Bytes())
		select {
		case a.writeCh <- cp:
		default:
			// Writer goroutine is behind; block the caller's
			// dispatch turn rather than drop bytes. This only
			// happens once the queue is already deep past the
			// high-water mark.
			a.writeCh <- cp
		}
	}
	if crossed {
		a.upstream.OnControl(false)
	}
	return nil
}

// ControlDown starts or stops the channel's read side.
func (a *Anchor) ControlDown(start bool) error {
	if start {
		if a.readStarted {
			return nil
		}
		a.readStarted = true
		go a.readLoop()
		return nil
	}
	if !a.readStarted {
		return nil
	}
	a.readStarted = false
	close(a.stopRead)
	a.stopRead = make(chan struct{})
	return nil
}

func (a *Anchor) readLoop() {
	buf := make([]byte, 64*1024)
	stopCh := a.stopRead
	for {
		select {
		case <-stopCh:
			return
		default:
		}
		n, err := a.ch.Read(buf)
		if n > 0 {
			data := buffer.NewConstFromBytes(buf[:n])
			a.loop.Dispatch(func() {
				a.upstream.OnRead(data)
			})
		}
		if err != nil {
			a.loop.Dispatch(func() {
				a.upstream.OnError(err)
				_ = a.Close()
			})
			return
		}
	}
}

// Close closes the underlying channel exactly once.
func (a *Anchor) Close() error {
	var err error
	a.closeOnce.Do(func() {
		atomic.StoreInt32(&a.closed, 1)
		err = a.ch.Close()
		close(a.writeCh)
	})
	return err
}
