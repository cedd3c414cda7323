package pipeline

import (
	"github.com/logicmill/armi-go/pkg/buffer"
	"github.com/logicmill/armi-go/pkg/frame"
	"github.com/roadrunner-server/errors"
)

// FrameUpstream is the frame surface's callback bundle, the second surface
// pair spec.md section 3 calls for above a framer: whole frames instead of
// raw bytes, plus the same control/error signals as the byte surface.
type FrameUpstream interface {
	OnFrame(h frame.Header, payload buffer.Shared)
	OnControl(start bool)
	OnError(err error)
}

// FrameLayer is the downward contract a framer exposes to whatever sits
// above it: write one message as a whole frame, the same read start/stop
// control as a ByteLayer, and the frame-surface upstream registration.
type FrameLayer interface {
	WriteFrame(h frame.Header, payload *buffer.Mutable) error
	ControlDown(start bool) error
	SetFrameUpstream(u FrameUpstream)
	Close() error
}

type noopFrameUpstream struct{}

func (noopFrameUpstream) OnFrame(frame.Header, buffer.Shared) {}
func (noopFrameUpstream) OnControl(bool)                      {}
func (noopFrameUpstream) OnError(error)                       {}

var discardFrameUpstream FrameUpstream = noopFrameUpstream{}

// Framer sits between a ByteLayer below (bytes in, bytes out) and a
// FrameUpstream above (whole frames in, frames to write out). It accumulates
// partial reads across as many OnRead deliveries as needed and emits exactly
// one OnFrame call per complete frame, in order -- spec.md's "frames are
// delivered atomically" invariant.
//
// Grounded on _examples/l3dlp-sandbox-goridge/internal/receive.go's
// partial-read accumulation loop (io.ReadFull against a header then a
// payload), restructured here as an incremental state machine since the
// byte surface delivers data via callback rather than letting the framer
// block on a read call.
type Framer struct {
	below ByteLayer

	frameUpstream FrameUpstream

	acc        *buffer.Mutable
	haveHeader bool
	pending    frame.Header
}

// NewFramer mates a Framer above below. The caller must still call
// below.SetUpstream(framer) to complete the wiring (assembly.go does this).
func NewFramer(below ByteLayer) *Framer {
	return &Framer{
		below:         below,
		frameUpstream: discardFrameUpstream,
		acc:           buffer.NewMutable(0),
	}
}

func (f *Framer) SetFrameUpstream(u FrameUpstream) {
	if u == nil {
		u = discardFrameUpstream
	}
	f.frameUpstream = u
}

// OnRead implements Upstream, receiving raw bytes from the layer below.
func (f *Framer) OnRead(data buffer.Const) {
	const op = errors.Op("framer_on_read")
	if err := f.acc.Append(data.Bytes()); err != nil {
		f.frameUpstream.OnError(errors.E(op, err))
		return
	}
	f.drain()
}

// OnControl implements Upstream, relaying back-pressure signals verbatim
// onto the frame surface.
func (f *Framer) OnControl(start bool) {
	f.frameUpstream.OnControl(start)
}

// OnError implements Upstream.
func (f *Framer) OnError(err error) {
	f.frameUpstream.OnError(err)
}

// drain extracts as many complete frames as the accumulator currently
// holds, delivering each via OnFrame before returning.
func (f *Framer) drain() {
	for {
		if !f.haveHeader {
			if f.acc.Len() < frame.HeaderSize {
				return
			}
			h, err := frame.DecodeHeader(f.acc.Bytes()[:frame.HeaderSize])
			if err != nil {
				f.frameUpstream.OnError(err)
				return
			}
			f.pending = h
			f.haveHeader = true
		}

		need := frame.HeaderSize + int(f.pending.Size)
		if f.acc.Len() < need {
			return
		}

		payload := buffer.NewShared(f.acc.Bytes()[frame.HeaderSize:need])
		h := f.pending
		f.haveHeader = false

		leftover := append([]byte(nil), f.acc.Bytes()[need:]...)
		next := buffer.NewMutable(len(leftover))
		_ = next.Append(leftover)
		f.acc = next

		f.frameUpstream.OnFrame(h, payload)
	}
}

// WriteFrame encodes h and payload as a single wire frame and writes it
// down to the byte layer below in one WriteDown call, so a concurrent write
// of another frame can never interleave its bytes.
func (f *Framer) WriteFrame(h frame.Header, payload *buffer.Mutable) error {
	const op = errors.Op("framer_write_frame")
	fr := frame.Frame{Header: h, Payload: payload.Bytes()}
	wire := fr.Encode()
	buf := buffer.MutableFromBytes(wire)
	if err := f.below.WriteDown(buf); err != nil {
		return errors.E(op, err)
	}
	return nil
}

// ControlDown forwards the read start/stop control to the layer below.
func (f *Framer) ControlDown(start bool) error {
	return f.below.ControlDown(start)
}

// Close tears down the layer below.
func (f *Framer) Close() error {
	return f.below.Close()
}
