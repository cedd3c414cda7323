package pipeline

import (
	"github.com/logicmill/armi-go/pkg/buffer"
	"github.com/logicmill/armi-go/pkg/errcode"
	"github.com/logicmill/armi-go/pkg/frame"
	"github.com/roadrunner-server/errors"
)

// ReadHandler receives one whole frame's payload per invocation, matching
// the frame surface's atomic-delivery guarantee.
type ReadHandler func(h frame.Header, payload buffer.Shared)

// Driver is the top-most pipeline layer: the message-oriented API an
// application (the RPC engine's transport adapters) actually programs
// against, per spec.md section 4.3's description of the driver as
// translating "a simple message-oriented API" onto the frame surface below.
// It owns the not_writable/already_reading/cannot_resume_read error
// semantics spec.md section 7 lists under the rpc-runtime category.
type Driver struct {
	below FrameLayer
	errs  *errcode.Registry

	reading  bool
	writable bool

	onRead        ReadHandler
	onWritable    func()
	onNotWritable func()
	onError       func(error)
}

// NewDriver mates a Driver above below. errs resolves the rpc-runtime error
// codes this layer raises. SetFrameUpstream must still be called by
// assembly to route below's frame events into the driver.
func NewDriver(below FrameLayer, errs *errcode.Registry) *Driver {
	return &Driver{below: below, errs: errs, writable: true}
}

func (d *Driver) rpcErr(op errors.Op, v errcode.RPCValue) error {
	return errors.E(op, errors.Str(errcode.RPC(d.errs, v).String()))
}

// OnWritable/OnNotWritable/OnErrorFunc install the driver's event callbacks.
func (d *Driver) OnWritable(fn func())       { d.onWritable = fn }
func (d *Driver) OnNotWritable(fn func())    { d.onNotWritable = fn }
func (d *Driver) OnErrorFunc(fn func(error)) { d.onError = fn }

// OnFrame implements FrameUpstream, delivering one frame to the installed
// read handler.
func (d *Driver) OnFrame(h frame.Header, payload buffer.Shared) {
	if d.onRead != nil {
		d.onRead(h, payload)
	}
}

// OnControl implements FrameUpstream: true means the channel has drained
// below the high-water mark and writes may resume; false signals
// back-pressure.
func (d *Driver) OnControl(start bool) {
	d.writable = start
	if start {
		if d.onWritable != nil {
			d.onWritable()
		}
		return
	}
	if d.onNotWritable != nil {
		d.onNotWritable()
	}
}

// OnError implements FrameUpstream.
func (d *Driver) OnError(err error) {
	if d.onError != nil {
		d.onError(err)
	}
}

// StartRead begins delivering frames to handler. Calling it while already
// reading is an error (spec.md rpc-runtime category: already_reading).
func (d *Driver) StartRead(handler ReadHandler) error {
	const op = errors.Op("driver_start_read")
	if d.reading {
		return d.rpcErr(op, errcode.AlreadyReading)
	}
	d.onRead = handler
	d.reading = true
	return d.below.ControlDown(true)
}

// StopRead pauses frame delivery.
func (d *Driver) StopRead() error {
	if !d.reading {
		return nil
	}
	d.reading = false
	return d.below.ControlDown(false)
}

// ResumeRead resumes frame delivery after a StopRead. Calling it without a
// prior StartRead is an error (cannot_resume_read).
func (d *Driver) ResumeRead() error {
	const op = errors.Op("driver_resume_read")
	if d.onRead == nil {
		return d.rpcErr(op, errcode.CannotResumeRead)
	}
	d.reading = true
	return d.below.ControlDown(true)
}

// Write sends payload as a single message. It fails with not_writable if
// the pipeline is currently signaling back-pressure.
func (d *Driver) Write(flags uint32, payload *buffer.Mutable) error {
	const op = errors.Op("driver_write")
	if !d.writable {
		return d.rpcErr(op, errcode.NotWritable)
	}
	return d.below.WriteFrame(frame.Header{Flags: flags}, payload)
}

// Close tears down the layers below.
func (d *Driver) Close() error {
	return d.below.Close()
}
