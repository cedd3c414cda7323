// Package pipeline implements the composable duplex protocol stack of
// spec.md section 4.3: a stack of layers, each exposing a top (application-
// facing) and bottom (network-facing) surface, assembled bottom-up by
// mating adjacent surfaces. The universal surface pair is the duplex byte
// surface (Upstream/ByteLayer below); a second, frame-shaped surface pair
// is used above a Framer.
package pipeline

import (
	"github.com/logicmill/armi-go/pkg/buffer"
)

// Upstream is the set of callbacks a layer invokes to deliver events to
// whatever sits above it on the duplex byte surface: read data, a
// control(start/stop) back-pressure signal, or an error. Registered once at
// assembly time via a layer's SetUpstream.
type Upstream interface {
	OnRead(data buffer.Const)
	OnControl(start bool)
	OnError(err error)
}

// ByteLayer is the contract every byte-surface pipeline layer satisfies:
// downward operations invoked by whatever sits above it, plus the
// registration point for its own upward notifications.
type ByteLayer interface {
	// WriteDown pushes one or more mutable buffers down toward the
	// channel. Buffers are written in slice order.
	WriteDown(bufs ...*buffer.Mutable) error
	// ControlDown toggles reading on the layer below: start resumes
	// reads, stop pauses them.
	ControlDown(start bool) error
	// SetUpstream installs the callbacks this layer uses to notify
	// whatever sits above it. Must be called once, before any data
	// flows.
	SetUpstream(u Upstream)
	// Close tears the layer down, releasing its resources.
	Close() error
}

// noopUpstream discards every event; used as the default Upstream for a
// layer that has not yet been mated to anything above it, so a layer never
// has to nil-check before calling its upstream.
type noopUpstream struct{}

func (noopUpstream) OnRead(buffer.Const) {}
func (noopUpstream) OnControl(bool)      {}
func (noopUpstream) OnError(error)       {}

var discardUpstream Upstream = noopUpstream{}
