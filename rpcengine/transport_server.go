package rpcengine

import (
	"go.uber.org/multierr"

	"github.com/logicmill/armi-go/pkg/buffer"
	"github.com/logicmill/armi-go/pkg/errcode"
	"github.com/logicmill/armi-go/pkg/frame"
	"github.com/logicmill/armi-go/pkg/pipeline"
	"github.com/logicmill/armi-go/reactor"
	"github.com/roadrunner-server/errors"
)

// RequestRouter is what a ServerTransport needs from a ServerContext:
// dispatch an inbound request frame, and drop a channel's per-channel
// target registration once its connection is gone.
type RequestRouter interface {
	HandleRequest(channelID uint64, payload buffer.Shared) error
	ChannelClosed(channelID uint64)
}

// ServerTransport is the server-side transport adapter of spec.md section
// 4.6: accepts connections, assigns channel ids, and routes inbound frames
// into the bound ServerContext.
type ServerTransport struct {
	loop *reactor.Loop
	errs *errcode.Registry

	nextChannelID    uint64
	channels         map[uint64]*pipeline.Stack
	router           RequestRouter
	onChannelConnect func(channelID uint64)
}

// NewServerTransport builds a ServerTransport bound to loop.
func NewServerTransport(loop *reactor.Loop, errs *errcode.Registry) *ServerTransport {
	return &ServerTransport{
		loop:     loop,
		errs:     errs,
		channels: make(map[uint64]*pipeline.Stack),
	}
}

// SetRouter installs the ServerContext this transport delivers requests to.
func (t *ServerTransport) SetRouter(r RequestRouter) {
	t.router = r
}

// OnChannelConnect installs a callback fired once per newly accepted
// channel (spec.md section 4.6: "fire on_channel_connect").
func (t *ServerTransport) OnChannelConnect(fn func(channelID uint64)) {
	t.onChannelConnect = fn
}

// Accept assembles a pipeline over ch, assigns it a channel id, starts
// reads routed into HandleRequest, and fires OnChannelConnect.
func (t *ServerTransport) Accept(ch pipeline.ByteChannel) uint64 {
	t.nextChannelID++
	id := t.nextChannelID

	stack := pipeline.NewStack(ch, t.loop, t.errs)
	t.channels[id] = stack

	stack.Driver.OnErrorFunc(func(err error) {
		t.closeChannel(id)
	})
	_ = stack.Driver.StartRead(func(h frame.Header, payload buffer.Shared) {
		_ = t.router.HandleRequest(id, payload)
	})

	if t.onChannelConnect != nil {
		t.onChannelConnect(id)
	}
	return id
}

// Send writes a reply's encoded bytes back to channelID.
func (t *ServerTransport) Send(channelID uint64, body *buffer.Mutable) error {
	const op = errors.Op("rpcengine_server_transport_send")
	stack, ok := t.channels[channelID]
	if !ok {
		return errors.E(op, errors.Str("unknown channel id"))
	}
	return stack.Driver.Write(0, body)
}

func (t *ServerTransport) closeChannel(channelID uint64) {
	stack, ok := t.channels[channelID]
	if !ok {
		return
	}
	delete(t.channels, channelID)
	_ = stack.Close()
	if t.router != nil {
		t.router.ChannelClosed(channelID)
	}
}

// CloseChannel closes one channel locally (spec.md section 4.6: "drop the
// server-side per-channel target").
func (t *ServerTransport) CloseChannel(channelID uint64) {
	t.closeChannel(channelID)
}

// Close tears down every channel, aggregating close errors with multierr.
func (t *ServerTransport) Close() error {
	var errs []error
	for id, stack := range t.channels {
		if err := stack.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(t.channels, id)
	}
	return multierr.Combine(errs...)
}
