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

// ReplyRouter is what a ClientTransport needs from a ClientContext: route
// an inbound frame to HandleReply, and cascade-cancel on channel loss.
type ReplyRouter interface {
	HandleReply(channelID uint64, payload buffer.Shared) error
	CancelChannelRequests(channelID uint64, code errcode.Code)
}

// ClientTransport is the client-side transport adapter of spec.md section
// 4.6: it owns one pipeline.Stack per connected channel, assigns channel
// ids, and routes inbound frames into the bound ClientContext.
type ClientTransport struct {
	loop *reactor.Loop
	errs *errcode.Registry

	nextChannelID uint64
	channels      map[uint64]*pipeline.Stack
	router        ReplyRouter
}

// NewClientTransport builds a ClientTransport bound to loop. SetRouter must
// be called once with the ClientContext that owns this transport before
// Connect is used.
func NewClientTransport(loop *reactor.Loop, errs *errcode.Registry) *ClientTransport {
	return &ClientTransport{
		loop:     loop,
		errs:     errs,
		channels: make(map[uint64]*pipeline.Stack),
	}
}

// SetRouter installs the ClientContext this transport delivers replies to.
func (t *ClientTransport) SetRouter(r ReplyRouter) {
	t.router = r
}

// Connect assembles a pipeline over ch, assigns it a channel id (spec.md
// section 4.6: "establish a byte channel with framing enabled, assign it a
// channel id, start reads that route frames into handle_reply"), and
// returns the id.
func (t *ClientTransport) Connect(ch pipeline.ByteChannel) uint64 {
	t.nextChannelID++
	id := t.nextChannelID

	stack := pipeline.NewStack(ch, t.loop, t.errs)
	t.channels[id] = stack

	stack.Driver.OnErrorFunc(func(err error) {
		t.closeChannel(id, errcode.RPC(t.errs, errcode.ChannelClosed))
	})
	_ = stack.Driver.StartRead(func(h frame.Header, payload buffer.Shared) {
		_ = t.router.HandleReply(id, payload)
	})
	return id
}

// Send writes body to channelID's driver. Returns an "unknown channel id"
// error if the channel is not (or no longer) connected;
// ClientContext.SendRequest resolves the request's handler with
// invalid_channel_id when Send fails.
func (t *ClientTransport) Send(channelID uint64, body *buffer.Mutable) error {
	const op = errors.Op("rpcengine_client_transport_send")
	stack, ok := t.channels[channelID]
	if !ok {
		return errors.E(op, errors.Str("unknown channel id"))
	}
	return stack.Driver.Write(0, body)
}

func (t *ClientTransport) closeChannel(channelID uint64, code errcode.Code) {
	stack, ok := t.channels[channelID]
	if !ok {
		return
	}
	delete(t.channels, channelID)
	_ = stack.Close()
	if t.router != nil {
		t.router.CancelChannelRequests(channelID, code)
	}
}

// CloseChannel closes one channel locally, cascading channel_closed to any
// requests still outstanding on it (spec.md section 4.6).
func (t *ClientTransport) CloseChannel(channelID uint64) {
	t.closeChannel(channelID, errcode.RPC(t.errs, errcode.ChannelClosed))
}

// Close tears down every channel, aggregating per-channel close errors
// with multierr rather than reporting only the first (spec.md section
// 4.6 "Context closure: close all channels").
func (t *ClientTransport) Close() error {
	var errs []error
	for id, stack := range t.channels {
		if err := stack.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(t.channels, id)
	}
	return multierr.Combine(errs...)
}
