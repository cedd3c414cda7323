package rpcengine

import (
	"time"

	"github.com/logicmill/armi-go/pkg/buffer"
	"github.com/logicmill/armi-go/pkg/codec"
	"github.com/logicmill/armi-go/pkg/errcode"
	"github.com/logicmill/armi-go/reactor"
	"github.com/roadrunner-server/errors"
)

// Sender is the outgoing half of a transport adapter a ClientContext needs:
// write a request's encoded bytes to a channel, and tear every channel down
// on context close.
type Sender interface {
	Send(channelID uint64, body *buffer.Mutable) error
	Close() error
}

type clientHandlerEntry struct {
	channelID uint64
	handler   ReplyHandler
	timer     *reactor.Timer
}

// ClientContext is the request/reply correlation layer of spec.md section
// 4.4: it assigns request ids, owns the reply-handler table and its
// secondary channel index, and schedules per-call timeouts. Every exported
// method here is only safe to call from the bound reactor.Loop's own
// goroutine -- spec.md section 5: "All state mutations occur on the single
// reactor thread" -- so it holds no internal lock, matching goridge's own
// lock-free-per-connection style but tightened to a single dispatch thread
// as spec.md section 5 requires.
type ClientContext struct {
	loop   *reactor.Loop
	stream codec.StreamContext
	errs   *errcode.Registry
	sender Sender

	nextID         uint64
	handlers       map[uint64]*clientHandlerEntry
	byChannel      map[uint64]map[uint64]struct{}
	defaultTimeout time.Duration

	transientChannel    uint64
	transientTimeout    time.Duration
	transientSet        bool
	transientTimeoutSet bool

	tracer Tracer
}

// NewClientContext builds a ClientContext bound to loop and sender.
// defaultTimeout is the context-wide fallback applied when a proxy call
// does not set a transient timeout (SUPPLEMENTED FEATURES: the
// original_source context.h default-timeout merge rule, absent from
// spec.md's distillation).
func NewClientContext(loop *reactor.Loop, stream codec.StreamContext, errs *errcode.Registry, sender Sender, defaultTimeout time.Duration) *ClientContext {
	return &ClientContext{
		loop:           loop,
		stream:         stream,
		errs:           errs,
		sender:         sender,
		nextID:         1,
		handlers:       make(map[uint64]*clientHandlerEntry),
		byChannel:      make(map[uint64]map[uint64]struct{}),
		defaultTimeout: defaultTimeout,
	}
}

// NextRequestID returns and advances the monotonic counter (starts at 1,
// spec.md section 4.4).
func (c *ClientContext) NextRequestID() uint64 {
	id := c.nextID
	c.nextID++
	return id
}

// SetTransientTarget and SetTransientTimeout record the per-next-call
// overrides a proxy sets before packing its arguments; valid only between
// that packing and the following AddHandler/SendRequest pair (spec.md
// section 9 open question: "transient state is valid only between a proxy
// method call's argument packing and its send_request call").
func (c *ClientContext) SetTransientTarget(channelID uint64) {
	c.transientChannel = channelID
	c.transientSet = true
}

// SetTransientTimeout overrides the default timeout for the next call only.
func (c *ClientContext) SetTransientTimeout(d time.Duration) {
	c.transientTimeout = d
	c.transientTimeoutSet = true
}

// AddHandler installs handler as the one-shot reply callback for
// requestID, bound to whatever channel/timeout the transient state
// currently holds, then clears both transient fields (the context-wide
// defaultTimeout applies whenever a call didn't set a transient timeout --
// distinct from transientSet, which tracks the channel override -- so a
// timeout-less call never inherits a stale value left behind by a prior
// call).
func (c *ClientContext) AddHandler(requestID uint64, handler ReplyHandler) {
	channelID := c.transientChannel
	timeout := c.defaultTimeout
	if c.transientTimeoutSet {
		timeout = c.transientTimeout
	}
	c.transientChannel = 0
	c.transientSet = false
	c.transientTimeout = 0
	c.transientTimeoutSet = false

	entry := &clientHandlerEntry{channelID: channelID, handler: handler}
	c.handlers[requestID] = entry
	set, ok := c.byChannel[channelID]
	if !ok {
		set = make(map[uint64]struct{})
		c.byChannel[channelID] = set
	}
	set[requestID] = struct{}{}

	if timeout > 0 {
		entry.timer = c.loop.Schedule(timeout, func() {
			c.CancelRequest(requestID, errcode.RPC(c.errs, errcode.TimedOut))
		})
	}
}

// SendRequest forwards body to the transport adapter over the channel
// AddHandler recorded for requestID. If that channel is the reserved null
// id (0, never a valid channel per spec.md section 3), the handler is
// resolved with invalid_channel_id through the loop's dispatch rather than
// synchronously, so CancelRequest never runs re-entrantly inside
// SendRequest (spec.md section 4.4).
func (c *ClientContext) SendRequest(requestID uint64, body *buffer.Mutable) error {
	const op = errors.Op("rpcengine_client_send_request")
	entry, ok := c.handlers[requestID]
	if !ok {
		return errors.E(op, errors.Str("send_request called for an unknown request id"))
	}
	if entry.channelID == 0 {
		c.loop.Dispatch(func() {
			c.CancelRequest(requestID, errcode.RPC(c.errs, errcode.InvalidChannelID))
		})
		return nil
	}
	if err := c.sender.Send(entry.channelID, body); err != nil {
		c.loop.Dispatch(func() {
			c.CancelRequest(requestID, errcode.RPC(c.errs, errcode.InvalidChannelID))
		})
		return errors.E(op, err)
	}
	return nil
}

// HandleReply decodes a reply frame's payload and resolves the matching
// handler. A reply for a request_id with no live handler (already
// cancelled, timed out, or unknown) is silently dropped.
//
// Wire shape decision (spec.md section 6 leaves this ambiguous: "2- or
// 3-element array" does not by itself discriminate success from failure
// when a method's success arity is 1): this implementation always encodes
// [request_id, ok bool, ...], letting ok discriminate regardless of
// declared arity. See DESIGN.md for the rationale.
func (c *ClientContext) HandleReply(channelID uint64, payload buffer.Shared) error {
	const op = errors.Op("rpcengine_client_handle_reply")
	src := codec.NewBufferSource(payload.Bytes(), c.stream.ByteOrder())
	dec := codec.NewDecoder(c.stream, src)

	if _, err := dec.DecodeArrayHeader(); err != nil {
		return errors.E(op, err)
	}
	requestID, err := dec.DecodeUint64()
	if err != nil {
		return errors.E(op, err)
	}
	ok, err := dec.DecodeBool()
	if err != nil {
		return errors.E(op, err)
	}

	entry, present := c.handlers[requestID]
	if !present {
		return nil
	}
	c.removeHandler(requestID, entry)

	if ok {
		c.traceReply(requestID, true, nil)
		entry.handler(true, dec, errcode.Code{})
		return nil
	}
	code, err := dec.DecodeErrorCode()
	if err != nil {
		return errors.E(op, err)
	}
	c.traceReply(requestID, false, &code)
	entry.handler(false, nil, code)
	return nil
}

func (c *ClientContext) removeHandler(requestID uint64, entry *clientHandlerEntry) {
	delete(c.handlers, requestID)
	if set, ok := c.byChannel[entry.channelID]; ok {
		delete(set, requestID)
		if len(set) == 0 {
			delete(c.byChannel, entry.channelID)
		}
	}
	if entry.timer != nil {
		entry.timer.Cancel()
	}
}

// CancelRequest resolves requestID's handler with code, if it is still
// outstanding, and removes it from both indices.
func (c *ClientContext) CancelRequest(requestID uint64, code errcode.Code) {
	entry, ok := c.handlers[requestID]
	if !ok {
		return
	}
	c.removeHandler(requestID, entry)
	entry.handler(false, nil, code)
}

// CancelChannelRequests resolves every handler outstanding on channelID
// with code (spec.md section 4.4, used on channel close).
func (c *ClientContext) CancelChannelRequests(channelID uint64, code errcode.Code) {
	set, ok := c.byChannel[channelID]
	if !ok {
		return
	}
	ids := make([]uint64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	for _, id := range ids {
		c.CancelRequest(id, code)
	}
}

// CancelAllRequests resolves every outstanding handler with code. Used on
// context shutdown (spec.md section 8 testable property 2: the tables are
// both empty afterward).
func (c *ClientContext) CancelAllRequests(code errcode.Code) {
	ids := make([]uint64, 0, len(c.handlers))
	for id := range c.handlers {
		ids = append(ids, id)
	}
	for _, id := range ids {
		c.CancelRequest(id, code)
	}
}

// Close cancels every outstanding request with client_closed and tears
// down the transport (spec.md section 7: "client_closed -- client context
// destructor ran with handlers still outstanding").
func (c *ClientContext) Close() error {
	c.CancelAllRequests(errcode.RPC(c.errs, errcode.ClientClosed))
	return c.sender.Close()
}
