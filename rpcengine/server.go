package rpcengine

import (
	"sync/atomic"

	"github.com/logicmill/armi-go/pkg/buffer"
	"github.com/logicmill/armi-go/pkg/codec"
	"github.com/logicmill/armi-go/pkg/errcode"
	"github.com/roadrunner-server/errors"
)

// ReplyWriter is the outgoing half of a transport adapter a ServerContext
// needs: write a reply frame's encoded bytes back to a channel.
type ReplyWriter interface {
	Send(channelID uint64, body *buffer.Mutable) error
}

// ReplyProxy is the server-side callable of spec.md section 4.5: the first
// invocation of either Success or Fail for a given (request_id, channel_id)
// sends a reply; later invocations are silently ignored (the reply proxy
// contract).
type ReplyProxy struct {
	ctx       *ServerContext
	requestID uint64
	channelID uint64
	fired     int32
}

// send writes [request_id, ok, ...] with bodyLen trailing elements (the
// declared return values on success, or the single nested error_code array
// on failure) -- the explicit bool discriminator is this implementation's
// resolution of an ambiguity in how replies distinguish success from
// failure; see DESIGN.md.
func (p *ReplyProxy) send(ok bool, bodyLen int, encodeBody func(e *codec.Encoder) error) error {
	if !atomic.CompareAndSwapInt32(&p.fired, 0, 1) {
		return nil
	}
	const op = errors.Op("rpcengine_reply_proxy_send")
	buf := buffer.NewMutable(64)
	sink := codec.NewBufferSink(buf, p.ctx.stream.ByteOrder())
	enc := codec.NewEncoder(p.ctx.stream, sink)

	if err := enc.EncodeArrayHeader(2 + bodyLen); err != nil {
		return errors.E(op, err)
	}
	if err := enc.EncodeUint64(p.requestID); err != nil {
		return errors.E(op, err)
	}
	if err := enc.EncodeBool(ok); err != nil {
		return errors.E(op, err)
	}
	if err := encodeBody(enc); err != nil {
		return errors.E(op, err)
	}
	return p.ctx.transport.Send(p.channelID, buf)
}

// Success sends a success reply carrying values, in the method's declared
// return order.
func (p *ReplyProxy) Success(values ...any) error {
	return p.send(true, len(values), func(e *codec.Encoder) error {
		for _, v := range values {
			if err := e.Encode(v); err != nil {
				return err
			}
		}
		return nil
	})
}

// Fail sends a failure reply carrying code.
func (p *ReplyProxy) Fail(code errcode.Code) error {
	return p.send(false, 1, func(e *codec.Encoder) error {
		return e.EncodeErrorCode(code)
	})
}

// Stats carries server-side observability counters not present in
// original_source but called out as a supplement in SPEC_FULL.md.
type Stats struct {
	AbandonedPromises int64
}

// ServerContext is the incoming request dispatch layer of spec.md section
// 4.5: it holds the registered target implementations (global and/or
// per-channel, SUPPLEMENTED FEATURES), the method stub table, and the
// shared stream context used to decode requests and encode replies.
type ServerContext struct {
	stream    codec.StreamContext
	errs      *errcode.Registry
	transport ReplyWriter
	stubs     []MethodStub

	globalTarget   any
	channelTargets map[uint64]any

	stats  Stats
	tracer Tracer
}

// NewServerContext builds a ServerContext dispatching requests against a
// single densely-ordered interface's stub table (spec.md section 4.7:
// "Interfaces are indexed within a context... both orderings are fixed at
// build time").
func NewServerContext(stream codec.StreamContext, errs *errcode.Registry, transport ReplyWriter, stubs []MethodStub) *ServerContext {
	return &ServerContext{
		stream:         stream,
		errs:           errs,
		transport:      transport,
		stubs:          stubs,
		channelTargets: make(map[uint64]any),
	}
}

// RegisterGlobal installs target as the default implementation for any
// channel without a more specific registration.
func (s *ServerContext) RegisterGlobal(target any) {
	s.globalTarget = target
}

// RegisterForChannel installs target as channelID's implementation,
// overriding the global registration for that channel only
// (original_source's async_adapter.h find_target: channel-bound lookup
// falls back to global).
func (s *ServerContext) RegisterForChannel(channelID uint64, target any) {
	s.channelTargets[channelID] = target
}

// ChannelClosed drops channelID's per-channel target registration
// (spec.md section 4.6: "drop the server-side per-channel target on the
// server").
func (s *ServerContext) ChannelClosed(channelID uint64) {
	delete(s.channelTargets, channelID)
}

// Stats returns a snapshot of the server's observability counters.
func (s *ServerContext) Stats() Stats {
	return Stats{AbandonedPromises: atomic.LoadInt64(&s.stats.AbandonedPromises)}
}

// StatsRef exposes the live counters for a Promise's finalizer to
// increment directly.
func (s *ServerContext) StatsRef() *Stats { return &s.stats }

func (s *ServerContext) targetFor(channelID uint64) (any, bool) {
	if t, ok := s.channelTargets[channelID]; ok {
		return t, true
	}
	if s.globalTarget != nil {
		return s.globalTarget, true
	}
	return nil, false
}

// HandleRequest decodes a request frame's payload ([request_id, method_id,
// [args...]]) and dispatches it to the registered target's stub, per
// spec.md section 4.5's numbered request-handling steps.
func (s *ServerContext) HandleRequest(channelID uint64, payload buffer.Shared) error {
	const op = errors.Op("rpcengine_server_handle_request")
	src := codec.NewBufferSource(payload.Bytes(), s.stream.ByteOrder())
	dec := codec.NewDecoder(s.stream, src)

	if _, err := dec.DecodeArrayHeader(); err != nil {
		return errors.E(op, err)
	}
	requestID, err := dec.DecodeUint64()
	if err != nil {
		return errors.E(op, err)
	}
	methodIDVal, err := dec.DecodeUint64()
	if err != nil {
		return errors.E(op, err)
	}
	methodID := uint32(methodIDVal)

	argc, err := dec.DecodeArrayHeader()
	if err != nil {
		return errors.E(op, err)
	}

	reply := &ReplyProxy{ctx: s, requestID: requestID, channelID: channelID}
	s.traceRequest(requestID, methodID, channelID, argc)

	target, ok := s.targetFor(channelID)
	if !ok {
		return reply.Fail(errcode.RPC(s.errs, errcode.NoImplementationInstanceRegistered))
	}
	if int(methodID) >= len(s.stubs) {
		return reply.Fail(errcode.RPC(s.errs, errcode.NoTargetProvided))
	}
	stub := s.stubs[methodID]
	if argc != stub.Arity {
		return reply.Fail(errcode.RPC(s.errs, errcode.InvalidArgumentCount))
	}

	if err := stub.Invoke(target, reply, dec); err != nil {
		return reply.Fail(errcode.RPC(s.errs, errcode.ExceptionThrownByMethodStub))
	}
	return nil
}
