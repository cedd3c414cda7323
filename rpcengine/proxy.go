package rpcengine

import (
	"time"

	"github.com/logicmill/armi-go/pkg/buffer"
	"github.com/logicmill/armi-go/pkg/codec"
	"github.com/roadrunner-server/errors"
)

// Proxy is the hand-written equivalent of the source's macro-generated
// stub (spec.md section 4.7): it threads a ClientContext reference and a
// dense method ordinal into each call. One Proxy is built per interface a
// consumer declares; rpcengine_test.go's counter harness shows the pattern
// a code generator would otherwise produce.
type Proxy struct {
	client     *ClientContext
	ifaceIndex uint32
	methodBase uint32
}

// NewProxy returns a Proxy bound to client for the interface whose method
// ordinals start at methodBase within this context's dense numbering
// (spec.md section 4.7: "Interfaces within a context are also densely
// ordered").
func NewProxy(client *ClientContext, ifaceIndex uint32, methodBase uint32) *Proxy {
	return &Proxy{client: client, ifaceIndex: ifaceIndex, methodBase: methodBase}
}

// Call packs [request_id, method_id, [args...]] with the codec, installs
// handler, and sends the request over channelID. Call itself records
// channelID via SetTransientTarget and, when timeout is positive, timeout
// via SetTransientTimeout; a zero timeout leaves the context-wide default
// in effect.
func (p *Proxy) Call(channelID uint64, timeout time.Duration, methodOrdinal uint32, args []any, handler ReplyHandler) error {
	const op = errors.Op("rpcengine_proxy_call")

	p.client.SetTransientTarget(channelID)
	if timeout > 0 {
		p.client.SetTransientTimeout(timeout)
	}

	requestID := p.client.NextRequestID()
	p.client.AddHandler(requestID, handler)

	buf := buffer.NewMutable(64)
	sink := codec.NewBufferSink(buf, p.client.stream.ByteOrder())
	enc := codec.NewEncoder(p.client.stream, sink)

	if err := enc.EncodeArrayHeader(3); err != nil {
		return errors.E(op, err)
	}
	if err := enc.EncodeUint64(requestID); err != nil {
		return errors.E(op, err)
	}
	if err := enc.EncodeUint64(uint64(p.methodBase + methodOrdinal)); err != nil {
		return errors.E(op, err)
	}
	if err := enc.EncodeArrayHeader(len(args)); err != nil {
		return errors.E(op, err)
	}
	for _, a := range args {
		if err := enc.Encode(a); err != nil {
			return errors.E(op, err)
		}
	}

	return p.client.SendRequest(requestID, buf)
}
