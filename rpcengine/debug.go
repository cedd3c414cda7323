package rpcengine

import (
	"github.com/logicmill/armi-go/pkg/errcode"
	"github.com/logicmill/armi-go/pkg/rpcdebug"
)

// Tracer receives a JSON line for every request and reply a context
// processes. It is nil by default -- wiring it costs a branch per message,
// not a dependency, matching goridge's opt-in debug logging in
// _examples/l3dlp-sandbox-goridge's relay construction.
type Tracer func(line string)

// SetTracer installs fn as s's request tracer. Pass nil to disable.
func (s *ServerContext) SetTracer(fn Tracer) {
	s.tracer = fn
}

func (s *ServerContext) traceRequest(requestID uint64, methodID uint32, channelID uint64, argc int) {
	if s.tracer == nil {
		return
	}
	s.tracer(rpcdebug.DumpRequest(rpcdebug.Request{
		RequestID: requestID,
		MethodID:  methodID,
		ChannelID: channelID,
		Argc:      argc,
	}))
}

// SetTracer installs fn as c's reply tracer. Pass nil to disable.
func (c *ClientContext) SetTracer(fn Tracer) {
	c.tracer = fn
}

func (c *ClientContext) traceReply(requestID uint64, ok bool, code *errcode.Code) {
	if c.tracer == nil {
		return
	}
	r := rpcdebug.Reply{RequestID: requestID, OK: ok}
	if code != nil {
		r.Error = rpcdebug.FromCode(*code)
	}
	c.tracer(rpcdebug.DumpReply(r))
}
