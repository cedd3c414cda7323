// Package rpcengine implements the request/reply correlation layer, the
// client and server contexts, the transport adapters that bind them to the
// duplex pipeline, and the typed proxy/stub surface a consumer programs
// against (spec.md sections 4.4-4.7).
package rpcengine

// ShapeKind enumerates the stub-authoring shapes spec.md section 4.5's
// table names. The source specializes a method-proxy/method-stub template
// per shape (design note in spec.md section 9: "~9 shapes... express this
// as a tagged enum over shapes plus a small table of per-shape pack/unpack
// functions"); here the enum is kept purely as a label on a MethodStub for
// diagnostics, since the actual pack/unpack logic for a given method lives
// in that method's own hand-written MethodStub.Invoke closure (the
// generated-code step spec.md section 1 places out of scope).
type ShapeKind int

const (
	// ReplyOnly is `(Reply)`: a single success callback, no arguments.
	ReplyOnly ShapeKind = iota
	// ReplyPlusArgs is `(Reply, A, B, ...)`: success callback plus N
	// declared arguments.
	ReplyPlusArgs
	// ReplyPlusFailReply is `(Reply, FailReply)`: separate success/error
	// channels, no arguments.
	ReplyPlusFailReply
	// ReplyPlusFailReplyArgs is `(Reply, FailReply, A, ...)`.
	ReplyPlusFailReplyArgs
	// PromiseReturning is `() -> Promise<T>` or `(Args...) -> Promise<T>`:
	// resolving the promise sends the reply, rejecting sends the error.
	PromiseReturning
)

func (k ShapeKind) String() string {
	switch k {
	case ReplyOnly:
		return "reply_only"
	case ReplyPlusArgs:
		return "reply_plus_args"
	case ReplyPlusFailReply:
		return "reply_plus_fail_reply"
	case ReplyPlusFailReplyArgs:
		return "reply_plus_fail_reply_args"
	case PromiseReturning:
		return "promise_returning"
	default:
		return "shape(?)"
	}
}

// MethodStub is one entry in a ServerContext's interface stub table
// (spec.md section 4.5: "the interface stub table (method_id ->
// dispatcher)"). Arity is the number of encoded arguments the request's
// argument array must carry; Invoke decodes them in declared order from
// dec and calls the application's method body, reporting its outcome
// through reply.
type MethodStub struct {
	Name   string
	Shape  ShapeKind
	Arity  int
	Invoke func(target any, reply *ReplyProxy, dec *Decoder) error
}
