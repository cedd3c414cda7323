package rpcengine

import (
	"github.com/logicmill/armi-go/pkg/codec"
	"github.com/logicmill/armi-go/pkg/errcode"
)

// Decoder aliases codec.Decoder so callers of this package's public
// function signatures (ReplyHandler, MethodStub.Invoke) don't need to
// import pkg/codec solely to name the type.
type Decoder = codec.Decoder

// ReplyHandler is the one-shot client-side callback spec.md section 3
// describes: exactly one of {success, cancellation, timeout} fires. On
// success ok is true and dec is positioned at the start of the reply's
// declared return values; on failure ok is false, dec is nil, and code
// names the reason (a decoded error_code, or one of the cancellation
// codes: timed_out, channel_closed, context_closed, invalid_channel_id,
// client_closed).
type ReplyHandler func(ok bool, dec *Decoder, code errcode.Code)
