package rpcengine_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/logicmill/armi-go/pkg/errcode"
	"github.com/logicmill/armi-go/rpcengine"
)

// TestPromiseResolveSettlesOnce confirms a second Resolve/Reject after the
// first is a no-op rather than sending a second reply, matching
// ReplyProxy's own first-invocation-wins contract.
func TestPromiseResolveSettlesOnce(t *testing.T) {
	h := newHarness(t)

	ch := make(chan callResult, 1)
	err := onLoopErr(h.loop, func() error {
		return h.proxy.Call(h.channelID, 0, 2, nil, func(ok bool, dec *rpcengine.Decoder, code errcode.Code) {
			r := callResult{ok: ok, code: code}
			if ok {
				r.value, _ = dec.DecodeInt64()
			}
			ch <- r
		})
	})
	require.NoError(t, err)

	r := waitResult(t, ch)
	require.True(t, r.ok)
	require.EqualValues(t, 99, r.value)
}

func promiseStub() rpcengine.MethodStub {
	return rpcengine.MethodStub{
		Name:  "settle_twice",
		Shape: rpcengine.PromiseReturning,
		Arity: 0,
		Invoke: func(target any, reply *rpcengine.ReplyProxy, dec *rpcengine.Decoder) error {
			p := rpcengine.NewPromise(reply, &rpcengine.Stats{})
			if err := p.Resolve(int64(99)); err != nil {
				return err
			}
			// A second settle attempt must be a silent no-op, not a second reply.
			return p.Reject(errcode.Code{Category: errcode.POSIX, Value: 7})
		},
	}
}
