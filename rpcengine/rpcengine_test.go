package rpcengine_test

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/logicmill/armi-go/pkg/codec"
	"github.com/logicmill/armi-go/pkg/errcode"
	"github.com/logicmill/armi-go/reactor"
	"github.com/logicmill/armi-go/rpcengine"
)

// counter is the target implementation exercised through the server's stub
// table: one method, increment, that adds its argument to running state and
// replies with the new total.
type counter struct {
	total int64
}

func incrementStub() rpcengine.MethodStub {
	return rpcengine.MethodStub{
		Name:  "increment",
		Shape: rpcengine.ReplyPlusArgs,
		Arity: 1,
		Invoke: func(target any, reply *rpcengine.ReplyProxy, dec *rpcengine.Decoder) error {
			delta, err := dec.DecodeInt64()
			if err != nil {
				return err
			}
			c := target.(*counter)
			c.total += delta
			return reply.Success(c.total)
		},
	}
}

func failingStub() rpcengine.MethodStub {
	return rpcengine.MethodStub{
		Name:  "always_fails",
		Shape: rpcengine.ReplyPlusFailReply,
		Arity: 0,
		Invoke: func(target any, reply *rpcengine.ReplyProxy, dec *rpcengine.Decoder) error {
			return reply.Fail(errcode.Code{Category: errcode.POSIX, Value: 42})
		},
	}
}

// onLoop runs fn on loop's own goroutine and blocks until it returns,
// matching the package's single-reactor-thread invariant: every test below
// drives ClientContext/ServerContext/transport state only from this
// rendezvous, never directly from the test goroutine.
func onLoop(loop *reactor.Loop, fn func()) {
	done := make(chan struct{})
	loop.Dispatch(func() {
		fn()
		close(done)
	})
	<-done
}

func onLoopErr(loop *reactor.Loop, fn func() error) error {
	var err error
	onLoop(loop, func() { err = fn() })
	return err
}

// callResult carries a resolved reply out of a ReplyHandler, which always
// runs on the loop's goroutine, into the test's own goroutine for assertion
// -- testify's require/assert must only ever be invoked from the goroutine
// running the test.
type callResult struct {
	ok    bool
	value int64
	code  errcode.Code
}

func waitResult(t *testing.T, ch <-chan callResult) callResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("reply never arrived")
		return callResult{}
	}
}

type harness struct {
	loop   *reactor.Loop
	client *rpcengine.ClientContext
	server *rpcengine.ServerContext
	proxy  *rpcengine.Proxy

	clientTransport *rpcengine.ClientTransport
	serverTransport *rpcengine.ServerTransport

	channelID uint64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	loop := reactor.NewLoop(0)
	t.Cleanup(loop.Close)

	errs := errcode.NewRegistry()
	stream := codec.NewStreamContext(errs)

	clientSide, serverSide := net.Pipe()
	t.Cleanup(func() { clientSide.Close(); serverSide.Close() })

	ct := rpcengine.NewClientTransport(loop, errs)
	st := rpcengine.NewServerTransport(loop, errs)

	stubs := []rpcengine.MethodStub{incrementStub(), failingStub(), promiseStub()}
	server := rpcengine.NewServerContext(stream, errs, st, stubs)
	server.RegisterGlobal(&counter{})
	st.SetRouter(server)

	client := rpcengine.NewClientContext(loop, stream, errs, ct, time.Second)
	ct.SetRouter(client)

	h := &harness{
		loop:            loop,
		client:          client,
		server:          server,
		clientTransport: ct,
		serverTransport: st,
	}
	h.proxy = rpcengine.NewProxy(client, 0, 0)

	onLoop(loop, func() {
		h.channelID = ct.Connect(clientSide)
		st.Accept(serverSide)
	})

	return h
}

// call issues a proxy call on the loop's goroutine and returns a channel
// that receives exactly one callResult once the reply (or cancellation)
// resolves.
func (h *harness) call(methodOrdinal uint32, timeout time.Duration, args []any) (<-chan callResult, error) {
	ch := make(chan callResult, 1)
	err := onLoopErr(h.loop, func() error {
		return h.proxy.Call(h.channelID, timeout, methodOrdinal, args, func(ok bool, dec *rpcengine.Decoder, code errcode.Code) {
			r := callResult{ok: ok, code: code}
			if ok {
				r.value, _ = dec.DecodeInt64()
			}
			ch <- r
		})
	})
	return ch, err
}

// TestIncrementRoundTrip drives a full request/reply cycle through the
// codec, pipeline, and both contexts, confirming the reply's decoded value
// matches the target's mutated state (spec.md section 8's worked scenario).
func TestIncrementRoundTrip(t *testing.T) {
	h := newHarness(t)

	ch, err := h.call(0, time.Second, []any{int64(5)})
	require.NoError(t, err)

	r := waitResult(t, ch)
	require.True(t, r.ok)
	require.EqualValues(t, 5, r.value)
}

// TestSequentialIncrementsAccumulate confirms state carries across multiple
// calls against the same registered target.
func TestSequentialIncrementsAccumulate(t *testing.T) {
	h := newHarness(t)

	step := func(delta int64) int64 {
		ch, err := h.call(0, time.Second, []any{delta})
		require.NoError(t, err)
		r := waitResult(t, ch)
		require.True(t, r.ok)
		return r.value
	}

	require.EqualValues(t, 3, step(3))
	require.EqualValues(t, 10, step(7))
	require.EqualValues(t, 4, step(-6))
}

// TestServerFailureReplyPropagatesUserCategory confirms a method that fails
// with a code outside the rpc-runtime category round-trips intact.
func TestServerFailureReplyPropagatesUserCategory(t *testing.T) {
	h := newHarness(t)

	ch, err := h.call(1, time.Second, nil)
	require.NoError(t, err)

	r := waitResult(t, ch)
	require.False(t, r.ok)
	require.Equal(t, errcode.POSIX, r.code.Category)
	require.EqualValues(t, 42, r.code.Value)
}

// TestUnregisteredTargetFails confirms a request against a channel with no
// registered implementation resolves with
// no_implementation_instance_registered rather than hanging.
func TestUnregisteredTargetFails(t *testing.T) {
	loop := reactor.NewLoop(0)
	t.Cleanup(loop.Close)
	errs := errcode.NewRegistry()
	stream := codec.NewStreamContext(errs)

	clientSide, serverSide := net.Pipe()
	t.Cleanup(func() { clientSide.Close(); serverSide.Close() })

	ct := rpcengine.NewClientTransport(loop, errs)
	st := rpcengine.NewServerTransport(loop, errs)
	server := rpcengine.NewServerContext(stream, errs, st, []rpcengine.MethodStub{incrementStub()})
	st.SetRouter(server)
	client := rpcengine.NewClientContext(loop, stream, errs, ct, time.Second)
	ct.SetRouter(client)

	proxy := rpcengine.NewProxy(client, 0, 0)
	var channelID uint64
	onLoop(loop, func() {
		channelID = ct.Connect(clientSide)
		st.Accept(serverSide)
	})

	ch := make(chan callResult, 1)
	err := onLoopErr(loop, func() error {
		return proxy.Call(channelID, time.Second, 0, []any{int64(1)}, func(ok bool, dec *rpcengine.Decoder, code errcode.Code) {
			ch <- callResult{ok: ok, code: code}
		})
	})
	require.NoError(t, err)

	r := waitResult(t, ch)
	require.False(t, r.ok)
	require.True(t, errcode.IsRPC(errs, r.code, errcode.NoImplementationInstanceRegistered))
}

// TestCallTimesOutWhenNoReplyArrives confirms a handler whose channel never
// produces a reply is resolved with timed_out once its deadline elapses,
// rather than leaking forever.
func TestCallTimesOutWhenNoReplyArrives(t *testing.T) {
	loop := reactor.NewLoop(0)
	t.Cleanup(loop.Close)
	errs := errcode.NewRegistry()
	stream := codec.NewStreamContext(errs)

	clientSide, serverSide := net.Pipe()
	t.Cleanup(func() { clientSide.Close() })

	// Drain but never reply, so the request sits outstanding until timeout.
	go func() {
		buf := make([]byte, 256)
		for {
			if _, err := serverSide.Read(buf); err != nil {
				return
			}
		}
	}()

	ct := rpcengine.NewClientTransport(loop, errs)
	client := rpcengine.NewClientContext(loop, stream, errs, ct, 50*time.Millisecond)
	ct.SetRouter(client)

	proxy := rpcengine.NewProxy(client, 0, 0)
	var channelID uint64
	onLoop(loop, func() { channelID = ct.Connect(clientSide) })

	ch := make(chan callResult, 1)
	err := onLoopErr(loop, func() error {
		return proxy.Call(channelID, 50*time.Millisecond, 0, []any{int64(1)}, func(ok bool, dec *rpcengine.Decoder, code errcode.Code) {
			ch <- callResult{ok: ok, code: code}
		})
	})
	require.NoError(t, err)

	r := waitResult(t, ch)
	require.False(t, r.ok)
	require.True(t, errcode.IsRPC(errs, r.code, errcode.TimedOut))
	serverSide.Close()
}

// TestZeroTimeoutCallFallsBackToContextDefault confirms a proxy call made
// with timeout == 0 (Proxy.Call never calls SetTransientTimeout in that
// case) is still scheduled against the ClientContext's context-wide
// defaultTimeout, rather than never being scheduled at all.
func TestZeroTimeoutCallFallsBackToContextDefault(t *testing.T) {
	loop := reactor.NewLoop(0)
	t.Cleanup(loop.Close)
	errs := errcode.NewRegistry()
	stream := codec.NewStreamContext(errs)

	clientSide, serverSide := net.Pipe()
	t.Cleanup(func() { clientSide.Close() })

	go func() {
		buf := make([]byte, 256)
		for {
			if _, err := serverSide.Read(buf); err != nil {
				return
			}
		}
	}()

	ct := rpcengine.NewClientTransport(loop, errs)
	client := rpcengine.NewClientContext(loop, stream, errs, ct, 50*time.Millisecond)
	ct.SetRouter(client)
	proxy := rpcengine.NewProxy(client, 0, 0)

	var channelID uint64
	onLoop(loop, func() { channelID = ct.Connect(clientSide) })

	ch := make(chan callResult, 1)
	err := onLoopErr(loop, func() error {
		return proxy.Call(channelID, 0, 0, []any{int64(1)}, func(ok bool, dec *rpcengine.Decoder, code errcode.Code) {
			ch <- callResult{ok: ok, code: code}
		})
	})
	require.NoError(t, err)

	r := waitResult(t, ch)
	require.False(t, r.ok)
	require.True(t, errcode.IsRPC(errs, r.code, errcode.TimedOut))
	serverSide.Close()
}

// TestZeroTimeoutCallDoesNotInheritPriorTransientTimeout confirms that a
// call which explicitly sets a short transient timeout doesn't leave it
// behind for a later call that passes timeout == 0 -- the stale-state leak
// the transientTimeoutSet flag closes: without it, the second call would
// silently reuse the first call's short timeout instead of the context
// default and fire TimedOut almost immediately.
func TestZeroTimeoutCallDoesNotInheritPriorTransientTimeout(t *testing.T) {
	loop := reactor.NewLoop(0)
	t.Cleanup(loop.Close)
	errs := errcode.NewRegistry()
	stream := codec.NewStreamContext(errs)

	clientSide, serverSide := net.Pipe()
	t.Cleanup(func() { clientSide.Close() })

	go func() {
		buf := make([]byte, 256)
		for {
			if _, err := serverSide.Read(buf); err != nil {
				return
			}
		}
	}()

	ct := rpcengine.NewClientTransport(loop, errs)
	client := rpcengine.NewClientContext(loop, stream, errs, ct, time.Minute)
	ct.SetRouter(client)
	proxy := rpcengine.NewProxy(client, 0, 0)

	var channelID uint64
	onLoop(loop, func() { channelID = ct.Connect(clientSide) })

	first := make(chan callResult, 1)
	err := onLoopErr(loop, func() error {
		return proxy.Call(channelID, 20*time.Millisecond, 0, []any{int64(1)}, func(ok bool, dec *rpcengine.Decoder, code errcode.Code) {
			first <- callResult{ok: ok, code: code}
		})
	})
	require.NoError(t, err)
	r := waitResult(t, first)
	require.False(t, r.ok)
	require.True(t, errcode.IsRPC(errs, r.code, errcode.TimedOut))

	second := make(chan callResult, 1)
	err = onLoopErr(loop, func() error {
		return proxy.Call(channelID, 0, 0, []any{int64(1)}, func(ok bool, dec *rpcengine.Decoder, code errcode.Code) {
			second <- callResult{ok: ok, code: code}
		})
	})
	require.NoError(t, err)

	select {
	case r := <-second:
		t.Fatalf("second call resolved early with ok=%v code=%v, should still be pending against the 1-minute context default", r.ok, r.code)
	case <-time.After(150 * time.Millisecond):
	}
	serverSide.Close()
}

// TestChannelCloseCascadesToOutstandingRequests confirms closing a channel
// resolves every handler still outstanding on it with channel_closed, per
// spec.md section 4.6's cascade rule, instead of leaving them dangling.
func TestChannelCloseCascadesToOutstandingRequests(t *testing.T) {
	loop := reactor.NewLoop(0)
	t.Cleanup(loop.Close)
	errs := errcode.NewRegistry()
	stream := codec.NewStreamContext(errs)

	clientSide, serverSide := net.Pipe()
	t.Cleanup(func() { serverSide.Close() })

	go func() {
		buf := make([]byte, 256)
		for {
			if _, err := serverSide.Read(buf); err != nil {
				return
			}
		}
	}()

	ct := rpcengine.NewClientTransport(loop, errs)
	client := rpcengine.NewClientContext(loop, stream, errs, ct, time.Minute)
	ct.SetRouter(client)

	proxy := rpcengine.NewProxy(client, 0, 0)
	var channelID uint64
	onLoop(loop, func() { channelID = ct.Connect(clientSide) })

	ch := make(chan callResult, 1)
	err := onLoopErr(loop, func() error {
		return proxy.Call(channelID, time.Minute, 0, []any{int64(1)}, func(ok bool, dec *rpcengine.Decoder, code errcode.Code) {
			ch <- callResult{ok: ok, code: code}
		})
	})
	require.NoError(t, err)

	onLoop(loop, func() { ct.CloseChannel(channelID) })

	r := waitResult(t, ch)
	require.False(t, r.ok)
	require.True(t, errcode.IsRPC(errs, r.code, errcode.ChannelClosed))
}
