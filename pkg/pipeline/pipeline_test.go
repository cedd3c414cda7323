package pipeline_test

import (
	"net"
	"testing"
	"time"

	"github.com/logicmill/armi-go/pkg/buffer"
	"github.com/logicmill/armi-go/pkg/errcode"
	"github.com/logicmill/armi-go/pkg/frame"
	"github.com/logicmill/armi-go/pkg/pipeline"
	"github.com/logicmill/armi-go/reactor"
	"github.com/stretchr/testify/require"
)

func newTestStack(t *testing.T, conn net.Conn, hwm int) (*pipeline.Stack, *reactor.Loop) {
	t.Helper()
	loop := reactor.NewLoop(0)
	t.Cleanup(loop.Close)
	reg := errcode.NewRegistry()
	var opts []pipeline.AnchorOption
	if hwm > 0 {
		opts = append(opts, pipeline.WithHighWaterMark(hwm))
	}
	anchor := pipeline.NewAnchor(conn, loop, opts...)
	return pipeline.Assemble(anchor, reg), loop
}

// onLoop runs fn on loop's own goroutine and blocks until it returns. The
// anchor's read loop dispatches OnRead onto this same goroutine (see
// anchor.go's readLoop), so every Driver call that touches its unlocked
// fields -- StartRead, Write, the OnWritable/OnNotWritable registrations --
// must go through this rendezvous rather than run directly on the test
// goroutine, matching the discipline rpcengine's own tests use.
func onLoop(loop *reactor.Loop, fn func()) {
	done := make(chan struct{})
	loop.Dispatch(func() {
		fn()
		close(done)
	})
	<-done
}

// TestFramerReassemblesSplitHeader feeds a single frame's wire bytes to the
// peer connection one byte at a time, confirming the framer only emits
// OnFrame once the whole header and payload have arrived -- idempotent to
// however the underlying reads happen to be chunked.
func TestFramerReassemblesSplitHeader(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	stack, loop := newTestStack(t, server, 0)
	defer stack.Close()

	frames := make(chan frame.Header, 1)
	var err error
	onLoop(loop, func() {
		err = stack.Driver.StartRead(func(h frame.Header, payload buffer.Shared) {
			require.Equal(t, "ping", string(payload.Bytes()))
			frames <- h
		})
	})
	require.NoError(t, err)

	fr := &frame.Frame{Header: frame.Header{Flags: 3}, Payload: []byte("ping")}
	wire := fr.Encode()

	go func() {
		for _, b := range wire {
			_, _ = client.Write([]byte{b})
		}
	}()

	select {
	case h := <-frames:
		require.EqualValues(t, 4, h.Size)
		require.EqualValues(t, 3, h.Flags)
	case <-time.After(2 * time.Second):
		t.Fatal("frame never reassembled")
	}
}

// TestFramerDeliversMultipleFramesInOneRead writes two frames back to back
// in a single Write call, confirming drain() extracts both without losing
// or merging either.
func TestFramerDeliversMultipleFramesInOneRead(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	stack, loop := newTestStack(t, server, 0)
	defer stack.Close()

	got := make(chan string, 2)
	var err error
	onLoop(loop, func() {
		err = stack.Driver.StartRead(func(h frame.Header, payload buffer.Shared) {
			got <- string(payload.Bytes())
		})
	})
	require.NoError(t, err)

	f1 := (&frame.Frame{Payload: []byte("alpha")}).Encode()
	f2 := (&frame.Frame{Payload: []byte("beta")}).Encode()

	go func() {
		_, _ = client.Write(append(f1, f2...))
	}()

	var results []string
	for i := 0; i < 2; i++ {
		select {
		case s := <-got:
			results = append(results, s)
		case <-time.After(2 * time.Second):
			t.Fatal("did not receive both frames")
		}
	}
	require.ElementsMatch(t, []string{"alpha", "beta"}, results)
}

// TestBackPressureSignalsNotWritableThenWritable drives the anchor's
// high-water mark low enough that a single write crosses it, confirming the
// driver observes not_writable and then writable again once the queued
// bytes drain, per spec.md section 8's back-pressure symmetry property.
func TestBackPressureSignalsNotWritableThenWritable(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	stack, loop := newTestStack(t, server, 4)

	notWritable := make(chan struct{}, 1)
	writable := make(chan struct{}, 1)
	onLoop(loop, func() {
		stack.Driver.OnNotWritable(func() {
			select {
			case notWritable <- struct{}{}:
			default:
			}
		})
		stack.Driver.OnWritable(func() {
			select {
			case writable <- struct{}{}:
			default:
			}
		})
	})
	defer stack.Close()

	go func() {
		buf := make([]byte, 64)
		for {
			if _, err := client.Read(buf); err != nil {
				return
			}
		}
	}()

	payload := buffer.NewMutable(0)
	_ = payload.Append([]byte("this payload is longer than four bytes"))
	var writeErr error
	onLoop(loop, func() { writeErr = stack.Driver.Write(0, payload) })
	require.NoError(t, writeErr)

	select {
	case <-notWritable:
	case <-time.After(2 * time.Second):
		t.Fatal("never observed not_writable")
	}

	select {
	case <-writable:
	case <-time.After(2 * time.Second):
		t.Fatal("never observed writable again after drain")
	}
}

// TestWriteFailsWhenNotWritable confirms Driver.Write surfaces the
// not_writable rpc error rather than silently queuing once back-pressured.
func TestWriteFailsWhenNotWritable(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	_ = client

	stack, loop := newTestStack(t, server, 1)
	defer stack.Close()

	payload := buffer.NewMutable(0)
	_ = payload.Append([]byte("exceeds one byte of high water"))
	onLoop(loop, func() { _ = stack.Driver.Write(0, payload) }) // crosses the high-water mark

	payload2 := buffer.NewMutable(0)
	_ = payload2.Append([]byte("x"))
	var err error
	onLoop(loop, func() { err = stack.Driver.Write(0, payload2) })
	require.Error(t, err)
}
