package reactor_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/logicmill/armi-go/reactor"
	"github.com/stretchr/testify/require"
)

func TestDispatchRunsOnLoopGoroutine(t *testing.T) {
	l := reactor.NewLoop(0)
	defer l.Close()

	done := make(chan struct{})
	var ran int32
	l.Dispatch(func() {
		atomic.StoreInt32(&ran, 1)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatch never ran")
	}
	require.EqualValues(t, 1, atomic.LoadInt32(&ran))
}

func TestScheduleFiresAfterDelay(t *testing.T) {
	l := reactor.NewLoop(0)
	defer l.Close()

	fired := make(chan struct{})
	start := time.Now()
	l.Schedule(30*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
		require.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
}

func TestCancelPreventsFire(t *testing.T) {
	l := reactor.NewLoop(0)
	defer l.Close()

	fired := make(chan struct{})
	tm := l.Schedule(30*time.Millisecond, func() { close(fired) })
	tm.Cancel()

	select {
	case <-fired:
		t.Fatal("timer fired after cancel")
	case <-time.After(80 * time.Millisecond):
	}
}

func TestDispatchPreservesOrder(t *testing.T) {
	l := reactor.NewLoop(0)
	defer l.Close()

	var order []int
	doneCh := make(chan struct{})
	for i := 0; i < 10; i++ {
		i := i
		l.Dispatch(func() {
			order = append(order, i)
			if i == 9 {
				close(doneCh)
			}
		})
	}
	<-doneCh
	for i, v := range order {
		require.Equal(t, i, v)
	}
}
