package taskrt

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSubmitRunsTask(t *testing.T) {
	rt := New(Config{Workers: 2})
	defer rt.Stop()

	var ran int32
	rt.SubmitWait(context.Background(), "topic-a", func(ctx context.Context) {
		atomic.StoreInt32(&ran, 1)
	})

	require.EqualValues(t, 1, atomic.LoadInt32(&ran))
}

func TestSameTopicRunsInSubmissionOrder(t *testing.T) {
	rt := New(Config{Workers: 4})
	defer rt.Stop()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		i := i
		rt.Submit(context.Background(), "orders", func(ctx context.Context) {
			defer wg.Done()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 20)
	for i, v := range order {
		require.Equal(t, i, v)
	}
}

func TestSameTopicAlwaysMapsToSameWorker(t *testing.T) {
	rt := New(Config{Workers: 8})
	defer rt.Stop()

	w1 := rt.workerFor("alpha")
	w2 := rt.workerFor("alpha")
	require.Same(t, w1, w2, "the same topic must always hash to the same worker")
}

func TestAfterFuncFiresOnce(t *testing.T) {
	rt := New(Config{Workers: 1})
	defer rt.Stop()

	var fired int32
	done := make(chan struct{})
	rt.AfterFunc(context.Background(), 10*time.Millisecond, "retry", func(ctx context.Context) {
		atomic.AddInt32(&fired, 1)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
	require.EqualValues(t, 1, atomic.LoadInt32(&fired))
}

func TestTimerStopPreventsFiring(t *testing.T) {
	rt := New(Config{Workers: 1})
	defer rt.Stop()

	var fired int32
	timer := rt.AfterFunc(context.Background(), 20*time.Millisecond, "retry", func(ctx context.Context) {
		atomic.AddInt32(&fired, 1)
	})
	require.True(t, timer.Stop())

	time.Sleep(50 * time.Millisecond)
	require.EqualValues(t, 0, atomic.LoadInt32(&fired))
}

func TestTickerStopsCleanly(t *testing.T) {
	rt := New(Config{Workers: 1})
	defer rt.Stop()

	var count int32
	tk := rt.NewTicker(context.Background(), 5*time.Millisecond, "sweep", func(ctx context.Context) {
		atomic.AddInt32(&count, 1)
	})
	time.Sleep(30 * time.Millisecond)
	tk.Stop()
	after := atomic.LoadInt32(&count)
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, after, atomic.LoadInt32(&count))
}
