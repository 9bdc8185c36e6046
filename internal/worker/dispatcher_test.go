package worker

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestJobsForOneKeyRunSequentially(t *testing.T) {
	d := NewDispatcher(2, 4, 64, time.Second)
	defer d.Stop()

	var (
		mu      sync.Mutex
		order   []int
		active  int32
		overlap int32
	)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		i := i
		wg.Add(1)
		err := d.Submit(Job{
			Key:  "dev@example.com/chat-1",
			Type: "turn",
			Run: func() {
				defer wg.Done()
				if atomic.AddInt32(&active, 1) > 1 {
					atomic.StoreInt32(&overlap, 1)
				}
				time.Sleep(2 * time.Millisecond)
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				atomic.AddInt32(&active, -1)
			},
		})
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	waitOrFail(t, &wg)

	if atomic.LoadInt32(&overlap) == 1 {
		t.Fatalf("jobs for one key overlapped")
	}
	for i, got := range order {
		if got != i {
			t.Fatalf("jobs ran out of order: %v", order)
		}
	}
}

func TestDifferentKeysRunConcurrently(t *testing.T) {
	d := NewDispatcher(2, 2, 16, time.Second)
	defer d.Stop()

	// Each job blocks until the other has started; serialized execution
	// would never release the barrier.
	var barrier sync.WaitGroup
	barrier.Add(2)
	var wg sync.WaitGroup
	for _, key := range []string{"a@example.com/chat-1", "b@example.com/chat-1"} {
		wg.Add(1)
		err := d.Submit(Job{
			Key:  key,
			Type: "turn",
			Run: func() {
				defer wg.Done()
				barrier.Done()
				barrier.Wait()
			},
		})
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	waitOrFail(t, &wg)
}

func TestRoundRobinAcrossKeys(t *testing.T) {
	d := NewDispatcher(1, 1, 64, time.Second)
	defer d.Stop()

	// Hold the single worker so every following submit queues up first.
	gate := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	if err := d.Submit(Job{Key: "hold", Type: "gate", Run: func() { defer wg.Done(); <-gate }}); err != nil {
		t.Fatalf("submit gate: %v", err)
	}

	var mu sync.Mutex
	var keys []string
	submit := func(key string) {
		wg.Add(1)
		err := d.Submit(Job{Key: key, Type: "turn", Run: func() {
			defer wg.Done()
			mu.Lock()
			keys = append(keys, key)
			mu.Unlock()
		}})
		if err != nil {
			t.Fatalf("submit %s: %v", key, err)
		}
	}
	// Two jobs for key a, one for key b. Fair scheduling interleaves b
	// between the two a jobs.
	submit("a")
	submit("a")
	submit("b")
	time.Sleep(20 * time.Millisecond)
	close(gate)
	waitOrFail(t, &wg)

	want := []string{"a", "b", "a"}
	if len(keys) != len(want) {
		t.Fatalf("expected %d jobs, got %v", len(want), keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, keys)
		}
	}
}

func TestSubmitRejectsEmptyJob(t *testing.T) {
	d := NewDispatcher(1, 1, 4, time.Second)
	defer d.Stop()
	if err := d.Submit(Job{Key: "x"}); err == nil {
		t.Fatalf("expected error for job without work")
	}
}

func waitOrFail(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("jobs did not finish in time")
	}
}
