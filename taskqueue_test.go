package transcode

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestTaskQueueSizeBounds(t *testing.T) {
	tests := []struct {
		size int
		ok   bool
	}{
		{2, false},
		{3, true},
		{30, true},
		{1000, true},
		{1001, false},
		{0, false},
		{-5, false},
	}
	for _, tt := range tests {
		q, err := NewTaskQueue("test", tt.size, nil)
		if tt.ok {
			if err != nil {
				t.Errorf("size %d: unexpected error %v", tt.size, err)
				continue
			}
			if q.MaxSize() != tt.size {
				t.Errorf("size %d: MaxSize() = %d", tt.size, q.MaxSize())
			}
			continue
		}
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("size %d: expected ErrInvalidConfig, got %v", tt.size, err)
		}
	}

	q, _ := NewTaskQueue("test", 3, nil)
	for n := MinTaskSize; n <= MaxTaskSize; n++ {
		if err := q.SetMaxSize(n); err != nil {
			t.Fatalf("SetMaxSize(%d) failed: %v", n, err)
		}
	}
	if err := q.SetMaxSize(MaxTaskSize + 1); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("SetMaxSize(%d) = %v, want ErrInvalidConfig", MaxTaskSize+1, err)
	}
	if q.MaxSize() != MaxTaskSize {
		t.Errorf("rejected SetMaxSize changed bound to %d", q.MaxSize())
	}
}

func TestTaskQueueFIFO(t *testing.T) {
	q, _ := NewTaskQueue("fifo", 1000, nil)
	q.Start()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				q.AddEncodeTask(func() {})
			}
		}()
	}
	wg.Wait()
	for i := 0; i < 100; i++ {
		i := i
		q.AddEncodeTask(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	q.Stop(false)

	if len(order) != 100 {
		t.Fatalf("executed %d ordered tasks, want 100", len(order))
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("order[%d] = %d", i, v)
		}
	}
	if s := q.Stats(); s.Executed != 300 {
		t.Errorf("Executed = %d, want 300", s.Executed)
	}
}

func TestTaskQueueEncodeDropsOldest(t *testing.T) {
	q, _ := NewTaskQueue("enc", 3, nil)
	var ran []int
	for i := 0; i < 5; i++ {
		i := i
		if !q.AddEncodeTask(func() { ran = append(ran, i) }) {
			t.Fatal("AddEncodeTask returned false")
		}
	}
	s := q.Stats()
	if s.Pending != 3 || s.Dropped != 2 {
		t.Fatalf("pending=%d dropped=%d, want 3 and 2", s.Pending, s.Dropped)
	}

	q.Start()
	q.Stop(false)
	want := []int{2, 3, 4}
	if len(ran) != len(want) {
		t.Fatalf("ran %v, want %v", ran, want)
	}
	for i := range want {
		if ran[i] != want[i] {
			t.Fatalf("ran %v, want %v", ran, want)
		}
	}
}

func TestTaskQueueDecodeDropStart(t *testing.T) {
	const max = 3
	q, _ := NewTaskQueue("dec", max, nil)
	q.Start()
	defer q.Stop(true)

	gate := make(chan struct{})
	var started atomic.Bool
	q.AddDecodeTask(true, func() {
		started.Store(true)
		<-gate
	})
	waitFor(t, "blocking task", started.Load)

	for i := 0; i < max+1; i++ {
		if !q.AddDecodeTask(false, func() {}) {
			t.Fatalf("submission %d rejected before bound was exceeded", i)
		}
	}
	if q.AddDecodeTask(false, func() {}) {
		t.Fatal("non-key submission accepted in drop-start state")
	}

	close(gate)
	waitFor(t, "drain", func() bool { return q.Stats().Pending == 0 })

	if q.AddDecodeTask(false, func() {}) {
		t.Fatal("drop-start must persist until a key frame arrives")
	}
	if !q.AddDecodeTask(true, func() {}) {
		t.Fatal("key-frame submission rejected")
	}
	if !q.AddDecodeTask(false, func() {}) {
		t.Fatal("non-key submission rejected after key frame cleared drop-start")
	}
	if s := q.Stats(); s.Rejected != 2 {
		t.Errorf("Rejected = %d, want 2", s.Rejected)
	}
}

func TestTaskQueuePanicIsolated(t *testing.T) {
	q, _ := NewTaskQueue("panic", 10, nil)
	q.Start()
	var after atomic.Bool
	q.AddEncodeTask(func() { panic("boom") })
	q.AddEncodeTask(func() { after.Store(true) })
	q.Stop(false)

	if !after.Load() {
		t.Fatal("task after a panicking task did not run")
	}
	if s := q.Stats(); s.Faults != 1 || s.Executed != 1 {
		t.Errorf("faults=%d executed=%d, want 1 and 1", s.Faults, s.Executed)
	}
}

func TestTaskQueueStopDropPending(t *testing.T) {
	q, _ := NewTaskQueue("stop", 100, nil)
	q.Start()

	gate := make(chan struct{})
	var started atomic.Bool
	q.AddEncodeTask(func() {
		started.Store(true)
		<-gate
	})
	waitFor(t, "blocking task", started.Load)

	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		q.AddEncodeTask(func() { ran.Add(1) })
	}

	stopped := make(chan struct{})
	go func() {
		q.Stop(true)
		close(stopped)
	}()
	// In-flight work runs to completion; Stop must wait for it.
	select {
	case <-stopped:
		t.Fatal("Stop returned while a task was still executing")
	case <-time.After(20 * time.Millisecond):
	}
	close(gate)
	<-stopped

	if ran.Load() != 0 {
		t.Errorf("%d pending tasks ran after Stop(true)", ran.Load())
	}
	if q.Enabled() {
		t.Error("queue still enabled after Stop")
	}

	// Stopping twice, or stopping a queue that never started, is harmless.
	q.Stop(true)
	idle, _ := NewTaskQueue("idle", 3, nil)
	idle.Stop(false)
}

func TestTaskQueueRestart(t *testing.T) {
	q, _ := NewTaskQueue("restart", 10, nil)
	var n atomic.Int32
	for round := 0; round < 3; round++ {
		q.Start()
		q.AddEncodeTask(func() { n.Add(1) })
		q.Stop(false)
	}
	if n.Load() != 3 {
		t.Errorf("ran %d tasks across restarts, want 3", n.Load())
	}
}

func BenchmarkTaskQueueEncode(b *testing.B) {
	q, _ := NewTaskQueue("bench", 1000, nil)
	q.Start()
	defer q.Stop(false)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		q.AddEncodeTask(func() {})
	}
}
