package transcode

import (
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/logging"
	"golang.org/x/time/rate"
)

type taskEntry struct {
	fn     func()
	key    bool
	cancel bool
}

// TaskQueueStats contains worker queue statistics.
type TaskQueueStats struct {
	Queued   uint64 // entries accepted
	Executed uint64 // entries run to completion
	Dropped  uint64 // oldest entries evicted by the encode policy
	Rejected uint64 // non-key entries refused while dropping
	Faults   uint64 // entries that panicked
	Pending  int    // entries waiting right now
}

// TaskQueue runs submitted work on one dedicated goroutine in FIFO order.
//
// Submission is safe from any goroutine. Execution is single threaded, so
// work units own whatever codec context they touch without extra locking.
// The queue never blocks producers: overload is resolved by dropping work
// according to the encode or decode policy.
type TaskQueue struct {
	name string
	log  logging.LeveledLogger

	mu        sync.Mutex
	cond      *sync.Cond
	tasks     []taskEntry
	maxSize   int
	dropStart bool
	exit      bool
	started   bool
	stopping  bool
	done      chan struct{}

	overloadLog rate.Sometimes

	queued, executed, dropped, rejected, faults atomic.Uint64
}

// NewTaskQueue creates a queue bounded to maxSize pending entries.
// maxSize must be within [MinTaskSize, MaxTaskSize].
func NewTaskQueue(name string, maxSize int, lf logging.LoggerFactory) (*TaskQueue, error) {
	if err := validateTaskSize(maxSize); err != nil {
		return nil, err
	}
	q := &TaskQueue{
		name:        name,
		log:         newLogger(lf, "taskqueue"),
		maxSize:     maxSize,
		overloadLog: rate.Sometimes{First: 1, Interval: time.Second},
	}
	q.cond = sync.NewCond(&q.mu)
	return q, nil
}

// SetMaxSize changes the queue bound.
func (q *TaskQueue) SetMaxSize(n int) error {
	if err := validateTaskSize(n); err != nil {
		return err
	}
	q.mu.Lock()
	q.maxSize = n
	q.mu.Unlock()
	return nil
}

// MaxSize returns the queue bound.
func (q *TaskQueue) MaxSize() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.maxSize
}

// Enabled reports whether the worker goroutine is running.
func (q *TaskQueue) Enabled() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.started
}

// Start launches the worker goroutine. Calling Start on a running queue
// is a no-op.
func (q *TaskQueue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.started = true
	q.exit = false
	q.done = make(chan struct{})
	go q.run(q.done)
	q.log.Debugf("%s started", q.name)
}

// AddEncodeTask always enqueues fn. If the queue then exceeds its bound the
// oldest entry is discarded.
func (q *TaskQueue) AddEncodeTask(fn func()) bool {
	q.mu.Lock()
	q.tasks = append(q.tasks, taskEntry{fn: fn})
	q.queued.Add(1)
	if len(q.tasks) > q.maxSize {
		q.tasks[0] = taskEntry{}
		q.tasks = q.tasks[1:]
		q.dropped.Add(1)
		q.overloadLog.Do(func() {
			q.log.Warnf("%s: encoder thread task is too more, now drop frame", q.name)
		})
	}
	q.mu.Unlock()
	q.cond.Signal()
	return true
}

// AddDecodeTask enqueues fn unless the queue is dropping. Once the backlog
// exceeds the bound, only key-frame work is accepted until one arrives;
// dropping a key frame would leave dependent frames undecodable.
func (q *TaskQueue) AddDecodeTask(key bool, fn func()) bool {
	q.mu.Lock()
	if q.dropStart {
		if !key {
			q.mu.Unlock()
			q.rejected.Add(1)
			q.log.Tracef("%s: decode thread drop frame", q.name)
			return false
		}
		q.dropStart = false
		q.log.Infof("%s: decode thread stop drop frame", q.name)
	}
	q.tasks = append(q.tasks, taskEntry{fn: fn, key: key})
	q.queued.Add(1)
	if len(q.tasks) > q.maxSize {
		q.dropStart = true
		q.overloadLog.Do(func() {
			q.log.Warnf("%s: decoder thread task is too more, now start drop frame", q.name)
		})
	}
	q.mu.Unlock()
	q.cond.Signal()
	return true
}

// Stop shuts the worker down and waits for it to exit. With dropPending
// the backlog is discarded first, otherwise it runs to completion. Stop
// must not be called from inside a task.
func (q *TaskQueue) Stop(dropPending bool) {
	q.mu.Lock()
	if !q.started || q.stopping {
		q.mu.Unlock()
		return
	}
	q.stopping = true
	if dropPending {
		q.exit = true
		q.tasks = nil
	}
	q.tasks = append(q.tasks, taskEntry{cancel: true})
	done := q.done
	q.mu.Unlock()
	q.cond.Signal()

	<-done

	q.mu.Lock()
	q.started = false
	q.stopping = false
	q.mu.Unlock()
	q.log.Debugf("%s stopped", q.name)
}

// Stats returns a snapshot of the queue counters.
func (q *TaskQueue) Stats() TaskQueueStats {
	q.mu.Lock()
	pending := len(q.tasks)
	q.mu.Unlock()
	return TaskQueueStats{
		Queued:   q.queued.Load(),
		Executed: q.executed.Load(),
		Dropped:  q.dropped.Load(),
		Rejected: q.rejected.Load(),
		Faults:   q.faults.Load(),
		Pending:  pending,
	}
}

func (q *TaskQueue) run(done chan struct{}) {
	defer close(done)
	for {
		q.mu.Lock()
		for len(q.tasks) == 0 {
			q.cond.Wait()
		}
		e := q.tasks[0]
		q.tasks[0] = taskEntry{}
		q.tasks = q.tasks[1:]
		exit := q.exit
		q.mu.Unlock()

		if e.cancel {
			return
		}
		if exit {
			continue
		}
		q.execute(e)
	}
}

func (q *TaskQueue) execute(e taskEntry) {
	defer func() {
		if r := recover(); r != nil {
			q.faults.Add(1)
			q.log.Errorf("%s: task panicked: %v\n%s", q.name, r, debug.Stack())
		}
	}()
	e.fn()
	q.executed.Add(1)
}
