package timer

import (
	"container/heap"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TimerTask represents a task scheduled for future execution
type TimerTask struct {
	ID       string
	ExpiryAt time.Time
	Callback func()
	index    int // index in the heap (for heap.Interface)
}

// timerHeap is a min-heap of TimerTasks ordered by ExpiryAt
type timerHeap []*TimerTask

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	return h[i].ExpiryAt.Before(h[j].ExpiryAt)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x interface{}) {
	n := len(*h)
	task := x.(*TimerTask)
	task.index = n
	*h = append(*h, task)
}

func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	task := old[n-1]
	old[n-1] = nil  // avoid memory leak
	task.index = -1 // for safety
	*h = old[0 : n-1]
	return task
}

// TimerManager runs one-shot tasks at wall-clock times using a min-heap.
// Scheduling an existing ID replaces it.
type TimerManager struct {
	heap     timerHeap
	mu       sync.Mutex
	wakeup   chan struct{}
	tasks    map[string]*TimerTask // for O(1) lookup by ID
	inflight sync.WaitGroup
	executed int
	stopped  bool
	stopCh   chan struct{}
	logger   *zap.Logger
}

// NewTimerManager creates a new timer manager
func NewTimerManager(logger *zap.Logger) *TimerManager {
	tm := &TimerManager{
		heap:   make(timerHeap, 0),
		wakeup: make(chan struct{}, 1),
		tasks:  make(map[string]*TimerTask),
		stopCh: make(chan struct{}),
		logger: logger.Named("timer"),
	}
	heap.Init(&tm.heap)
	return tm
}

// Start starts the scheduler loop
func (tm *TimerManager) Start() {
	go tm.run()
}

// Stop stops the loop and waits for running callbacks to return. Pending
// tasks are discarded.
func (tm *TimerManager) Stop() {
	tm.mu.Lock()
	if tm.stopped {
		tm.mu.Unlock()
		return
	}
	tm.stopped = true
	close(tm.stopCh)
	tm.mu.Unlock()

	tm.inflight.Wait()
}

// Schedule adds a new task to be executed at the specified time
func (tm *TimerManager) Schedule(id string, expiryAt time.Time, callback func()) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.stopped {
		return ErrManagerStopped
	}

	// Remove existing task with same ID if present
	if existing, ok := tm.tasks[id]; ok {
		heap.Remove(&tm.heap, existing.index)
		delete(tm.tasks, id)
	}

	task := &TimerTask{
		ID:       id,
		ExpiryAt: expiryAt,
		Callback: callback,
	}

	heap.Push(&tm.heap, task)
	tm.tasks[id] = task

	// Wake up the scheduler if this is the earliest task
	if tm.heap[0] == task {
		select {
		case tm.wakeup <- struct{}{}:
		default:
		}
	}

	return nil
}

// ScheduleRecurring runs fn at every time returned by next. next is
// consulted again after each run, so a daily job keeps following the wall
// clock across DST changes.
func (tm *TimerManager) ScheduleRecurring(id string, next func() (time.Time, error), fn func()) error {
	at, err := next()
	if err != nil {
		return err
	}

	var run func()
	run = func() {
		fn()

		at, err := next()
		if err != nil {
			tm.logger.Error("Failed to compute next run, recurring task stopped", zap.String("id", id), zap.Error(err))
			return
		}
		if err := tm.Schedule(id, at, run); err != nil && err != ErrManagerStopped {
			tm.logger.Error("Failed to reschedule recurring task", zap.String("id", id), zap.Error(err))
		}
	}

	tm.logger.Info("Recurring task scheduled", zap.String("id", id), zap.Time("next_run", at))
	return tm.Schedule(id, at, run)
}

// Cancel removes a scheduled task
func (tm *TimerManager) Cancel(id string) bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	task, ok := tm.tasks[id]
	if !ok {
		return false
	}

	heap.Remove(&tm.heap, task.index)
	delete(tm.tasks, id)
	return true
}

// run is the main scheduler loop
func (tm *TimerManager) run() {
	for {
		tm.mu.Lock()

		if tm.stopped {
			tm.mu.Unlock()
			return
		}

		var waitDuration time.Duration
		if tm.heap.Len() == 0 {
			// No tasks, wait indefinitely
			waitDuration = 24 * time.Hour
		} else {
			nextTask := tm.heap[0]
			waitDuration = time.Until(nextTask.ExpiryAt)

			if waitDuration <= 0 {
				task := heap.Pop(&tm.heap).(*TimerTask)
				delete(tm.tasks, task.ID)
				tm.executed++

				tm.inflight.Add(1)
				go tm.execute(task)

				tm.mu.Unlock()
				continue
			}
		}

		tm.mu.Unlock()

		// Wait for either timeout or wakeup signal
		timer := time.NewTimer(waitDuration)
		select {
		case <-timer.C:
		case <-tm.wakeup:
			timer.Stop()
		case <-tm.stopCh:
			timer.Stop()
			return
		}
	}
}

func (tm *TimerManager) execute(task *TimerTask) {
	defer tm.inflight.Done()
	defer func() {
		if r := recover(); r != nil {
			tm.logger.Error("Timer task panicked", zap.String("id", task.ID), zap.Any("panic", r))
		}
	}()

	task.Callback()
}

// Stats returns statistics about the timer manager
func (tm *TimerManager) Stats() TimerStats {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	return TimerStats{
		ScheduledTasks: len(tm.tasks),
		ExecutedTasks:  tm.executed,
	}
}

// TimerStats contains statistics about the timer manager
type TimerStats struct {
	ScheduledTasks int
	ExecutedTasks  int
}

var (
	ErrManagerStopped = &TimerError{"timer manager is stopped"}
)

// TimerError represents a timer error
type TimerError struct {
	msg string
}

func (e *TimerError) Error() string {
	return e.msg
}
