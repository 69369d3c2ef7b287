package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// Config sizes the pool that runs fired send and delete jobs.
type Config struct {
	Enabled        bool
	Workers        int
	QueueSize      int
	DefaultTimeout time.Duration // used when Task.Timeout is 0
	MaxQueueDelay  time.Duration // stale tasks are dropped; 0 keeps them
	HistorySize    int
}

var (
	ErrDisabled    = errors.New("task engine disabled")
	ErrStopped     = errors.New("task engine stopped")
	ErrStopping    = errors.New("task engine stopping")
	ErrQueueFull   = errors.New("task engine queue full")
	ErrOverlapSkip = errors.New("task skipped: previous run still in flight")
)

// OverlapPolicy decides what happens when a task is enqueued while an earlier
// run sharing its RunState has not finished.
type OverlapPolicy int

const (
	OverlapAllow OverlapPolicy = iota
	OverlapSkipIfRunning
)

type TaskOptions struct {
	Overlap OverlapPolicy
	// KeepStale runs the task however long it waited in the queue.
	KeepStale bool
}

// RunState is held from enqueue until the run returns, so a fast trigger
// cannot pile copies of one job into the queue. A nil RunState never blocks.
type RunState struct {
	busy atomic.Bool
}

func (s *RunState) tryAcquire() bool {
	return s == nil || s.busy.CompareAndSwap(false, true)
}

func (s *RunState) release() {
	if s != nil {
		s.busy.Store(false)
	}
}

type HistoryItem struct {
	ID         string
	Name       string
	Started    time.Time
	QueueDelay time.Duration
	Duration   time.Duration
	Error      string
}

// TaskEvent is the payload of task.* bus events.
type TaskEvent struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Started    time.Time     `json:"started"`
	QueueDelay time.Duration `json:"queue_delay"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}

// Task is one unit of work. Failed runs are not retried.
type Task struct {
	ID      string
	Name    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
	Opt     TaskOptions
	// State gates overlap; when nil a per-name state is used.
	State *RunState
}

type Snapshot struct {
	Enabled  bool
	Workers  int
	QueueLen int
	QueueCap int
	InFlight int

	Dropped          uint64
	DroppedQueueFull uint64
	DroppedStale     uint64

	DefaultTimeout time.Duration
	MaxQueueDelay  time.Duration

	History []HistoryItem
}
