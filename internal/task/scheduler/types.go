package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"postbot/internal/task/engine"
	logx "postbot/pkg/logx"
)

type Config struct {
	Timezone string // IANA name, e.g. "Asia/Jakarta"; empty means Local
}

// Job is the body of a scheduled entry.
type Job func(ctx context.Context) error

// Executor runs fired jobs. *engine.Service satisfies it.
type Executor interface {
	Enqueue(t engine.Task) error
}

type recurringDef struct {
	id      JobID
	sched   cron.Schedule
	timeout time.Duration
	job     Job
	entryID cron.EntryID
	state   *engine.RunState
}

// onceDef outlives its timer: Stop drops timers, Start re-arms from defs.
type onceDef struct {
	id      JobID
	at      time.Time
	timeout time.Duration
	job     Job
	ver     uint64
	timer   *time.Timer
	retries int
}

type Service struct {
	mu sync.Mutex

	log  logx.Logger
	cfg  Config
	loc  *time.Location
	exec Executor

	c    *cron.Cron
	defs map[JobID]*recurringDef

	enqMu       sync.Mutex
	lastEnqWarn map[JobID]time.Time

	// tmu guards one-shot entries; never acquire mu while holding it
	tmu     sync.Mutex
	once    map[JobID]*onceDef
	onceSeq uint64
	running bool
}

// EntryInfo describes one registry entry for diagnostics.
type EntryInfo struct {
	ID        JobID
	Recurring bool
	Spec      string
	Timeout   time.Duration
	Next      time.Time
	Prev      time.Time
}

type Snapshot struct {
	Timezone string
	Running  bool
	Entries  []EntryInfo
}
