// Package scheduler is the job registry: recurring weekly sends on a robfig
// cron runner and one-shot deletion timers, both keyed by JobID.
//
// Fired jobs are not run inline. They are enqueued into an Executor (the task
// engine), which owns timeouts, overlap gating and panic recovery.
package scheduler
