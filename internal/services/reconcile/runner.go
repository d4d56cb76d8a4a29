package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// Runner owns the engine's schedule: a periodic cron entry plus one-shot
// follow-up triggers when a cycle leaves candidates behind. Cycles never
// overlap; a trigger that arrives mid-cycle is dropped.
type Runner struct {
	engine *Engine

	cronSpec      string
	followupDelay time.Duration

	cron      *cron.Cron
	triggerCh chan struct{}

	running atomic.Bool

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalCycles         atomic.Int64
	totalCandidates     atomic.Int64
	totalUpdated        atomic.Int64
	totalChunkErrors    atomic.Int64
	totalFollowups      atomic.Int64
	totalErrors         atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func NewRunner(engine *Engine, cronSpec string, followupDelay time.Duration) *Runner {
	if cronSpec == "" {
		cronSpec = "@hourly"
	}
	if followupDelay <= 0 {
		followupDelay = time.Minute
	}
	return &Runner{
		engine:            engine,
		cronSpec:          cronSpec,
		followupDelay:     followupDelay,
		cron:              cron.New(),
		triggerCh:         make(chan struct{}, 1),
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

// Trigger forces a cycle (best-effort, non-blocking).
func (r *Runner) Trigger() {
	r.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case r.triggerCh <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is cancelled, executing cycles on the cron cadence and
// on demand.
func (r *Runner) Run(ctx context.Context) error {
	if _, err := r.cron.AddFunc(r.cronSpec, r.Trigger); err != nil {
		return err
	}
	r.cron.Start()
	defer r.cron.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.triggerCh:
			r.runOnce(ctx)
		}
	}
}

func (r *Runner) runOnce(ctx context.Context) {
	// Single-flight: the cursor and order metadata are read-modify-write, so
	// overlapping cycles must coalesce.
	if !r.running.CompareAndSwap(false, true) {
		slog.Warn("cycle already running, trigger dropped")
		return
	}
	defer r.running.Store(false)

	r.lastCycleUnixNano.Store(time.Now().UTC().UnixNano())
	r.totalCycles.Add(1)

	res, err := r.engine.RunCycle(ctx)
	if err != nil {
		r.totalErrors.Add(1)
		r.lastErrorMu.Lock()
		r.lastError = err.Error()
		r.lastErrorMu.Unlock()
		slog.Error("reconcile cycle", "error", err.Error())
		return
	}

	r.totalCandidates.Add(int64(res.Candidates))
	r.totalUpdated.Add(int64(res.Updated))
	r.totalChunkErrors.Add(int64(res.ChunkErrors))

	if res.More {
		// The batch limit was hit; finish the backlog shortly instead of
		// waiting for the next scheduled run.
		r.totalFollowups.Add(1)
		time.AfterFunc(r.followupDelay, r.Trigger)
	}
}

type Stats struct {
	StartedAt       time.Time  `json:"startedAt"`
	LastCycleAt     *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt   *time.Time `json:"lastTriggerAt,omitempty"`
	TotalCycles     int64      `json:"totalCycles"`
	TotalCandidates int64      `json:"totalCandidates"`
	TotalUpdated    int64      `json:"totalUpdated"`
	TotalChunkErrs  int64      `json:"totalChunkErrors"`
	TotalFollowups  int64      `json:"totalFollowups"`
	TotalErrors     int64      `json:"totalErrors"`
	Running         bool       `json:"running"`
	LastError       string     `json:"lastError,omitempty"`
}

func (r *Runner) Stats() Stats {
	st := Stats{
		StartedAt:       time.Unix(0, r.startedAtUnixNano).UTC(),
		TotalCycles:     r.totalCycles.Load(),
		TotalCandidates: r.totalCandidates.Load(),
		TotalUpdated:    r.totalUpdated.Load(),
		TotalChunkErrs:  r.totalChunkErrors.Load(),
		TotalFollowups:  r.totalFollowups.Load(),
		TotalErrors:     r.totalErrors.Load(),
		Running:         r.running.Load(),
	}
	if n := r.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := r.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	r.lastErrorMu.Lock()
	st.LastError = r.lastError
	r.lastErrorMu.Unlock()
	return st
}
