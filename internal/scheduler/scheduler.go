// Package scheduler binds digest requests to live cron jobs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"pr_digest_bot/internal/model"
	"pr_digest_bot/internal/schedule"
)

// Arm/Disarm misuse.
var (
	ErrAlreadyArmed = errors.New("job already armed")
	ErrNotArmed     = errors.New("no job armed")
)

// Engine owns the cron runner and the jobs armed on requests. Specs are
// validated before they reach the engine.
type Engine struct {
	cron *cron.Cron
	def  schedule.Spec
	log  *slog.Logger

	mu     sync.Mutex
	chores int
}

// New creates an Engine that uses def for requests without an explicit
// schedule and evaluates schedules in loc.
func New(def schedule.Spec, loc *time.Location, log *slog.Logger) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	cl := cronLogger{log: log}
	return &Engine{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		def: def,
		log: log,
	}
}

// Start runs the cron loop in the background.
func (e *Engine) Start() {
	e.cron.Start()
}

// Stop halts future fires and waits for running jobs until ctx is done.
func (e *Engine) Stop(ctx context.Context) {
	done := e.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		e.log.Warn("scheduler stop timed out", "error", ctx.Err())
	}
}

// Arm creates a live job that calls onFire on every occurrence of the
// request's schedule and stores the handle on r.
func (e *Engine) Arm(r *model.DigestRequest, onFire func()) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if r.Job() != nil {
		return fmt.Errorf("request %d: %w", r.ID, ErrAlreadyArmed)
	}

	spec := r.Frequency(e.def)
	id := e.cron.Schedule(spec.Schedule(), cron.FuncJob(onFire))
	r.SetJob(&job{cron: e.cron, id: id})

	e.log.Debug("job armed", "request_id", r.ID, "room", r.Room, "schedule", spec.String())
	return nil
}

// Disarm cancels the live job of r. A fire already in progress is allowed
// to finish.
func (e *Engine) Disarm(r *model.DigestRequest) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	j, ok := r.Job().(*job)
	if !ok || j == nil {
		return fmt.Errorf("request %d: %w", r.ID, ErrNotArmed)
	}

	e.cron.Remove(j.id)
	r.SetJob(nil)

	e.log.Debug("job disarmed", "request_id", r.ID, "room", r.Room)
	return nil
}

// Every runs fn on spec alongside the request jobs. It is meant for
// housekeeping and is not counted by Len.
func (e *Engine) Every(name string, spec schedule.Spec, fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cron.Schedule(spec.Schedule(), cron.FuncJob(fn))
	e.chores++
	e.log.Debug("chore scheduled", "name", name, "schedule", spec.String())
}

// Len returns the number of live request jobs.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.cron.Entries()) - e.chores
}

type job struct {
	cron *cron.Cron
	id   cron.EntryID
}

// Next returns the next fire time, or the zero time before the engine starts.
func (j *job) Next() time.Time {
	return j.cron.Entry(j.id).Next
}

// cronLogger routes cron's own messages to slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
