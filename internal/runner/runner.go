// Package runner is the single entry point for executing a registered check:
// look it up, run it against the bound context, persist the result and
// report it.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/blackwhitehere/acme-data-dash/internal/check"
	"github.com/blackwhitehere/acme-data-dash/internal/storage"
	"github.com/blackwhitehere/acme-data-dash/internal/telemetry"
)

// ErrCheckNotFound is returned by Run for an unregistered check id.
var ErrCheckNotFound = errors.New("check not found")

// Store defines the storage operations required by the runner.
type Store interface {
	AppendResult(ctx context.Context, r storage.Record) (int64, error)
	LatestResult(ctx context.Context, checkID string) (*storage.Record, error)
}

// Outcome is a completed run that produced a Result.
type Outcome struct {
	RunID      uuid.UUID     `json:"run_id"`
	RecordID   int64         `json:"record_id,omitempty"`
	CheckID    string        `json:"check_id"`
	Result     check.Result  `json:"result"`
	ExecutedAt time.Time     `json:"executed_at"`
	Duration   time.Duration `json:"duration_ns"`
}

// Attempt pairs a check id with either its Outcome or the error that
// prevented one.
type Attempt struct {
	CheckID string
	Outcome Outcome
	Err     error
}

// Runner executes checks from a registry.
type Runner struct {
	registry *check.Registry
	cc       check.Context
	store    Store
	metrics  telemetry.Recorder
	onResult func(Outcome, *check.Status)
	timeout  time.Duration
	logger   *slog.Logger
}

// New creates a Runner. A nil store skips persistence; a nil logger uses
// slog.Default.
func New(registry *check.Registry, cc check.Context, store Store, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		registry: registry,
		cc:       cc,
		store:    store,
		metrics:  telemetry.Nop(),
		logger:   logger,
	}
}

// SetOnResult sets the callback invoked after each successful execution.
// prev is the check's status before this run (nil on first run).
func (r *Runner) SetOnResult(fn func(o Outcome, prev *check.Status)) {
	r.onResult = fn
}

// SetMetrics replaces the no-op recorder.
func (r *Runner) SetMetrics(m telemetry.Recorder) {
	if m != nil {
		r.metrics = m
	}
}

// SetTimeout bounds every run. Zero disables the limit.
func (r *Runner) SetTimeout(d time.Duration) {
	r.timeout = d
}

// Registry returns the registry the runner executes from.
func (r *Runner) Registry() *check.Registry { return r.registry }

// Run executes check id with params. Check errors are returned as is and
// not persisted. A storage failure after execution is logged and does not
// change the returned Outcome.
func (r *Runner) Run(ctx context.Context, id string, params check.Params) (Outcome, error) {
	c, ok := r.registry.Lookup(id)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %s", ErrCheckNotFound, id)
	}
	if params == nil {
		params = check.Params{}
	}

	var prev *check.Status
	if r.onResult != nil && r.store != nil {
		prev = r.previousStatus(ctx, id)
	}

	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	runID := uuid.New()
	start := time.Now()
	result, err := c.Execute(runCtx, r.cc, params)
	elapsed := time.Since(start)

	// The run is finished; a caller going away must not drop its record.
	doneCtx := context.WithoutCancel(ctx)

	if err != nil {
		r.metrics.RecordExecution(doneCtx, id, "", elapsed, err)
		r.logger.Warn("check error", "check_id", id, "run_id", runID, "error", err)
		return Outcome{}, err
	}
	r.metrics.RecordExecution(doneCtx, id, result.Status, elapsed, nil)

	o := Outcome{
		RunID:      runID,
		CheckID:    id,
		Result:     result,
		ExecutedAt: start.UTC(),
		Duration:   elapsed,
	}

	r.logger.Info("check result",
		"check_id", id,
		"run_id", runID,
		"status", result.Status,
		"duration", elapsed,
		"message", result.Message,
	)

	if r.store != nil {
		o.RecordID = r.persist(doneCtx, o)
	}
	if r.onResult != nil {
		r.onResult(o, prev)
	}
	return o, nil
}

// RunMany runs ids concurrently with at most limit in flight (limit <= 0
// means no bound). Attempts are returned in the order of ids.
func (r *Runner) RunMany(ctx context.Context, ids []string, params check.Params, limit int) []Attempt {
	attempts := make([]Attempt, len(ids))
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, id := range ids {
		g.Go(func() error {
			o, err := r.Run(ctx, id, params)
			attempts[i] = Attempt{CheckID: id, Outcome: o, Err: err}
			return nil
		})
	}
	g.Wait()
	return attempts
}

func (r *Runner) previousStatus(ctx context.Context, id string) *check.Status {
	rec, err := r.store.LatestResult(ctx, id)
	if err != nil {
		r.logger.Warn("fetching previous result", "check_id", id, "error", err)
		return nil
	}
	if rec == nil {
		return nil
	}
	st, err := check.ParseStatus(rec.Status)
	if err != nil {
		return nil
	}
	return &st
}

func (r *Runner) persist(ctx context.Context, o Outcome) int64 {
	var details json.RawMessage
	if o.Result.Details != nil {
		b, err := json.Marshal(o.Result.Details)
		if err != nil {
			r.logger.Warn("encoding result details", "check_id", o.CheckID, "error", err)
		} else {
			details = b
		}
	}

	id, err := r.store.AppendResult(ctx, storage.Record{
		CheckID:    o.CheckID,
		RunID:      o.RunID.String(),
		Status:     string(o.Result.Status),
		Message:    o.Result.Message,
		Details:    details,
		ExecutedAt: o.ExecutedAt,
	})
	if err != nil {
		r.logger.Error("storing check result", "check_id", o.CheckID, "run_id", o.RunID, "error", err)
		return 0
	}
	return id
}
