package runner_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/blackwhitehere/acme-data-dash/internal/check"
	"github.com/blackwhitehere/acme-data-dash/internal/runner"
	"github.com/blackwhitehere/acme-data-dash/internal/storage"
)

// mockCheck returns a fixed result or error and records what it saw.
type mockCheck struct {
	id     string
	result check.Result
	err    error
	delay  time.Duration
	calls  atomic.Int32
	params check.Params
}

func (m *mockCheck) ID() string                              { return m.id }
func (m *mockCheck) Description() string                     { return "mock" }
func (m *mockCheck) Parameters() []check.ParameterDefinition { return nil }

func (m *mockCheck) Execute(ctx context.Context, _ check.Context, p check.Params) (check.Result, error) {
	m.calls.Add(1)
	m.params = p
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return check.Result{}, check.ExecutionError("timed out", ctx.Err())
		}
	}
	return m.result, m.err
}

type nopContext struct{}

func (nopContext) ConnectionString(context.Context, string) (string, error) { return "", nil }

// mockStore records appended results.
type mockStore struct {
	mu      sync.Mutex
	records []storage.Record
	latest  map[string]*storage.Record
	err     error
}

func (m *mockStore) AppendResult(_ context.Context, r storage.Record) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
	return int64(len(m.records)), nil
}

func (m *mockStore) LatestResult(_ context.Context, id string) (*storage.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest[id], nil
}

// mockRecorder counts metric calls.
type mockRecorder struct {
	mu       sync.Mutex
	statuses []check.Status
	errs     int
}

func (m *mockRecorder) RecordExecution(_ context.Context, _ string, st check.Status, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.errs++
		return
	}
	m.statuses = append(m.statuses, st)
}

func newRunner(t *testing.T, store runner.Store, checks ...check.Check) *runner.Runner {
	t.Helper()
	reg, err := check.NewRegistry(checks...)
	if err != nil {
		t.Fatal(err)
	}
	return runner.New(reg, nopContext{}, store, nil)
}

func TestRun_Success(t *testing.T) {
	mc := &mockCheck{id: "orders", result: check.Succeeded("ok").WithDetails(map[string]int{"rows": 3})}
	store := &mockStore{}
	rec := &mockRecorder{}
	r := newRunner(t, store, mc)
	r.SetMetrics(rec)

	o, err := r.Run(context.Background(), "orders", check.Params{"x": "1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.CheckID != "orders" || o.Result.Status != check.StatusSuccess {
		t.Errorf("unexpected outcome %+v", o)
	}
	if o.RecordID != 1 {
		t.Errorf("expected record id 1, got %d", o.RecordID)
	}
	if mc.params["x"] != "1" {
		t.Errorf("expected params passed through, got %v", mc.params)
	}

	if len(store.records) != 1 {
		t.Fatalf("expected 1 stored record, got %d", len(store.records))
	}
	got := store.records[0]
	if got.RunID != o.RunID.String() || got.Status != "success" || got.Message != "ok" {
		t.Errorf("unexpected record %+v", got)
	}
	if string(got.Details) != `{"rows":3}` {
		t.Errorf("unexpected details %s", got.Details)
	}
	if len(rec.statuses) != 1 || rec.statuses[0] != check.StatusSuccess {
		t.Errorf("expected one success metric, got %v", rec.statuses)
	}
}

func TestRun_FailureResultIsPersisted(t *testing.T) {
	mc := &mockCheck{id: "orders", result: check.Failed("no rows")}
	store := &mockStore{}
	r := newRunner(t, store, mc)

	o, err := r.Run(context.Background(), "orders", nil)
	if err != nil {
		t.Fatalf("a failing result is not an error: %v", err)
	}
	if o.Result.Status != check.StatusFailure {
		t.Errorf("expected failure status, got %q", o.Result.Status)
	}
	if len(store.records) != 1 || store.records[0].Details != nil {
		t.Errorf("expected one record without details, got %+v", store.records)
	}
}

func TestRun_NotFound(t *testing.T) {
	store := &mockStore{}
	r := newRunner(t, store, &mockCheck{id: "a"})

	_, err := r.Run(context.Background(), "missing", nil)
	if !errors.Is(err, runner.ErrCheckNotFound) {
		t.Fatalf("expected ErrCheckNotFound, got %v", err)
	}
	if len(store.records) != 0 {
		t.Errorf("expected nothing stored")
	}
}

func TestRun_CheckErrorNotPersisted(t *testing.T) {
	mc := &mockCheck{id: "a", err: check.ConfigError("Missing target_date")}
	store := &mockStore{}
	rec := &mockRecorder{}
	r := newRunner(t, store, mc)
	r.SetMetrics(rec)

	_, err := r.Run(context.Background(), "a", nil)
	var ce *check.Error
	if !errors.As(err, &ce) || ce.Kind != check.KindConfig {
		t.Fatalf("expected config error, got %v", err)
	}
	if len(store.records) != 0 {
		t.Errorf("expected check errors not to be stored")
	}
	if rec.errs != 1 {
		t.Errorf("expected error metric, got %d", rec.errs)
	}
}

func TestRun_StoreFailureIsLoggedOnly(t *testing.T) {
	mc := &mockCheck{id: "a", result: check.Succeeded("ok")}
	r := newRunner(t, &mockStore{err: errors.New("disk full")}, mc)

	o, err := r.Run(context.Background(), "a", nil)
	if err != nil {
		t.Fatalf("expected storage error to be swallowed, got %v", err)
	}
	if o.Result.Status != check.StatusSuccess || o.RecordID != 0 {
		t.Errorf("unexpected outcome %+v", o)
	}
}

func TestRun_NilStore(t *testing.T) {
	r := newRunner(t, nil, &mockCheck{id: "a", result: check.Succeeded("ok")})
	if _, err := r.Run(context.Background(), "a", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRun_OnResultPrevStatus(t *testing.T) {
	mc := &mockCheck{id: "a", result: check.Failed("down")}
	store := &mockStore{latest: map[string]*storage.Record{
		"a": {CheckID: "a", Status: "success"},
	}}
	r := newRunner(t, store, mc)

	var gotPrev *check.Status
	var gotOutcome runner.Outcome
	r.SetOnResult(func(o runner.Outcome, prev *check.Status) {
		gotOutcome = o
		gotPrev = prev
	})

	if _, err := r.Run(context.Background(), "a", nil); err != nil {
		t.Fatal(err)
	}
	if gotPrev == nil || *gotPrev != check.StatusSuccess {
		t.Errorf("expected previous status success, got %v", gotPrev)
	}
	if gotOutcome.Result.Status != check.StatusFailure {
		t.Errorf("expected callback with failure outcome, got %+v", gotOutcome)
	}
}

func TestRun_OnResultFirstRun(t *testing.T) {
	r := newRunner(t, &mockStore{}, &mockCheck{id: "a", result: check.Succeeded("ok")})
	called := false
	r.SetOnResult(func(_ runner.Outcome, prev *check.Status) {
		called = true
		if prev != nil {
			t.Errorf("expected nil prev on first run, got %v", *prev)
		}
	})
	r.Run(context.Background(), "a", nil)
	if !called {
		t.Error("expected callback")
	}
}

func TestRun_Timeout(t *testing.T) {
	mc := &mockCheck{id: "slow", delay: time.Second, result: check.Succeeded("ok")}
	r := newRunner(t, &mockStore{}, mc)
	r.SetTimeout(20 * time.Millisecond)

	start := time.Now()
	_, err := r.Run(context.Background(), "slow", nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("timeout not applied")
	}
}

func TestRunMany(t *testing.T) {
	a := &mockCheck{id: "a", result: check.Succeeded("ok"), delay: 10 * time.Millisecond}
	b := &mockCheck{id: "b", err: check.ExecutionError("boom", nil)}
	store := &mockStore{}
	r := newRunner(t, store, a, b)

	attempts := r.RunMany(context.Background(), []string{"a", "b", "missing"}, nil, 2)
	if len(attempts) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(attempts))
	}
	if attempts[0].CheckID != "a" || attempts[0].Err != nil || attempts[0].Outcome.Result.Status != check.StatusSuccess {
		t.Errorf("unexpected attempt a: %+v", attempts[0])
	}
	if !errors.Is(attempts[1].Err, check.ErrExecution) {
		t.Errorf("expected execution error for b, got %v", attempts[1].Err)
	}
	if !errors.Is(attempts[2].Err, runner.ErrCheckNotFound) {
		t.Errorf("expected not found for missing, got %v", attempts[2].Err)
	}
	if len(store.records) != 1 {
		t.Errorf("expected only a's result stored, got %d", len(store.records))
	}
}

func TestRun_WithSQLiteStore(t *testing.T) {
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	r := newRunner(t, db, &mockCheck{id: "a", result: check.Warned("late")})
	o, err := r.Run(context.Background(), "a", nil)
	if err != nil {
		t.Fatal(err)
	}

	latest, err := db.LatestResult(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	if latest == nil || latest.ID != o.RecordID || latest.Status != "warning" || latest.RunID != o.RunID.String() {
		t.Errorf("unexpected stored record %+v", latest)
	}
}

// cancellingCheck cancels the caller's context before returning its result.
type cancellingCheck struct {
	id     string
	cancel context.CancelFunc
}

func (c *cancellingCheck) ID() string                              { return c.id }
func (c *cancellingCheck) Description() string                     { return "cancels" }
func (c *cancellingCheck) Parameters() []check.ParameterDefinition { return nil }

func (c *cancellingCheck) Execute(context.Context, check.Context, check.Params) (check.Result, error) {
	c.cancel()
	return check.Succeeded("done"), nil
}

func TestRun_PersistsAfterCallerCancels(t *testing.T) {
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := newRunner(t, db, &cancellingCheck{id: "a", cancel: cancel})

	o, err := r.Run(ctx, "a", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ctx.Err() == nil {
		t.Fatal("expected caller context to be cancelled")
	}
	if o.RecordID == 0 {
		t.Error("expected a record id for the stored result")
	}

	latest, err := db.LatestResult(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	if latest == nil || latest.Status != "success" || latest.RunID != o.RunID.String() {
		t.Errorf("expected stored success record, got %+v", latest)
	}
}
