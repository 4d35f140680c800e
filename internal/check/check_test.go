package check_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/blackwhitehere/acme-data-dash/internal/check"
	"github.com/blackwhitehere/acme-data-dash/internal/connection"
	"github.com/blackwhitehere/acme-data-dash/internal/secret"
)

// stubCheck has a fixed id and returns a fixed result.
type stubCheck struct {
	id     string
	result check.Result
}

func (s *stubCheck) ID() string                               { return s.id }
func (s *stubCheck) Description() string                      { return "stub " + s.id }
func (s *stubCheck) Parameters() []check.ParameterDefinition { return nil }
func (s *stubCheck) Execute(context.Context, check.Context, check.Params) (check.Result, error) {
	return s.result, nil
}

func TestNewRegistry_Lookup(t *testing.T) {
	a := &stubCheck{id: "a"}
	b := &stubCheck{id: "b"}
	r, err := check.NewRegistry(b, a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, ok := r.Lookup("a")
	if !ok || got != a {
		t.Errorf("expected to find check 'a'")
	}
	if _, ok := r.Lookup("missing"); ok {
		t.Error("expected lookup of unknown id to fail")
	}
	if r.Len() != 2 {
		t.Errorf("expected 2 checks, got %d", r.Len())
	}

	all := r.All()
	if all[0].ID() != "a" || all[1].ID() != "b" {
		t.Errorf("expected checks sorted by id, got %q, %q", all[0].ID(), all[1].ID())
	}
}

func TestNewRegistry_RejectsDuplicateID(t *testing.T) {
	_, err := check.NewRegistry(&stubCheck{id: "dup"}, &stubCheck{id: "other"}, &stubCheck{id: "dup"})
	if err == nil {
		t.Fatal("expected error for duplicate id, got nil")
	}
	if !strings.Contains(err.Error(), "dup") {
		t.Errorf("expected error to name the id, got %v", err)
	}
}

func TestNewRegistry_RejectsEmptyID(t *testing.T) {
	if _, err := check.NewRegistry(&stubCheck{id: "  "}); err == nil {
		t.Fatal("expected error for empty id, got nil")
	}
	if _, err := check.NewRegistry(nil); err == nil {
		t.Fatal("expected error for nil check, got nil")
	}
}

func TestRegistry_AllReturnsCopy(t *testing.T) {
	r, _ := check.NewRegistry(&stubCheck{id: "a"})
	all := r.All()
	all[0] = &stubCheck{id: "mutated"}

	if r.All()[0].ID() != "a" {
		t.Error("mutating All() result must not affect the registry")
	}
}

func TestError_KindsAndMessages(t *testing.T) {
	cfgErr := check.ConfigError("Missing target_date")
	if cfgErr.Error() != "configuration error: Missing target_date" {
		t.Errorf("unexpected message %q", cfgErr.Error())
	}
	if !errors.Is(cfgErr, check.ErrConfig) || errors.Is(cfgErr, check.ErrExecution) {
		t.Error("config error matched the wrong kind")
	}

	inner := errors.New("connection refused")
	execErr := check.ExecutionError("querying", inner)
	if !errors.Is(execErr, check.ErrExecution) {
		t.Error("expected ErrExecution")
	}
	if !errors.Is(execErr, inner) {
		t.Error("expected inner error to be reachable")
	}
	if execErr.Error() != "execution error: querying: connection refused" {
		t.Errorf("unexpected message %q", execErr.Error())
	}
}

func TestParseStatus(t *testing.T) {
	for in, want := range map[string]check.Status{
		"success": check.StatusSuccess,
		"Warning": check.StatusWarning,
		"FAILURE": check.StatusFailure,
	} {
		got, err := check.ParseStatus(in)
		if err != nil {
			t.Errorf("ParseStatus(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseStatus(%q) = %q, want %q", in, got, want)
		}
	}
	if _, err := check.ParseStatus("up"); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestResult_WithDetailsDoesNotMutate(t *testing.T) {
	r := check.Failed("bad")
	d := r.WithDetails(map[string]any{"rows": 0})
	if r.Details != nil {
		t.Error("WithDetails must return a copy")
	}
	if d.Status != check.StatusFailure || d.Message != "bad" {
		t.Errorf("unexpected result %+v", d)
	}
}

func TestParams(t *testing.T) {
	p := check.Params{
		"s":      "text",
		"f":      float64(3),
		"frac":   1.5,
		"num":    json.Number("42"),
		"numstr": "7",
		"dur":    "90s",
		"nested": map[string]any{},
		"null":   nil,
	}

	if s, err := p.String("s"); err != nil || s != "text" {
		t.Errorf("String(s) = %q, %v", s, err)
	}
	if s, err := p.String("f"); err != nil || s != "3" {
		t.Errorf("String(f) = %q, %v", s, err)
	}
	if n, err := p.Int("num"); err != nil || n != 42 {
		t.Errorf("Int(num) = %d, %v", n, err)
	}
	if n, err := p.Int("numstr"); err != nil || n != 7 {
		t.Errorf("Int(numstr) = %d, %v", n, err)
	}
	if _, err := p.Int("frac"); !errors.Is(err, check.ErrConfig) {
		t.Errorf("Int(frac): expected config error, got %v", err)
	}
	if _, err := p.String("nested"); !errors.Is(err, check.ErrConfig) {
		t.Errorf("String(nested): expected config error, got %v", err)
	}
	if d, err := p.DurationOr("dur", time.Hour); err != nil || d != 90*time.Second {
		t.Errorf("DurationOr(dur) = %v, %v", d, err)
	}
	if d, err := p.DurationOr("absent", time.Hour); err != nil || d != time.Hour {
		t.Errorf("DurationOr(absent) = %v, %v", d, err)
	}
	if n, err := p.IntOr("null", 5); err != nil || n != 5 {
		t.Errorf("IntOr(null) = %d, %v", n, err)
	}

	_, err := p.String("target_date")
	var cerr *check.Error
	if !errors.As(err, &cerr) || cerr.Detail != "Missing target_date" {
		t.Errorf("expected 'Missing target_date' config error, got %v", err)
	}
}

func TestParams_Merge(t *testing.T) {
	p := check.Params{"a": "caller"}
	merged := p.Merge(map[string]string{"a": "default", "b": "default"})
	if merged["a"] != "caller" || merged["b"] != "default" {
		t.Errorf("unexpected merge result %v", merged)
	}
	if _, ok := p["b"]; ok {
		t.Error("Merge must not mutate the receiver")
	}
}

func TestStandardContext_Forwards(t *testing.T) {
	ref := "pw"
	resolver := connection.NewResolver(
		connection.NewStaticSource([]connection.Profile{{Name: "db", Driver: "sqlite", Template: "file:{{PASSWORD}}", SecretRef: &ref}}),
		secret.NewMemoryResolver(map[string]string{"pw": "x.db"}),
	)
	cc := check.NewStandardContext(resolver)

	got, err := cc.ConnectionString(context.Background(), "db")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "file:x.db" {
		t.Errorf("expected 'file:x.db', got %q", got)
	}

	p, err := cc.Profile(context.Background(), "db")
	if err != nil || p.Driver != "sqlite" {
		t.Errorf("Profile() = %+v, %v", p, err)
	}

	if _, err := cc.ConnectionString(context.Background(), "nope"); !errors.Is(err, connection.ErrProfileNotFound) {
		t.Errorf("expected ErrProfileNotFound, got %v", err)
	}
}
