package checks

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/blackwhitehere/acme-data-dash/internal/check"
	"github.com/blackwhitehere/acme-data-dash/internal/config"
)

// httpEndpoint treats the resolved connection string as a URL and expects a
// given status code from a GET.
type httpEndpoint struct {
	base
	client *http.Client
}

func NewHTTPEndpoint(c config.Check) check.Check {
	return &httpEndpoint{
		base: newBase(c,
			"Requests a URL and compares the response status",
			[]check.ParameterDefinition{
				param("connection", "Connection profile whose string is the URL"),
				paramDefault("expected_status", "Expected HTTP status code", "200"),
				paramDefault("timeout", "Request timeout", "10s"),
			},
		),
		client: &http.Client{},
	}
}

func (c *httpEndpoint) Execute(ctx context.Context, cc check.Context, params check.Params) (check.Result, error) {
	p, err := c.resolve(params)
	if err != nil {
		return check.Result{}, err
	}

	name, err := p.String("connection")
	if err != nil {
		return check.Result{}, err
	}
	expected, err := p.IntOr("expected_status", http.StatusOK)
	if err != nil {
		return check.Result{}, err
	}
	timeout, err := p.DurationOr("timeout", 10*time.Second)
	if err != nil {
		return check.Result{}, err
	}

	url, err := cc.ConnectionString(ctx, name)
	if err != nil {
		return check.Result{}, check.ExecutionError("resolving connection "+name, err)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return check.Result{}, check.ConfigErrorf("connection %s: invalid URL: %v", name, err)
	}

	resp, err := c.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return check.Failed(err.Error()).WithDetails(map[string]any{
			"response_time_ms": elapsed.Milliseconds(),
		}), nil
	}
	resp.Body.Close()

	details := map[string]any{
		"status_code":      resp.StatusCode,
		"response_time_ms": elapsed.Milliseconds(),
	}
	if int64(resp.StatusCode) != expected {
		return check.Failed(fmt.Sprintf("expected status %d, got %d", expected, resp.StatusCode)).WithDetails(details), nil
	}
	return check.Succeeded(fmt.Sprintf("status %d in %s", resp.StatusCode, elapsed.Round(time.Millisecond))).WithDetails(details), nil
}
