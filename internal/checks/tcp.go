package checks

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/blackwhitehere/acme-data-dash/internal/check"
	"github.com/blackwhitehere/acme-data-dash/internal/config"
)

type tcpPort struct {
	base
}

func NewTCPPort(c config.Check) check.Check {
	return &tcpPort{base: newBase(c,
		"Opens a TCP connection to host:port",
		[]check.ParameterDefinition{
			param("connection", "Connection profile whose string is host:port"),
			paramDefault("timeout", "Dial timeout", "5s"),
		},
	)}
}

func (c *tcpPort) Execute(ctx context.Context, cc check.Context, params check.Params) (check.Result, error) {
	p, err := c.resolve(params)
	if err != nil {
		return check.Result{}, err
	}

	name, err := p.String("connection")
	if err != nil {
		return check.Result{}, err
	}
	timeout, err := p.DurationOr("timeout", 5*time.Second)
	if err != nil {
		return check.Result{}, err
	}

	addr, err := cc.ConnectionString(ctx, name)
	if err != nil {
		return check.Result{}, check.ExecutionError("resolving connection "+name, err)
	}

	start := time.Now()
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	elapsed := time.Since(start)
	// The resolved address may carry a rendered secret; report the profile name.
	details := map[string]any{"connection": name, "response_time_ms": elapsed.Milliseconds()}
	if err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) {
			err = opErr.Err
		}
		return check.Failed(fmt.Sprintf("dial %s: %v", name, err)).WithDetails(details), nil
	}
	conn.Close()
	return check.Succeeded("connected to " + name).WithDetails(details), nil
}
