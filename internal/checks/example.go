package checks

import (
	"context"

	"github.com/blackwhitehere/acme-data-dash/internal/check"
	"github.com/blackwhitehere/acme-data-dash/internal/config"
)

// example is the template for new checks: validate parameters, resolve a
// connection, then verify something against it.
type example struct {
	base
}

func NewExample(c config.Check) check.Check {
	return &example{base: newBase(c,
		"An example check that verifies connection string availability",
		[]check.ParameterDefinition{
			param("target_date", "The date to check data for"),
			paramDefault("connection", "Connection profile to resolve", "default_db"),
		},
	)}
}

func (e *example) Execute(ctx context.Context, cc check.Context, params check.Params) (check.Result, error) {
	p, err := e.resolve(params)
	if err != nil {
		return check.Result{}, err
	}

	if _, err := p.String("target_date"); err != nil {
		return check.Result{}, err
	}
	name, err := p.String("connection")
	if err != nil {
		return check.Result{}, err
	}

	if _, err := cc.ConnectionString(ctx, name); err != nil {
		return check.Result{}, check.ExecutionError("resolving connection "+name, err)
	}

	return check.Succeeded("Data verified successfully"), nil
}
