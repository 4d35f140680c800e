package check

import (
	"context"

	"github.com/blackwhitehere/acme-data-dash/internal/connection"
)

// ProfileContext is implemented by contexts that can also expose the
// connection profile behind a name. Checks that need the driver type-assert
// for it.
type ProfileContext interface {
	Context
	Profile(ctx context.Context, name string) (connection.Profile, error)
}

// StandardContext forwards to a connection.Resolver.
type StandardContext struct {
	Connections *connection.Resolver
}

// NewStandardContext binds r.
func NewStandardContext(r *connection.Resolver) *StandardContext {
	return &StandardContext{Connections: r}
}

func (c *StandardContext) ConnectionString(ctx context.Context, name string) (string, error) {
	return c.Connections.ConnectionString(ctx, name)
}

func (c *StandardContext) Profile(ctx context.Context, name string) (connection.Profile, error) {
	return c.Connections.Profile(ctx, name)
}

var _ ProfileContext = (*StandardContext)(nil)
