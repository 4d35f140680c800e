package secret

import (
	"context"
	"fmt"
	"maps"
	"os"
)

// EnvResolver reads secrets from process environment variables.
// Prefix, if set, is prepended to every key before lookup.
type EnvResolver struct {
	Prefix string
}

func (r EnvResolver) Secret(_ context.Context, key string) (string, error) {
	v, ok := os.LookupEnv(r.Prefix + key)
	if !ok {
		return "", NotFound(key)
	}
	return v, nil
}

// Lookup is the read side of a persisted secrets table.
type Lookup interface {
	Secret(ctx context.Context, key string) (value string, found bool, err error)
}

// StoreResolver reads secrets from a persisted secrets table.
type StoreResolver struct {
	store Lookup
}

// NewStoreResolver returns a resolver backed by store.
func NewStoreResolver(store Lookup) *StoreResolver {
	return &StoreResolver{store: store}
}

func (r *StoreResolver) Secret(ctx context.Context, key string) (string, error) {
	v, found, err := r.store.Secret(ctx, key)
	if err != nil {
		return "", StoreFailure(key, err)
	}
	if !found {
		return "", NotFound(key)
	}
	return v, nil
}

// MemoryResolver serves secrets from a fixed map.
type MemoryResolver struct {
	values map[string]string
}

// NewMemoryResolver copies values; later changes to the map are not seen.
func NewMemoryResolver(values map[string]string) *MemoryResolver {
	return &MemoryResolver{values: maps.Clone(values)}
}

func (r *MemoryResolver) Secret(_ context.Context, key string) (string, error) {
	v, ok := r.values[key]
	if !ok {
		return "", NotFound(key)
	}
	return v, nil
}

// Backend names accepted by New.
const (
	BackendEnv    = "env"
	BackendStore  = "store"
	BackendMemory = "memory"
)

// Options carries what each backend needs. Only the fields for the selected
// backend are read.
type Options struct {
	EnvPrefix string
	Store     Lookup
	Values    map[string]string
}

// New builds the resolver for backend.
func New(backend string, opts Options) (Resolver, error) {
	switch backend {
	case BackendEnv:
		return EnvResolver{Prefix: opts.EnvPrefix}, nil
	case BackendStore:
		if opts.Store == nil {
			return nil, fmt.Errorf("secret backend %q requires a store", backend)
		}
		return NewStoreResolver(opts.Store), nil
	case BackendMemory:
		return NewMemoryResolver(opts.Values), nil
	default:
		return nil, fmt.Errorf("unknown secret backend %q", backend)
	}
}
