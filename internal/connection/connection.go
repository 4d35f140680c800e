// Package connection turns logical connection names into connection strings.
//
// A Profile names a template such as "postgres://app:{{PASSWORD}}@db/app" and,
// optionally, the key of a secret to substitute into it. Profiles come from a
// Source: either a fixed in-memory list or the persisted profile table, which
// is read fresh on every resolution.
package connection

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/blackwhitehere/acme-data-dash/internal/secret"
)

// PasswordToken is the only placeholder recognised in templates.
const PasswordToken = "{{PASSWORD}}"

// Profile describes how to reach one data source.
type Profile struct {
	Name      string  `json:"name" yaml:"name"`
	Driver    string  `json:"driver" yaml:"driver"`
	Template  string  `json:"connection_string_template" yaml:"template"`
	Type      *string `json:"connection_type,omitempty" yaml:"type"`
	SecretRef *string `json:"secret_ref,omitempty" yaml:"secret_ref"`
}

// Source looks up profiles by name.
type Source interface {
	Profile(ctx context.Context, name string) (Profile, bool, error)
	Profiles(ctx context.Context) ([]Profile, error)
}

// StaticSource is an immutable list of profiles held in memory.
type StaticSource struct {
	profiles []Profile
}

// NewStaticSource copies profiles. Later duplicates of a name shadow earlier ones.
func NewStaticSource(profiles []Profile) *StaticSource {
	return &StaticSource{profiles: slices.Clone(profiles)}
}

func (s *StaticSource) Profile(_ context.Context, name string) (Profile, bool, error) {
	for i := len(s.profiles) - 1; i >= 0; i-- {
		if s.profiles[i].Name == name {
			return s.profiles[i], true, nil
		}
	}
	return Profile{}, false, nil
}

func (s *StaticSource) Profiles(_ context.Context) ([]Profile, error) {
	return slices.Clone(s.profiles), nil
}

// Render substitutes value for every occurrence of PasswordToken in tmpl.
func Render(tmpl, value string) string {
	return strings.ReplaceAll(tmpl, PasswordToken, value)
}

// Resolver builds connection strings from a profile source and a secret resolver.
type Resolver struct {
	source  Source
	secrets secret.Resolver
}

// NewResolver returns a Resolver. It is safe for concurrent use as long as
// source and secrets are.
func NewResolver(source Source, secrets secret.Resolver) *Resolver {
	return &Resolver{source: source, secrets: secrets}
}

// Profile returns the named profile.
func (r *Resolver) Profile(ctx context.Context, name string) (Profile, error) {
	p, found, err := r.source.Profile(ctx, name)
	if err != nil {
		return Profile{}, DriverFailure(fmt.Sprintf("loading profile %q: %v", name, err))
	}
	if !found {
		return Profile{}, ProfileNotFound(name)
	}
	return p, nil
}

// ConnectionString resolves name to a ready-to-use connection string.
func (r *Resolver) ConnectionString(ctx context.Context, name string) (string, error) {
	p, err := r.Profile(ctx, name)
	if err != nil {
		return "", err
	}

	conn := p.Template
	if p.SecretRef != nil {
		value, err := r.secrets.Secret(ctx, *p.SecretRef)
		if err != nil {
			return "", SecretFailure(name, err)
		}
		conn = Render(conn, value)
	}
	return conn, nil
}

// Kind classifies a resolution failure.
type Kind int

const (
	KindProfileNotFound Kind = iota + 1
	KindSecret
	KindDriver
)

var (
	ErrProfileNotFound = errors.New("connection profile not found")
	ErrSecret          = errors.New("connection secret error")
	ErrDriver          = errors.New("connection driver error")
)

// Error is returned by Resolver. For KindSecret, Err is the secret error and
// errors.Is(err, secret.ErrNotFound) works through it.
type Error struct {
	Kind   Kind
	Name   string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindProfileNotFound:
		return fmt.Sprintf("connection profile not found: %s", e.Name)
	case KindSecret:
		return fmt.Sprintf("secret error: %v", e.Err)
	case KindDriver:
		return fmt.Sprintf("driver error: %s", e.Detail)
	default:
		return fmt.Sprintf("connection %q: %s", e.Name, e.Detail)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrProfileNotFound:
		return e.Kind == KindProfileNotFound
	case ErrSecret:
		return e.Kind == KindSecret
	case ErrDriver:
		return e.Kind == KindDriver
	}
	return false
}

func ProfileNotFound(name string) error {
	return &Error{Kind: KindProfileNotFound, Name: name}
}

func SecretFailure(name string, err error) error {
	return &Error{Kind: KindSecret, Name: name, Err: err}
}

func DriverFailure(detail string) error {
	return &Error{Kind: KindDriver, Detail: detail}
}
