// Package adapter turns tracker data into a domain snapshot. The set of
// adapters is closed: New is the only way to obtain one.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cyclescope/internal/config"
	"cyclescope/internal/domain"
	"cyclescope/internal/tracker"
)

type Kind string

const (
	KindDefault Kind = config.AdapterDefault
	KindOrg     Kind = config.AdapterOrg
	KindFake    Kind = config.AdapterFake
)

var ErrUnknownKind = errors.New("unknown adapter kind")

// Adapter produces a snapshot. Implementations live in this package only.
type Adapter interface {
	Kind() Kind
	FetchSnapshot(ctx context.Context) (domain.Snapshot, error)
	sealed()
}

// Deps are the collaborators an adapter may need.
type Deps struct {
	Config *config.Config
	Client tracker.Client
	Logger *slog.Logger
	Now    func() time.Time
}

// New builds the adapter for kind. The returned value is immutable and owned
// by the caller.
func New(kind Kind, deps Deps) (Adapter, error) {
	if deps.Config == nil {
		return nil, errors.New("adapter: config is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	switch kind {
	case KindDefault, KindOrg:
		if deps.Client == nil {
			return nil, fmt.Errorf("adapter %s: tracker client is required", kind)
		}
		if kind == KindDefault {
			return newDefault(deps), nil
		}
		return newOrg(deps), nil
	case KindFake:
		return newFake(deps), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// FromConfig builds the adapter selected by cfg.Adapter.
func FromConfig(deps Deps) (Adapter, error) {
	if deps.Config == nil {
		return nil, errors.New("adapter: config is required")
	}
	return New(Kind(deps.Config.Adapter), deps)
}

// ParseKind validates a selector string.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindDefault, KindOrg, KindFake:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}
