package featureflags

import (
	"context"
	"errors"
)

// ErrFlagNotFound is returned when a feature flag is not found.
var ErrFlagNotFound = errors.New("feature flag not found")

// Repository stores flag values. The memory implementation serves a single
// process; the Postgres one is shared by the API and the worker.
type Repository interface {
	GetFlag(ctx context.Context, key string) (*Flag, error)
	GetAllFlags(ctx context.Context) (map[string]*Flag, error)
	SetFlag(ctx context.Context, flag *Flag) error

	// SetFlags applies all updates or none.
	SetFlags(ctx context.Context, flags []*Flag) error

	// DeleteFlag returns ErrFlagNotFound for unknown keys.
	DeleteFlag(ctx context.Context, key string) error
}
