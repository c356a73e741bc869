package secrets

import (
	"context"
	"errors"
)

// ErrNotFound is returned by a provider that does not hold a secret.
var ErrNotFound = errors.New("secret not found")

// Provider retrieves secrets from one backend.
type Provider interface {
	// Get returns the named secret, or an error wrapping ErrNotFound.
	Get(ctx context.Context, name string) (string, error)

	// Name identifies the provider in errors and logs.
	Name() string
}
