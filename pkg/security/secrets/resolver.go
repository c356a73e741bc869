package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
)

var refPattern = regexp.MustCompile(`\$\{secret:([^}]+)\}`)

// Resolver substitutes ${secret:name} references using its providers in
// order. Resolved values are cached for the resolver's lifetime.
type Resolver struct {
	providers []Provider
	logger    *slog.Logger

	mu    sync.Mutex
	cache map[string]string
}

// NewResolver creates a resolver over providers.
func NewResolver(providers ...Provider) *Resolver {
	return &Resolver{
		providers: providers,
		logger:    slog.Default().With("component", "secrets"),
		cache:     make(map[string]string),
	}
}

// Get returns the named secret from the first provider that holds it.
func (r *Resolver) Get(ctx context.Context, name string) (string, error) {
	r.mu.Lock()
	value, ok := r.cache[name]
	r.mu.Unlock()
	if ok {
		return value, nil
	}

	for _, p := range r.providers {
		value, err := p.Get(ctx, name)
		if err == nil {
			r.mu.Lock()
			r.cache[name] = value
			r.mu.Unlock()
			r.logger.Debug("secret resolved", "name", redact(name), "provider", p.Name())
			return value, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return "", fmt.Errorf("%s provider: %w", p.Name(), err)
		}
	}
	return "", fmt.Errorf("%w: %q", ErrNotFound, name)
}

// Resolve replaces every reference in input. All failing references are
// reported together; input is returned unchanged on error.
func (r *Resolver) Resolve(ctx context.Context, input string) (string, error) {
	if !strings.Contains(input, "${secret:") {
		return input, nil
	}

	var errs []error
	output := refPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := refPattern.FindStringSubmatch(match)[1]
		value, err := r.Get(ctx, strings.TrimSpace(name))
		if err != nil {
			errs = append(errs, err)
			return match
		}
		return value
	})
	if len(errs) > 0 {
		return input, errors.Join(errs...)
	}
	return output, nil
}

// ResolveAll resolves each field in place, stopping at the first failure.
func (r *Resolver) ResolveAll(ctx context.Context, fields map[string]*string) error {
	for field, dst := range fields {
		value, err := r.Resolve(ctx, *dst)
		if err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
		*dst = value
	}
	return nil
}

// redact shortens a secret name for logging.
func redact(name string) string {
	if len(name) <= 4 {
		return "***"
	}
	return name[:2] + "..." + name[len(name)-2:]
}
