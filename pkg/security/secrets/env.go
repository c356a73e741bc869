package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// EnvProvider reads secrets from environment variables.
//
// The secret "smtp-password" with prefix "SPENDCAP_SECRET_" is read from
// SPENDCAP_SECRET_SMTP_PASSWORD.
type EnvProvider struct {
	prefix string
}

// NewEnvProvider creates an environment provider.
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{prefix: prefix}
}

// Get implements Provider.
func (p *EnvProvider) Get(_ context.Context, name string) (string, error) {
	envVar := p.envVar(name)
	value, ok := os.LookupEnv(envVar)
	if !ok || value == "" {
		return "", fmt.Errorf("%w: %s not set", ErrNotFound, envVar)
	}
	return value, nil
}

// Name implements Provider.
func (p *EnvProvider) Name() string { return "env" }

func (p *EnvProvider) envVar(name string) string {
	r := strings.NewReplacer("-", "_", ".", "_")
	return p.prefix + strings.ToUpper(r.Replace(name))
}
