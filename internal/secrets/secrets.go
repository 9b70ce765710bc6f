// Package secrets resolves the shared secret key used for password hashing
// and token signing.
package secrets

import (
	"fmt"
	"os"

	"github.com/dmitrijs2005/heimdallr/internal/common"
)

// DefaultEnvVar is the environment variable holding the secret key.
const DefaultEnvVar = "HEIMDALLR_SECRET"

// Provider resolves the secret key from the process environment. It is
// constructed once at startup and passed into the components that need the
// key; the value itself is re-read from the environment on every Resolve
// call, so the provider holds no secret material.
type Provider struct {
	varName string
}

// NewProvider returns a Provider bound to the given environment variable
// name. An empty name falls back to DefaultEnvVar.
func NewProvider(varName string) *Provider {
	if varName == "" {
		varName = DefaultEnvVar
	}
	return &Provider{varName: varName}
}

// VarName returns the environment variable the provider reads.
func (p *Provider) VarName() string {
	return p.varName
}

// Resolve returns the secret key. An unset or empty variable is a
// configuration error: the secret is the cryptographic root for both
// password hashing and token signing, so there is no usable default.
func (p *Provider) Resolve() (string, error) {
	v := os.Getenv(p.varName)
	if v == "" {
		return "", fmt.Errorf("%w: environment variable %s", common.ErrMissingSecret, p.varName)
	}
	return v, nil
}
