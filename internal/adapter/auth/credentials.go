// Package auth provides the credential used to open generation streams.
package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"deckstream/internal/domain"
	"deckstream/internal/infra/config"
)

// Static returns a fixed credential.
type Static string

// Credential implements domain.CredentialProvider.
func (s Static) Credential(context.Context) (string, error) {
	if strings.TrimSpace(string(s)) == "" {
		return "", domain.ErrCredentialUnavailable
	}
	return string(s), nil
}

// Env reads the credential from an environment variable on every call.
type Env string

// Credential implements domain.CredentialProvider.
func (e Env) Credential(ctx context.Context) (string, error) {
	if e == "" {
		return "", domain.ErrCredentialUnavailable
	}
	return Static(strings.TrimSpace(os.Getenv(string(e)))).Credential(ctx)
}

// File reads the credential from a file on every call, so a rotated token
// is picked up by the next session.
type File string

// Credential implements domain.CredentialProvider.
func (f File) Credential(ctx context.Context) (string, error) {
	if f == "" {
		return "", domain.ErrCredentialUnavailable
	}
	data, err := os.ReadFile(string(f))
	switch {
	case errors.Is(err, os.ErrNotExist):
		return "", domain.ErrCredentialUnavailable
	case err != nil:
		return "", fmt.Errorf("read token file: %w", err)
	}
	return Static(strings.TrimSpace(string(data))).Credential(ctx)
}

// Chain tries providers in order and returns the first credential found.
type Chain []domain.CredentialProvider

// Credential implements domain.CredentialProvider. A provider failing with
// anything other than domain.ErrCredentialUnavailable stops the chain.
func (c Chain) Credential(ctx context.Context) (string, error) {
	for _, p := range c {
		cred, err := p.Credential(ctx)
		if err == nil {
			return cred, nil
		}
		if !errors.Is(err, domain.ErrCredentialUnavailable) {
			return "", err
		}
	}
	return "", domain.ErrCredentialUnavailable
}

// FromConfig builds the provider chain configured in cfg: inline token,
// then environment variable, then token file.
func FromConfig(cfg config.AuthConfig) domain.CredentialProvider {
	var chain Chain
	if cfg.Token != "" {
		chain = append(chain, Static(cfg.Token))
	}
	if cfg.TokenEnv != "" {
		chain = append(chain, Env(cfg.TokenEnv))
	}
	if cfg.TokenFile != "" {
		chain = append(chain, File(cfg.TokenFile))
	}
	return chain
}

var (
	_ domain.CredentialProvider = Static("")
	_ domain.CredentialProvider = Env("")
	_ domain.CredentialProvider = File("")
	_ domain.CredentialProvider = Chain(nil)
)
