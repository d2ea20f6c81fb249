package secrets

import (
	"context"
	"errors"
)

// Common errors
var (
	ErrManagerNotInitialized = errors.New("secrets manager not initialized")
	ErrSecretNotFound        = errors.New("secret not found")
	ErrNoVaultToken          = errors.New("no vault token provided")
	ErrNoVaultAddress        = errors.New("no vault address provided")
)

// Manager provides access to secrets from various sources
type Manager interface {
	// GetSecret retrieves a secret by key
	GetSecret(ctx context.Context, key string) (string, error)

	// GetSecretWithDefault retrieves a secret with a default value if not found
	GetSecretWithDefault(ctx context.Context, key, defaultValue string) string
}

var defaultManager Manager

// SetManager sets the default secrets manager (also used by tests)
func SetManager(manager Manager) {
	defaultManager = manager
}

// GetSecret retrieves a secret from the default manager
func GetSecret(ctx context.Context, key string) (string, error) {
	if defaultManager == nil {
		return "", ErrManagerNotInitialized
	}
	return defaultManager.GetSecret(ctx, key)
}

// GetSecretWithDefault retrieves a secret with a default value if not found
func GetSecretWithDefault(ctx context.Context, key, defaultValue string) string {
	if defaultManager == nil {
		return defaultValue
	}
	return defaultManager.GetSecretWithDefault(ctx, key, defaultValue)
}
