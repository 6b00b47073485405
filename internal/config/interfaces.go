package config

import "context"

// SecretProvider resolves SSM parameter paths into plaintext values.
// LoadConfig uses it for every *_SSM_PARAM variable outside local mode.
type SecretProvider interface {
	// GetParametersBatch returns a map of path -> value for every path it
	// could resolve.
	GetParametersBatch(ctx context.Context, paths []string) (map[string]string, error)
}
