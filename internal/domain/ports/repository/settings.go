package repository

import "context"

// SettingsRepository is a small key/value table for operator-tunable values.
type SettingsRepository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value, description string) error
	All(ctx context.Context) (map[string]string, error)
}
