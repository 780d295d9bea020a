package domain

import "context"

// SettingsRepository persists the dashboard settings.
type SettingsRepository interface {
	GetSettings(ctx context.Context) (*Settings, error)
	SaveSettings(ctx context.Context, settings *Settings) error
}
