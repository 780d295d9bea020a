package settings

import (
	"context"
	"errors"
	"sync"

	"github.com/pilab-dev/glass-analytics/domain"
)

// MemoryRepository keeps settings in process memory.
type MemoryRepository struct {
	mu       sync.RWMutex
	settings domain.Settings
}

var _ domain.SettingsRepository = (*MemoryRepository)(nil)

// NewMemoryRepository returns a repository holding initial.
func NewMemoryRepository(initial domain.Settings) *MemoryRepository {
	return &MemoryRepository{settings: initial}
}

func (r *MemoryRepository) GetSettings(_ context.Context) (*domain.Settings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := r.settings
	return &s, nil
}

func (r *MemoryRepository) SaveSettings(_ context.Context, settings *domain.Settings) error {
	if settings == nil {
		return errors.New("settings cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.settings = *settings
	return nil
}
