package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/filograficos/identity-service/internal/core/domain"
	"github.com/filograficos/identity-service/internal/core/port"
	"github.com/filograficos/identity-service/internal/repository"
)

// PolicyService owns the runtime policy configuration. The active snapshot
// lives behind an atomic pointer: readers on the hot path never take a lock,
// and Reload or Update swap the whole snapshot so in-flight operations keep a
// consistent view.
type PolicyService struct {
	store    port.PolicyRepository
	defaults domain.PolicyConfig
	logger   *zap.Logger
	current  atomic.Pointer[domain.PolicyConfig]
}

// NewPolicyService seeds the active snapshot with the defaults. Call Reload
// during startup to pick up a stored record.
func NewPolicyService(store port.PolicyRepository, defaults domain.PolicyConfig, logger *zap.Logger) *PolicyService {
	if logger == nil {
		logger = zap.NewNop()
	}

	svc := &PolicyService{
		store:    store,
		defaults: defaults.Normalized(),
		logger:   logger,
	}
	snapshot := svc.defaults
	svc.current.Store(&snapshot)
	return svc
}

// Current returns the active policy snapshot.
func (s *PolicyService) Current() domain.PolicyConfig {
	return *s.current.Load()
}

// Reload fetches the stored record and swaps the active snapshot. A missing
// record falls back to the defaults; that is not an error.
func (s *PolicyService) Reload(ctx context.Context) (domain.PolicyConfig, error) {
	if s.store == nil {
		return s.Current(), nil
	}

	stored, err := s.store.Get(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			snapshot := s.defaults
			s.current.Store(&snapshot)
			s.logger.Info("no stored policy configuration, using defaults")
			return snapshot, nil
		}
		return domain.PolicyConfig{}, fmt.Errorf("load policy configuration: %w", err)
	}

	snapshot := stored.Normalized()
	s.current.Store(&snapshot)
	s.logger.Info("policy configuration reloaded",
		zap.Duration("token_lifetime", snapshot.TokenLifetime),
		zap.Int("max_failed_attempts", snapshot.MaxFailedAttempts),
	)
	return snapshot, nil
}

// Update persists a new configuration and makes it active immediately.
// Subsequent operations observe the new values without a restart.
func (s *PolicyService) Update(ctx context.Context, cfg domain.PolicyConfig) (domain.PolicyConfig, error) {
	normalized := cfg.Normalized()

	if s.store != nil {
		if err := s.store.Upsert(ctx, normalized); err != nil {
			return domain.PolicyConfig{}, fmt.Errorf("persist policy configuration: %w", err)
		}
	}

	s.current.Store(&normalized)
	s.logger.Info("policy configuration updated",
		zap.Duration("token_lifetime", normalized.TokenLifetime),
		zap.Int("max_failed_attempts", normalized.MaxFailedAttempts),
	)
	return normalized, nil
}
