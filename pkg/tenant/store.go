// Package tenant holds per-team configuration storage and credential resolution.
package tenant

import (
	"context"
	"fmt"

	"github.com/samber/mo"

	"github.com/savaki/jonbot/pkg/models"
)

// Store persists one TenantConfig per team. Get returns mo.None when the
// team has never been configured.
type Store interface {
	Get(ctx context.Context, teamID string) (mo.Option[models.TenantConfig], error)
	Put(ctx context.Context, teamID string, cfg models.TenantConfig) error
}

// Load returns the team's config, or the zero config when none is stored
func Load(ctx context.Context, store Store, teamID string) (models.TenantConfig, error) {
	maybeCfg, err := store.Get(ctx, teamID)
	if err != nil {
		return models.TenantConfig{}, err
	}
	return maybeCfg.OrEmpty(), nil
}

// Update applies fn to the stored config and writes it back. Concurrent
// updates for the same team are not coordinated; the last write wins.
func Update(ctx context.Context, store Store, teamID string, fn func(cfg *models.TenantConfig)) (models.TenantConfig, error) {
	cfg, err := Load(ctx, store, teamID)
	if err != nil {
		return models.TenantConfig{}, fmt.Errorf("load tenant config: %w", err)
	}
	fn(&cfg)
	if err := store.Put(ctx, teamID, cfg); err != nil {
		return models.TenantConfig{}, fmt.Errorf("save tenant config: %w", err)
	}
	return cfg, nil
}
