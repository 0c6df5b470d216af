package tenant

import (
	"context"
	"fmt"

	"github.com/savaki/jonbot/pkg/models"
)

// Resolver maps a team id to the platform access token to use for it.
// It reads the store on every call.
type Resolver struct {
	store    Store
	fallback string
	strict   bool
}

// NewResolver creates a resolver. In strict mode the fallback token is never
// used; otherwise it is used only for requests that carry no team id.
func NewResolver(store Store, fallback string, strict bool) *Resolver {
	return &Resolver{
		store:    store,
		fallback: fallback,
		strict:   strict,
	}
}

// ResolveToken returns the access token for teamID
func (r *Resolver) ResolveToken(ctx context.Context, teamID string) (string, error) {
	if teamID == "" {
		if !r.strict && r.fallback != "" {
			return r.fallback, nil
		}
		return "", fmt.Errorf("no team id on request: %w", models.ErrMissingTenant)
	}

	cfg, err := Load(ctx, r.store, teamID)
	if err != nil {
		return "", fmt.Errorf("load tenant config: %w", err)
	}
	if cfg.PlatformAccessToken == "" {
		return "", fmt.Errorf("team %s has no access token: %w", teamID, models.ErrMissingTenant)
	}
	return cfg.PlatformAccessToken, nil
}
