package app

import (
	"context"
	"errors"
	"fmt"

	"planline/internal/config"
	"planline/internal/repo"
)

// ResolveBrandAndConfig picks the active brand and ensures its config exists in
// the DB, seeding defaults if missing. It prefers the override, then the single
// brand in the DB.
func ResolveBrandAndConfig(ctx context.Context, brandOverride string, r repo.Repo) (string, *config.Config, error) {
	brandID := brandOverride
	if brandID == "" {
		b, err := r.SingleBrand(ctx)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return "", nil, fmt.Errorf("no brand exists; create one with pl brand create")
			}
			return "", nil, err
		}
		brandID = b.ID
	}
	b, err := r.GetBrand(ctx, brandID)
	if err != nil {
		return "", nil, err
	}
	cfg, err := r.GetBrandConfig(ctx, brandID)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		cfg = config.Default(brandID, b.Name)
		if err := r.UpsertBrandConfig(ctx, brandID, cfg); err != nil {
			return "", nil, fmt.Errorf("seed brand config: %w", err)
		}
	}
	cfg.Brand.ID = brandID
	return brandID, cfg, nil
}
