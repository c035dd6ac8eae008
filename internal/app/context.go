package app

import (
	"context"
	"errors"
	"fmt"

	"agencyline/internal/config"
	"agencyline/internal/repo"
)

// DefaultAgencyID names the agency seeded when nothing is configured.
const DefaultAgencyID = "agency"

// ResolveConfig returns the agency config stored in the database. When none is
// stored yet it seeds one from the workspace agencyline.yml, or from the
// built-in default when that file is absent.
func ResolveConfig(ctx context.Context, workspace string, r repo.Repo) (*config.Config, error) {
	cfg, err := r.GetAgencyConfig(ctx)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	seed, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", config.Path(workspace), err)
	}
	if seed == nil {
		seed = config.Default(DefaultAgencyID)
	}
	if err := r.UpsertAgencyConfig(ctx, nil, seed); err != nil {
		return nil, fmt.Errorf("seed agency config: %w", err)
	}
	return seed, nil
}
