package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"agencyline/internal/config"
)

const agencyConfigRow = "default"

// UpsertAgencyConfig validates and stores the agency config.
func (r Repo) UpsertAgencyConfig(ctx context.Context, tx *sql.Tx, cfg *config.Config) error {
	if cfg == nil {
		return errors.New("config nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := nowString()
	_, err = r.q(tx).ExecContext(ctx, `INSERT INTO agency_configs(id,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, agencyConfigRow, string(payload), now, now)
	return err
}

func (r Repo) GetAgencyConfig(ctx context.Context) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM agency_configs WHERE id=?`, agencyConfigRow).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("agency config %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, fmt.Errorf("decode agency config: %w", err)
	}
	return &cfg, cfg.Validate()
}
