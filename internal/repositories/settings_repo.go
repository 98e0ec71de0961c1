package repositories

import (
	"context"
	"fmt"

	"github.com/BradenHooton/bastion/internal/database"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SettingsRepository reads and writes hardening toggles in feature_settings
type SettingsRepository struct {
	pool *pgxpool.Pool
}

func NewSettingsRepository(db *database.DB) *SettingsRepository {
	return &SettingsRepository{pool: db.Pool}
}

// List returns every stored toggle
func (r *SettingsRepository) List(ctx context.Context) ([]models.FeatureSetting, error) {
	query := `SELECT name, enabled, updated_at FROM feature_settings ORDER BY name`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	settings, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.FeatureSetting])
	if err != nil {
		return nil, fmt.Errorf("failed to scan feature settings: %w", err)
	}
	return settings, nil
}

// Set upserts one toggle
func (r *SettingsRepository) Set(ctx context.Context, name string, enabled bool) error {
	query := `
		INSERT INTO feature_settings (name, enabled, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET enabled = EXCLUDED.enabled, updated_at = NOW()
	`

	if _, err := r.pool.Exec(ctx, query, name, enabled); err != nil {
		return database.MapPostgresError(err)
	}
	return nil
}
