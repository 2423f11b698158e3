// Package repository persists the operator-tunable runtime settings.
package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type Settings struct {
	StaleHours    int
	StalledHours  int
	RetentionDays int
}

// Get returns the single settings row, which migrations seed.
func (r *Repository) Get(ctx context.Context) (Settings, error) {
	var s Settings
	err := r.pool.QueryRow(ctx, `
		SELECT stale_hours, stalled_hours, retention_days
		FROM runtime_settings WHERE id = 1
	`).Scan(&s.StaleHours, &s.StalledHours, &s.RetentionDays)
	return s, err
}

// Update overwrites the settings row.
func (r *Repository) Update(ctx context.Context, s Settings) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE runtime_settings
		SET stale_hours = $1, stalled_hours = $2, retention_days = $3, updated_at = now()
		WHERE id = 1
	`, s.StaleHours, s.StalledHours, s.RetentionDays)
	return err
}
