// Package repository provides Postgres persistence for the provider
// directory.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("provider not found")

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type Provider struct {
	ID        uuid.UUID
	Name      string
	Email     string
	Phone     *string
	Specialty *string
	Timezone  string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type CreateProviderParams struct {
	Name      string
	Email     string
	Phone     *string
	Specialty *string
	Timezone  string
}

func (r *Repository) Create(ctx context.Context, params CreateProviderParams) (Provider, error) {
	var p Provider
	err := r.pool.QueryRow(ctx, `
		INSERT INTO providers (name, email, phone, specialty, timezone)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, name, email, phone, specialty, timezone, is_active, created_at, updated_at
	`, params.Name, params.Email, params.Phone, params.Specialty, params.Timezone).Scan(
		&p.ID, &p.Name, &p.Email, &p.Phone, &p.Specialty, &p.Timezone, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Provider, error) {
	var p Provider
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, email, phone, specialty, timezone, is_active, created_at, updated_at
		FROM providers WHERE id = $1
	`, id).Scan(
		&p.ID, &p.Name, &p.Email, &p.Phone, &p.Specialty, &p.Timezone, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Provider{}, ErrNotFound
	}
	return p, err
}

func (r *Repository) List(ctx context.Context, activeOnly bool) ([]Provider, error) {
	query := `
		SELECT id, name, email, phone, specialty, timezone, is_active, created_at, updated_at
		FROM providers`
	if activeOnly {
		query += ` WHERE is_active = true`
	}
	query += ` ORDER BY name ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Provider, 0)
	for rows.Next() {
		var p Provider
		if err := rows.Scan(
			&p.ID, &p.Name, &p.Email, &p.Phone, &p.Specialty, &p.Timezone, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

type UpdateProviderParams struct {
	Name      *string
	Email     *string
	Phone     *string
	Specialty *string
	Timezone  *string
	IsActive  *bool
}

func (r *Repository) Update(ctx context.Context, id uuid.UUID, params UpdateProviderParams) (Provider, error) {
	var p Provider
	err := r.pool.QueryRow(ctx, `
		UPDATE providers SET
			name = COALESCE($2, name),
			email = COALESCE($3, email),
			phone = COALESCE($4, phone),
			specialty = COALESCE($5, specialty),
			timezone = COALESCE($6, timezone),
			is_active = COALESCE($7, is_active),
			updated_at = now()
		WHERE id = $1
		RETURNING id, name, email, phone, specialty, timezone, is_active, created_at, updated_at
	`, id, params.Name, params.Email, params.Phone, params.Specialty, params.Timezone, params.IsActive).Scan(
		&p.ID, &p.Name, &p.Email, &p.Phone, &p.Specialty, &p.Timezone, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Provider{}, ErrNotFound
	}
	return p, err
}

func (r *Repository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM providers WHERE id = $1 AND is_active = true)
	`, id).Scan(&exists)
	return exists, err
}
