// Package repository provides Postgres persistence for negotiations and
// their message threads.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"concierge_backend/internal/negotiations/domain"
)

var (
	ErrNotFound         = errors.New("negotiation not found")
	ErrDuplicateMessage = errors.New("duplicate message")
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const negotiationColumns = `
	id, provider_id, client_name, client_phone, client_email,
	stage, progress_percent, health_status, is_stale, is_stalled, stalled_from,
	has_thread_divergence, has_tool_failure, needs_attention, attention_reason,
	human_controlled, controlled_by, control_taken_at,
	last_client_proposal, last_provider_proposal,
	appointment_text, confirmed_instant, confirmed_at, meeting_link,
	last_activity_at, created_at, updated_at, deleted_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNegotiation(row rowScanner) (domain.Negotiation, error) {
	var n domain.Negotiation
	err := row.Scan(
		&n.ID, &n.ProviderID, &n.ClientName, &n.ClientPhone, &n.ClientEmail,
		&n.Stage, &n.ProgressPercent, &n.HealthStatus, &n.IsStale, &n.IsStalled, &n.StalledFrom,
		&n.HasThreadDivergence, &n.HasToolFailure, &n.NeedsAttention, &n.AttentionReason,
		&n.HumanControlled, &n.ControlledBy, &n.ControlTakenAt,
		&n.LastClientProposal, &n.LastProviderProposal,
		&n.AppointmentText, &n.ConfirmedInstant, &n.ConfirmedAt, &n.MeetingLink,
		&n.LastActivityAt, &n.CreatedAt, &n.UpdatedAt, &n.DeletedAt,
	)
	return n, err
}

type CreateParams struct {
	ProviderID  uuid.UUID
	ClientName  string
	ClientPhone *string
	ClientEmail *string
}

func (r *Repository) Create(ctx context.Context, params CreateParams) (domain.Negotiation, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO negotiations (provider_id, client_name, client_phone, client_email, stage, progress_percent, health_status, last_activity_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		RETURNING`+negotiationColumns,
		params.ProviderID, params.ClientName, params.ClientPhone, params.ClientEmail,
		domain.StageInitialContact, 0, domain.HealthGreen,
	)
	return scanNegotiation(row)
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (domain.Negotiation, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT`+negotiationColumns+`
		FROM negotiations
		WHERE id = $1 AND deleted_at IS NULL
	`, id)
	n, err := scanNegotiation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Negotiation{}, ErrNotFound
	}
	return n, err
}

type ListFilter struct {
	Stage           *domain.Stage
	HealthStatus    *domain.HealthStatus
	NeedsAttention  *bool
	HumanControlled *bool
	ProviderID      *uuid.UUID
	Limit           int
	Offset          int
}

func (r *Repository) List(ctx context.Context, filter ListFilter) ([]domain.Negotiation, int, error) {
	where := []string{"deleted_at IS NULL"}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.Stage != nil {
		where = append(where, "stage = "+arg(*filter.Stage))
	}
	if filter.HealthStatus != nil {
		where = append(where, "health_status = "+arg(*filter.HealthStatus))
	}
	if filter.NeedsAttention != nil {
		where = append(where, "needs_attention = "+arg(*filter.NeedsAttention))
	}
	if filter.HumanControlled != nil {
		where = append(where, "human_controlled = "+arg(*filter.HumanControlled))
	}
	if filter.ProviderID != nil {
		where = append(where, "provider_id = "+arg(*filter.ProviderID))
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT count(*) FROM negotiations WHERE "+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := "SELECT" + negotiationColumns + " FROM negotiations WHERE " + clause +
		" ORDER BY last_activity_at DESC LIMIT " + arg(limit) + " OFFSET " + arg(filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]domain.Negotiation, 0)
	for rows.Next() {
		n, err := scanNegotiation(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, n)
	}
	if rows.Err() != nil {
		return nil, 0, rows.Err()
	}
	return items, total, nil
}

// Update persists every mutable field of the negotiation. The state machine
// mutates the aggregate in memory under a per-negotiation lock, so a full
// row write is safe and keeps the query list short.
func (r *Repository) Update(ctx context.Context, n domain.Negotiation) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE negotiations SET
			stage = $2, progress_percent = $3, health_status = $4, is_stale = $5, is_stalled = $6,
			has_thread_divergence = $7, has_tool_failure = $8, needs_attention = $9, attention_reason = $10,
			human_controlled = $11, controlled_by = $12, control_taken_at = $13,
			last_client_proposal = $14, last_provider_proposal = $15,
			appointment_text = $16, confirmed_instant = $17, confirmed_at = $18, meeting_link = $19,
			last_activity_at = $20, stalled_from = $21, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`,
		n.ID,
		n.Stage, n.ProgressPercent, n.HealthStatus, n.IsStale, n.IsStalled,
		n.HasThreadDivergence, n.HasToolFailure, n.NeedsAttention, n.AttentionReason,
		n.HumanControlled, n.ControlledBy, n.ControlTakenAt,
		n.LastClientProposal, n.LastProviderProposal,
		n.AppointmentText, n.ConfirmedInstant, n.ConfirmedAt, n.MeetingLink,
		n.LastActivityAt, n.StalledFrom,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE negotiations SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// HardDelete removes the negotiation and its messages permanently.
func (r *Repository) HardDelete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM negotiations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListActive returns every non-deleted negotiation in a stage that health
// monitoring scores. Post-booking and terminal stages are skipped at the
// query level so the sweep stays cheap.
func (r *Repository) ListActive(ctx context.Context) ([]domain.Negotiation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+negotiationColumns+`
		FROM negotiations
		WHERE deleted_at IS NULL
		  AND stage NOT IN ($1, $2, $3, $4)
		ORDER BY last_activity_at ASC
	`, domain.StageSessionHeld, domain.StageFeedbackRequested, domain.StageCompleted, domain.StageCancelled)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Negotiation, 0)
	for rows.Next() {
		n, err := scanNegotiation(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

// PurgeDeletedBefore permanently removes negotiations soft-deleted before
// the cutoff. Messages go with them via the foreign key cascade.
func (r *Repository) PurgeDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM negotiations WHERE deleted_at IS NOT NULL AND deleted_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
