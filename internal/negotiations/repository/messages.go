package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"concierge_backend/internal/negotiations/domain"
)

// InsertMessage appends a message to a negotiation thread. A dedup token
// that already exists for the negotiation makes the insert a no-op and
// returns ErrDuplicateMessage so webhook retries stay idempotent.
func (r *Repository) InsertMessage(ctx context.Context, msg domain.Message) (domain.Message, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO negotiation_messages (negotiation_id, role, direction, body, intent, proposed_time, dedup_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (negotiation_id, dedup_token) DO NOTHING
		RETURNING id, negotiation_id, role, direction, body, intent, proposed_time, dedup_token, created_at
	`,
		msg.NegotiationID, msg.Role, msg.Direction, msg.Body, msg.Intent, msg.ProposedTime, msg.DedupToken,
	)
	var out domain.Message
	err := row.Scan(
		&out.ID, &out.NegotiationID, &out.Role, &out.Direction,
		&out.Body, &out.Intent, &out.ProposedTime, &out.DedupToken, &out.CreatedAt,
	)
	if err != nil {
		// ON CONFLICT DO NOTHING returns no row for a duplicate.
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Message{}, ErrDuplicateMessage
		}
		return domain.Message{}, err
	}
	return out, nil
}

// ListMessages returns a negotiation's messages oldest first, optionally
// filtered to one thread.
func (r *Repository) ListMessages(ctx context.Context, negotiationID uuid.UUID, role *domain.ThreadRole) ([]domain.Message, error) {
	query := `
		SELECT id, negotiation_id, role, direction, body, intent, proposed_time, dedup_token, created_at
		FROM negotiation_messages
		WHERE negotiation_id = $1`
	args := []any{negotiationID}
	if role != nil {
		query += ` AND role = $2`
		args = append(args, *role)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Message, 0)
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(
			&m.ID, &m.NegotiationID, &m.Role, &m.Direction,
			&m.Body, &m.Intent, &m.ProposedTime, &m.DedupToken, &m.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

// RecentThreadMessages returns the newest messages on one thread, newest
// first, capped at limit. The drafting agent uses this as context.
func (r *Repository) RecentThreadMessages(ctx context.Context, negotiationID uuid.UUID, role domain.ThreadRole, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, negotiation_id, role, direction, body, intent, proposed_time, dedup_token, created_at
		FROM negotiation_messages
		WHERE negotiation_id = $1 AND role = $2
		ORDER BY created_at DESC
		LIMIT $3
	`, negotiationID, role, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Message, 0, limit)
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(
			&m.ID, &m.NegotiationID, &m.Role, &m.Direction,
			&m.Body, &m.Intent, &m.ProposedTime, &m.DedupToken, &m.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}
