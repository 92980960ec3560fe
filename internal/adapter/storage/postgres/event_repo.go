package postgres

import (
	"context"
	"fmt"

	"token-sale-engine/internal/core/domain"
	"token-sale-engine/internal/core/ports"

	"github.com/jackc/pgx/v5"
)

// EventRepo implements ports.EventRepository. Events are written in the same
// transaction as the operation they record.
type EventRepo struct {
	pool Pool
}

// NewEventRepo creates a new EventRepo.
func NewEventRepo(pool Pool) *EventRepo {
	return &EventRepo{pool: pool}
}

// Create appends an event within a transaction.
func (r *EventRepo) Create(ctx context.Context, tx pgx.Tx, e *domain.Event) error {
	query := `INSERT INTO events (id, kind, actor, round_id, amount, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := tx.Exec(ctx, query,
		e.ID, e.Kind, e.Actor, e.RoundID, e.Amount, e.Details, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// List returns events newest-first, filtered and paginated.
func (r *EventRepo) List(ctx context.Context, params ports.EventListParams) ([]domain.Event, error) {
	query := `SELECT id, kind, actor, round_id, amount, details, created_at FROM events`
	args := []any{}
	argPos := 1
	where := ""

	addFilter := func(clause string, value any) {
		if where == "" {
			where = " WHERE "
		} else {
			where += " AND "
		}
		where += fmt.Sprintf(clause, argPos)
		args = append(args, value)
		argPos++
	}

	if params.Kind != nil {
		addFilter("kind = $%d", *params.Kind)
	}
	if params.Actor != nil {
		addFilter("actor = $%d", *params.Actor)
	}
	if params.RoundID != nil {
		addFilter("round_id = $%d", *params.RoundID)
	}

	offset := (params.Page - 1) * params.PageSize
	query += where + fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.Kind, &e.Actor, &e.RoundID, &e.Amount, &e.Details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
