package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Priya8975/trackflow/internal/attribution"
	"github.com/Priya8975/trackflow/internal/domain"
)

const eventColumns = `id, visitor_id, session_id, event_type, payload, url, referrer,
	source, medium, campaign, time_on_page, occurred_at, created_at`

// IngestEvent stores one tracked event together with the visitor and session
// activity it records, in one transaction. When an event with the same id is
// already stored nothing changes and it reports false, so replaying a job
// neither duplicates the event nor bumps the counters again. An empty e.ID
// gets a generated id.
func (s *PostgresStore) IngestEvent(ctx context.Context, t domain.VisitorTouch, e *domain.Event) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := upsertVisitor(ctx, tx, t); err != nil {
		return false, err
	}
	if err := upsertSession(ctx, tx, t); err != nil {
		return false, err
	}

	inserted, err := insertEvent(ctx, tx, e)
	if err != nil || !inserted {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("committing event: %w", err)
	}
	return true, nil
}

func insertEvent(ctx context.Context, q querier, e *domain.Event) (bool, error) {
	err := q.QueryRow(ctx, `
		INSERT INTO visitor_events (id, visitor_id, session_id, event_type, payload, url, referrer,
			source, medium, campaign, time_on_page, occurred_at)
		VALUES (COALESCE(NULLIF($1::text, '')::uuid, gen_random_uuid()),
			$2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
		RETURNING id, created_at
	`, e.ID, e.VisitorID, e.SessionID, string(e.EventType), e.Payload, e.URL, e.Referrer,
		e.Source, e.Medium, e.Campaign, e.TimeOnPage, e.OccurredAt,
	).Scan(&e.ID, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("inserting event: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) ListEvents(ctx context.Context, f domain.EventFilter) ([]domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM visitor_events WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if f.EventType != "" {
		query += fmt.Sprintf(" AND event_type = $%d", argIdx)
		args = append(args, string(f.EventType))
		argIdx++
	}
	if f.VisitorID != "" {
		query += fmt.Sprintf(" AND visitor_id = $%d", argIdx)
		args = append(args, f.VisitorID)
		argIdx++
	}

	query += " ORDER BY occurred_at DESC"

	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, f.Limit)
	}

	return s.queryEvents(ctx, query, args...)
}

// VisitorJourney returns a visitor's events since the given time in the
// order they happened.
func (s *PostgresStore) VisitorJourney(ctx context.Context, visitorID string, since time.Time) ([]domain.Event, error) {
	return s.queryEvents(ctx, `
		SELECT `+eventColumns+`
		FROM visitor_events
		WHERE visitor_id = $1 AND occurred_at >= $2
		ORDER BY occurred_at ASC
	`, visitorID, since)
}

func (s *PostgresStore) queryEvents(ctx context.Context, query string, args ...interface{}) ([]domain.Event, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	events := []domain.Event{}
	for rows.Next() {
		var e domain.Event
		var eventType string
		err := rows.Scan(&e.ID, &e.VisitorID, &e.SessionID, &eventType, &e.Payload, &e.URL,
			&e.Referrer, &e.Source, &e.Medium, &e.Campaign, &e.TimeOnPage, &e.OccurredAt, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		e.EventType = domain.EventType(eventType)
		events = append(events, e)
	}
	return events, rows.Err()
}

// ConversionPaths reduces recent visitor journeys to the ordered channels
// they touched and whether the visitor converted. It feeds the data-driven
// attribution model.
func (s *PostgresStore) ConversionPaths(ctx context.Context, since time.Time, limit int) ([]attribution.Path, error) {
	rows, err := s.pool.Query(ctx, `
		WITH recent AS (
			SELECT id, has_converted FROM visitors
			WHERE last_seen >= $1
			ORDER BY last_seen DESC
			LIMIT $2
		)
		SELECT e.visitor_id, e.source, e.medium, r.has_converted
		FROM visitor_events e
		JOIN recent r ON r.id = e.visitor_id
		WHERE e.occurred_at >= $1 AND e.event_type = ANY($3)
		ORDER BY e.visitor_id, e.occurred_at
	`, since, limit, domain.TouchTypes())
	if err != nil {
		return nil, fmt.Errorf("querying conversion paths: %w", err)
	}
	defer rows.Close()

	var paths []attribution.Path
	current := ""
	for rows.Next() {
		var visitorID, source, medium string
		var converted bool
		if err := rows.Scan(&visitorID, &source, &medium, &converted); err != nil {
			return nil, fmt.Errorf("scanning conversion path: %w", err)
		}
		if visitorID != current || len(paths) == 0 {
			paths = append(paths, attribution.Path{Converted: converted})
			current = visitorID
		}
		ch := attribution.Touchpoint{Source: source, Medium: medium}.Channel()
		p := &paths[len(paths)-1]
		p.Channels = append(p.Channels, ch)
	}
	return paths, rows.Err()
}
