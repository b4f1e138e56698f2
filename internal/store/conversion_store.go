package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Priya8975/trackflow/internal/domain"
	"github.com/jackc/pgx/v5"
)

// CreateConversion stores a conversion with its per-touchpoint credits and
// marks the visitor as converted, all in one transaction. A preset c.ID makes
// the write idempotent: if that conversion already exists nothing changes and
// it reports false. ID and CreatedAt are filled in on success.
func (s *PostgresStore) CreateConversion(ctx context.Context, c *domain.Conversion) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO conversions (id, visitor_id, conversion_type, value, model, occurred_at)
		VALUES (COALESCE(NULLIF($1::text, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
		RETURNING id, created_at
	`, c.ID, c.VisitorID, c.ConversionType, c.Value, c.Model, c.OccurredAt).Scan(&c.ID, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("inserting conversion: %w", err)
	}

	for _, cr := range c.Credits {
		_, err := tx.Exec(ctx, `
			INSERT INTO conversion_credits (conversion_id, event_id, source, medium, campaign, credit, value, touched_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, c.ID, cr.EventID, cr.Source, cr.Medium, cr.Campaign, cr.Credit, cr.Value, cr.TouchedAt)
		if err != nil {
			return false, fmt.Errorf("inserting conversion credit: %w", err)
		}
	}

	_, err = tx.Exec(ctx, `
		UPDATE visitors
		SET has_converted = true,
			conversion_count = conversion_count + 1,
			last_conversion_at = GREATEST(COALESCE(last_conversion_at, $2), $2)
		WHERE id = $1
	`, c.VisitorID, c.OccurredAt)
	if err != nil {
		return false, fmt.Errorf("updating visitor conversion: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("committing conversion: %w", err)
	}
	return true, nil
}

// ListConversions returns conversions newest first, with credits attached.
// An empty visitorID lists all visitors.
func (s *PostgresStore) ListConversions(ctx context.Context, visitorID string, limit int) ([]domain.Conversion, error) {
	query := `SELECT id, visitor_id, conversion_type, value::float8, model, occurred_at, created_at FROM conversions`
	args := []interface{}{}
	argIdx := 1

	if visitorID != "" {
		query += fmt.Sprintf(" WHERE visitor_id = $%d", argIdx)
		args = append(args, visitorID)
		argIdx++
	}
	query += " ORDER BY occurred_at DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying conversions: %w", err)
	}
	defer rows.Close()

	conversions := []domain.Conversion{}
	index := make(map[string]int)
	for rows.Next() {
		var c domain.Conversion
		err := rows.Scan(&c.ID, &c.VisitorID, &c.ConversionType, &c.Value, &c.Model, &c.OccurredAt, &c.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning conversion: %w", err)
		}
		c.Credits = []domain.ConversionCredit{}
		index[c.ID] = len(conversions)
		conversions = append(conversions, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversions: %w", err)
	}
	if len(conversions) == 0 {
		return conversions, nil
	}

	ids := make([]string, 0, len(conversions))
	for _, c := range conversions {
		ids = append(ids, c.ID)
	}

	creditRows, err := s.pool.Query(ctx, `
		SELECT conversion_id, event_id, source, medium, campaign, credit::float8, value::float8, touched_at
		FROM conversion_credits
		WHERE conversion_id = ANY($1::uuid[])
		ORDER BY touched_at ASC
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("querying conversion credits: %w", err)
	}
	defer creditRows.Close()

	for creditRows.Next() {
		var conversionID string
		var cr domain.ConversionCredit
		err := creditRows.Scan(&conversionID, &cr.EventID, &cr.Source, &cr.Medium, &cr.Campaign,
			&cr.Credit, &cr.Value, &cr.TouchedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning conversion credit: %w", err)
		}
		if i, ok := index[conversionID]; ok {
			conversions[i].Credits = append(conversions[i].Credits, cr)
		}
	}
	return conversions, creditRows.Err()
}
