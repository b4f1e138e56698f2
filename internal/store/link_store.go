package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Priya8975/trackflow/internal/domain"
	"github.com/jackc/pgx/v5"
)

var ErrLinkNotFound = errors.New("link not found")

const linkColumns = `id, short_code, name, target_url, campaign, utm, status, expires_at,
	click_count, unique_visitors, last_clicked_at, created_at`

func (s *PostgresStore) CreateLink(ctx context.Context, shortCode string, req domain.CreateLinkRequest) (*domain.TrackedLink, error) {
	utm, err := json.Marshal(nonNilUTM(req.UTM))
	if err != nil {
		return nil, fmt.Errorf("encoding utm: %w", err)
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO tracked_links (short_code, name, target_url, campaign, utm, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+linkColumns,
		shortCode, req.Name, req.TargetURL, req.Campaign, utm, req.ExpiresAt,
	)
	link, err := scanLink(row)
	if err != nil {
		return nil, fmt.Errorf("inserting link: %w", err)
	}
	return link, nil
}

// ShortCodeExists reports whether a link already uses code.
func (s *PostgresStore) ShortCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM tracked_links WHERE short_code = $1)", code,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking short code: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) GetLinkByCode(ctx context.Context, code string) (*domain.TrackedLink, error) {
	link, err := scanLink(s.pool.QueryRow(ctx,
		`SELECT `+linkColumns+` FROM tracked_links WHERE short_code = $1`, code))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying link: %w", err)
	}
	return link, nil
}

func (s *PostgresStore) ListLinks(ctx context.Context, campaign string) ([]domain.TrackedLink, error) {
	query := `SELECT ` + linkColumns + ` FROM tracked_links`
	args := []interface{}{}
	if campaign != "" {
		query += " WHERE campaign = $1"
		args = append(args, campaign)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying links: %w", err)
	}
	defer rows.Close()

	links := []domain.TrackedLink{}
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning link: %w", err)
		}
		links = append(links, *link)
	}
	return links, rows.Err()
}

// SetLinkStatus updates the stored status of a link. It returns nil when no
// link uses code.
func (s *PostgresStore) SetLinkStatus(ctx context.Context, code, status string) (*domain.TrackedLink, error) {
	link, err := scanLink(s.pool.QueryRow(ctx,
		`UPDATE tracked_links SET status = $2 WHERE short_code = $1 RETURNING `+linkColumns,
		code, status))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("updating link status: %w", err)
	}
	return link, nil
}

// RecordClick stores a click and bumps the link counters in one transaction.
// The unique visitor count only grows on a visitor's first click.
func (s *PostgresStore) RecordClick(ctx context.Context, c domain.LinkClick) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	firstClick := false
	if c.VisitorID != "" {
		var seen bool
		err = tx.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM link_clicks WHERE link_id = $1 AND visitor_id = $2)",
			c.LinkID, c.VisitorID,
		).Scan(&seen)
		if err != nil {
			return fmt.Errorf("checking previous clicks: %w", err)
		}
		firstClick = !seen
	}

	unique := 0
	if firstClick {
		unique = 1
	}
	tag, err := tx.Exec(ctx, `
		UPDATE tracked_links
		SET click_count = click_count + 1,
			unique_visitors = unique_visitors + $2,
			last_clicked_at = $3
		WHERE id = $1
	`, c.LinkID, unique, c.ClickedAt)
	if err != nil {
		return fmt.Errorf("updating link counters: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLinkNotFound
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO link_clicks (link_id, visitor_id, ip_address, user_agent, referrer, browser, device, clicked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, c.LinkID, c.VisitorID, c.IPAddress, c.UserAgent, c.Referrer, c.Browser, c.Device, c.ClickedAt)
	if err != nil {
		return fmt.Errorf("inserting click: %w", err)
	}

	return tx.Commit(ctx)
}

func scanLink(row pgx.Row) (*domain.TrackedLink, error) {
	var l domain.TrackedLink
	var utm []byte
	err := row.Scan(&l.ID, &l.ShortCode, &l.Name, &l.TargetURL, &l.Campaign, &utm, &l.Status,
		&l.ExpiresAt, &l.ClickCount, &l.UniqueVisitors, &l.LastClickedAt, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(utm) > 0 {
		if err := json.Unmarshal(utm, &l.UTM); err != nil {
			return nil, fmt.Errorf("decoding utm: %w", err)
		}
	}
	return &l, nil
}

func nonNilUTM(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
