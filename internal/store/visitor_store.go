package store

import (
	"context"
	"fmt"

	"github.com/Priya8975/trackflow/internal/domain"
	"github.com/jackc/pgx/v5"
)

// upsertVisitor records activity for a visitor, creating the row on first
// sight. The latest non-empty source, medium and campaign win.
func upsertVisitor(ctx context.Context, q querier, t domain.VisitorTouch) error {
	pageViews := 0
	if t.IsPageView {
		pageViews = 1
	}

	_, err := q.Exec(ctx, `
		INSERT INTO visitors (id, first_seen, last_seen, source, medium, campaign, ip_address, user_agent, page_views)
		VALUES ($1, $2, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			last_seen  = GREATEST(visitors.last_seen, EXCLUDED.last_seen),
			source     = COALESCE(NULLIF(EXCLUDED.source, ''), visitors.source),
			medium     = COALESCE(NULLIF(EXCLUDED.medium, ''), visitors.medium),
			campaign   = COALESCE(NULLIF(EXCLUDED.campaign, ''), visitors.campaign),
			ip_address = COALESCE(NULLIF(EXCLUDED.ip_address, ''), visitors.ip_address),
			user_agent = COALESCE(NULLIF(EXCLUDED.user_agent, ''), visitors.user_agent),
			page_views = visitors.page_views + EXCLUDED.page_views
	`, t.VisitorID, t.At, t.UTM["utm_source"], t.UTM["utm_medium"], t.UTM["utm_campaign"],
		t.IPAddress, t.UserAgent, pageViews)
	if err != nil {
		return fmt.Errorf("upserting visitor: %w", err)
	}
	return nil
}

// upsertSession records activity for a session. Landing page, referrer,
// device and UTM fields are set only when the session is first seen.
func upsertSession(ctx context.Context, q querier, t domain.VisitorTouch) error {
	if t.SessionID == "" {
		return nil
	}
	pageViews := 0
	if t.IsPageView {
		pageViews = 1
	}

	_, err := q.Exec(ctx, `
		INSERT INTO visitor_sessions (id, visitor_id, started_at, last_activity, landing_page, referrer,
			device_type, utm_source, utm_medium, utm_campaign, page_views, event_count)
		VALUES ($1, $2, $3, $3, $4, $5, $6, $7, $8, $9, $10, 1)
		ON CONFLICT (id) DO UPDATE SET
			last_activity = GREATEST(visitor_sessions.last_activity, EXCLUDED.last_activity),
			page_views    = visitor_sessions.page_views + EXCLUDED.page_views,
			event_count   = visitor_sessions.event_count + 1
	`, t.SessionID, t.VisitorID, t.At, t.URL, t.Referrer, domain.DeviceType(t.UserAgent),
		t.UTM["utm_source"], t.UTM["utm_medium"], t.UTM["utm_campaign"], pageViews)
	if err != nil {
		return fmt.Errorf("upserting session: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetVisitor(ctx context.Context, id string) (*domain.Visitor, error) {
	var v domain.Visitor
	err := s.pool.QueryRow(ctx, `
		SELECT id, first_seen, last_seen, source, medium, campaign, ip_address, user_agent,
			page_views, has_converted, conversion_count, last_conversion_at
		FROM visitors WHERE id = $1
	`, id).Scan(
		&v.ID, &v.FirstSeen, &v.LastSeen, &v.Source, &v.Medium, &v.Campaign, &v.IPAddress,
		&v.UserAgent, &v.PageViews, &v.HasConverted, &v.ConversionCount, &v.LastConversion,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying visitor: %w", err)
	}
	return &v, nil
}

// ListSessions returns a visitor's sessions, newest first.
func (s *PostgresStore) ListSessions(ctx context.Context, visitorID string) ([]domain.Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, visitor_id, started_at, last_activity, landing_page, referrer, device_type,
			utm_source, utm_medium, utm_campaign, page_views, event_count
		FROM visitor_sessions WHERE visitor_id = $1
		ORDER BY started_at DESC
	`, visitorID)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	sessions := []domain.Session{}
	for rows.Next() {
		var ss domain.Session
		err := rows.Scan(&ss.ID, &ss.VisitorID, &ss.StartedAt, &ss.LastActivity, &ss.LandingPage,
			&ss.Referrer, &ss.DeviceType, &ss.UTMSource, &ss.UTMMedium, &ss.UTMCampaign,
			&ss.PageViews, &ss.EventCount)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, ss)
	}
	return sessions, rows.Err()
}
