package store

import (
	"context"
	"fmt"
)

// TrackingMetrics holds aggregated tracking statistics.
type TrackingMetrics struct {
	TotalVisitors     int     `json:"total_visitors"`
	ConvertedVisitors int     `json:"converted_visitors"`
	TotalSessions     int     `json:"total_sessions"`
	TotalEvents       int     `json:"total_events"`
	PageViews         int     `json:"page_views"`
	TotalConversions  int     `json:"total_conversions"`
	ConversionRate    float64 `json:"conversion_rate"`
	TotalRevenue      float64 `json:"total_revenue"`
	ActiveLinks       int     `json:"active_links"`
	LinkClicks        int     `json:"link_clicks"`
	QueueDepth        int64   `json:"queue_depth"`
	LiveClients       int     `json:"live_clients"`
}

// GetTrackingMetrics returns aggregated tracking statistics from the
// database. Queue depth and live clients are filled in by the caller.
func (s *PostgresStore) GetTrackingMetrics(ctx context.Context) (*TrackingMetrics, error) {
	var m TrackingMetrics

	// Visitors
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE has_converted)
		FROM visitors
	`).Scan(&m.TotalVisitors, &m.ConvertedVisitors)
	if err != nil {
		return nil, fmt.Errorf("querying visitor metrics: %w", err)
	}

	if m.TotalVisitors > 0 {
		m.ConversionRate = float64(m.ConvertedVisitors) / float64(m.TotalVisitors) * 100
	}

	err = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM visitor_sessions`).Scan(&m.TotalSessions)
	if err != nil {
		return nil, fmt.Errorf("querying session count: %w", err)
	}

	// Events
	err = s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE event_type = 'page_view')
		FROM visitor_events
	`).Scan(&m.TotalEvents, &m.PageViews)
	if err != nil {
		return nil, fmt.Errorf("querying event metrics: %w", err)
	}

	// Conversions
	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(value), 0)::float8 FROM conversions
	`).Scan(&m.TotalConversions, &m.TotalRevenue)
	if err != nil {
		return nil, fmt.Errorf("querying conversion metrics: %w", err)
	}

	// Links
	err = s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'Active' AND (expires_at IS NULL OR expires_at > NOW())),
			COALESCE(SUM(click_count), 0)::int
		FROM tracked_links
	`).Scan(&m.ActiveLinks, &m.LinkClicks)
	if err != nil {
		return nil, fmt.Errorf("querying link metrics: %w", err)
	}

	return &m, nil
}
