package store

import (
	"context"
	"fmt"

	"github.com/Priya8975/trackflow/internal/domain"
)

func (s *PostgresStore) CreateCampaign(ctx context.Context, req domain.CreateCampaignRequest) (*domain.Campaign, error) {
	var c domain.Campaign
	err := s.pool.QueryRow(ctx, `
		INSERT INTO campaigns (name, cost)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET cost = EXCLUDED.cost
		RETURNING id, name, cost::float8, created_at
	`, req.Name, req.Cost).Scan(&c.ID, &c.Name, &c.Cost, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting campaign: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) ListCampaigns(ctx context.Context) ([]domain.Campaign, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, cost::float8, created_at FROM campaigns ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("querying campaigns: %w", err)
	}
	defer rows.Close()

	campaigns := []domain.Campaign{}
	for rows.Next() {
		var c domain.Campaign
		if err := rows.Scan(&c.ID, &c.Name, &c.Cost, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning campaign: %w", err)
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

// CampaignReport aggregates link traffic, attributed conversions and cost
// per campaign. Campaigns only known from links or credits are included with
// zero cost. Rates are left for the caller to derive.
func (s *PostgresStore) CampaignReport(ctx context.Context) ([]domain.CampaignStats, error) {
	rows, err := s.pool.Query(ctx, `
		WITH names AS (
			SELECT name FROM campaigns
			UNION SELECT campaign FROM tracked_links WHERE campaign <> ''
			UNION SELECT campaign FROM conversion_credits WHERE campaign <> ''
		),
		traffic AS (
			SELECT campaign, SUM(click_count) AS clicks, SUM(unique_visitors) AS visitors
			FROM tracked_links GROUP BY campaign
		),
		attributed AS (
			SELECT campaign, COUNT(DISTINCT conversion_id) AS conversions, SUM(value) AS revenue
			FROM conversion_credits GROUP BY campaign
		)
		SELECT n.name,
			COALESCE(t.clicks, 0)::int,
			COALESCE(t.visitors, 0)::int,
			COALESCE(a.conversions, 0)::int,
			COALESCE(a.revenue, 0)::float8,
			COALESCE(c.cost, 0)::float8
		FROM names n
		LEFT JOIN traffic t ON t.campaign = n.name
		LEFT JOIN attributed a ON a.campaign = n.name
		LEFT JOIN campaigns c ON c.name = n.name
		ORDER BY 5 DESC, n.name
	`)
	if err != nil {
		return nil, fmt.Errorf("querying campaign report: %w", err)
	}
	defer rows.Close()

	stats := []domain.CampaignStats{}
	for rows.Next() {
		var cs domain.CampaignStats
		err := rows.Scan(&cs.Campaign, &cs.Clicks, &cs.UniqueVisitors, &cs.Conversions,
			&cs.AttributedRevenue, &cs.Cost)
		if err != nil {
			return nil, fmt.Errorf("scanning campaign stats: %w", err)
		}
		stats = append(stats, cs)
	}
	return stats, rows.Err()
}
