package domain

import (
	"time"
)

type Conversion struct {
	ID             string             `json:"id"`
	VisitorID      string             `json:"visitor_id"`
	ConversionType string             `json:"conversion_type"`
	Value          float64            `json:"value"`
	Model          string             `json:"model"`
	Credits        []ConversionCredit `json:"credits"`
	OccurredAt     time.Time          `json:"occurred_at"`
	CreatedAt      time.Time          `json:"created_at"`
}

// ConversionCredit is the share of a conversion assigned to one touchpoint.
type ConversionCredit struct {
	EventID   string    `json:"event_id,omitempty"`
	Source    string    `json:"source"`
	Medium    string    `json:"medium,omitempty"`
	Campaign  string    `json:"campaign,omitempty"`
	Credit    float64   `json:"credit"`
	Value     float64   `json:"value"`
	TouchedAt time.Time `json:"touched_at"`
}

type Campaign struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Cost      float64   `json:"cost"`
	CreatedAt time.Time `json:"created_at"`
}

type CreateCampaignRequest struct {
	Name string  `json:"name"`
	Cost float64 `json:"cost"`
}

// CampaignStats is one row of the campaign performance report.
type CampaignStats struct {
	Campaign          string  `json:"campaign"`
	Clicks            int     `json:"clicks"`
	UniqueVisitors    int     `json:"unique_visitors"`
	Conversions       int     `json:"conversions"`
	AttributedRevenue float64 `json:"attributed_revenue"`
	Cost              float64 `json:"cost"`
	ConversionRate    float64 `json:"conversion_rate"`
	ROI               float64 `json:"roi"`
}
