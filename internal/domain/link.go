package domain

import (
	"time"
)

// Query parameters appended to tracked link destinations.
const (
	LinkParam     = "tf_link"
	CampaignParam = "tf_campaign"
)

// Link statuses.
const (
	LinkActive  = "Active"
	LinkPaused  = "Paused"
	LinkExpired = "Expired"
)

type TrackedLink struct {
	ID             string            `json:"id"`
	ShortCode      string            `json:"short_code"`
	Name           string            `json:"name,omitempty"`
	TargetURL      string            `json:"target_url"`
	Campaign       string            `json:"campaign,omitempty"`
	UTM            map[string]string `json:"utm,omitempty"`
	Status         string            `json:"status"`
	ExpiresAt      *time.Time        `json:"expires_at,omitempty"`
	ClickCount     int               `json:"click_count"`
	UniqueVisitors int               `json:"unique_visitors"`
	LastClickedAt  *time.Time        `json:"last_clicked_at,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// EffectiveStatus reports the link status as of now, turning an active link
// past its expiry into Expired.
func (l *TrackedLink) EffectiveStatus(now time.Time) string {
	if l.Status == LinkActive && l.ExpiresAt != nil && l.ExpiresAt.Before(now) {
		return LinkExpired
	}
	return l.Status
}

type CreateLinkRequest struct {
	Name      string            `json:"name"`
	TargetURL string            `json:"target_url"`
	Campaign  string            `json:"campaign,omitempty"`
	UTM       map[string]string `json:"utm,omitempty"`
	ExpiresAt *time.Time        `json:"expires_at,omitempty"`
}

type CreateLinkResponse struct {
	ID        string `json:"id"`
	ShortCode string `json:"short_code"`
	ShortURL  string `json:"short_url"`
}

type LinkClick struct {
	LinkID    string
	VisitorID string
	IPAddress string
	UserAgent string
	Referrer  string
	Browser   string
	Device    string
	ClickedAt time.Time
}
