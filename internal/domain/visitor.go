package domain

import (
	"strings"
	"time"
)

type Visitor struct {
	ID              string     `json:"id"`
	FirstSeen       time.Time  `json:"first_seen"`
	LastSeen        time.Time  `json:"last_seen"`
	Source          string     `json:"source,omitempty"`
	Medium          string     `json:"medium,omitempty"`
	Campaign        string     `json:"campaign,omitempty"`
	IPAddress       string     `json:"ip_address,omitempty"`
	UserAgent       string     `json:"user_agent,omitempty"`
	PageViews       int        `json:"page_views"`
	HasConverted    bool       `json:"has_converted"`
	ConversionCount int        `json:"conversion_count"`
	LastConversion  *time.Time `json:"last_conversion_at,omitempty"`
}

type Session struct {
	ID           string    `json:"id"`
	VisitorID    string    `json:"visitor_id"`
	StartedAt    time.Time `json:"started_at"`
	LastActivity time.Time `json:"last_activity"`
	LandingPage  string    `json:"landing_page,omitempty"`
	Referrer     string    `json:"referrer,omitempty"`
	DeviceType   string    `json:"device_type,omitempty"`
	UTMSource    string    `json:"utm_source,omitempty"`
	UTMMedium    string    `json:"utm_medium,omitempty"`
	UTMCampaign  string    `json:"utm_campaign,omitempty"`
	PageViews    int       `json:"page_views"`
	EventCount   int       `json:"event_count"`
}

// VisitorTouch is the slice of an incoming event that updates visitor and
// session rows.
type VisitorTouch struct {
	VisitorID  string
	SessionID  string
	At         time.Time
	IPAddress  string
	UserAgent  string
	URL        string
	Referrer   string
	UTM        map[string]string
	IsPageView bool
}

// DeviceType classifies a user agent as Mobile, Tablet or Desktop.
func DeviceType(userAgent string) string {
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet"):
		return "Tablet"
	case strings.Contains(ua, "mobile") || strings.Contains(ua, "android"):
		return "Mobile"
	default:
		return "Desktop"
	}
}
