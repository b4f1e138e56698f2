package domain

import (
	"encoding/json"
	"slices"
	"time"
)

// EventType identifies what a tracked action was.
type EventType string

const (
	EventPageView         EventType = "page_view"
	EventClick            EventType = "click"
	EventFormSubmit       EventType = "form_submit"
	EventConversion       EventType = "conversion"
	EventScrollDepth      EventType = "scroll_depth"
	EventTimeOnPage       EventType = "time_on_page"
	EventPageExit         EventType = "page_exit"
	EventTrackedLinkClick EventType = "tracked_link_click"
	EventFormView         EventType = "form_view"
	EventFormInteraction  EventType = "form_interaction"
	EventFormAbandoned    EventType = "form_abandoned"
	EventFormSubmitted    EventType = "form_submitted"

	// EventPixelView is emitted by the collector itself, never by the client.
	EventPixelView EventType = "pixel_view"
)

var knownEventTypes = map[EventType]bool{
	EventPageView:         true,
	EventClick:            true,
	EventFormSubmit:       true,
	EventConversion:       true,
	EventScrollDepth:      true,
	EventTimeOnPage:       true,
	EventPageExit:         true,
	EventTrackedLinkClick: true,
	EventFormView:         true,
	EventFormInteraction:  true,
	EventFormAbandoned:    true,
	EventFormSubmitted:    true,
	EventPixelView:        true,
}

// Valid reports whether t is one of the recognized event types.
func (t EventType) Valid() bool {
	return knownEventTypes[t]
}

var touchTypes = []EventType{
	EventPageView, EventTrackedLinkClick, EventFormSubmit, EventFormSubmitted, EventPixelView,
}

// Touch reports whether events of this type count as marketing touchpoints
// for attribution.
func (t EventType) Touch() bool {
	return slices.Contains(touchTypes, t)
}

// TouchTypes returns the event types that count as touchpoints.
func TouchTypes() []string {
	out := make([]string, len(touchTypes))
	for i, t := range touchTypes {
		out[i] = string(t)
	}
	return out
}

// TimestampLayout is ISO-8601 with millisecond precision, matching what
// browsers produce for Date.toISOString.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// PageContext describes the page an event happened on.
type PageContext struct {
	URL      string            `json:"url,omitempty"`
	Title    string            `json:"title,omitempty"`
	Referrer string            `json:"referrer,omitempty"`
	Path     string            `json:"path,omitempty"`
	Host     string            `json:"host,omitempty"`
	UTM      map[string]string `json:"utm,omitempty"`
}

// BrowserContext describes the client that emitted an event.
type BrowserContext struct {
	UserAgent        string `json:"user_agent,omitempty"`
	Browser          string `json:"browser,omitempty"`
	Language         string `json:"language,omitempty"`
	Platform         string `json:"platform,omitempty"`
	Viewport         string `json:"viewport,omitempty"`
	ScreenResolution string `json:"screen_resolution,omitempty"`
	Timezone         string `json:"timezone,omitempty"`
}

// Envelope is the wire format posted by the tracking client.
type Envelope struct {
	EventType  EventType      `json:"event_type"`
	EventData  map[string]any `json:"event_data"`
	VisitorID  string         `json:"visitor_id"`
	SessionID  string         `json:"session_id"`
	Timestamp  string         `json:"timestamp"`
	Page       PageContext    `json:"page_info"`
	Browser    BrowserContext `json:"browser_info"`
	TimeOnPage int64          `json:"time_on_page"`
}

// OccurredAt parses the envelope timestamp. It returns the zero time when
// the timestamp is missing or malformed.
func (e Envelope) OccurredAt() time.Time {
	ts, err := time.Parse(time.RFC3339Nano, e.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return ts
}

// Event is a stored visitor event.
type Event struct {
	ID         string          `json:"id"`
	VisitorID  string          `json:"visitor_id"`
	SessionID  string          `json:"session_id,omitempty"`
	EventType  EventType       `json:"event_type"`
	Payload    json.RawMessage `json:"payload"`
	URL        string          `json:"url,omitempty"`
	Referrer   string          `json:"referrer,omitempty"`
	Source     string          `json:"source,omitempty"`
	Medium     string          `json:"medium,omitempty"`
	Campaign   string          `json:"campaign,omitempty"`
	TimeOnPage int64           `json:"time_on_page"`
	OccurredAt time.Time       `json:"occurred_at"`
	CreatedAt  time.Time       `json:"created_at"`
}

// EventFilter narrows ListEvents queries.
type EventFilter struct {
	EventType EventType
	VisitorID string
	Limit     int
}
