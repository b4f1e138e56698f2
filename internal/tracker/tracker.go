// Package tracker is the TrackFlow event tracking client. A host feeds it
// page lifecycle signals; it keeps visitor and session identity, builds event
// envelopes and ships them to the collector.
package tracker

import (
	"context"
	"log/slog"
	"time"

	"github.com/Priya8975/trackflow/internal/domain"
)

// Config holds the tracker settings.
type Config struct {
	Endpoint         string
	ScrollThresholds []int
	TimeThreshold    time.Duration
	ScrollDebounce   time.Duration
	BeaconQueueSize  int
	RequestTimeout   time.Duration
	SessionTTL       time.Duration
}

func DefaultConfig() Config {
	return Config{
		Endpoint:         "http://localhost:8080/api/v1/track",
		ScrollThresholds: DefaultScrollThresholds,
		TimeThreshold:    30 * time.Second,
		ScrollDebounce:   100 * time.Millisecond,
		BeaconQueueSize:  64,
		RequestTimeout:   10 * time.Second,
		SessionTTL:       30 * time.Minute,
	}
}

type Tracker struct {
	cfg      Config
	identity *Identity
	sender   Sender
	browser  domain.BrowserContext
	logger   *slog.Logger
	now      func() time.Time
}

func New(cfg Config, identity *Identity, sender Sender, browser domain.BrowserContext, logger *slog.Logger) *Tracker {
	if len(cfg.ScrollThresholds) == 0 {
		cfg.ScrollThresholds = DefaultScrollThresholds
	}
	return &Tracker{
		cfg:      cfg,
		identity: identity,
		sender:   sender,
		browser:  NewBrowserContext(browser),
		logger:   logger,
		now:      time.Now,
	}
}

// Envelope composes an event with both identities and the browser context.
// It has no failure modes.
func (t *Tracker) Envelope(ctx context.Context, eventType domain.EventType, data map[string]any) domain.Envelope {
	return t.envelope(ctx, eventType, data, domain.PageContext{}, 0)
}

func (t *Tracker) envelope(ctx context.Context, eventType domain.EventType, data map[string]any, page domain.PageContext, timeOnPage time.Duration) domain.Envelope {
	if data == nil {
		data = map[string]any{}
	}
	return domain.Envelope{
		EventType:  eventType,
		EventData:  data,
		VisitorID:  t.identity.VisitorID(ctx),
		SessionID:  t.identity.SessionID(ctx),
		Timestamp:  t.now().UTC().Format(domain.TimestampLayout),
		Page:       page,
		Browser:    t.browser,
		TimeOnPage: timeOnPage.Milliseconds(),
	}
}

// Track emits an event that is not tied to a page.
func (t *Tracker) Track(ctx context.Context, eventType domain.EventType, data map[string]any) {
	t.sender.Send(ctx, t.Envelope(ctx, eventType, data))
}

// TrackConversion emits a conversion outside of any page, e.g. from a
// server-side checkout.
func (t *Tracker) TrackConversion(ctx context.Context, conversionType string, value *float64, extra map[string]any) {
	t.Track(ctx, domain.EventConversion, conversionData(conversionType, value, extra))
}

// Close flushes the sender if it supports it.
func (t *Tracker) Close(ctx context.Context) error {
	if c, ok := t.sender.(interface{ Close(context.Context) error }); ok {
		return c.Close(ctx)
	}
	return nil
}

func conversionData(conversionType string, value *float64, extra map[string]any) map[string]any {
	data := merge(map[string]any{
		"conversion_type":  conversionType,
		"conversion_value": nil,
	}, extra)
	if value != nil {
		data["conversion_value"] = *value
	}
	return data
}

// merge copies extra into base, letting extra win.
func merge(base, extra map[string]any) map[string]any {
	for k, v := range extra {
		base[k] = v
	}
	return base
}
