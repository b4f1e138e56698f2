package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Priya8975/trackflow/internal/attribution"
	"github.com/Priya8975/trackflow/internal/domain"
	"github.com/Priya8975/trackflow/internal/engine"
	"github.com/Priya8975/trackflow/internal/websocket"
	"github.com/google/uuid"
)

// EventStore is the storage the Processor writes to. Both writes report
// false when a row with the given id already exists.
type EventStore interface {
	IngestEvent(ctx context.Context, t domain.VisitorTouch, e *domain.Event) (bool, error)
	CreateConversion(ctx context.Context, c *domain.Conversion) (bool, error)
}

type Attributor interface {
	Attribute(ctx context.Context, visitorID string, model attribution.Model, value float64, at time.Time) (attribution.Result, error)
}

type Broadcaster interface {
	Broadcast(event websocket.LiveEvent)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, job engine.Job, at time.Time) error
}

// Processor turns queued envelopes into stored visitors, sessions, events and
// attributed conversions.
type Processor struct {
	store      EventStore
	attributor Attributor
	model      attribution.Model
	hub        Broadcaster
	queue      Enqueuer
	forward    bool
	logger     *slog.Logger
	now        func() time.Time
}

// NewProcessor creates a processor. When forward is set, every stored
// conversion is queued for the CRM webhook.
func NewProcessor(store EventStore, attributor Attributor, model attribution.Model, hub Broadcaster, queue Enqueuer, forward bool, logger *slog.Logger) *Processor {
	return &Processor{
		store:      store,
		attributor: attributor,
		model:      model,
		hub:        hub,
		queue:      queue,
		forward:    forward,
		logger:     logger,
		now:        time.Now,
	}
}

// Process ingests one tracked event.
func (p *Processor) Process(ctx context.Context, job engine.Job) error {
	env := job.Envelope
	if env == nil {
		return fmt.Errorf("ingest job %s has no envelope", job.ID)
	}

	at := env.OccurredAt()
	if at.IsZero() {
		at = job.ReceivedAt
	}
	if at.IsZero() {
		at = p.now()
	}

	source, medium, campaign := trafficSource(env)
	utm := map[string]string{
		"utm_source":   source,
		"utm_medium":   medium,
		"utm_campaign": campaign,
	}

	userAgent := env.Browser.UserAgent
	if userAgent == "" {
		userAgent = job.UserAgent
	}

	touch := domain.VisitorTouch{
		VisitorID:  env.VisitorID,
		SessionID:  env.SessionID,
		At:         at,
		IPAddress:  job.IPAddress,
		UserAgent:  userAgent,
		URL:        env.Page.URL,
		Referrer:   env.Page.Referrer,
		UTM:        utm,
		IsPageView: env.EventType == domain.EventPageView,
	}

	payload, err := json.Marshal(nonNilData(env.EventData))
	if err != nil {
		return fmt.Errorf("encoding event data: %w", err)
	}

	event := &domain.Event{
		ID:         rowID(job.ID, "event"),
		VisitorID:  env.VisitorID,
		SessionID:  env.SessionID,
		EventType:  env.EventType,
		Payload:    payload,
		URL:        env.Page.URL,
		Referrer:   env.Page.Referrer,
		Source:     source,
		Medium:     medium,
		Campaign:   campaign,
		TimeOnPage: env.TimeOnPage,
		OccurredAt: at,
	}
	inserted, err := p.store.IngestEvent(ctx, touch, event)
	if err != nil {
		return err
	}
	if !inserted {
		p.logger.Info("event already stored, resuming job", "job_id", job.ID, "event_id", event.ID)
	}

	live := websocket.NewLiveEvent(event)
	fresh := inserted

	if env.EventType == domain.EventConversion {
		conv, created, err := p.attribute(ctx, job.ID, env, at)
		if err != nil {
			return err
		}
		live.Value = &conv.Value
		fresh = fresh || created
	}

	if fresh {
		p.hub.Broadcast(live)
	}

	p.logger.Debug("event ingested",
		"event_id", event.ID,
		"event_type", event.EventType,
		"visitor_id", event.VisitorID,
	)
	return nil
}

func (p *Processor) attribute(ctx context.Context, jobID string, env *domain.Envelope, at time.Time) (*domain.Conversion, bool, error) {
	value := floatValue(env.EventData["conversion_value"])

	result, err := p.attributor.Attribute(ctx, env.VisitorID, p.model, value, at)
	if err != nil {
		return nil, false, fmt.Errorf("attributing conversion: %w", err)
	}

	conv := &domain.Conversion{
		ID:             rowID(jobID, "conversion"),
		VisitorID:      env.VisitorID,
		ConversionType: stringValue(env.EventData["conversion_type"]),
		Value:          value,
		Model:          string(result.Model),
		Credits:        attribution.Credits(result),
		OccurredAt:     at,
	}
	created, err := p.store.CreateConversion(ctx, conv)
	if err != nil {
		return nil, false, err
	}
	if !created {
		// stored by an earlier attempt, which also queued the forward
		return conv, false, nil
	}

	p.logger.Info("conversion attributed",
		"conversion_id", conv.ID,
		"visitor_id", conv.VisitorID,
		"model", conv.Model,
		"value", conv.Value,
		"touchpoints", len(conv.Credits),
	)

	if p.forward {
		job := engine.Job{Kind: engine.JobForward, Conversion: conv, ReceivedAt: p.now()}
		if err := p.queue.Enqueue(ctx, job, p.now()); err != nil {
			// the conversion is stored; forwarding is best effort
			p.logger.Error("failed to queue conversion forward", "error", err, "conversion_id", conv.ID)
		}
	}
	return conv, true, nil
}

// rowID derives the id of a row written for a job, so every attempt of the
// job writes the same rows. Jobs without an id get store-generated ids.
func rowID(jobID, kind string) string {
	if jobID == "" {
		return ""
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("trackflow/"+kind+"/"+jobID)).String()
}

// trafficSource picks the source, medium and campaign of an event: UTM
// parameters first, then tracked link fields in the payload, then the
// referrer host as a referral.
func trafficSource(env *domain.Envelope) (source, medium, campaign string) {
	utm := env.Page.UTM
	source, medium, campaign = utm["utm_source"], utm["utm_medium"], utm["utm_campaign"]

	if campaign == "" {
		campaign = stringValue(env.EventData["campaign"])
	}
	if source == "" && env.Page.Referrer != "" {
		if u, err := url.Parse(env.Page.Referrer); err == nil && u.Hostname() != "" {
			pageHost := ""
			if pu, err := url.Parse(env.Page.URL); err == nil {
				pageHost = pu.Hostname()
			}
			if !strings.EqualFold(u.Hostname(), pageHost) {
				source, medium = u.Hostname(), "referral"
			}
		}
	}
	return source, medium, campaign
}

func floatValue(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(n, 64)
		return f
	default:
		return 0
	}
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func nonNilData(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
