package attribution

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Priya8975/trackflow/internal/domain"
)

// historyLimit caps how many visitor paths feed the data-driven model.
const historyLimit = 10000

// JourneyStore is the storage the Service reads visitor journeys from.
type JourneyStore interface {
	VisitorJourney(ctx context.Context, visitorID string, since time.Time) ([]domain.Event, error)
	ConversionPaths(ctx context.Context, since time.Time, limit int) ([]Path, error)
}

// Service runs attribution against stored visitor journeys.
type Service struct {
	store  JourneyStore
	calc   Calculator
	logger *slog.Logger
}

func NewService(store JourneyStore, calc *Calculator, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		calc:   *calc,
		logger: logger,
	}
}

// Attribute credits a conversion of the given value at time at across the
// visitor's touchpoints inside the lookback window.
func (s *Service) Attribute(ctx context.Context, visitorID string, model Model, value float64, at time.Time) (Result, error) {
	if at.IsZero() {
		at = time.Now()
	}
	since := s.since(at)

	events, err := s.store.VisitorJourney(ctx, visitorID, since)
	if err != nil {
		return Result{}, fmt.Errorf("loading journey: %w", err)
	}

	calc := s.calc
	if model == DataDriven {
		paths, err := s.store.ConversionPaths(ctx, since, historyLimit)
		if err != nil {
			// without history the model degrades to linear
			s.logger.Warn("conversion paths unavailable", "error", err)
		}
		calc.History = paths
	}

	return calc.Calculate(model, TouchpointsFromEvents(events), value, at), nil
}

func (s *Service) since(at time.Time) time.Time {
	if s.calc.Window <= 0 {
		return time.Time{}
	}
	return at.Add(-s.calc.Window)
}

// TouchpointsFromEvents keeps the events that count as marketing touches.
func TouchpointsFromEvents(events []domain.Event) []Touchpoint {
	tps := make([]Touchpoint, 0, len(events))
	for _, e := range events {
		if !e.EventType.Touch() {
			continue
		}
		tps = append(tps, Touchpoint{
			ID:        e.ID,
			Timestamp: e.OccurredAt,
			Type:      string(e.EventType),
			URL:       e.URL,
			Source:    e.Source,
			Medium:    e.Medium,
			Campaign:  e.Campaign,
		})
	}
	return tps
}

// Credits converts a result into per-touchpoint credit rows.
func Credits(r Result) []domain.ConversionCredit {
	credits := make([]domain.ConversionCredit, 0, len(r.Touchpoints))
	for _, tp := range r.Touchpoints {
		source := tp.Source
		if source == "" {
			source = "direct"
		}
		credits = append(credits, domain.ConversionCredit{
			EventID:   tp.ID,
			Source:    source,
			Medium:    tp.Medium,
			Campaign:  tp.Campaign,
			Credit:    tp.Credit,
			Value:     tp.Value,
			TouchedAt: tp.Timestamp,
		})
	}
	return credits
}
