package attribution

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/Priya8975/trackflow/internal/domain"
)

type fakeJourneys struct {
	events   []domain.Event
	paths    []Path
	pathsErr error
	since    time.Time
}

func (f *fakeJourneys) VisitorJourney(_ context.Context, _ string, since time.Time) ([]domain.Event, error) {
	f.since = since
	return f.events, nil
}

func (f *fakeJourneys) ConversionPaths(context.Context, time.Time, int) ([]Path, error) {
	return f.paths, f.pathsErr
}

func testService(store JourneyStore) *Service {
	logger := slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewService(store, NewCalculator(), logger)
}

func journey(at time.Time) []domain.Event {
	return []domain.Event{
		{ID: "e1", EventType: domain.EventPageView, Source: "google", Medium: "cpc", OccurredAt: at.Add(-48 * time.Hour)},
		{ID: "e2", EventType: domain.EventScrollDepth, OccurredAt: at.Add(-47 * time.Hour)},
		{ID: "e3", EventType: domain.EventTrackedLinkClick, Source: "newsletter", Medium: "email", Campaign: "spring", OccurredAt: at.Add(-2 * time.Hour)},
		{ID: "e4", EventType: domain.EventConversion, OccurredAt: at},
	}
}

func TestService_AttributeSkipsNonTouchEvents(t *testing.T) {
	at := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	store := &fakeJourneys{events: journey(at)}

	result, err := testService(store).Attribute(context.Background(), "tf_v", Linear, 200, at)
	if err != nil {
		t.Fatalf("attribute: %v", err)
	}

	if !store.since.Equal(at.Add(-DefaultWindow)) {
		t.Errorf("journey should start at the window edge, got %v", store.since)
	}

	var ids []string
	for _, tp := range result.Touchpoints {
		ids = append(ids, tp.ID)
	}
	if diff := cmp.Diff([]string{"e1", "e3"}, ids); diff != "" {
		t.Errorf("touchpoints mismatch (-want +got):\n%s", diff)
	}
	if result.Touchpoints[0].Value != 100 || result.TotalCredit != 100 {
		t.Errorf("expected an even split of 200, got %+v", result)
	}
}

func TestService_DataDrivenUsesHistory(t *testing.T) {
	at := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	store := &fakeJourneys{
		events: journey(at),
		paths: []Path{
			{Channels: []string{"google/cpc", "newsletter/email"}, Converted: true},
			{Channels: []string{"newsletter/email"}, Converted: true},
			{Channels: []string{"google/cpc"}, Converted: false},
		},
	}

	result, err := testService(store).Attribute(context.Background(), "tf_v", DataDriven, 100, at)
	if err != nil {
		t.Fatalf("attribute: %v", err)
	}

	// newsletter is on every converting path (effect 1), google on half (0.5)
	var credits []float64
	for _, tp := range result.Touchpoints {
		credits = append(credits, tp.Credit)
	}
	if diff := cmp.Diff([]float64{33.33, 66.67}, credits, cmpopts.EquateApprox(0, 0.01)); diff != "" {
		t.Errorf("credits mismatch (-want +got):\n%s", diff)
	}
}

func TestService_DataDrivenWithoutHistoryIsLinear(t *testing.T) {
	at := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	store := &fakeJourneys{events: journey(at), pathsErr: errors.New("db down")}

	result, err := testService(store).Attribute(context.Background(), "tf_v", DataDriven, 100, at)
	if err != nil {
		t.Fatalf("attribute: %v", err)
	}
	for _, tp := range result.Touchpoints {
		if tp.Credit != 50 {
			t.Errorf("expected linear fallback, got credit %v", tp.Credit)
		}
	}
}

func TestCredits(t *testing.T) {
	at := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	r := Result{Touchpoints: []Touchpoint{
		{ID: "e1", Timestamp: at, Credit: 60, Value: 30},
		{ID: "e2", Timestamp: at, Source: "google", Campaign: "spring", Credit: 40, Value: 20},
	}}

	want := []domain.ConversionCredit{
		{EventID: "e1", Source: "direct", Credit: 60, Value: 30, TouchedAt: at},
		{EventID: "e2", Source: "google", Campaign: "spring", Credit: 40, Value: 20, TouchedAt: at},
	}
	if diff := cmp.Diff(want, Credits(r)); diff != "" {
		t.Errorf("credits mismatch (-want +got):\n%s", diff)
	}
}
