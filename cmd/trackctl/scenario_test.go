package main

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/Priya8975/trackflow/internal/domain"
	"github.com/Priya8975/trackflow/internal/tracker"
)

const checkoutScenario = `
browser:
  user_agent: "Mozilla/5.0 (X11; Linux x86_64) Firefox/121.0"
  language: de-DE
pages:
  - url: https://shop.example.com/?utm_source=newsletter&utm_medium=email
    title: Spring sale
    referrer: https://mail.example.org/
    steps:
      - scroll: {y: 0, viewport: 250, document: 1000}
      - click: {tag: a, text: Shoes, href: "https://shop.example.com/shoes?tf_link=L9&tf_campaign=spring"}
  - url: https://shop.example.com/checkout
    steps:
      - focus: {form: checkout, name: Checkout, field: email}
      - input: {form: checkout}
      - wait: 5ms
      - submit: {form: checkout}
      - conversion: {type: purchase, value: 49.5}
`

type recorder struct {
	mu   sync.Mutex
	envs []domain.Envelope
}

func (r *recorder) Send(_ context.Context, env domain.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envs = append(r.envs, env)
}

func (r *recorder) types() []domain.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventType, 0, len(r.envs))
	for _, env := range r.envs {
		out = append(out, env.EventType)
	}
	return out
}

func TestLoadScenario(t *testing.T) {
	sc, err := LoadScenario(strings.NewReader(checkoutScenario))
	if err != nil {
		t.Fatalf("LoadScenario: %v", err)
	}
	if len(sc.Pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(sc.Pages))
	}
	if sc.Browser.Language != "de-DE" {
		t.Errorf("language = %q", sc.Browser.Language)
	}
	if got := sc.Pages[1].Steps[2].Wait; got != 5*time.Millisecond {
		t.Errorf("wait = %s, want 5ms", got)
	}
	conv := sc.Pages[1].Steps[4].Conversion
	if conv == nil || conv.Type != "purchase" || conv.Value == nil || *conv.Value != 49.5 {
		t.Errorf("unexpected conversion step %+v", conv)
	}
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"empty", "", "scenario is empty"},
		{"no pages", "browser: {language: en}\n", "no pages"},
		{"missing url", "pages:\n  - title: x\n", "url is required"},
		{"empty step", "pages:\n  - url: https://a.example\n    steps:\n      - {}\n", "empty step"},
		{"two actions", "pages:\n  - url: https://a.example\n    steps:\n      - {wait: 1s, input: {form: f}}\n", "exactly one"},
		{"conversion type", "pages:\n  - url: https://a.example\n    steps:\n      - conversion: {value: 3}\n", "conversion type"},
		{"form id", "pages:\n  - url: https://a.example\n    steps:\n      - submit: {name: x}\n", "form is required"},
		{"unknown field", "pages:\n  - url: https://a.example\n    hover: true\n", "hover"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(strings.NewReader(tt.doc))
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestStep_Signal(t *testing.T) {
	step := Step{Submit: &FormStep{Form: "signup", Name: "Signup", Method: "post"}}
	sig, ok := step.Signal()
	if !ok {
		t.Fatal("submit step should produce a signal")
	}
	want := tracker.Signal{
		Kind: tracker.SignalSubmit,
		Form: tracker.Form{ID: "signup", Name: "Signup", Method: "post"},
	}
	if diff := cmp.Diff(want, sig); diff != "" {
		t.Errorf("signal mismatch (-want +got):\n%s", diff)
	}

	if _, ok := (Step{Wait: time.Second}).Signal(); ok {
		t.Error("wait step must not produce a signal")
	}
	if _, ok := (Step{Conversion: &ConversionStep{Type: "lead"}}).Signal(); ok {
		t.Error("conversion step must not produce a signal")
	}
}

func TestReplay(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	sc, err := LoadScenario(strings.NewReader(checkoutScenario))
	if err != nil {
		t.Fatalf("LoadScenario: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := tracker.DefaultConfig()
	cfg.ScrollDebounce = 0
	cfg.TimeThreshold = time.Hour
	identity := tracker.NewIdentity(tracker.NewMemoryStorage(0), tracker.NewMemoryStorage(cfg.SessionTTL), logger)
	rec := &recorder{}
	tr := tracker.New(cfg, identity, rec, sc.Browser.Context(), logger)

	if err := replay(context.Background(), tr, sc); err != nil {
		t.Fatalf("replay: %v", err)
	}

	want := []domain.EventType{
		domain.EventPageView,
		domain.EventScrollDepth,
		domain.EventClick,
		domain.EventTrackedLinkClick,
		domain.EventPageExit,
		domain.EventPageView,
		domain.EventFormInteraction,
		domain.EventFormSubmit,
		domain.EventFormSubmitted,
		domain.EventConversion,
		domain.EventPageExit,
	}
	if diff := cmp.Diff(want, rec.types()); diff != "" {
		t.Errorf("event sequence mismatch (-want +got):\n%s", diff)
	}
}

func TestReplay_Cancelled(t *testing.T) {
	sc := &Scenario{Pages: []Page{{
		URL:   "https://a.example/",
		Steps: []Step{{Wait: time.Minute}},
	}}}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	identity := tracker.NewIdentity(tracker.NewMemoryStorage(0), tracker.NewMemoryStorage(0), logger)
	tr := tracker.New(tracker.DefaultConfig(), identity, &recorder{}, domain.BrowserContext{}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := replay(ctx, tr, sc); err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
