package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Priya8975/trackflow/internal/domain"
	"github.com/Priya8975/trackflow/internal/tracker"
)

// Scenario is a scripted visit: a browser and the pages it views in order.
type Scenario struct {
	Browser Browser `yaml:"browser"`
	Pages   []Page  `yaml:"pages"`
}

type Browser struct {
	UserAgent        string `yaml:"user_agent"`
	Language         string `yaml:"language"`
	Platform         string `yaml:"platform"`
	Viewport         string `yaml:"viewport"`
	ScreenResolution string `yaml:"screen_resolution"`
	Timezone         string `yaml:"timezone"`
}

func (b Browser) Context() domain.BrowserContext {
	return domain.BrowserContext{
		UserAgent:        b.UserAgent,
		Language:         b.Language,
		Platform:         b.Platform,
		Viewport:         b.Viewport,
		ScreenResolution: b.ScreenResolution,
		Timezone:         b.Timezone,
	}
}

type Page struct {
	URL      string `yaml:"url"`
	Title    string `yaml:"title"`
	Referrer string `yaml:"referrer"`
	Steps    []Step `yaml:"steps"`
}

// Step is one interaction. Exactly one field is set.
type Step struct {
	Scroll     *ScrollStep     `yaml:"scroll,omitempty"`
	Click      *ClickStep      `yaml:"click,omitempty"`
	Focus      *FormStep       `yaml:"focus,omitempty"`
	Input      *FormStep       `yaml:"input,omitempty"`
	Submit     *FormStep       `yaml:"submit,omitempty"`
	Conversion *ConversionStep `yaml:"conversion,omitempty"`
	Wait       time.Duration   `yaml:"wait,omitempty"`
}

type ScrollStep struct {
	Y        float64 `yaml:"y"`
	Viewport float64 `yaml:"viewport"`
	Document float64 `yaml:"document"`
}

type ClickStep struct {
	Tag   string `yaml:"tag"`
	ID    string `yaml:"id"`
	Class string `yaml:"class"`
	Text  string `yaml:"text"`
	Href  string `yaml:"href"`
}

type FormStep struct {
	Form   string `yaml:"form"`
	Name   string `yaml:"name"`
	Action string `yaml:"action"`
	Method string `yaml:"method"`
	Field  string `yaml:"field"`
}

type ConversionStep struct {
	Type  string   `yaml:"type"`
	Value *float64 `yaml:"value"`
}

// LoadScenario decodes and validates a YAML scenario.
func LoadScenario(r io.Reader) (*Scenario, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("scenario is empty")
		}
		return nil, err
	}
	if err := sc.validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (sc *Scenario) validate() error {
	if len(sc.Pages) == 0 {
		return errors.New("scenario has no pages")
	}
	for i, p := range sc.Pages {
		if p.URL == "" {
			return fmt.Errorf("page %d: url is required", i+1)
		}
		for j, s := range p.Steps {
			if err := s.validate(); err != nil {
				return fmt.Errorf("page %d step %d: %w", i+1, j+1, err)
			}
		}
	}
	return nil
}

func (s Step) validate() error {
	set := 0
	for _, ok := range []bool{
		s.Scroll != nil, s.Click != nil, s.Focus != nil, s.Input != nil,
		s.Submit != nil, s.Conversion != nil, s.Wait != 0,
	} {
		if ok {
			set++
		}
	}
	switch {
	case set == 0:
		return errors.New("empty step")
	case set > 1:
		return errors.New("a step must do exactly one thing")
	case s.Wait < 0:
		return errors.New("wait must be positive")
	case s.Conversion != nil && s.Conversion.Type == "":
		return errors.New("conversion type is required")
	case s.Focus != nil && s.Focus.Form == "",
		s.Input != nil && s.Input.Form == "",
		s.Submit != nil && s.Submit.Form == "":
		return errors.New("form is required")
	}
	return nil
}

// Signal converts an interaction step into the host signal the tracker
// consumes. It reports false for waits and conversions.
func (s Step) Signal() (tracker.Signal, bool) {
	switch {
	case s.Scroll != nil:
		return tracker.Signal{
			Kind:           tracker.SignalScroll,
			ScrollY:        s.Scroll.Y,
			ViewportHeight: s.Scroll.Viewport,
			DocumentHeight: s.Scroll.Document,
		}, true
	case s.Click != nil:
		return tracker.Signal{Kind: tracker.SignalClick, Element: tracker.Element{
			Tag:   s.Click.Tag,
			ID:    s.Click.ID,
			Class: s.Click.Class,
			Text:  s.Click.Text,
			Href:  s.Click.Href,
		}}, true
	case s.Focus != nil:
		return formSignal(tracker.SignalFocus, s.Focus), true
	case s.Input != nil:
		return formSignal(tracker.SignalInput, s.Input), true
	case s.Submit != nil:
		return formSignal(tracker.SignalSubmit, s.Submit), true
	}
	return tracker.Signal{}, false
}

func formSignal(kind tracker.SignalKind, f *FormStep) tracker.Signal {
	return tracker.Signal{
		Kind: kind,
		Form: tracker.Form{
			ID:     f.Form,
			Name:   f.Name,
			Action: f.Action,
			Method: f.Method,
		},
		Field: f.Field,
	}
}

// replay runs every page of the scenario. Each page is unloaded after its
// last step.
func replay(ctx context.Context, t *tracker.Tracker, sc *Scenario) error {
	for _, p := range sc.Pages {
		if err := replayPage(ctx, t, p); err != nil {
			return err
		}
	}
	return nil
}

func replayPage(ctx context.Context, t *tracker.Tracker, p Page) error {
	page := t.OpenPage(ctx, tracker.PageInfo{URL: p.URL, Title: p.Title, Referrer: p.Referrer})

	signals := make(chan tracker.Signal)
	teardown := page.Subscribe(signals)
	defer func() { teardown() }()

	for _, step := range p.Steps {
		if sig, ok := step.Signal(); ok {
			select {
			case signals <- sig:
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		if step.Conversion != nil {
			// let the consumer finish the previous signal so events keep
			// scenario order
			teardown()
			page.TrackConversion(ctx, step.Conversion.Type, step.Conversion.Value, nil)
			teardown = page.Subscribe(signals)
			continue
		}
		if err := sleep(ctx, step.Wait); err != nil {
			return err
		}
	}

	select {
	case signals <- tracker.Signal{Kind: tracker.SignalUnload}:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
