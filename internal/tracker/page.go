package tracker

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/Priya8975/trackflow/internal/domain"
)

// Element describes a clicked element.
type Element struct {
	Tag   string
	ID    string
	Class string
	Text  string
	Href  string
}

// Form describes a submitted form.
type Form struct {
	ID     string
	Name   string
	Action string
	Method string
}

type formState struct {
	name       string
	interacted bool
	started    bool
	submitted  bool
}

// Page tracks one page view from open to close. All milestone state lives
// here, so two pages never share scroll or time counters.
type Page struct {
	tracker  *Tracker
	info     domain.PageContext
	openedAt time.Time

	mu       sync.Mutex
	scroll   *ScrollMilestones
	forms    map[string]*formState
	subs     map[int]func()
	nextSub  int
	closed   bool
	debounce *debouncer
	timeMark *TimeMilestone
}

// OpenPage starts tracking a page: it emits page_view with the page's UTM
// parameters and arms the time-on-page milestone.
func (t *Tracker) OpenPage(ctx context.Context, info PageInfo) *Page {
	p := &Page{
		tracker:  t,
		info:     pageContext(info),
		openedAt: t.now(),
		scroll:   NewScrollMilestones(t.cfg.ScrollThresholds),
		forms:    make(map[string]*formState),
		subs:     make(map[int]func()),
		debounce: &debouncer{delay: t.cfg.ScrollDebounce},
	}

	p.Track(ctx, domain.EventPageView, map[string]any{"source": p.info.UTM})

	if t.cfg.TimeThreshold > 0 {
		p.timeMark = StartTimeMilestone(t.cfg.TimeThreshold, func(elapsed time.Duration) {
			seconds := int(math.Round(elapsed.Seconds()))
			p.Track(context.Background(), domain.EventTimeOnPage, map[string]any{
				"seconds":   seconds,
				"milestone": t.cfg.TimeThreshold.String(),
			})
		})
	}
	return p
}

// Context returns the page context attached to every event of this page.
func (p *Page) Context() domain.PageContext {
	return p.info
}

// Track emits an event carrying this page's context and the time since the
// page opened. Events after Close are ignored.
func (p *Page) Track(ctx context.Context, eventType domain.EventType, data map[string]any) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		p.tracker.logger.Debug("event after page close ignored", "event_type", eventType)
		return
	}
	p.send(ctx, eventType, data)
}

func (p *Page) send(ctx context.Context, eventType domain.EventType, data map[string]any) {
	t := p.tracker
	elapsed := t.now().Sub(p.openedAt)
	t.sender.Send(ctx, t.envelope(ctx, eventType, data, p.info, elapsed))
}

func (p *Page) TrackClick(ctx context.Context, el Element, extra map[string]any) {
	p.Track(ctx, domain.EventClick, merge(map[string]any{
		"element_tag":   el.Tag,
		"element_id":    el.ID,
		"element_class": el.Class,
		"element_text":  truncate(el.Text, 100),
		"element_href":  el.Href,
	}, extra))
}

func (p *Page) TrackFormSubmit(ctx context.Context, f Form, extra map[string]any) {
	p.Track(ctx, domain.EventFormSubmit, merge(map[string]any{
		"form_id":     f.ID,
		"form_name":   f.Name,
		"form_action": f.Action,
		"form_method": f.Method,
	}, extra))
}

func (p *Page) TrackConversion(ctx context.Context, conversionType string, value *float64, extra map[string]any) {
	p.Track(ctx, domain.EventConversion, conversionData(conversionType, value, extra))
}

func (p *Page) TrackLinkClick(ctx context.Context, linkID, campaign, destination string) {
	p.Track(ctx, domain.EventTrackedLinkClick, map[string]any{
		"link_id":     linkID,
		"campaign":    campaign,
		"destination": destination,
	})
}

// ViewForm registers a tracked form and emits form_view.
func (p *Page) ViewForm(ctx context.Context, formID, name string) {
	p.mu.Lock()
	if _, ok := p.forms[formID]; !ok {
		p.forms[formID] = &formState{name: name}
	}
	p.mu.Unlock()

	p.Track(ctx, domain.EventFormView, map[string]any{
		"form_id":   formID,
		"form_name": name,
	})
}

// FocusForm emits form_interaction the first time any field of the form
// gains focus.
func (p *Page) FocusForm(ctx context.Context, formID, field string) {
	p.mu.Lock()
	fs := p.form(formID)
	first := !fs.interacted
	fs.interacted = true
	p.mu.Unlock()

	if first {
		p.Track(ctx, domain.EventFormInteraction, map[string]any{
			"form_id": formID,
			"field":   field,
		})
	}
}

// InputForm marks a form as started; started forms that are never submitted
// are reported as abandoned when the page closes.
func (p *Page) InputForm(formID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.form(formID).started = true
}

func (p *Page) SubmitForm(ctx context.Context, formID string) {
	p.mu.Lock()
	p.form(formID).submitted = true
	p.mu.Unlock()

	p.Track(ctx, domain.EventFormSubmitted, map[string]any{"form_id": formID})
}

// form must be called with p.mu held.
func (p *Page) form(formID string) *formState {
	fs, ok := p.forms[formID]
	if !ok {
		fs = &formState{}
		p.forms[formID] = fs
	}
	return fs
}

// Scroll reports the current scroll geometry. Evaluation is debounced; each
// depth milestone is emitted at most once for the life of the page.
func (p *Page) Scroll(scrollY, viewportHeight, documentHeight float64) {
	percent := ScrollPercent(scrollY, viewportHeight, documentHeight)
	p.debounce.trigger(func() { p.scrollTo(percent) })
}

func (p *Page) scrollTo(percent int) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	crossed := p.scroll.Observe(percent)
	p.mu.Unlock()

	for _, depth := range crossed {
		p.Track(context.Background(), domain.EventScrollDepth, map[string]any{"depth": depth})
	}
}

// MaxScrollDepth returns the deepest scroll seen on this page.
func (p *Page) MaxScrollDepth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scroll.Max()
}

// Close ends the page: it stops timers and subscriptions, reports abandoned
// forms and emits page_exit. Calling Close more than once is a no-op.
func (p *Page) Close(ctx context.Context) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	subs := p.subs
	p.subs = nil

	var abandoned []string
	names := make(map[string]string)
	for id, fs := range p.forms {
		if fs.started && !fs.submitted {
			abandoned = append(abandoned, id)
			names[id] = fs.name
		}
	}
	sort.Strings(abandoned)
	maxScroll := p.scroll.Max()
	p.mu.Unlock()

	p.debounce.stop()
	if p.timeMark != nil {
		p.timeMark.Stop()
	}
	for _, teardown := range subs {
		teardown()
	}

	for _, id := range abandoned {
		p.send(ctx, domain.EventFormAbandoned, map[string]any{
			"form_id":   id,
			"form_name": names[id],
		})
	}
	elapsed := p.tracker.now().Sub(p.openedAt)
	p.send(ctx, domain.EventPageExit, map[string]any{
		"time_on_page":     int(math.Round(elapsed.Seconds())),
		"max_scroll_depth": maxScroll,
	})
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
