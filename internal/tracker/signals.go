package tracker

import (
	"context"
	"sync"

	"github.com/Priya8975/trackflow/internal/domain"
)

type SignalKind int

const (
	SignalScroll SignalKind = iota
	SignalClick
	SignalSubmit
	SignalFocus
	SignalInput
	SignalUnload
)

func (k SignalKind) String() string {
	switch k {
	case SignalScroll:
		return "scroll"
	case SignalClick:
		return "click"
	case SignalSubmit:
		return "submit"
	case SignalFocus:
		return "focus"
	case SignalInput:
		return "input"
	case SignalUnload:
		return "unload"
	default:
		return "unknown"
	}
}

// Signal is a page lifecycle notification from the host environment. Only
// the fields relevant to Kind are read.
type Signal struct {
	Kind SignalKind

	// scroll
	ScrollY        float64
	ViewportHeight float64
	DocumentHeight float64

	// click
	Element Element

	// submit, focus, input
	Form  Form
	Field string
}

// Subscribe consumes host signals until the channel closes, an unload signal
// arrives or the returned teardown is called. Clicks whose href carries a
// tf_link parameter are also reported as tracked_link_click.
// Unload closes the page. Teardown blocks until the consumer has exited,
// including the page close an unload triggers, and is safe to call more than
// once.
func (p *Page) Subscribe(signals <-chan Signal) (teardown func()) {
	stop := make(chan struct{})
	done := make(chan struct{})
	var once sync.Once

	teardown = func() {
		once.Do(func() { close(stop) })
		<-done
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		close(done)
		return teardown
	}
	id := p.nextSub
	p.nextSub++
	p.subs[id] = teardown
	p.mu.Unlock()

	go func() {
		unload := false
		defer func() {
			// deregister first so Close does not wait on this goroutine
			p.mu.Lock()
			if p.subs != nil {
				delete(p.subs, id)
			}
			p.mu.Unlock()
			if unload {
				p.Close(context.Background())
			}
			close(done)
		}()

		for {
			select {
			case <-stop:
				return
			case sig, ok := <-signals:
				if !ok {
					return
				}
				if sig.Kind == SignalUnload {
					unload = true
					return
				}
				p.handle(sig)
			}
		}
	}()

	return teardown
}

func (p *Page) handle(sig Signal) {
	ctx := context.Background()

	switch sig.Kind {
	case SignalScroll:
		p.Scroll(sig.ScrollY, sig.ViewportHeight, sig.DocumentHeight)
	case SignalClick:
		p.TrackClick(ctx, sig.Element, nil)
		if linkID, campaign, ok := trackedLink(sig.Element.Href); ok {
			p.TrackLinkClick(ctx, linkID, campaign, sig.Element.Href)
		}
	case SignalSubmit:
		p.TrackFormSubmit(ctx, sig.Form, nil)
		if sig.Form.ID != "" {
			p.SubmitForm(ctx, sig.Form.ID)
		}
	case SignalFocus:
		p.FocusForm(ctx, sig.Form.ID, sig.Field)
	case SignalInput:
		p.InputForm(sig.Form.ID)
	default:
		p.tracker.logger.Debug("unknown signal ignored", "kind", sig.Kind)
	}
}

// trackedLink reports whether href points at a tracked link destination,
// i.e. carries the tf_link parameter added by the link service.
func trackedLink(href string) (linkID, campaign string, ok bool) {
	q := queryOf(href)
	if q == nil {
		return "", "", false
	}
	linkID = q.Get(domain.LinkParam)
	if linkID == "" {
		return "", "", false
	}
	return linkID, q.Get(domain.CampaignParam), true
}
