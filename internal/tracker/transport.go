package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Priya8975/trackflow/internal/domain"
)

// Sender delivers envelopes. Implementations must not block the caller on
// network I/O longer than their own timeout and must not return errors:
// tracking failures are never the caller's problem.
type Sender interface {
	Send(ctx context.Context, env domain.Envelope)
}

// HTTPTransport posts envelopes to the collector endpoint. Send never waits
// on the network.
//
// The preferred path is a beacon: the body is handed to a bounded queue and
// posted by a background goroutine. When the queue is full or disabled
// (queue size <= 0), the body is posted from its own goroutine on a context
// detached from the caller. Either way the event outlives the caller's
// context. Fallback failures are logged and the event is dropped.
type HTTPTransport struct {
	endpoint string
	client   *http.Client
	timeout  time.Duration
	logger   *slog.Logger

	mu     sync.RWMutex
	queue  chan []byte
	closed bool
	wg     sync.WaitGroup // drain loop and fallback posts
}

func NewHTTPTransport(endpoint string, queueSize int, timeout time.Duration, logger *slog.Logger) *HTTPTransport {
	t := &HTTPTransport{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		timeout:  timeout,
		logger:   logger,
	}
	if queueSize > 0 {
		t.queue = make(chan []byte, queueSize)
		t.wg.Add(1)
		go t.drain()
	}
	return t
}

func (t *HTTPTransport) Send(ctx context.Context, env domain.Envelope) {
	body, err := json.Marshal(env)
	if err != nil {
		t.logger.Warn("trackflow: error encoding event", "event_type", env.EventType, "error", err)
		return
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		t.logger.Warn("trackflow: transport closed, event dropped", "event_type", env.EventType)
		return
	}
	if t.queue != nil {
		select {
		case t.queue <- body:
			return
		default:
		}
	}

	// Adds happen under the read lock before Close can start waiting.
	t.wg.Add(1)
	go t.fetch(context.WithoutCancel(ctx), body)
}

func (t *HTTPTransport) fetch(ctx context.Context, body []byte) {
	defer t.wg.Done()

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	if err := t.post(ctx, body); err != nil {
		t.logger.Warn("trackflow: error sending data", "endpoint", t.endpoint, "error", err)
	}
}

func (t *HTTPTransport) drain() {
	defer t.wg.Done()

	for body := range t.queue {
		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		if err := t.post(ctx, body); err != nil {
			t.logger.Debug("beacon dropped", "endpoint", t.endpoint, "error", err)
		}
		cancel()
	}
}

func (t *HTTPTransport) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode >= 400 {
		return fmt.Errorf("collector responded %d", resp.StatusCode)
	}
	return nil
}

// Close stops accepting events and waits for queued beacons and fallback
// posts to finish or for ctx to end. Later sends are dropped.
func (t *HTTPTransport) Close(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	if t.queue != nil {
		close(t.queue)
	}
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.client.CloseIdleConnections()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
