package worker

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Priya8975/trackflow/internal/domain"
	"github.com/Priya8975/trackflow/internal/engine"
)

// Breaker is the circuit breaker guarding the CRM sink.
type Breaker interface {
	AllowRequest(ctx context.Context, sink string) (string, bool)
	RecordSuccess(ctx context.Context, sink string)
	RecordFailure(ctx context.Context, sink string)
}

// ConversionPayload is the body posted to the CRM webhook.
type ConversionPayload struct {
	Event      string             `json:"event"`
	Conversion *domain.Conversion `json:"conversion"`
	SentAt     time.Time          `json:"sent_at"`
}

// Forwarder posts attributed conversions to the CRM webhook, signed with
// HMAC-SHA256 over the body.
type Forwarder struct {
	httpClient *http.Client
	webhookURL string
	secret     string
	sink       string
	breaker    Breaker
	queue      Enqueuer
	logger     *slog.Logger
	now        func() time.Time
}

// CRMSink names the circuit breaker sink for a CRM webhook URL.
func CRMSink(webhookURL string) string {
	return "crm:" + webhookURL
}

func NewForwarder(webhookURL, secret string, breaker Breaker, queue Enqueuer, logger *slog.Logger) *Forwarder {
	return &Forwarder{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		webhookURL: webhookURL,
		secret:     secret,
		sink:       CRMSink(webhookURL),
		breaker:    breaker,
		queue:      queue,
		logger:     logger,
		now:        time.Now,
	}
}

// Forward sends one conversion. Failures are retried through the queue with
// exponential backoff until the job's retries run out, then dropped.
func (f *Forwarder) Forward(ctx context.Context, job engine.Job) {
	if job.Conversion == nil {
		f.logger.Error("forward job has no conversion", "job_id", job.ID)
		return
	}

	if state, ok := f.breaker.AllowRequest(ctx, f.sink); !ok {
		// circuit open: try again later without spending an attempt
		f.reschedule(ctx, job, engine.Backoff(job.Attempt))
		f.logger.Warn("crm forward deferred", "conversion_id", job.Conversion.ID, "circuit", state)
		return
	}

	start := f.now()
	statusCode, err := f.post(ctx, job)
	elapsed := f.now().Sub(start).Milliseconds()

	if err == nil {
		f.breaker.RecordSuccess(ctx, f.sink)
		f.logger.Info("conversion forwarded",
			"conversion_id", job.Conversion.ID,
			"attempt", job.Attempt,
			"status_code", statusCode,
			"response_time_ms", elapsed,
		)
		return
	}

	f.breaker.RecordFailure(ctx, f.sink)

	if job.Exhausted() {
		f.logger.Error("conversion forward failed permanently",
			"conversion_id", job.Conversion.ID,
			"attempts", job.Attempt,
			"error", err,
		)
		return
	}

	next := job.Retry()
	delay := engine.Backoff(job.Attempt)
	f.reschedule(ctx, next, delay)
	f.logger.Warn("conversion forward failed",
		"conversion_id", job.Conversion.ID,
		"attempt", job.Attempt,
		"status_code", statusCode,
		"retry_in", delay.String(),
		"error", err,
	)
}

func (f *Forwarder) reschedule(ctx context.Context, job engine.Job, delay time.Duration) {
	if err := f.queue.Enqueue(ctx, job, f.now().Add(delay)); err != nil {
		f.logger.Error("failed to requeue forward job", "error", err, "job_id", job.ID)
	}
}

func (f *Forwarder) post(ctx context.Context, job engine.Job) (int, error) {
	body, err := json.Marshal(ConversionPayload{
		Event:      "conversion.attributed",
		Conversion: job.Conversion,
		SentAt:     f.now().UTC(),
	})
	if err != nil {
		return 0, fmt.Errorf("encoding payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.webhookURL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-TrackFlow-Signature", computeHMAC(body, f.secret))
	req.Header.Set("X-TrackFlow-Event", "conversion.attributed")
	req.Header.Set("X-TrackFlow-ID", job.Conversion.ID)
	req.Header.Set("X-TrackFlow-Attempt", fmt.Sprintf("%d", job.Attempt))

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode >= 400 {
		return resp.StatusCode, fmt.Errorf("crm responded %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// computeHMAC generates an HMAC-SHA256 signature for the payload.
func computeHMAC(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
