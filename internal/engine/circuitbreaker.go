package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Circuit states.
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half-open"
)

// BreakerConfig controls when a sink's circuit opens and how long it stays
// open before a trial request is let through.
type BreakerConfig struct {
	Threshold int
	Cooldown  time.Duration
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{Threshold: 5, Cooldown: 30 * time.Second}
}

// CircuitBreaker guards outbound sinks such as the CRM webhook. Each sink's
// circuit is a Redis hash so every instance sees the same state, and every
// transition runs as one Lua script.
//
// A closed circuit counts consecutive failures and opens at the threshold.
// An open circuit rejects requests until the cooldown since the last failure
// has passed, then turns half-open. A half-open circuit closes on the next
// success and reopens on the next failure.
type CircuitBreaker struct {
	client *redis.Client
	cfg    BreakerConfig
	logger *slog.Logger
	now    func() time.Time
}

// SinkStatus is a point-in-time view of one sink's circuit.
type SinkStatus struct {
	Sink         string     `json:"sink"`
	State        string     `json:"state"`
	Failures     int        `json:"failures"`
	Threshold    int        `json:"threshold"`
	LastFailedAt *time.Time `json:"last_failed_at,omitempty"`
	RetryAt      *time.Time `json:"retry_at,omitempty"`
}

// KEYS[1] circuit hash; ARGV now_ms, cooldown_ms.
// Returns {state, transitioned}.
var allowScript = redis.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
if state ~= 'open' then
    return {state or 'closed', 0}
end
local last = tonumber(redis.call('HGET', KEYS[1], 'last_failed_at') or '0')
if tonumber(ARGV[1]) - last < tonumber(ARGV[2]) then
    return {'open', 0}
end
redis.call('HSET', KEYS[1], 'state', 'half-open')
return {'half-open', 1}
`)

// KEYS[1] circuit hash; ARGV now_ms, threshold.
// Returns {previous state, new state, failures}.
var failureScript = redis.NewScript(`
local prev = redis.call('HGET', KEYS[1], 'state') or 'closed'
local failures = redis.call('HINCRBY', KEYS[1], 'failures', 1)
local next = prev
if prev == 'half-open' or failures >= tonumber(ARGV[2]) then
    next = 'open'
end
redis.call('HSET', KEYS[1], 'state', next, 'last_failed_at', ARGV[1])
return {prev, next, failures}
`)

// KEYS[1] circuit hash. Returns the previous state.
var successScript = redis.NewScript(`
local prev = redis.call('HGET', KEYS[1], 'state') or 'closed'
redis.call('HSET', KEYS[1], 'state', 'closed', 'failures', 0)
return prev
`)

// NewCircuitBreaker creates a breaker. Zero fields in cfg take the defaults.
func NewCircuitBreaker(client *redis.Client, cfg BreakerConfig, logger *slog.Logger) *CircuitBreaker {
	def := DefaultBreakerConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	return &CircuitBreaker{client: client, cfg: cfg, logger: logger, now: time.Now}
}

func cbKey(sink string) string {
	return fmt.Sprintf("trackflow:cb:%s", sink)
}

// AllowRequest reports the sink's state and whether a request may proceed.
// Redis errors leave the circuit closed.
func (cb *CircuitBreaker) AllowRequest(ctx context.Context, sink string) (string, bool) {
	res, err := allowScript.Run(ctx, cb.client, []string{cbKey(sink)},
		cb.now().UnixMilli(), cb.cfg.Cooldown.Milliseconds(),
	).Slice()
	if err != nil || len(res) != 2 {
		cb.logger.Warn("circuit breaker unavailable", "sink", sink, "error", err)
		return StateClosed, true
	}

	state, _ := res[0].(string)
	if moved, _ := res[1].(int64); moved == 1 {
		cb.logger.Info("circuit breaker half-open", "sink", sink)
	}
	return state, state != StateOpen
}

// RecordSuccess closes the circuit and clears its failure count.
func (cb *CircuitBreaker) RecordSuccess(ctx context.Context, sink string) {
	prev, err := successScript.Run(ctx, cb.client, []string{cbKey(sink)}).Text()
	if err != nil {
		cb.logger.Error("failed to record circuit breaker success", "sink", sink, "error", err)
		return
	}
	if prev != StateClosed {
		cb.logger.Info("circuit breaker closed", "sink", sink, "from", prev)
	}
}

// RecordFailure counts a failure, opening the circuit at the threshold or
// straight away when the failed request was a half-open trial.
func (cb *CircuitBreaker) RecordFailure(ctx context.Context, sink string) {
	res, err := failureScript.Run(ctx, cb.client, []string{cbKey(sink)},
		cb.now().UnixMilli(), cb.cfg.Threshold,
	).Slice()
	if err != nil || len(res) != 3 {
		cb.logger.Error("failed to record circuit breaker failure", "sink", sink, "error", err)
		return
	}

	prev, _ := res[0].(string)
	next, _ := res[1].(string)
	failures, _ := res[2].(int64)
	if prev != StateOpen && next == StateOpen {
		cb.logger.Warn("circuit breaker opened",
			"sink", sink,
			"from", prev,
			"failures", failures,
			"threshold", cb.cfg.Threshold,
			"cooldown", cb.cfg.Cooldown.String(),
		)
	}
}

// Status reports the sink's circuit without changing it. An open circuit
// whose cooldown has passed is reported half-open, as the next request
// would find it.
func (cb *CircuitBreaker) Status(ctx context.Context, sink string) (SinkStatus, error) {
	status := SinkStatus{Sink: sink, State: StateClosed, Threshold: cb.cfg.Threshold}

	data, err := cb.client.HGetAll(ctx, cbKey(sink)).Result()
	if err != nil {
		return status, fmt.Errorf("reading circuit %s: %w", sink, err)
	}
	if s := data["state"]; s != "" {
		status.State = s
	}
	status.Failures, _ = strconv.Atoi(data["failures"])

	if ms, _ := strconv.ParseInt(data["last_failed_at"], 10, 64); ms > 0 {
		last := time.UnixMilli(ms).UTC()
		status.LastFailedAt = &last
		if status.State == StateOpen {
			retry := last.Add(cb.cfg.Cooldown)
			if cb.now().Before(retry) {
				status.RetryAt = &retry
			} else {
				status.State = StateHalfOpen
			}
		}
	}
	return status, nil
}
