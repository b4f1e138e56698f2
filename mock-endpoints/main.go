package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"
)

var requestCount atomic.Int64

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	port := "9090"
	if p := os.Getenv("PORT"); p != "" {
		port = p
	}
	secret := os.Getenv("CRM_WEBHOOK_SECRET")

	mux := http.NewServeMux()

	// Collector that accepts every event
	mux.HandleFunc("POST /collect/success", func(w http.ResponseWriter, r *http.Request) {
		count := requestCount.Add(1)
		logEvent(logger, r, count, http.StatusAccepted)
		respond(w, http.StatusAccepted, map[string]any{"success": true})
	})

	// Collector that takes 3 seconds, longer than the client's default timeout
	mux.HandleFunc("POST /collect/slow", func(w http.ResponseWriter, r *http.Request) {
		count := requestCount.Add(1)
		time.Sleep(3 * time.Second)
		logEvent(logger, r, count, http.StatusAccepted)
		respond(w, http.StatusAccepted, map[string]any{"success": true})
	})

	// Collector that always fails
	mux.HandleFunc("POST /collect/fail", func(w http.ResponseWriter, r *http.Request) {
		count := requestCount.Add(1)
		logEvent(logger, r, count, http.StatusInternalServerError)
		respond(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	})

	// CRM sink that checks the conversion signature
	mux.HandleFunc("POST /crm/webhook", func(w http.ResponseWriter, r *http.Request) {
		count := requestCount.Add(1)
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			respond(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
			return
		}

		got := r.Header.Get("X-TrackFlow-Signature")
		if !validSignature(body, secret, got) {
			logger.Warn("crm signature mismatch", "request", count, "id", r.Header.Get("X-TrackFlow-ID"))
			respond(w, http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
			return
		}

		logger.Info("crm conversion received",
			"request", count,
			"event", r.Header.Get("X-TrackFlow-Event"),
			"id", r.Header.Get("X-TrackFlow-ID"),
			"attempt", r.Header.Get("X-TrackFlow-Attempt"),
			"bytes", len(body),
		)
		respond(w, http.StatusOK, map[string]string{"status": "received"})
	})

	// Request count since start
	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, map[string]int64{"total_requests": requestCount.Load()})
	})

	logger.Info("mock endpoint server starting",
		"port", port,
		"routes", []string{
			"POST /collect/success -> 202",
			"POST /collect/slow -> 202 (3s delay)",
			"POST /collect/fail -> 500",
			"POST /crm/webhook -> 200 when signed, 401 otherwise",
			"GET /stats -> request count",
		},
	)

	if err := http.ListenAndServe(":"+port, mux); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func logEvent(logger *slog.Logger, r *http.Request, count int64, status int) {
	var env struct {
		EventType string `json:"event_type"`
		VisitorID string `json:"visitor_id"`
	}
	json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&env)
	logger.Info("event received",
		"request", count,
		"path", r.URL.Path,
		"status", status,
		"event_type", env.EventType,
		"visitor_id", env.VisitorID,
	)
}

func validSignature(body []byte, secret, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(signature))
}
