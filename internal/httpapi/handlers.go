// notifier - notification delivery pipeline
// Copyright (C) 2026  notifier contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.

// Package httpapi implements the ingress HTTP surface of spec.md §4: per
// channel submission endpoints running the rate-limit, idempotency-probe,
// and durable-publish pipeline, plus health and readiness checks.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jredh-dev/notifier/internal/idempotency"
	"github.com/jredh-dev/notifier/internal/notify"
	"github.com/jredh-dev/notifier/internal/queue"
	"github.com/jredh-dev/notifier/internal/ratelimit"
)

// Publisher is the publish-side of the broker an ingress Handler needs.
// *queue.Publisher satisfies this; tests use an in-memory fake.
type Publisher interface {
	Publish(ctx context.Context, topic string, msg notify.QueueMessage) (bool, error)
	IsConnected() bool
}

// Handler holds the dependencies shared by every ingress request, following
// the teacher's Handler-struct convention.
type Handler struct {
	limiter         *ratelimit.Limiter
	idemp           *idempotency.Cache
	publisher       Publisher
	rateLimitQuota  int
	rateLimitWindow time.Duration
	idempotencyTTL  time.Duration
}

// New constructs a Handler.
func New(limiter *ratelimit.Limiter, idemp *idempotency.Cache, publisher Publisher, quota int, window, idempotencyTTL time.Duration) *Handler {
	return &Handler{
		limiter:         limiter,
		idemp:           idemp,
		publisher:       publisher,
		rateLimitQuota:  quota,
		rateLimitWindow: window,
		idempotencyTTL:  idempotencyTTL,
	}
}

// Routes assembles the chi router for the ingress surface. Any middleware
// must be supplied here since chi requires middlewares to be registered
// before routes.
func (h *Handler) Routes(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	for _, m := range middlewares {
		r.Use(m)
	}

	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)

	r.Post("/api/notifications/email", h.submit(notify.ChannelEmail))
	r.Post("/api/notifications/sms", h.submit(notify.ChannelSMS))
	r.Post("/api/notifications/push", h.submit(notify.ChannelPush))

	return r
}

// healthServices reports the connection state of the broker as seen by
// GET /health, per spec.md §6.
type healthServices struct {
	Broker string `json:"broker"`
}

// healthBody is the documented GET /health response shape of spec.md §6.
type healthBody struct {
	Status    string         `json:"status"`
	Timestamp int64          `json:"timestamp"`
	Services  healthServices `json:"services"`
}

// readyBody is the documented GET /ready response shape of spec.md §6.
type readyBody struct {
	Ready bool `json:"ready"`
}

// Health reports process liveness and broker connectivity, per spec.md §6.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	broker := "disconnected"
	if h.publisher.IsConnected() {
		broker = "connected"
	}
	writeJSON(w, http.StatusOK, healthBody{
		Status:    "ok",
		Timestamp: time.Now().UnixMilli(),
		Services:  healthServices{Broker: broker},
	})
}

// Ready reports whether the publisher currently holds a broker connection,
// per spec.md §6's readiness contract.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !h.publisher.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, readyBody{Ready: false})
		return
	}
	writeJSON(w, http.StatusOK, readyBody{Ready: true})
}

// envelope is the channel-agnostic shape every submission decodes first;
// Payload is re-decoded per channel once the URL segment identifies it.
type envelope struct {
	notify.NotificationRequest
	Payload json.RawMessage `json:"payload"`
}

// submit returns the handler for one channel's submission endpoint,
// implementing the pipeline of spec.md §4: validate, rate-limit, probe
// idempotency, publish, cache the response.
func (h *Handler) submit(channel notify.Channel) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var env envelope
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON body: %w", err))
			return
		}

		if err := env.NotificationRequest.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		payload, err := decodeAndValidatePayload(channel, env.Payload)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		now := time.Now()
		limitResult := h.limiter.Admit(
			ctx,
			ratelimit.Key(env.UserID, string(channel)),
			now,
			h.rateLimitWindow,
			h.rateLimitQuota,
			uuid.NewString(),
		)
		setRateLimitHeaders(w, h.rateLimitQuota, limitResult)
		if !limitResult.Allowed {
			writeRateLimitError(w, now, limitResult)
			return
		}

		if cached, err := h.idemp.Probe(ctx, env.UserID, env.IdempotencyKey); err != nil {
			log.Printf("httpapi: idempotency probe error, proceeding: %v", err)
		} else if cached != nil {
			cached.Status = notify.StatusDuplicate
			writeSuccess(w, http.StatusOK, *cached)
			return
		}

		payloadJSON, err := json.Marshal(payload)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}

		msg := notify.QueueMessage{
			ID:             uuid.NewString(),
			Type:           channel,
			UserID:         env.UserID,
			IdempotencyKey: env.IdempotencyKey,
			Payload:        payloadJSON,
			Timestamp:      time.Now().UnixMilli(),
			RetryCount:     0,
		}

		ok, err := h.publisher.Publish(ctx, queue.TopicFor(channel), msg)
		if err != nil {
			log.Printf("httpapi: publish error for id=%s: %v", msg.ID, err)
			writeError(w, http.StatusInternalServerError, notify.ErrPublishFailed)
			return
		}
		if !ok {
			writeError(w, http.StatusInternalServerError, notify.ErrPublishFailed)
			return
		}

		resp := notify.NotificationResponse{
			ID:      msg.ID,
			Status:  notify.StatusQueued,
			Message: "notification queued for delivery",
		}
		h.idemp.Store(ctx, env.UserID, env.IdempotencyKey, resp, h.idempotencyTTL)

		writeSuccess(w, http.StatusAccepted, resp)
	}
}

// decodeAndValidatePayload unmarshals raw into the struct appropriate for
// channel and runs its Validate method.
func decodeAndValidatePayload(channel notify.Channel, raw json.RawMessage) (interface{}, error) {
	if len(raw) == 0 {
		return nil, notify.ErrMissingPayload
	}

	switch channel {
	case notify.ChannelEmail:
		var p notify.EmailPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", notify.ErrInvalidEmail, err)
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		return p, nil
	case notify.ChannelSMS:
		var p notify.SmsPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", notify.ErrInvalidSms, err)
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		return p, nil
	case notify.ChannelPush:
		var p notify.PushPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", notify.ErrInvalidPush, err)
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, notify.ErrInvalidChannel
	}
}

// setRateLimitHeaders reports X-RateLimit-{Limit,Remaining,Reset} per
// spec.md §4.1's response contract.
func setRateLimitHeaders(w http.ResponseWriter, limit int, result ratelimit.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetTime.Unix(), 10))
}

// successEnvelope wraps every 202/200 submission response in the
// {success:true, data:{...}} shape documented in spec.md §6.
type successEnvelope struct {
	Success bool                        `json:"success"`
	Data    notify.NotificationResponse `json:"data"`
}

func writeSuccess(w http.ResponseWriter, status int, resp notify.NotificationResponse) {
	writeJSON(w, status, successEnvelope{Success: true, Data: resp})
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}

// rateLimitErrorBody is the documented 429 body of spec.md §4.1/§6, carrying
// retryAfter alongside the error per scenario 2's testable property
// (retryAfter > 0).
type rateLimitErrorBody struct {
	Error      string `json:"error"`
	RetryAfter int64  `json:"retryAfter"`
}

// writeRateLimitError writes the 429 body with retryAfter computed as
// ceil((resetTime-now)/1000), per spec.md §4.1.
func writeRateLimitError(w http.ResponseWriter, now time.Time, result ratelimit.Result) {
	retryAfter := int64(math.Ceil(result.ResetTime.Sub(now).Seconds()))
	if retryAfter < 0 {
		retryAfter = 0
	}
	writeJSON(w, http.StatusTooManyRequests, rateLimitErrorBody{
		Error:      notify.ErrRateLimited.Error(),
		RetryAfter: retryAfter,
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("httpapi: failed to encode response: %v", err)
	}
}

// shutdownTimeout bounds graceful shutdown, matching the teacher's
// services/portal server.
const shutdownTimeout = 10 * time.Second

// Shutdown drains srv within shutdownTimeout.
func Shutdown(ctx context.Context, srv *http.Server) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
