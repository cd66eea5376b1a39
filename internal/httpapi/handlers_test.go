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

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/jredh-dev/notifier/internal/idempotency"
	"github.com/jredh-dev/notifier/internal/notify"
	"github.com/jredh-dev/notifier/internal/ratelimit"
)

// fakePublisher is an in-memory stand-in for *queue.Publisher.
type fakePublisher struct {
	mu        sync.Mutex
	connected bool
	published []notify.QueueMessage
	failNext  bool
}

func (f *fakePublisher) Publish(ctx context.Context, topic string, msg notify.QueueMessage) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return false, nil
	}
	if f.failNext {
		f.failNext = false
		return false, context.DeadlineExceeded
	}
	f.published = append(f.published, msg)
	return true, nil
}

func (f *fakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func newTestHandler(t *testing.T, quota int) (*Handler, *fakePublisher) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	pub := &fakePublisher{connected: true}
	h := New(ratelimit.New(client), idempotency.New(client), pub, quota, time.Hour, 24*time.Hour)
	return h, pub
}

func smsRequestBody(userID, idemKey string) []byte {
	body, _ := json.Marshal(map[string]interface{}{
		"userId":         userID,
		"idempotencyKey": idemKey,
		"payload": map[string]string{
			"to":      "+15551234567",
			"message": "hi there",
		},
	})
	return body
}

func TestSubmit_HappyPathReturnsAccepted(t *testing.T) {
	h, pub := newTestHandler(t, 50)
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/notifications/sms", "application/json", bytes.NewReader(smsRequestBody("u1", "k1")))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body successEnvelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.True(t, body.Success)
	require.Equal(t, notify.StatusQueued, body.Data.Status)
	require.NotEmpty(t, body.Data.ID)

	require.Len(t, pub.published, 1)
	require.Equal(t, "49", resp.Header.Get("X-RateLimit-Remaining"))
}

func TestSubmit_RejectsMissingFields(t *testing.T) {
	h, _ := newTestHandler(t, 50)
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	body, _ := json.Marshal(map[string]interface{}{
		"idempotencyKey": "k1",
		"payload":        map[string]string{"to": "+15551234567", "message": "hi"},
	})
	resp, err := http.Post(srv.URL+"/api/notifications/sms", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSubmit_RejectsInvalidPayload(t *testing.T) {
	h, _ := newTestHandler(t, 50)
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	body, _ := json.Marshal(map[string]interface{}{
		"userId":         "u1",
		"idempotencyKey": "k1",
		"payload":        map[string]string{"to": "123", "message": ""},
	})
	resp, err := http.Post(srv.URL+"/api/notifications/sms", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSubmit_RateLimitBoundary(t *testing.T) {
	h, pub := newTestHandler(t, 2)
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	for i := 0; i < 2; i++ {
		resp, err := http.Post(srv.URL+"/api/notifications/sms", "application/json", bytes.NewReader(smsRequestBody("u2", idemKey(i))))
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusAccepted, resp.StatusCode)
	}

	resp, err := http.Post(srv.URL+"/api/notifications/sms", "application/json", bytes.NewReader(smsRequestBody("u2", idemKey(2))))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Len(t, pub.published, 2)

	var body rateLimitErrorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Greater(t, body.RetryAfter, int64(0))
}

func TestSubmit_IdempotentRetryReturnsCachedResponse(t *testing.T) {
	h, pub := newTestHandler(t, 50)
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	reqBody := smsRequestBody("u3", "dupe-key")

	first, err := http.Post(srv.URL+"/api/notifications/sms", "application/json", bytes.NewReader(reqBody))
	require.NoError(t, err)
	var firstResp successEnvelope
	require.NoError(t, json.NewDecoder(first.Body).Decode(&firstResp))
	first.Body.Close()

	second, err := http.Post(srv.URL+"/api/notifications/sms", "application/json", bytes.NewReader(reqBody))
	require.NoError(t, err)
	defer second.Body.Close()
	require.Equal(t, http.StatusOK, second.StatusCode)

	var secondResp successEnvelope
	require.NoError(t, json.NewDecoder(second.Body).Decode(&secondResp))
	require.True(t, secondResp.Success)
	require.Equal(t, firstResp.Data.ID, secondResp.Data.ID)
	require.Equal(t, notify.StatusDuplicate, secondResp.Data.Status)

	require.Len(t, pub.published, 1, "the retry must not re-publish")
}

func TestSubmit_PublishFailureReturns500(t *testing.T) {
	h, pub := newTestHandler(t, 50)
	pub.failNext = true
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/notifications/sms", "application/json", bytes.NewReader(smsRequestBody("u4", "k4")))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestReady_ReflectsPublisherConnection(t *testing.T) {
	h, pub := newTestHandler(t, 50)
	pub.connected = false
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ready")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var body readyBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.False(t, body.Ready)
}

func TestReady_TrueWhenConnected(t *testing.T) {
	h, _ := newTestHandler(t, 50)
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ready")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body readyBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.True(t, body.Ready)
}

func TestHealth_ReportsBrokerConnectivity(t *testing.T) {
	h, pub := newTestHandler(t, 50)
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body healthBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(t, body.Status)
	require.NotZero(t, body.Timestamp)
	require.Equal(t, "connected", body.Services.Broker)

	pub.connected = false
	resp2, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp2.Body.Close()
	var body2 healthBody
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&body2))
	require.Equal(t, "disconnected", body2.Services.Broker)
}

func idemKey(n int) string {
	return "idemkey-" + string(rune('a'+n))
}
