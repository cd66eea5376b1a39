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

package senders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jredh-dev/notifier/internal/notify"
)

// HTTPPushSender sends push notifications to a generic provider endpoint
// over stdlib net/http, mirroring the teacher's TelnyxSender shape
// (internal/sms/sender.go) applied to the push channel.
type HTTPPushSender struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPPushSender creates an HTTPPushSender pointed at a provider's
// message endpoint (e.g. an FCM or APNs gateway's HTTP v1 API).
func NewHTTPPushSender(endpoint, apiKey string) *HTTPPushSender {
	return &HTTPPushSender{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type pushRequest struct {
	DeviceToken string            `json:"deviceToken"`
	Title       string            `json:"title"`
	Body        string            `json:"body"`
	Data        map[string]string `json:"data,omitempty"`
}

// Send dispatches a PushPayload. A 404/410 ("token not registered") is
// terminal; 429/5xx/network errors are retriable.
func (s *HTTPPushSender) Send(ctx context.Context, rawPayload interface{}) (Outcome, error) {
	payload, ok := rawPayload.(notify.PushPayload)
	if !ok {
		return OutcomeTerminal, fmt.Errorf("senders: push sender given non-PushPayload %T", rawPayload)
	}

	body, err := json.Marshal(pushRequest{
		DeviceToken: payload.DeviceToken,
		Title:       payload.Title,
		Body:        payload.Body,
		Data:        payload.Data,
	})
	if err != nil {
		return OutcomeTerminal, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return OutcomeTerminal, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return OutcomeRetriable, fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return OutcomeOK, nil
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusGone:
		return OutcomeTerminal, fmt.Errorf("push provider returned %d: %s", resp.StatusCode, respBody)
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return OutcomeRetriable, fmt.Errorf("push provider returned %d: %s", resp.StatusCode, respBody)
	default:
		return OutcomeTerminal, fmt.Errorf("push provider returned %d: %s", resp.StatusCode, respBody)
	}
}
