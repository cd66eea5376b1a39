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

const telnyxMessagesURL = "https://api.telnyx.com/v2/messages"

// TelnyxSender sends SMS notifications via the Telnyx REST API using
// stdlib net/http only, generalizing the teacher's internal/sms/sender.go
// TelnyxSender from a Kafka-specific consumer dependency to the
// channel-agnostic Sender contract.
type TelnyxSender struct {
	apiKey     string
	fromNumber string
	httpClient *http.Client
}

// NewTelnyxSender creates a TelnyxSender ready to use. apiKey is the Telnyx
// API v2 key; fromNumber is the provisioned E.164 sending number.
func NewTelnyxSender(apiKey, fromNumber string) *TelnyxSender {
	return &TelnyxSender{
		apiKey:     apiKey,
		fromNumber: fromNumber,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type telnyxRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
	Text string `json:"text"`
}

type telnyxResponse struct {
	Errors []struct {
		Code   string `json:"code"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

// Send dispatches an SmsPayload to the Telnyx API, classifying outcomes per
// spec.md §7: a 4xx other than 429 is terminal, a 429 or 5xx or network
// error is retriable.
func (s *TelnyxSender) Send(ctx context.Context, rawPayload interface{}) (Outcome, error) {
	payload, ok := rawPayload.(notify.SmsPayload)
	if !ok {
		return OutcomeTerminal, fmt.Errorf("senders: sms sender given non-SmsPayload %T", rawPayload)
	}

	body, err := json.Marshal(telnyxRequest{From: s.fromNumber, To: payload.To, Text: payload.Message})
	if err != nil {
		return OutcomeTerminal, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, telnyxMessagesURL, bytes.NewReader(body))
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
		var telResp telnyxResponse
		if err := json.Unmarshal(respBody, &telResp); err == nil && len(telResp.Errors) > 0 {
			return OutcomeTerminal, fmt.Errorf("telnyx error %s: %s", telResp.Errors[0].Code, telResp.Errors[0].Detail)
		}
		return OutcomeOK, nil
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return OutcomeRetriable, fmt.Errorf("telnyx returned %d: %s", resp.StatusCode, respBody)
	default:
		return OutcomeTerminal, fmt.Errorf("telnyx returned %d: %s", resp.StatusCode, respBody)
	}
}
