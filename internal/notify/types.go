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

// Package notify holds the wire schema shared by the ingress and worker
// binaries: inbound requests, channel payloads, the on-wire QueueMessage,
// and the cached response shape.
package notify

import "encoding/json"

// Channel identifies a delivery medium. It doubles as the last path segment
// of the ingress URL and as the Kafka topic suffix.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
)

// Valid reports whether c is one of the known channels.
func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelPush:
		return true
	default:
		return false
	}
}

// EmailPayload is the body of an email notification.
//
//	{
//	  "to":      "a@b.c",
//	  "subject": "subject line",
//	  "body":    "message body",
//	  "cc":      ["c@d.e"],
//	  "bcc":     ["f@g.h"]
//	}
type EmailPayload struct {
	To      string   `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
	CC      []string `json:"cc,omitempty"`
	BCC     []string `json:"bcc,omitempty"`
}

// SmsPayload is the body of an SMS notification. Message is limited to
// 160 characters, matching a single GSM-7 segment.
type SmsPayload struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

// PushPayload is the body of a push notification.
type PushPayload struct {
	DeviceToken string            `json:"deviceToken"`
	Title       string            `json:"title"`
	Body        string            `json:"body"`
	Data        map[string]string `json:"data,omitempty"`
}

// NotificationRequest is the inbound HTTP body for any channel endpoint.
// Payload is decoded separately per-channel by the caller (see
// internal/httpapi), since its shape depends on the URL's channel segment.
type NotificationRequest struct {
	UserID         string `json:"userId"`
	IdempotencyKey string `json:"idempotencyKey"`
}

// NotificationResponse is both the HTTP response body and the value cached
// under the idempotency key.
type NotificationResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

const (
	StatusQueued    = "queued"
	StatusDuplicate = "duplicate"
)

// QueueMessage is the on-wire broker payload. RetryCount tracks the number
// of redelivery attempts already made; a fresh publish always carries 0.
type QueueMessage struct {
	ID             string          `json:"id"`
	Type           Channel         `json:"type"`
	UserID         string          `json:"userId"`
	IdempotencyKey string          `json:"idempotencyKey"`
	Payload        json.RawMessage `json:"payload"`
	Timestamp      int64           `json:"timestamp"`
	RetryCount     int             `json:"retryCount"`
}

// DecodePayload unmarshals Payload into the struct appropriate for Type.
// It returns ErrInvalidChannel for an unrecognized Type.
func (m QueueMessage) DecodePayload() (interface{}, error) {
	switch m.Type {
	case ChannelEmail:
		var p EmailPayload
		if err := json.Unmarshal(m.Payload, &p); err != nil {
			return nil, err
		}
		return p, nil
	case ChannelSMS:
		var p SmsPayload
		if err := json.Unmarshal(m.Payload, &p); err != nil {
			return nil, err
		}
		return p, nil
	case ChannelPush:
		var p PushPayload
		if err := json.Unmarshal(m.Payload, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, ErrInvalidChannel
	}
}
