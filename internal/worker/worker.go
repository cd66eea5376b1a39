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

// Package worker implements the retry engine of spec.md §4.4: one consumer
// per channel queue, decoding, the delivery-idempotency guard, sender
// invocation, and the ack / retry-republish / dead-letter state machine.
// It generalizes the teacher's single-channel dispatch loop
// (internal/sms/kafka.go Consumer.dispatch) to any channel and to the
// MAX_RETRIES/backoff contract of spec.md §4.4.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	kafka "github.com/segmentio/kafka-go"

	"github.com/jredh-dev/notifier/internal/idempotency"
	"github.com/jredh-dev/notifier/internal/notify"
	"github.com/jredh-dev/notifier/internal/queue"
	"github.com/jredh-dev/notifier/internal/senders"
)

// Config bounds the retry engine, per spec.md §4.4 / §6.
type Config struct {
	MaxRetries     int
	BaseDelay      time.Duration
	IdempotencyTTL time.Duration
}

// DefaultConfig matches spec.md §6's documented defaults: MAX_RETRIES=5,
// RETRY_BASE_MS=1000, IDEMPOTENCY_TTL=86400s.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     5,
		BaseDelay:      time.Second,
		IdempotencyTTL: 24 * time.Hour,
	}
}

// Fetcher is the consume-side of the broker a Worker needs: fetch the next
// message and acknowledge it. *queue.Consumer satisfies this.
type Fetcher interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Ack(ctx context.Context, m kafka.Message) error
}

// Producer is the publish-side of the broker a Worker needs for retry
// republish and dead-letter routing. *queue.Publisher satisfies this.
type Producer interface {
	Publish(ctx context.Context, topic string, msg notify.QueueMessage) (bool, error)
	PublishDLQ(ctx context.Context, msg notify.QueueMessage) (bool, error)
}

// Worker consumes one channel's queue and drives the per-message pipeline.
type Worker struct {
	channel   notify.Channel
	consumer  Fetcher
	publisher Producer
	idemp     *idempotency.Cache
	sender    senders.Sender
	cfg       Config
}

// New constructs a Worker for channel, consuming from consumer and using
// publisher for retry-republish and dead-letter routing.
func New(channel notify.Channel, consumer Fetcher, publisher Producer, idemp *idempotency.Cache, sender senders.Sender, cfg Config) *Worker {
	return &Worker{
		channel:   channel,
		consumer:  consumer,
		publisher: publisher,
		idemp:     idemp,
		sender:    sender,
		cfg:       cfg,
	}
}

// Run blocks, consuming and dispatching messages until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	log.Printf("worker[%s]: starting", w.channel)
	for {
		m, err := w.consumer.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Printf("worker[%s]: shutting down", w.channel)
				return nil
			}
			return fmt.Errorf("worker[%s]: fetch: %w", w.channel, err)
		}

		w.handle(ctx, m)
	}
}

// handle implements the per-message pipeline of spec.md §4.4. Any error
// from the pipeline itself (not the sender) results in a dead-letter route
// and ack, per the "Failure isolation" requirement — the worker loop must
// never crash on a single bad message.
func (w *Worker) handle(ctx context.Context, m kafka.Message) {
	var msg notify.QueueMessage
	if err := json.Unmarshal(m.Value, &msg); err != nil {
		log.Printf("worker[%s]: decode error, routing to DLQ: %v", w.channel, err)
		w.deadLetterRaw(ctx, m)
		w.ack(ctx, m)
		return
	}

	payload, err := msg.DecodePayload()
	if err != nil {
		log.Printf("worker[%s]: payload decode error for id=%s, routing to DLQ: %v", w.channel, msg.ID, err)
		w.deadLetter(ctx, msg)
		w.ack(ctx, m)
		return
	}

	if w.idemp.AlreadyDelivered(ctx, msg.UserID, msg.IdempotencyKey) {
		log.Printf("worker[%s]: id=%s already delivered, skipping send", w.channel, msg.ID)
		w.ack(ctx, m)
		return
	}

	outcome, sendErr := senders.SafeSend(ctx, w.sender, payload)

	switch outcome {
	case senders.OutcomeOK:
		w.idemp.MarkDelivered(ctx, msg.UserID, msg.IdempotencyKey, w.cfg.IdempotencyTTL)
		log.Printf("worker[%s]: delivered id=%s", w.channel, msg.ID)
		w.ack(ctx, m)

	case senders.OutcomeRetriable:
		if msg.RetryCount >= w.cfg.MaxRetries {
			log.Printf("worker[%s]: id=%s exhausted %d retries, routing to DLQ: %v", w.channel, msg.ID, w.cfg.MaxRetries, sendErr)
			w.deadLetter(ctx, msg)
			w.ack(ctx, m)
			return
		}

		delay := backoff(w.cfg.BaseDelay, msg.RetryCount)
		log.Printf("worker[%s]: id=%s retriable failure (attempt %d), retrying in %s: %v", w.channel, msg.ID, msg.RetryCount+1, delay, sendErr)
		w.scheduleRetry(ctx, msg, delay)
		w.ack(ctx, m)

	case senders.OutcomeTerminal:
		log.Printf("worker[%s]: id=%s terminal failure, routing to DLQ: %v", w.channel, msg.ID, sendErr)
		w.deadLetter(ctx, msg)
		w.ack(ctx, m)

	default:
		log.Printf("worker[%s]: id=%s %v, routing to DLQ", w.channel, msg.ID, ErrUnknownOutcome)
		w.deadLetter(ctx, msg)
		w.ack(ctx, m)
	}
}

// backoff computes base * 2^retryCount, matching spec.md §4.4's sequence
// 1, 2, 4, 8, 16 seconds for base=1s.
func backoff(base time.Duration, retryCount int) time.Duration {
	return time.Duration(float64(base) * math.Pow(2, float64(retryCount)))
}

// scheduleRetry sleeps the computed delay and republishes msg with an
// incremented retry count, per spec.md §4.4's "Delay implementation"
// option of the worker sleeping before republish.
func (w *Worker) scheduleRetry(ctx context.Context, msg notify.QueueMessage, delay time.Duration) {
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return
	}

	msg.RetryCount++
	if _, err := w.publisher.Publish(ctx, queue.TopicFor(w.channel), msg); err != nil {
		log.Printf("worker[%s]: CRITICAL failed to republish id=%s: %v", w.channel, msg.ID, err)
	}
}

func (w *Worker) deadLetter(ctx context.Context, msg notify.QueueMessage) {
	if _, err := w.publisher.PublishDLQ(ctx, msg); err != nil {
		log.Printf("worker[%s]: CRITICAL could not write id=%s to DLQ: %v", w.channel, msg.ID, err)
	}
}

// deadLetterRaw handles the decode-failure path, where msg could not be
// parsed into a QueueMessage at all; it forwards the raw bytes verbatim so
// the payload can still be inspected out-of-band.
func (w *Worker) deadLetterRaw(ctx context.Context, m kafka.Message) {
	fallback := notify.QueueMessage{
		ID:        fmt.Sprintf("undecodable-%d", time.Now().UnixNano()),
		Type:      w.channel,
		Timestamp: time.Now().UnixMilli(),
		Payload:   m.Value,
	}
	w.deadLetter(ctx, fallback)
}

func (w *Worker) ack(ctx context.Context, m kafka.Message) {
	if err := w.consumer.Ack(ctx, m); err != nil {
		log.Printf("worker[%s]: commit failed (message may be redelivered): %v", w.channel, err)
	}
}

// ErrUnknownOutcome guards against a Sender implementation returning an
// Outcome value outside the defined enum.
var ErrUnknownOutcome = errors.New("worker: sender returned unknown outcome")
