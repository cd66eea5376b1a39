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

package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	kafka "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/jredh-dev/notifier/internal/idempotency"
	"github.com/jredh-dev/notifier/internal/notify"
	"github.com/jredh-dev/notifier/internal/senders"
)

// fakeBroker is an in-memory stand-in for the Kafka-backed queue, giving
// the retry engine a deterministic single-channel queue plus DLQ without a
// live broker.
type fakeBroker struct {
	mu    sync.Mutex
	inbox []kafka.Message
	dlq   []notify.QueueMessage
	acked int
}

func (f *fakeBroker) push(msg notify.QueueMessage) {
	body, _ := json.Marshal(msg)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inbox = append(f.inbox, kafka.Message{Value: body})
}

func (f *fakeBroker) Fetch(ctx context.Context) (kafka.Message, error) {
	for {
		f.mu.Lock()
		if len(f.inbox) > 0 {
			m := f.inbox[0]
			f.inbox = f.inbox[1:]
			f.mu.Unlock()
			return m, nil
		}
		f.mu.Unlock()

		select {
		case <-ctx.Done():
			return kafka.Message{}, ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

func (f *fakeBroker) Ack(ctx context.Context, m kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked++
	return nil
}

func (f *fakeBroker) Publish(ctx context.Context, topic string, msg notify.QueueMessage) (bool, error) {
	f.push(msg)
	return true, nil
}

func (f *fakeBroker) PublishDLQ(ctx context.Context, msg notify.QueueMessage) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dlq = append(f.dlq, msg)
	return true, nil
}

func newTestIdempotency(t *testing.T) *idempotency.Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return idempotency.New(client)
}

// countingSender lets tests control how many attempts fail before success.
type countingSender struct {
	mu        sync.Mutex
	attempts  int
	failTimes int
	outcome   senders.Outcome // outcome to return while failing
}

func (s *countingSender) Send(ctx context.Context, payload interface{}) (senders.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.attempts <= s.failTimes {
		return s.outcome, errors.New("simulated failure")
	}
	return senders.OutcomeOK, nil
}

func smsMessage(id, userID, idemKey string, retryCount int) notify.QueueMessage {
	payload, _ := json.Marshal(notify.SmsPayload{To: "+15551234567", Message: "hi"})
	return notify.QueueMessage{
		ID:             id,
		Type:           notify.ChannelSMS,
		UserID:         userID,
		IdempotencyKey: idemKey,
		Payload:        payload,
		Timestamp:      time.Now().UnixMilli(),
		RetryCount:     retryCount,
	}
}

func runWorkerBriefly(t *testing.T, w *Worker, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	_ = w.Run(ctx)
}

// Scenario 4: retry then success — sender fails retriably twice then
// succeeds. Final ack, zero DLQ entries, three total invocations.
func TestWorker_RetryThenSuccess(t *testing.T) {
	broker := &fakeBroker{}
	idemp := newTestIdempotency(t)
	sender := &countingSender{failTimes: 2, outcome: senders.OutcomeRetriable}
	cfg := Config{MaxRetries: 5, BaseDelay: time.Millisecond, IdempotencyTTL: time.Hour}
	w := New(notify.ChannelSMS, broker, broker, idemp, sender, cfg)

	broker.push(smsMessage("msg-1", "u1", "k1", 0))

	runWorkerBriefly(t, w, 200*time.Millisecond)

	require.Equal(t, 3, sender.attempts)
	require.Empty(t, broker.dlq)
	require.True(t, idemp.AlreadyDelivered(context.Background(), "u1", "k1"))
}

// Scenario 5: exhaustion to DLQ — sender always fails retriably,
// MAX_RETRIES=5 means 6 total invocations and exactly one DLQ entry.
func TestWorker_ExhaustsToDeadLetter(t *testing.T) {
	broker := &fakeBroker{}
	idemp := newTestIdempotency(t)
	sender := &countingSender{failTimes: 1000, outcome: senders.OutcomeRetriable}
	cfg := Config{MaxRetries: 5, BaseDelay: time.Millisecond, IdempotencyTTL: time.Hour}
	w := New(notify.ChannelSMS, broker, broker, idemp, sender, cfg)

	broker.push(smsMessage("msg-2", "u2", "k2", 0))

	runWorkerBriefly(t, w, 500*time.Millisecond)

	require.Equal(t, 6, sender.attempts)
	require.Len(t, broker.dlq, 1)
	require.Equal(t, "msg-2", broker.dlq[0].ID)
}

// Terminal errors go straight to the DLQ regardless of retryCount.
func TestWorker_TerminalGoesStraightToDeadLetter(t *testing.T) {
	broker := &fakeBroker{}
	idemp := newTestIdempotency(t)
	sender := &countingSender{failTimes: 1000, outcome: senders.OutcomeTerminal}
	cfg := Config{MaxRetries: 5, BaseDelay: time.Millisecond, IdempotencyTTL: time.Hour}
	w := New(notify.ChannelSMS, broker, broker, idemp, sender, cfg)

	broker.push(smsMessage("msg-3", "u3", "k3", 0))

	runWorkerBriefly(t, w, 100*time.Millisecond)

	require.Equal(t, 1, sender.attempts)
	require.Len(t, broker.dlq, 1)
}

// P4: at-most-once delivery per idempotency key — the delivered guard
// prevents a second successful send invocation for the same key.
func TestWorker_DeliveredGuardPreventsSecondInvocation(t *testing.T) {
	broker := &fakeBroker{}
	idemp := newTestIdempotency(t)
	sender := &countingSender{failTimes: 0, outcome: senders.OutcomeOK}
	cfg := Config{MaxRetries: 5, BaseDelay: time.Millisecond, IdempotencyTTL: time.Hour}
	w := New(notify.ChannelSMS, broker, broker, idemp, sender, cfg)

	broker.push(smsMessage("msg-4", "u4", "k4", 0))
	broker.push(smsMessage("msg-4-redelivered", "u4", "k4", 0))

	runWorkerBriefly(t, w, 100*time.Millisecond)

	require.Equal(t, 1, sender.attempts, "sender must be invoked at most once for the same idempotency key")
}

// Decode errors route straight to the DLQ and the loop continues.
func TestWorker_DecodeErrorRoutesToDeadLetter(t *testing.T) {
	broker := &fakeBroker{}
	idemp := newTestIdempotency(t)
	sender := &countingSender{outcome: senders.OutcomeOK}
	cfg := Config{MaxRetries: 5, BaseDelay: time.Millisecond, IdempotencyTTL: time.Hour}
	w := New(notify.ChannelSMS, broker, broker, idemp, sender, cfg)

	broker.mu.Lock()
	broker.inbox = append(broker.inbox, kafka.Message{Value: []byte("not json")})
	broker.mu.Unlock()
	broker.push(smsMessage("msg-5", "u5", "k5", 0))

	runWorkerBriefly(t, w, 100*time.Millisecond)

	require.Equal(t, 1, sender.attempts)
	require.Len(t, broker.dlq, 1)
}

// P5: total sender invocations for any message <= MAX_RETRIES + 1.
func TestWorker_RetryBound(t *testing.T) {
	broker := &fakeBroker{}
	idemp := newTestIdempotency(t)
	sender := &countingSender{failTimes: 1000, outcome: senders.OutcomeRetriable}
	cfg := Config{MaxRetries: 3, BaseDelay: time.Millisecond, IdempotencyTTL: time.Hour}
	w := New(notify.ChannelSMS, broker, broker, idemp, sender, cfg)

	broker.push(smsMessage("msg-6", "u6", "k6", 0))

	runWorkerBriefly(t, w, 300*time.Millisecond)

	require.LessOrEqual(t, sender.attempts, cfg.MaxRetries+1)
	require.Equal(t, cfg.MaxRetries+1, sender.attempts)
}
