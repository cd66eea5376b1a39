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

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	kafka "github.com/segmentio/kafka-go"

	"github.com/jredh-dev/notifier/internal/notify"
)

const (
	reconnectBaseDelay = time.Second
	reconnectMaxDelay  = 30 * time.Second
	startupMaxAttempts = 10
)

// Publisher durably publishes QueueMessages to per-channel topics (and the
// shared DLQ topic), maintaining a reconnecting connection to the broker
// per spec.md §4.3's "Connection management".
type Publisher struct {
	brokers []string

	mu      sync.Mutex
	writers map[string]*kafka.Writer

	connected atomic.Bool

	closeOnce sync.Once
	closed    chan struct{}
}

// NewPublisher dials brokers and starts the reconnect-supervisor goroutine.
// Startup itself retries up to 10 times with exponential backoff before
// returning an error, per spec.md §4.3.
func NewPublisher(brokers []string) (*Publisher, error) {
	p := &Publisher{
		brokers: brokers,
		writers: make(map[string]*kafka.Writer),
		closed:  make(chan struct{}),
	}

	delay := reconnectBaseDelay
	var lastErr error
	for attempt := 1; attempt <= startupMaxAttempts; attempt++ {
		if err := p.probe(); err == nil {
			p.connected.Store(true)
			go p.superviseConnection()
			return p, nil
		} else {
			lastErr = err
			log.Printf("queue: startup probe attempt %d/%d failed: %v", attempt, startupMaxAttempts, err)
		}
		time.Sleep(delay)
		delay = nextDelay(delay)
	}
	return nil, fmt.Errorf("queue: broker unreachable after %d attempts: %w", startupMaxAttempts, lastErr)
}

func nextDelay(d time.Duration) time.Duration {
	d *= 2
	if d > reconnectMaxDelay {
		return reconnectMaxDelay
	}
	return d
}

// probe verifies the broker is reachable.
func (p *Publisher) probe() error {
	conn, err := kafka.DialContext(context.Background(), "tcp", p.brokers[0])
	if err != nil {
		return err
	}
	return conn.Close()
}

// superviseConnection runs for the life of the Publisher, flipping
// connected to false and reconnecting with exponential backoff whenever a
// probe fails, per spec.md §4.3.
func (p *Publisher) superviseConnection() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	delay := reconnectBaseDelay
	for {
		select {
		case <-p.closed:
			return
		case <-ticker.C:
			if err := p.probe(); err != nil {
				if p.connected.CompareAndSwap(true, false) {
					log.Printf("queue: lost connection to broker: %v", err)
				}
				time.Sleep(delay)
				delay = nextDelay(delay)
				continue
			}
			if p.connected.CompareAndSwap(false, true) {
				log.Printf("queue: reconnected to broker")
			}
			delay = reconnectBaseDelay
		}
	}
}

// IsConnected reflects whether the broker was reachable as of the last
// health probe.
func (p *Publisher) IsConnected() bool {
	return p.connected.Load()
}

func (p *Publisher) writerFor(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()
	if w, ok := p.writers[topic]; ok {
		return w
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(p.brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
	}
	p.writers[topic] = w
	return w
}

// Publish routes msg to the topic for channel with persistent delivery,
// content-type application/json, message-id, and the x-retry-count /
// x-idempotency-key headers required by spec.md §4.3. It returns false
// (no error) if the broker is currently known to be disconnected, so the
// caller surfaces a 500 without attempting the write.
func (p *Publisher) Publish(ctx context.Context, topic string, msg notify.QueueMessage) (bool, error) {
	if !p.IsConnected() {
		return false, nil
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return false, fmt.Errorf("queue: marshal message: %w", err)
	}

	err = p.writerFor(topic).WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.ID),
		Value: body,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
			{Key: "message-id", Value: []byte(msg.ID)},
			{Key: "x-retry-count", Value: []byte(strconv.Itoa(msg.RetryCount))},
			{Key: "x-idempotency-key", Value: []byte(msg.IdempotencyKey)},
		},
	})
	if err != nil {
		p.connected.Store(false)
		return false, fmt.Errorf("queue: publish to %s: %w", topic, err)
	}
	return true, nil
}

// PublishDLQ routes msg to the shared dead-letter topic.
func (p *Publisher) PublishDLQ(ctx context.Context, msg notify.QueueMessage) (bool, error) {
	return p.Publish(ctx, TopicDLQ, msg)
}

// Close stops the reconnect supervisor and closes all writers.
func (p *Publisher) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })

	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for _, w := range p.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
