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

	kafka "github.com/segmentio/kafka-go"

	"github.com/jredh-dev/notifier/internal/notify"
)

// Consumer reads durably from a single channel's work queue with manual
// acknowledgement, generalizing the teacher's single-channel
// internal/sms/kafka.go Consumer to any channel topic.
type Consumer struct {
	reader *kafka.Reader
}

// NewConsumer creates a Consumer for channel's topic. prefetch bounds how
// many messages may be read in flight before being committed, matching the
// broker "QoS" concept of spec.md §4.4.
func NewConsumer(brokers []string, channel notify.Channel, prefetch int) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          TopicFor(channel),
		GroupID:        ConsumerGroup,
		MinBytes:       1,
		MaxBytes:       1 << 20,
		QueueCapacity:  prefetch,
		CommitInterval: 0, // explicit commits only
		StartOffset:    kafka.FirstOffset,
	})
	return &Consumer{reader: reader}
}

// Fetch blocks for the next message, honoring ctx cancellation for
// graceful shutdown (spec.md §5).
func (c *Consumer) Fetch(ctx context.Context) (kafka.Message, error) {
	return c.reader.FetchMessage(ctx)
}

// Ack commits the message's offset, transferring ownership back to the
// broker per spec.md §3's ownership/lifecycle rules.
func (c *Consumer) Ack(ctx context.Context, m kafka.Message) error {
	return c.reader.CommitMessages(ctx, m)
}

// Close releases the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
