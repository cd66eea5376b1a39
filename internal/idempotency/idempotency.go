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

// Package idempotency caches the response for a (userId, idempotencyKey)
// request so client-level retries replay the original response instead of
// re-enqueueing, and guards delivery-side at-most-once sends. See
// spec.md §4.2 and §4.4 item 2.
package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jredh-dev/notifier/internal/notify"
)

// Cache wraps the shared Redis store for both the pre-publish response
// cache and the post-delivery guard.
type Cache struct {
	client *redis.Client
}

// New wraps an existing Redis client.
func New(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func responseKey(userID, idempotencyKey string) string {
	return fmt.Sprintf("idempotency:%s:%s", userID, idempotencyKey)
}

func deliveredKey(userID, idempotencyKey string) string {
	return fmt.Sprintf("delivered:%s:%s", userID, idempotencyKey)
}

// Probe looks up a cached response for (userID, idempotencyKey). A nil
// response with a nil error means no prior response exists and the
// caller should proceed to publish. On a store error, per spec.md §7 the
// probe is treated as a miss so the request proceeds (logged, not failed).
func (c *Cache) Probe(ctx context.Context, userID, idempotencyKey string) (*notify.NotificationResponse, error) {
	raw, err := c.client.Get(ctx, responseKey(userID, idempotencyKey)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		log.Printf("idempotency: probe error for key %s/%s, treating as not-duplicate: %v", userID, idempotencyKey, err)
		return nil, nil
	}

	var resp notify.NotificationResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		log.Printf("idempotency: corrupt cached response for key %s/%s, treating as not-duplicate: %v", userID, idempotencyKey, err)
		return nil, nil
	}
	return &resp, nil
}

// Store writes resp under the idempotency key with the given TTL. A write
// failure is logged but never returned as an error to the caller: the
// publish already succeeded, so the request must still be reported as
// queued (spec.md §4.2's post-publish store policy).
func (c *Cache) Store(ctx context.Context, userID, idempotencyKey string, resp notify.NotificationResponse, ttl time.Duration) {
	data, err := json.Marshal(resp)
	if err != nil {
		log.Printf("idempotency: failed to marshal response for key %s/%s: %v", userID, idempotencyKey, err)
		return
	}
	if err := c.client.Set(ctx, responseKey(userID, idempotencyKey), data, ttl).Err(); err != nil {
		log.Printf("idempotency: failed to store response for key %s/%s: %v", userID, idempotencyKey, err)
	}
}

// AlreadyDelivered reports whether a message with this idempotency key has
// already been handed to a sender successfully. This is the delivery-side
// guard required by spec.md §4.4 item 2 / §9(c), the authoritative deduper
// satisfying property P4.
func (c *Cache) AlreadyDelivered(ctx context.Context, userID, idempotencyKey string) bool {
	n, err := c.client.Exists(ctx, deliveredKey(userID, idempotencyKey)).Result()
	if err != nil {
		log.Printf("idempotency: delivered-guard lookup error for key %s/%s: %v", userID, idempotencyKey, err)
		return false
	}
	return n > 0
}

// MarkDelivered records that a send for this idempotency key succeeded, with
// TTL at least as long as the response cache TTL (spec.md §4.4 item "ok").
func (c *Cache) MarkDelivered(ctx context.Context, userID, idempotencyKey string, ttl time.Duration) {
	if err := c.client.Set(ctx, deliveredKey(userID, idempotencyKey), "1", ttl).Err(); err != nil {
		log.Printf("idempotency: failed to mark delivered for key %s/%s: %v", userID, idempotencyKey, err)
	}
}
