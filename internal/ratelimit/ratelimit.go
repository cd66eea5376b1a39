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

// Package ratelimit implements the sliding-window admission control of
// spec.md §4.1 against a shared Redis store, so admission is atomic across
// any number of concurrent ingress processes.
package ratelimit

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// admitScript implements spec.md §4.1 steps 1-5 as a single atomic Lua
// script: prune expired members, compute remaining/resetTime, and — if
// under quota — admit the request by adding its timestamp to the set and
// refreshing the key's TTL to the window length.
//
// KEYS[1] = bucket key
// ARGV[1] = now (ms)
// ARGV[2] = window (ms)
// ARGV[3] = limit
// ARGV[4] = request id (unique member)
var admitScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

local count = redis.call('ZCARD', key)
local remaining = limit - count

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local resetTime
if oldest[2] then
  resetTime = tonumber(oldest[2]) + window
else
  resetTime = now + window
end

if count < limit then
  redis.call('ZADD', key, now, member)
  redis.call('PEXPIRE', key, window)
  return {1, remaining - 1, resetTime}
end

return {0, 0, resetTime}
`)

// Result is the outcome of an admission check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetTime time.Time
}

// Limiter admits requests under a per-(userId,channel) sliding window.
type Limiter struct {
	client *redis.Client
}

// New wraps an existing Redis client. The client is a shared collaborator;
// Limiter does not own its lifecycle.
func New(client *redis.Client) *Limiter {
	return &Limiter{client: client}
}

// Key derives the bucket key for a user and channel, per spec.md §4.1.
func Key(userID, channel string) string {
	return fmt.Sprintf("ratelimit:%s:%s", userID, channel)
}

// Admit evaluates the sliding window for key at now, admitting requestID if
// under limit within window. On any Redis error the limiter fails open
// (admits the request) and logs, per spec.md §4.1's "Failure policy" — the
// limiter is a soft safeguard, not a security boundary.
func (l *Limiter) Admit(ctx context.Context, key string, now time.Time, window time.Duration, limit int, requestID string) Result {
	nowMs := now.UnixMilli()
	windowMs := window.Milliseconds()

	raw, err := admitScript.Run(ctx, l.client, []string{key}, nowMs, windowMs, limit, requestID).Result()
	if err != nil {
		log.Printf("ratelimit: store unreachable, failing open for key %q: %v", key, err)
		return Result{
			Allowed:   true,
			Remaining: limit - 1,
			ResetTime: now.Add(window),
		}
	}

	vals, ok := raw.([]interface{})
	if !ok || len(vals) != 3 {
		log.Printf("ratelimit: unexpected script result for key %q: %#v", key, raw)
		return Result{Allowed: true, Remaining: limit - 1, ResetTime: now.Add(window)}
	}

	allowed := toInt64(vals[0]) == 1
	remaining := toInt64(vals[1])
	resetMs := toInt64(vals[2])

	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   allowed,
		Remaining: int(remaining),
		ResetTime: time.UnixMilli(resetMs),
	}
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}
