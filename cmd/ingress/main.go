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

// ingress is the HTTP front door of the notification pipeline: it validates
// inbound submissions, enforces the per-user sliding-window rate limit,
// answers idempotent retries from cache, and durably publishes accepted
// notifications onto the channel queues.
//
// Configuration is entirely environment-driven (see internal/config):
//
//	PORT                       HTTP listen port (default 3000)
//	NODE_ENV                   "development" or "production"
//	BROKER_URL                 comma-separated Kafka broker list (required)
//	STORE_URL                  Redis address (required)
//	RATE_LIMIT_QUOTA           requests per window per (user, channel)
//	RATE_LIMIT_WINDOW_SECONDS  sliding window length in seconds
//	IDEMPOTENCY_TTL            seconds a cached response is honored
package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/jredh-dev/notifier/internal/config"
	"github.com/jredh-dev/notifier/internal/httpapi"
	"github.com/jredh-dev/notifier/internal/idempotency"
	"github.com/jredh-dev/notifier/internal/queue"
	"github.com/jredh-dev/notifier/internal/ratelimit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("ingress: config error: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Store.URL})
	defer redisClient.Close()

	publisher, err := queue.NewPublisher(strings.Split(cfg.Broker.URL, ","))
	if err != nil {
		log.Fatalf("ingress: failed to reach broker: %v", err)
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Printf("ingress: error closing publisher: %v", err)
		}
	}()

	h := httpapi.New(
		ratelimit.New(redisClient),
		idempotency.New(redisClient),
		publisher,
		cfg.RateLimit.Quota,
		cfg.RateLimit.Window,
		cfg.Idempotency.TTL,
	)

	r := h.Routes(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		middleware.Timeout(30*time.Second),
	)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		log.Println("ingress: shutting down")
		if err := httpapi.Shutdown(context.Background(), srv); err != nil {
			log.Printf("ingress: shutdown error: %v", err)
		}
	}()

	log.Printf("ingress: starting on %s (env=%s)", addr, cfg.Server.Env)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("ingress: server error: %v", err)
	}
	log.Println("ingress: stopped")
}
