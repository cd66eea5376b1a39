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

// worker runs one retry-engine instance per channel (email, sms, push),
// each consuming its durable queue and dispatching to the channel's sender,
// generalizing the teacher's single-channel cmd/sms-sender to all three
// channels behind a single binary.
//
// Configuration is entirely environment-driven (see internal/config), plus
// per-sender credentials:
//
//	TELNYX_API_KEY, TELNYX_FROM_NUMBER   SMS via Telnyx
//	SMTP_ADDR, SMTP_FROM,
//	SMTP_USERNAME, SMTP_PASSWORD         email via an SMTP relay
//	PUSH_ENDPOINT, PUSH_API_KEY          push via a generic HTTP provider
//	FORCE_FAILURE                        "retriable"|"terminal" testing hook
package main

import (
	"context"
	"log"
	"net/smtp"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/jredh-dev/notifier/internal/config"
	"github.com/jredh-dev/notifier/internal/idempotency"
	"github.com/jredh-dev/notifier/internal/notify"
	"github.com/jredh-dev/notifier/internal/queue"
	"github.com/jredh-dev/notifier/internal/senders"
	"github.com/jredh-dev/notifier/internal/worker"
)

const prefetch = 100

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("worker: config error: %v", err)
	}

	brokers := strings.Split(cfg.Broker.URL, ",")

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Store.URL})
	defer redisClient.Close()
	idemp := idempotency.New(redisClient)

	publisher, err := queue.NewPublisher(brokers)
	if err != nil {
		log.Fatalf("worker: failed to reach broker: %v", err)
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Printf("worker: error closing publisher: %v", err)
		}
	}()

	workerCfg := worker.Config{
		MaxRetries:     cfg.Retry.MaxRetries,
		BaseDelay:      cfg.Retry.BaseDelay,
		IdempotencyTTL: cfg.Idempotency.TTL,
	}

	channels := map[notify.Channel]senders.Sender{
		notify.ChannelEmail: buildEmailSender(),
		notify.ChannelSMS:   buildSMSSender(),
		notify.ChannelPush:  buildPushSender(),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var consumers []*queue.Consumer
	group, gctx := errgroup.WithContext(ctx)

	for channel, sender := range channels {
		channel, sender := channel, sender
		wrapped := senders.NewForceFailureSender(sender, cfg.ForceFailure)

		consumer := queue.NewConsumer(brokers, channel, prefetch)
		consumers = append(consumers, consumer)

		w := worker.New(channel, consumer, publisher, idemp, wrapped, workerCfg)
		group.Go(func() error {
			return w.Run(gctx)
		})
	}

	log.Printf("worker: starting %d channel workers", len(channels))
	if err := group.Wait(); err != nil {
		log.Printf("worker: a channel worker exited with error: %v", err)
	}

	for _, c := range consumers {
		if err := c.Close(); err != nil {
			log.Printf("worker: error closing consumer: %v", err)
		}
	}
	log.Println("worker: shutdown complete")
}

func buildSMSSender() senders.Sender {
	apiKey := requireEnv("TELNYX_API_KEY")
	fromNumber := requireEnv("TELNYX_FROM_NUMBER")
	return senders.NewTelnyxSender(apiKey, fromNumber)
}

func buildEmailSender() senders.Sender {
	addr := requireEnv("SMTP_ADDR")
	from := requireEnv("SMTP_FROM")

	var auth smtp.Auth
	if username := os.Getenv("SMTP_USERNAME"); username != "" {
		host := addr
		if idx := strings.LastIndex(addr, ":"); idx != -1 {
			host = addr[:idx]
		}
		auth = smtp.PlainAuth("", username, os.Getenv("SMTP_PASSWORD"), host)
	}
	return senders.NewSMTPSender(addr, from, auth)
}

func buildPushSender() senders.Sender {
	endpoint := requireEnv("PUSH_ENDPOINT")
	apiKey := requireEnv("PUSH_API_KEY")
	return senders.NewHTTPPushSender(endpoint, apiKey)
}

// requireEnv returns the value of the named environment variable or calls
// log.Fatal if it is empty, keeping startup-time misconfiguration loud
// instead of surfacing as a later runtime auth failure.
func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("worker: required environment variable %q is not set", key)
	}
	return v
}
