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

// Package queue is the durable queue fabric of spec.md §4.3, realized on
// top of Kafka topics rather than AMQP exchanges/queues (see SPEC_FULL.md
// §4.3 for the object mapping). One topic per channel plus a shared
// dead-letter topic stand in for the per-channel durable queues and DLQ.
package queue

import "github.com/jredh-dev/notifier/internal/notify"

// ConsumerGroup is shared by every channel consumer so a deployment can run
// multiple worker processes per channel without double-delivery beyond
// what spec.md already tolerates (at-least-once).
const ConsumerGroup = "notifier-worker"

// TopicDLQ is the shared dead-letter sink for all channels, standing in for
// notifications.dlq bound to notifications.dlx in spec.md §4.3.
const TopicDLQ = "notifications.dlq"

// TopicFor returns the durable work-queue topic for a channel, standing in
// for notifications.email / notifications.sms / notifications.push.
func TopicFor(channel notify.Channel) string {
	return "notifications." + string(channel)
}
