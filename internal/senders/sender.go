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

// Package senders provides the pluggable channel-sender contract of
// spec.md §1 ("send(payload) -> {ok | retriable-error | terminal-error}")
// and minimal default implementations per channel, generalizing the
// teacher's single-channel Sender/TelnyxSender (internal/sms/sender.go).
package senders

import (
	"context"
	"errors"
)

// Outcome classifies a send attempt per spec.md §4.4 / §7.
type Outcome int

const (
	// OutcomeOK means the recipient accepted the notification.
	OutcomeOK Outcome = iota
	// OutcomeRetriable means a transient failure occurred (network error,
	// upstream 5xx, explicit throttle); the caller should retry with
	// backoff up to MAX_RETRIES.
	OutcomeRetriable
	// OutcomeTerminal means the failure cannot be fixed by retrying
	// (malformed recipient, auth rejection, permanent 4xx).
	OutcomeTerminal
)

// ErrSenderPanicked is wrapped around any recovered panic from a Sender, so
// callers can classify it as OutcomeRetriable per spec.md §4.4's
// "Failure isolation" requirement.
var ErrSenderPanicked = errors.New("senders: sender panicked")

// Sender is the minimal contract any channel backend must implement. Its
// Send method never needs to distinguish more than ok/retriable/terminal;
// the taxonomy of which underlying errors map to which Outcome is
// sender-specific (spec.md §9(b)) and lives in each implementation below.
type Sender interface {
	Send(ctx context.Context, payload interface{}) (Outcome, error)
}

// SafeSend invokes sender.Send, recovering any panic and reporting it as
// OutcomeRetriable so a misbehaving sender can never crash the worker loop
// (spec.md §4.4, "Failure isolation").
func SafeSend(ctx context.Context, sender Sender, payload interface{}) (outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome = OutcomeRetriable
			err = errors.Join(ErrSenderPanicked, errFromRecover(r))
		}
	}()
	return sender.Send(ctx, payload)
}

func errFromRecover(r interface{}) error {
	if e, ok := r.(error); ok {
		return e
	}
	return errors.New("senders: panic: " + toString(r))
}

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return "non-string panic value"
}
