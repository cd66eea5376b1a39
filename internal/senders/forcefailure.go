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

package senders

import (
	"context"
	"errors"
)

// ForceFailureSender wraps another Sender and forces its outcome according
// to the FORCE_FAILURE environment variable documented in spec.md §6 — a
// worker-side testing hook for exercising the retry engine without a real
// upstream.
type ForceFailureSender struct {
	inner Sender
	mode  string // "retriable", "terminal", or "" (passthrough)
}

// NewForceFailureSender wraps inner, forcing mode if non-empty.
func NewForceFailureSender(inner Sender, mode string) *ForceFailureSender {
	return &ForceFailureSender{inner: inner, mode: mode}
}

var errForcedRetriable = errors.New("senders: forced retriable failure (FORCE_FAILURE)")
var errForcedTerminal = errors.New("senders: forced terminal failure (FORCE_FAILURE)")

// Send forces the configured outcome, or delegates to inner when mode is
// empty.
func (s *ForceFailureSender) Send(ctx context.Context, payload interface{}) (Outcome, error) {
	switch s.mode {
	case "retriable":
		return OutcomeRetriable, errForcedRetriable
	case "terminal":
		return OutcomeTerminal, errForcedTerminal
	default:
		return s.inner.Send(ctx, payload)
	}
}
