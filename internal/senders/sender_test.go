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
	"testing"

	"github.com/stretchr/testify/require"
)

type panickingSender struct{}

func (panickingSender) Send(ctx context.Context, payload interface{}) (Outcome, error) {
	panic("boom")
}

func TestSafeSend_RecoversPanicAsRetriable(t *testing.T) {
	outcome, err := SafeSend(context.Background(), panickingSender{}, nil)
	require.Equal(t, OutcomeRetriable, outcome)
	require.Error(t, err)
}

type okSender struct{ calls int }

func (s *okSender) Send(ctx context.Context, payload interface{}) (Outcome, error) {
	s.calls++
	return OutcomeOK, nil
}

func TestForceFailureSender_ForcesRetriable(t *testing.T) {
	inner := &okSender{}
	s := NewForceFailureSender(inner, "retriable")
	outcome, err := s.Send(context.Background(), nil)
	require.Equal(t, OutcomeRetriable, outcome)
	require.Error(t, err)
	require.Zero(t, inner.calls, "inner sender must not be invoked when forcing failure")
}

func TestForceFailureSender_ForcesTerminal(t *testing.T) {
	s := NewForceFailureSender(&okSender{}, "terminal")
	outcome, err := s.Send(context.Background(), nil)
	require.Equal(t, OutcomeTerminal, outcome)
	require.Error(t, err)
}

func TestForceFailureSender_PassthroughWhenEmpty(t *testing.T) {
	inner := &okSender{}
	s := NewForceFailureSender(inner, "")
	outcome, err := s.Send(context.Background(), nil)
	require.Equal(t, OutcomeOK, outcome)
	require.NoError(t, err)
	require.Equal(t, 1, inner.calls)
}
