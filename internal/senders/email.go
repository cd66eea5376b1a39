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
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"

	"github.com/jredh-dev/notifier/internal/notify"
)

// SMTPSender sends email notifications via a single upstream SMTP relay
// using stdlib net/smtp, the minimal-weight choice for an external
// collaborator the core treats as a black box (see DESIGN.md).
type SMTPSender struct {
	addr string // host:port
	auth smtp.Auth
	from string
}

// NewSMTPSender creates an SMTPSender. auth may be nil for relays that do
// not require authentication (e.g. a local MTA or dev mailhog instance).
func NewSMTPSender(addr, from string, auth smtp.Auth) *SMTPSender {
	return &SMTPSender{addr: addr, auth: auth, from: from}
}

// Send dispatches an EmailPayload. Connection errors and 4xx SMTP replies
// (mailbox busy, greylisting) are retriable; 5xx replies (unknown user,
// relay refused) are terminal.
func (s *SMTPSender) Send(ctx context.Context, rawPayload interface{}) (Outcome, error) {
	payload, ok := rawPayload.(notify.EmailPayload)
	if !ok {
		return OutcomeTerminal, fmt.Errorf("senders: email sender given non-EmailPayload %T", rawPayload)
	}

	recipients := append([]string{payload.To}, append(payload.CC, payload.BCC...)...)
	msg := buildMessage(s.from, payload)

	err := smtp.SendMail(s.addr, s.auth, s.from, recipients, msg)
	if err == nil {
		return OutcomeOK, nil
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return OutcomeRetriable, err
	}
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) && protoErr.Code < 500 {
		return OutcomeRetriable, err
	}
	return OutcomeTerminal, err
}

func buildMessage(from string, p notify.EmailPayload) []byte {
	msg := "From: " + from + "\r\n" +
		"To: " + p.To + "\r\n" +
		"Subject: " + p.Subject + "\r\n" +
		"\r\n" + p.Body + "\r\n"
	return []byte(msg)
}
