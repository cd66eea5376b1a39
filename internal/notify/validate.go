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

package notify

import (
	"fmt"
	"net/mail"
)

// Validate checks the channel-agnostic envelope fields.
func (r NotificationRequest) Validate() error {
	if r.UserID == "" {
		return ErrMissingUserID
	}
	if r.IdempotencyKey == "" {
		return ErrMissingIdemKey
	}
	return nil
}

// Validate checks EmailPayload against spec.md §3: a parseable RFC-5322
// address, non-empty subject and body, and any cc/bcc addresses must also
// parse.
func (p EmailPayload) Validate() error {
	if _, err := mail.ParseAddress(p.To); err != nil {
		return fmt.Errorf("%w: to: %v", ErrInvalidEmail, err)
	}
	if p.Subject == "" {
		return fmt.Errorf("%w: subject is required", ErrInvalidEmail)
	}
	if p.Body == "" {
		return fmt.Errorf("%w: body is required", ErrInvalidEmail)
	}
	for _, addr := range p.CC {
		if _, err := mail.ParseAddress(addr); err != nil {
			return fmt.Errorf("%w: cc: %v", ErrInvalidEmail, err)
		}
	}
	for _, addr := range p.BCC {
		if _, err := mail.ParseAddress(addr); err != nil {
			return fmt.Errorf("%w: bcc: %v", ErrInvalidEmail, err)
		}
	}
	return nil
}

// Validate checks SmsPayload: destination at least 10 characters, message
// 1-160 characters.
func (p SmsPayload) Validate() error {
	if len(p.To) < 10 {
		return fmt.Errorf("%w: to must be at least 10 characters", ErrInvalidSms)
	}
	if len(p.Message) == 0 || len(p.Message) > 160 {
		return fmt.Errorf("%w: message must be 1-160 characters", ErrInvalidSms)
	}
	return nil
}

// Validate checks PushPayload: deviceToken, title, and body non-empty.
func (p PushPayload) Validate() error {
	if p.DeviceToken == "" {
		return fmt.Errorf("%w: deviceToken is required", ErrInvalidPush)
	}
	if p.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidPush)
	}
	if p.Body == "" {
		return fmt.Errorf("%w: body is required", ErrInvalidPush)
	}
	return nil
}
