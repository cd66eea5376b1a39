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

import "errors"

// Validation errors. These surface to the client as 400s with no side
// effects — see internal/httpapi.
var (
	ErrMissingUserID  = errors.New("userId required for rate limiting")
	ErrMissingIdemKey = errors.New("idempotencyKey is required")
	ErrMissingPayload = errors.New("payload is required")
	ErrInvalidChannel = errors.New("unknown notification channel")
	ErrInvalidEmail   = errors.New("invalid email payload")
	ErrInvalidSms     = errors.New("invalid sms payload")
	ErrInvalidPush    = errors.New("invalid push payload")
)

// Publish/response errors, surfaced as 429/500 by internal/httpapi.
var (
	ErrRateLimited   = errors.New("rate limit exceeded")
	ErrPublishFailed = errors.New("failed to publish notification")
)
