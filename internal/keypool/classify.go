// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package keypool

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"
)

// Provider application error codes.
const (
	CodeCredentialDisabled = 1100
	CodeResourceExhausted  = 1102
	CodeRateTooHigh        = 1302
	CodeConcurrencyLimit   = 1303
)

// RateLimitCodes are the codes that, with HTTP 429, mean "try another key".
var RateLimitCodes = map[int]bool{
	CodeResourceExhausted: true,
	CodeRateTooHigh:       true,
	CodeConcurrencyLimit:  true,
}

// APIError is a non-2xx provider response.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("provider error: status %d code %d: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("provider error: status %d: %s", e.StatusCode, e.Message)
}

// ParseAPIError builds an APIError from a response. Bodies that are not
// the provider's JSON error envelope keep their text as the message.
func ParseAPIError(statusCode int, body []byte) *APIError {
	e := &APIError{StatusCode: statusCode}
	var envelope struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		e.Code = envelope.Code
		e.Message = envelope.Message
	} else {
		e.Message = string(body)
		if len(e.Message) > 256 {
			e.Message = e.Message[:256]
		}
	}
	if e.Message == "" {
		e.Message = http.StatusText(statusCode)
	}
	return e
}

// Class groups errors by how a credential-rotating caller reacts.
type Class int

const (
	ClassFatal Class = iota
	ClassRateLimited
	ClassCredential
)

func (c Class) String() string {
	switch c {
	case ClassRateLimited:
		return "rate_limited"
	case ClassCredential:
		return "credential"
	default:
		return "fatal"
	}
}

// Retryable reports whether another credential may succeed.
func (c Class) Retryable() bool {
	return c != ClassFatal
}

// Classify inspects err for an APIError. Other errors are fatal.
func Classify(err error) Class {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return ClassFatal
	}
	switch {
	case isRateLimit(apiErr.StatusCode, apiErr.Code):
		return ClassRateLimited
	case apiErr.StatusCode == http.StatusUnauthorized, apiErr.Code == CodeCredentialDisabled:
		return ClassCredential
	default:
		return ClassFatal
	}
}

// IsRateLimitError reports whether a raw response is a rate limit.
func IsRateLimitError(statusCode int, body []byte) bool {
	e := ParseAPIError(statusCode, body)
	return isRateLimit(e.StatusCode, e.Code)
}

func isRateLimit(statusCode, code int) bool {
	return statusCode == http.StatusTooManyRequests && RateLimitCodes[code]
}
