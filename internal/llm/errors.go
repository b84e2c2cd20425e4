package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

type ErrorClass string

const (
	RateLimited ErrorClass = "RateLimited"
	Transient   ErrorClass = "Transient"
	Fatal       ErrorClass = "Fatal"
)

// ErrUnauthorized marks a fatal failure that will repeat on every call, so a
// run should stop instead of burning through its chunks.
var ErrUnauthorized = errors.New("provider rejected credentials")

type CallError struct {
	Class      ErrorClass
	RetryAfter time.Duration
	Status     int
	Reason     string
	Err        error
}

func (e *CallError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Class, e.Status, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Class, e.Reason)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

func (e *CallError) Retryable() bool {
	return e.Class == RateLimited || e.Class == Transient
}

// Aborts reports whether the failure should end the whole run.
func (e *CallError) Aborts() bool {
	return e.Class == Fatal && errors.Is(e.Err, ErrUnauthorized)
}

func NewRateLimited(retryAfter time.Duration, reason string) *CallError {
	return &CallError{Class: RateLimited, RetryAfter: retryAfter, Status: http.StatusTooManyRequests, Reason: reason}
}

func NewTransient(status int, reason string, err error) *CallError {
	return &CallError{Class: Transient, Status: status, Reason: reason, Err: err}
}

func NewFatal(status int, reason string, err error) *CallError {
	return &CallError{Class: Fatal, Status: status, Reason: reason, Err: err}
}

const maxReasonBytes = 300

// Truncate cuts s to at most n bytes without splitting a rune.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// FromHTTPStatus maps a provider HTTP status to the taxonomy.
func FromHTTPStatus(status int, header http.Header, body string) *CallError {
	reason := Truncate(strings.TrimSpace(body), maxReasonBytes)
	if reason == "" {
		reason = http.StatusText(status)
	}

	switch {
	case status == http.StatusTooManyRequests:
		var retryAfter time.Duration
		if header != nil {
			retryAfter = ParseRetryAfter(header.Get("Retry-After"))
		}
		return NewRateLimited(retryAfter, reason)
	case status == 529: //anthropic overloaded
		return &CallError{Class: RateLimited, Status: status, Reason: reason}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return NewFatal(status, reason, ErrUnauthorized)
	case status == http.StatusRequestTimeout || status == http.StatusConflict || status >= 500:
		return NewTransient(status, reason, nil)
	case status >= 400:
		return NewFatal(status, reason, nil)
	}
	return NewTransient(status, reason, nil)
}

// ParseRetryAfter accepts delta seconds or an HTTP date.
func ParseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// Classify turns any provider error into a *CallError. Adapters classify
// what their SDK exposes; this covers the rest.
func Classify(err error) *CallError {
	if err == nil {
		return nil
	}
	var callErr *CallError
	if errors.As(err, &callErr) {
		return callErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTransient(0, "call timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return NewTransient(0, "call cancelled", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return NewTransient(0, netErr.Error(), err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests") || strings.Contains(msg, "quota"):
		return &CallError{Class: RateLimited, Status: http.StatusTooManyRequests, Reason: err.Error(), Err: err}
	case strings.Contains(msg, "401") || strings.Contains(msg, "invalid api key") ||
		strings.Contains(msg, "unauthorized") || strings.Contains(msg, "permission denied"):
		return NewFatal(http.StatusUnauthorized, err.Error(), fmt.Errorf("%w: %w", ErrUnauthorized, err))
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "eof") || strings.Contains(msg, "timeout"):
		return NewTransient(0, err.Error(), err)
	}
	return NewTransient(0, err.Error(), err)
}
