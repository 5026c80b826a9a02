package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorType classifies completion failures.
type ErrorType string

const (
	ErrorQuota     ErrorType = "quota"
	ErrorRate      ErrorType = "rate"
	ErrorTransient ErrorType = "transient"
	ErrorContext   ErrorType = "context" // prompt exceeds the model's context window
	ErrorAuth      ErrorType = "auth"
	ErrorCanceled  ErrorType = "canceled"
	ErrorPermanent ErrorType = "permanent"
)

// ErrEmptyResponse is returned when the model answers with no choices.
var ErrEmptyResponse = errors.New("empty response from model")

// ClassifyError maps a provider error to an ErrorType.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return ErrorCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrEmptyResponse) {
		return ErrorTransient
	}

	e := strings.ToLower(err.Error())
	switch {
	case containsAny(e, "context_length", "context length", "maximum context", "too long", "reduce the length", "too many tokens"):
		return ErrorContext
	case containsAny(e, "401", "403", "unauthorized", "invalid api key", "incorrect api key", "invalid_api_key", "authentication", "permission"):
		return ErrorAuth
	case containsAny(e, "insufficient_quota", "quota", "credit", "billing"):
		return ErrorQuota
	case containsAny(e, "rate limit", "rate_limit", "ratelimit", "429", "too many requests"):
		return ErrorRate
	case containsAny(e, "timeout", "timed out", "temporarily", "unavailable", "overloaded",
		"500", "502", "503", "504", "connection reset", "connection refused", "eof", "server error"):
		return ErrorTransient
	default:
		return ErrorPermanent
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// CallError is the final outcome of a failed Complete.
type CallError struct {
	Type     ErrorType
	Attempts int
	Err      error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("LLM call failed after %d attempts (%s): %v", e.Attempts, e.Type, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// IsFatal reports whether err should stop the whole run rather than one record.
func IsFatal(err error) bool {
	var callErr *CallError
	if errors.As(err, &callErr) {
		return callErr.Type == ErrorAuth || callErr.Type == ErrorQuota || callErr.Type == ErrorCanceled
	}
	return errors.Is(err, context.Canceled)
}
