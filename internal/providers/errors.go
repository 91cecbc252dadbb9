package providers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/haasonsaas/agentcore/pkg/models"
)

// Kind is the three-way classification the HTTP client and agent loop use
// to decide whether to retry, surface a terminal failure, or propagate a
// caller-initiated abort.
type Kind string

const (
	KindRetryable Kind = "retryable"
	KindTerminal  Kind = "terminal"
	KindAborted   Kind = "aborted"
)

// FailoverReason is a finer-grained classification than Kind, carried
// alongside it for callers (multi-adapter failover, metrics) that want to
// distinguish rate limiting from a 5xx from an auth failure rather than
// only knowing the request is retryable.
type FailoverReason string

const (
	FailoverBilling          FailoverReason = "billing"
	FailoverRateLimit        FailoverReason = "rate_limit"
	FailoverAuth             FailoverReason = "auth"
	FailoverTimeout          FailoverReason = "timeout"
	FailoverServerError      FailoverReason = "server_error"
	FailoverInvalidRequest   FailoverReason = "invalid_request"
	FailoverModelUnavailable FailoverReason = "model_unavailable"
	FailoverContentFilter    FailoverReason = "content_filter"
	FailoverAborted          FailoverReason = "aborted"
	FailoverUnknown          FailoverReason = "unknown"
)

// Kind maps a FailoverReason onto the three-way classification the spec
// requires. Rate limits, timeouts, and server errors are retryable;
// everything else the caller can act on is terminal; FailoverAborted is
// its own kind since it must never be retried even though it originates
// client-side.
func (r FailoverReason) Kind() Kind {
	switch r {
	case FailoverAborted:
		return KindAborted
	case FailoverRateLimit, FailoverTimeout, FailoverServerError:
		return KindRetryable
	default:
		return KindTerminal
	}
}

// ShouldFailover returns true if the error warrants trying a different
// provider or model rather than only retrying the same one.
func (r FailoverReason) ShouldFailover() bool {
	switch r {
	case FailoverBilling, FailoverAuth, FailoverModelUnavailable:
		return true
	default:
		return false
	}
}

// normalizeFinishReason maps a vendor-specific stop/finish reason string
// onto the four canonical models.Finish* values the agent loop switches
// on. Unrecognized values pass through unchanged so a caller can still
// log the raw vendor reason rather than silently coercing it to "stop".
func normalizeFinishReason(raw string) string {
	switch strings.ToLower(raw) {
	case "stop", "end_turn", "stop_sequence":
		return models.FinishStop
	case "tool_calls", "tool_use", "function_call":
		return models.FinishToolCalls
	case "length", "max_tokens":
		return models.FinishLength
	case "content_filter":
		return models.FinishContentFilter
	default:
		return raw
	}
}

// Error is a structured error from an HTTP call or provider adapter. It
// captures enough context for retry policy, failover decisions, and logs.
type Error struct {
	Reason    FailoverReason
	Provider  string
	Model     string
	Status    int
	Code      string
	Message   string
	RequestID string
	Cause     error
	// RetryAfter is the provider-suggested wait before retrying, sourced
	// from a Retry-After header. Zero means the caller's backoff policy
	// should compute its own delay.
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	var parts []string
	parts = append(parts, "["+string(e.Reason)+"]")
	if e.Provider != "" {
		parts = append(parts, e.Provider)
	}
	if e.Model != "" {
		parts = append(parts, "model="+e.Model)
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

func (e *Error) Unwrap() error { return e.Cause }

// Kind reports the three-way classification for this error.
func (e *Error) Kind() Kind { return e.Reason.Kind() }

// New wraps cause into an *Error, classifying it from the error text.
func New(provider, model string, cause error) *Error {
	e := &Error{Provider: provider, Model: model, Cause: cause, Reason: FailoverUnknown}
	if cause != nil {
		e.Message = cause.Error()
		e.Reason = Classify(cause)
	}
	return e
}

func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	if reason := classifyStatusCode(status); reason != FailoverUnknown {
		e.Reason = reason
	}
	return e
}

func (e *Error) WithCode(code string) *Error {
	e.Code = code
	if reason := classifyErrorCode(code); reason != FailoverUnknown {
		e.Reason = reason
	}
	return e
}

func (e *Error) WithRequestID(id string) *Error {
	e.RequestID = id
	return e
}

func (e *Error) WithMessage(msg string) *Error {
	e.Message = msg
	return e
}

func (e *Error) WithRetryAfter(d time.Duration) *Error {
	e.RetryAfter = d
	return e
}

// Classify inspects an error (context cancellation first, then message
// text, mirroring a vendor-agnostic best-effort classifier) and returns
// the FailoverReason it maps to.
func Classify(err error) FailoverReason {
	if err == nil {
		return FailoverUnknown
	}
	if errors.Is(err, context.Canceled) {
		return FailoverAborted
	}

	errStr := strings.ToLower(err.Error())

	switch {
	case errors.Is(err, context.DeadlineExceeded),
		strings.Contains(errStr, "timeout"),
		strings.Contains(errStr, "deadline exceeded"),
		strings.Contains(errStr, "etimedout"):
		return FailoverTimeout
	case strings.Contains(errStr, "rate limit"),
		strings.Contains(errStr, "rate_limit"),
		strings.Contains(errStr, "too many requests"),
		strings.Contains(errStr, "429"):
		return FailoverRateLimit
	case strings.Contains(errStr, "unauthorized"),
		strings.Contains(errStr, "invalid api key"),
		strings.Contains(errStr, "authentication"),
		strings.Contains(errStr, "401"),
		strings.Contains(errStr, "403"):
		return FailoverAuth
	case strings.Contains(errStr, "billing"),
		strings.Contains(errStr, "payment"),
		strings.Contains(errStr, "quota"),
		strings.Contains(errStr, "insufficient"),
		strings.Contains(errStr, "402"):
		return FailoverBilling
	case strings.Contains(errStr, "content_filter"),
		strings.Contains(errStr, "content policy"),
		strings.Contains(errStr, "blocked by safety"):
		return FailoverContentFilter
	case strings.Contains(errStr, "model not found"),
		strings.Contains(errStr, "model_not_found"),
		strings.Contains(errStr, "does not exist"):
		return FailoverModelUnavailable
	case strings.Contains(errStr, "internal server"),
		strings.Contains(errStr, "server error"),
		strings.Contains(errStr, "bad gateway"),
		strings.Contains(errStr, "service unavailable"):
		return FailoverServerError
	default:
		return FailoverUnknown
	}
}

func classifyStatusCode(status int) FailoverReason {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return FailoverAuth
	case status == http.StatusPaymentRequired:
		return FailoverBilling
	case status == http.StatusTooManyRequests:
		return FailoverRateLimit
	case status == http.StatusBadRequest:
		return FailoverInvalidRequest
	case status == http.StatusNotFound:
		return FailoverModelUnavailable
	case status >= 500:
		return FailoverServerError
	default:
		return FailoverUnknown
	}
}

func classifyErrorCode(code string) FailoverReason {
	switch strings.ToLower(code) {
	case "rate_limit_error", "rate_limit_exceeded":
		return FailoverRateLimit
	case "authentication_error", "invalid_api_key":
		return FailoverAuth
	case "billing_error", "insufficient_quota":
		return FailoverBilling
	case "model_not_found", "model_not_available":
		return FailoverModelUnavailable
	case "content_policy_violation", "content_filter":
		return FailoverContentFilter
	case "server_error", "internal_error":
		return FailoverServerError
	case "invalid_request_error":
		return FailoverInvalidRequest
	default:
		return FailoverUnknown
	}
}

// AsError extracts an *Error from an error chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// ClassifyKind is the convenience entry point C1/C8 use: given any error
// (already wrapped as *Error or raw), return its three-way Kind.
func ClassifyKind(err error) Kind {
	if e, ok := AsError(err); ok {
		return e.Kind()
	}
	return Classify(err).Kind()
}

// IsRetryable reports whether err should be retried by the agent loop.
func IsRetryable(err error) bool { return ClassifyKind(err) == KindRetryable }

// IsAborted reports whether err originated from caller cancellation.
func IsAborted(err error) bool { return ClassifyKind(err) == KindAborted }

// ShouldFailover reports whether err warrants trying a different adapter.
func ShouldFailover(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Reason.ShouldFailover()
	}
	return Classify(err).ShouldFailover()
}
