package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind is the coarse failure category callers branch on.
type Kind string

const (
	// KindUnavailable covers network failures, 5xx, missing models and anything unclassified.
	KindUnavailable Kind = "unavailable"
	// KindTimeout covers deadlines and gateway timeouts.
	KindTimeout Kind = "timeout"
	// KindRejected covers requests the backend refused: auth, billing, limits, filters.
	KindRejected Kind = "rejected"
)

// Sentinels matched by errors.Is against any *BackendError of the same Kind.
var (
	ErrUnavailable = errors.New("llm: backend unavailable")
	ErrTimeout     = errors.New("llm: backend timeout")
	ErrRejected    = errors.New("llm: backend rejected request")
)

// Reason is the fine-grained cause of a backend failure.
type Reason string

const (
	ReasonRateLimit        Reason = "rate_limit"
	ReasonAuth             Reason = "auth"
	ReasonBilling          Reason = "billing"
	ReasonTimeout          Reason = "timeout"
	ReasonServerError      Reason = "server_error"
	ReasonInvalidRequest   Reason = "invalid_request"
	ReasonModelUnavailable Reason = "model_unavailable"
	ReasonContentFilter    Reason = "content_filter"
	ReasonNetwork          Reason = "network"
	ReasonCanceled         Reason = "canceled"
	ReasonUnknown          Reason = "unknown"
)

// Kind maps a reason onto the caller-facing category.
func (r Reason) Kind() Kind {
	switch r {
	case ReasonTimeout:
		return KindTimeout
	case ReasonRateLimit, ReasonAuth, ReasonBilling, ReasonInvalidRequest, ReasonContentFilter:
		return KindRejected
	default:
		return KindUnavailable
	}
}

// BackendError is the only error type the gateway returns.
type BackendError struct {
	Kind      Kind
	Reason    Reason
	Backend   string
	Model     string
	Status    int
	Code      string
	Message   string
	RequestID string
	Cause     error
}

func (e *BackendError) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s/%s]", e.Kind, e.Reason))
	if e.Backend != "" {
		parts = append(parts, e.Backend)
	}
	if e.Model != "" {
		parts = append(parts, "model="+e.Model)
	}
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.Status))
	}
	if e.Code != "" {
		parts = append(parts, "code="+e.Code)
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

func (e *BackendError) Unwrap() error { return e.Cause }

// Is reports whether target is the sentinel for e's Kind.
func (e *BackendError) Is(target error) bool {
	switch target {
	case ErrUnavailable:
		return e.Kind == KindUnavailable
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrRejected:
		return e.Kind == KindRejected
	}
	return false
}

// NewBackendError wraps cause and classifies it from its message and context state.
func NewBackendError(backend, model string, cause error) *BackendError {
	e := &BackendError{Backend: backend, Model: model, Cause: cause}
	reason := ReasonUnknown
	if cause != nil {
		e.Message = cause.Error()
		reason = ClassifyError(cause)
	}
	e.setReason(reason)
	return e
}

func (e *BackendError) setReason(r Reason) {
	e.Reason = r
	e.Kind = r.Kind()
}

// WithStatus records the HTTP status and reclassifies from it when it is informative.
func (e *BackendError) WithStatus(status int) *BackendError {
	e.Status = status
	if r := classifyStatus(status); r != ReasonUnknown {
		e.setReason(r)
	}
	return e
}

// WithCode records a provider error code and reclassifies from it when known.
func (e *BackendError) WithCode(code string) *BackendError {
	e.Code = code
	if r := classifyCode(code); r != ReasonUnknown {
		e.setReason(r)
	}
	return e
}

func (e *BackendError) WithRequestID(id string) *BackendError {
	e.RequestID = id
	return e
}

func (e *BackendError) WithMessage(msg string) *BackendError {
	e.Message = msg
	return e
}

// AsBackendError extracts a *BackendError from err's chain.
func AsBackendError(err error) (*BackendError, bool) {
	var be *BackendError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// KindOf returns the Kind of err, classifying raw errors on the fly.
func KindOf(err error) Kind {
	if be, ok := AsBackendError(err); ok {
		return be.Kind
	}
	return ClassifyError(err).Kind()
}

// ClassifyError derives a Reason from context state and message patterns.
func ClassifyError(err error) Reason {
	if err == nil {
		return ReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ReasonCanceled
	}

	msg := strings.ToLower(err.Error())
	has := func(patterns ...string) bool {
		for _, p := range patterns {
			if strings.Contains(msg, p) {
				return true
			}
		}
		return false
	}

	switch {
	case has("timeout", "timed out", "deadline exceeded", "etimedout"):
		return ReasonTimeout
	case has("rate limit", "rate_limit", "too many requests", "throttl", "429"):
		return ReasonRateLimit
	case has("unauthorized", "invalid api key", "invalid_api_key", "authentication", "permission denied", "401", "403"):
		return ReasonAuth
	case has("billing", "payment", "quota", "insufficient", "402"):
		return ReasonBilling
	case has("content_filter", "content policy", "safety", "blocked"):
		return ReasonContentFilter
	case has("model not found", "model_not_found", "does not exist", "unavailable"):
		return ReasonModelUnavailable
	case has("internal server", "server error", "500", "502", "503", "504"):
		return ReasonServerError
	case has("connection refused", "no such host", "connection reset", "eof"):
		return ReasonNetwork
	}
	return ReasonUnknown
}

func classifyStatus(status int) Reason {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ReasonAuth
	case status == http.StatusPaymentRequired:
		return ReasonBilling
	case status == http.StatusTooManyRequests:
		return ReasonRateLimit
	case status == http.StatusBadRequest || status == http.StatusRequestEntityTooLarge || status == http.StatusUnprocessableEntity:
		return ReasonInvalidRequest
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ReasonTimeout
	case status == http.StatusNotFound:
		return ReasonModelUnavailable
	case status >= 500:
		return ReasonServerError
	}
	return ReasonUnknown
}

func classifyCode(code string) Reason {
	switch strings.ToLower(code) {
	case "rate_limit_error", "rate_limit_exceeded", "throttlingexception", "toomanyrequestsexception":
		return ReasonRateLimit
	case "authentication_error", "invalid_api_key", "permission_error", "accessdeniedexception", "unrecognizedclientexception":
		return ReasonAuth
	case "billing_error", "insufficient_quota", "servicequotaexceededexception":
		return ReasonBilling
	case "model_not_found", "model_not_available", "resourcenotfoundexception", "modelnotreadyexception":
		return ReasonModelUnavailable
	case "content_policy_violation", "content_filter":
		return ReasonContentFilter
	case "server_error", "internal_error", "overloaded_error", "internalserverexception", "serviceunavailableexception":
		return ReasonServerError
	case "invalid_request_error", "validationexception", "request_too_large":
		return ReasonInvalidRequest
	case "modeltimeoutexception":
		return ReasonTimeout
	}
	return ReasonUnknown
}
