package llm

import (
	"fmt"
	"strings"
)

// ErrorCode is the fixed taxonomy surfaced to callers. Provider-specific
// error shapes are mapped onto these codes and never exposed raw.
type ErrorCode string

const (
	CodeMissingCredential  ErrorCode = "MISSING_CREDENTIAL"
	CodeInvalidCredential  ErrorCode = "INVALID_CREDENTIAL"
	CodeRateLimited        ErrorCode = "RATE_LIMITED"
	CodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	CodeModelUnavailable   ErrorCode = "MODEL_UNAVAILABLE"
	CodeMalformedResponse  ErrorCode = "MALFORMED_RESPONSE"
	CodeUnknown            ErrorCode = "UNKNOWN"
)

// RetryAction tells the client what it may do after a classified failure.
type RetryAction int

const (
	FailFast       RetryAction = iota // abort, no more attempts
	RetrySameModel                    // back off and re-issue against the same model
	AdvanceModel                      // skip straight to the next fallback model
)

// retryPolicy is the explicit transient/non-transient classification table.
var retryPolicy = map[ErrorCode]RetryAction{
	CodeMissingCredential:  FailFast,
	CodeInvalidCredential:  FailFast,
	CodeRateLimited:        RetrySameModel,
	CodeServiceUnavailable: RetrySameModel,
	CodeModelUnavailable:   AdvanceModel,
	CodeMalformedResponse:  FailFast,
	CodeUnknown:            FailFast,
}

// userMessages are the human-readable descriptions shown on failed items.
var userMessages = map[ErrorCode]string{
	CodeMissingCredential:  "No API key is configured. Set OPENAI_API_KEY and retry.",
	CodeInvalidCredential:  "The configured API key was rejected by the provider.",
	CodeRateLimited:        "The AI service is rate limiting requests. Try again in a minute.",
	CodeServiceUnavailable: "The AI service is temporarily unavailable. Try again shortly.",
	CodeModelUnavailable:   "None of the configured models are currently available.",
	CodeMalformedResponse:  "The AI reply did not contain valid meter readings. Retry the photo.",
	CodeUnknown:            "Reading extraction failed unexpectedly.",
}

// ExtractionError is a provider failure mapped onto the fixed taxonomy.
type ExtractionError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *ExtractionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ExtractionError) Unwrap() error { return e.Cause }

// Action returns what the resilience policy allows after this error.
func (e *ExtractionError) Action() RetryAction { return retryPolicy[e.Code] }

// Transient reports whether another attempt is worth making at all.
func (e *ExtractionError) Transient() bool { return e.Action() != FailFast }

// UserMessage returns the taxonomy's human-readable description.
func (e *ExtractionError) UserMessage() string {
	if m, ok := userMessages[e.Code]; ok {
		return m
	}
	return userMessages[CodeUnknown]
}

// UserMessage returns the canonical human-readable description for a code.
func UserMessage(code ErrorCode) string {
	if m, ok := userMessages[code]; ok {
		return m
	}
	return userMessages[CodeUnknown]
}

// NewExtractionError constructs an ExtractionError with the canonical message.
func NewExtractionError(code ErrorCode, cause error) *ExtractionError {
	return &ExtractionError{Code: code, Message: userMessages[code], Cause: cause}
}

// Classify maps an HTTP status plus response body onto the taxonomy.
// Textual markers in the body upgrade otherwise-unknown statuses to a
// transient code, since some gateways hide overload behind 200-family
// proxies or generic 4xx.
func Classify(status int, body []byte) *ExtractionError {
	text := strings.ToLower(string(body))

	switch {
	case status == 401 || status == 403:
		return NewExtractionError(CodeInvalidCredential, fmt.Errorf("status %d", status))
	case status == 404:
		// model identifier not found on this endpoint
		return NewExtractionError(CodeModelUnavailable, fmt.Errorf("status %d", status))
	case status == 429:
		return NewExtractionError(CodeRateLimited, fmt.Errorf("status %d", status))
	case status >= 500 && status <= 599:
		return NewExtractionError(CodeServiceUnavailable, fmt.Errorf("status %d", status))
	}

	switch {
	case strings.Contains(text, "rate limit"), strings.Contains(text, "quota"):
		return NewExtractionError(CodeRateLimited, fmt.Errorf("status %d", status))
	case strings.Contains(text, "overloaded"), strings.Contains(text, "unavailable"):
		return NewExtractionError(CodeServiceUnavailable, fmt.Errorf("status %d", status))
	case strings.Contains(text, "model") && strings.Contains(text, "not found"):
		return NewExtractionError(CodeModelUnavailable, fmt.Errorf("status %d", status))
	}

	return NewExtractionError(CodeUnknown, fmt.Errorf("status %d: %s", status, truncate(text, 200)))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
