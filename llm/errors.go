package llm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyResponse indicates the provider returned no completion choices.
var ErrEmptyResponse = errors.New("no response choices returned from provider")

// SoftErrorKind classifies recoverable LLM failures. Soft errors mark a
// single topic or call as failed without aborting the surrounding run.
type SoftErrorKind int

const (
	// SoftGeneric is a transient provider failure with no specific class.
	SoftGeneric SoftErrorKind = iota
	// SoftQuota means the provider rejected the call for quota or rate
	// limit reasons (HTTP 429 or an equivalent message).
	SoftQuota
	// SoftParse means the model answered but the reply was unusable
	// (malformed JSON, empty content).
	SoftParse
)

// String returns the kind name used in logs.
func (k SoftErrorKind) String() string {
	switch k {
	case SoftQuota:
		return "quota"
	case SoftParse:
		return "parse"
	default:
		return "generic"
	}
}

// SoftError is a recoverable LLM failure. Callers that process many topics
// treat a SoftError as a per-topic failure and keep going; anything else
// aborts the run.
type SoftError struct {
	Kind SoftErrorKind
	Op   string // operation that failed, e.g. "extract_topics"
	Err  error
}

// Error implements the error interface.
func (e *SoftError) Error() string {
	return fmt.Sprintf("llm %s: %s failure: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *SoftError) Unwrap() error {
	return e.Err
}

// NewSoftError wraps err as a soft failure for the given operation,
// classifying quota errors by inspecting the provider message.
func NewSoftError(op string, err error) *SoftError {
	kind := SoftGeneric
	if isQuotaError(err) {
		kind = SoftQuota
	}
	return &SoftError{Kind: kind, Op: op, Err: err}
}

// NewParseError wraps err as an unusable-reply failure.
func NewParseError(op string, err error) *SoftError {
	return &SoftError{Kind: SoftParse, Op: op, Err: err}
}

// IsSoft reports whether err is (or wraps) a SoftError.
func IsSoft(err error) bool {
	var soft *SoftError
	return errors.As(err, &soft)
}

// IsQuota reports whether err is a quota-classified soft error.
func IsQuota(err error) bool {
	var soft *SoftError
	return errors.As(err, &soft) && soft.Kind == SoftQuota
}

// quotaMarkers are provider message fragments that indicate quota or rate
// limit exhaustion.
var quotaMarkers = []string{
	"429",
	"quota",
	"rate limit",
	"rate_limit",
	"resource_exhausted",
	"too many requests",
}

// isQuotaError inspects the error text for quota and rate limit markers.
func isQuotaError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range quotaMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
