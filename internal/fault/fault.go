// Package fault defines the closed error taxonomy used by the extraction
// pipeline and the classifier that maps arbitrary failures onto it. Retry
// decisions and persisted failure records are driven by these kinds.
package fault

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the classification tag persisted with failed extractions.
type Kind string

const (
	KindUnknown   Kind = "UNKNOWN"
	KindRetryable Kind = "RETRYABLE"
	KindPermanent Kind = "PERMANENT"
	KindTimeout   Kind = "TIMEOUT"
	KindRateLimit Kind = "RATE_LIMIT"
	KindParse     Kind = "PARSE_ERROR"
	KindLLM       Kind = "LLM_ERROR"
)

// Error is a failure carrying its own classification. Errors produced by
// pipeline components should be typed so classification never has to fall
// back to message matching.
type Error struct {
	kind  Kind
	msg   string
	cause error
}

func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an existing error, preserving it for Unwrap.
// Wrapping nil returns nil.
func Wrap(kind Kind, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{kind: kind, msg: err.Error(), cause: err}
}

func (e *Error) Error() string {
	return e.msg
}

func (e *Error) Unwrap() error {
	return e.cause
}

func (e *Error) Kind() Kind {
	return e.kind
}

// Classify maps any failure to exactly one Kind. Typed errors anywhere in
// the chain report their declared kind; otherwise the message is matched
// against known failure signatures, first match wins.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var typed *Error
	if errors.As(err, &typed) {
		return typed.kind
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429"):
		return KindRateLimit
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out"):
		return KindTimeout
	case strings.Contains(msg, "parse") || strings.Contains(msg, "decode"):
		return KindParse
	case strings.Contains(msg, "openai") || strings.Contains(msg, "llm"):
		return KindLLM
	case strings.Contains(msg, "permission") || strings.Contains(msg, "not found"):
		return KindPermanent
	case strings.Contains(msg, "connection") || strings.Contains(msg, "network"):
		return KindRetryable
	default:
		return KindUnknown
	}
}

// IsKind reports whether err classifies as kind.
func IsKind(err error, kind Kind) bool {
	return Classify(err) == kind
}
