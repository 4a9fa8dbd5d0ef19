package validation

import (
	"fmt"
	"strings"
)

// Code classifies a payload problem for logs and API responses.
type Code string

const (
	PayloadTooLarge        Code = "PAYLOAD_TOO_LARGE"
	InvalidJSON            Code = "INVALID_JSON"
	SchemaValidationFailed Code = "SCHEMA_VALIDATION_FAILED"
	MissingRequiredField   Code = "MISSING_REQUIRED_FIELD"
	InvalidFieldType       Code = "INVALID_FIELD_TYPE"
	InvalidFieldValue      Code = "INVALID_FIELD_VALUE"
	InvalidEventType       Code = "INVALID_EVENT_TYPE"
	// InvalidEventData marks completion events that disagree with computed progress.
	InvalidEventData Code = "INVALID_EVENT_DATA"
)

// Error is a structured validation failure. Details are "path: message" lines.
type Error struct {
	Code    Code           `json:"code"`
	Message string         `json:"message"`
	Details []string       `json:"details,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

func NewError(code Code, msg string, details ...string) *Error {
	return &Error{Code: code, Message: msg, Details: details}
}

func (e *Error) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, strings.Join(e.Details, "; "))
}

// WithContext attaches structured log context and returns e.
func (e *Error) WithContext(kv map[string]any) *Error {
	e.Context = kv
	return e
}
