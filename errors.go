package genflow

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigInvalidErr is returned when a ClientConfig or CallParams value is invalid.
// This can occur in several scenarios:
//   - [ClientConfig.Model] is empty
//   - [ClientConfig.Temperature], [ClientConfig.TopP], or [ClientConfig.TopK] are out of range
//   - A retry budget or [ClientConfig.MaxToolRounds] is negative
//   - Two tools in one call share a name, or a tool has no handler
//
// Construction fails with this error; calls fail with it before any network traffic.
type ConfigInvalidErr struct {
	// Field is the name of the offending field
	Field string
	// Reason describes why the field is invalid
	Reason string
}

func (c ConfigInvalidErr) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", c.Field, c.Reason)
}

// InvalidMediaErr is returned when an attached Media lacks a MIME type or bytes.
// The check happens while the request is built, so no network call is made.
type InvalidMediaErr struct {
	// Index is the position of the attachment in the resolved media list
	Index int
	// Reason describes what the attachment is missing
	Reason string
	// Cause is set when the byte accessor itself failed
	Cause error
}

func (i InvalidMediaErr) Error() string {
	if i.Cause != nil {
		return fmt.Sprintf("invalid media at index %d: %s: %v", i.Index, i.Reason, i.Cause)
	}
	return fmt.Sprintf("invalid media at index %d: %s", i.Index, i.Reason)
}

func (i InvalidMediaErr) Unwrap() error {
	return i.Cause
}

// ApiErr is returned when the remote service answers with a non-success status that
// is not retried, or with an error object in a success envelope.
type ApiErr struct {
	// StatusCode is the HTTP status code
	StatusCode int
	// Status is the vendor status string, e.g. RESOURCE_EXHAUSTED, when the body carried one
	Status string
	// Message is the vendor error message, when the body carried one
	Message string
	// Body is the raw response body, truncated for very large payloads
	Body string
}

func (a ApiErr) Error() string {
	if a.Message != "" {
		return fmt.Sprintf("api error: status code %d: %s", a.StatusCode, a.Message)
	}
	return fmt.Sprintf("api error: status code %d: %s", a.StatusCode, a.Body)
}

// RetryExhaustedErr is returned when every attempt of the transport retry budget failed
// with a retriable condition. Last holds the final attempt's failure.
type RetryExhaustedErr struct {
	Attempts int
	Last     error
}

func (r RetryExhaustedErr) Error() string {
	return fmt.Sprintf("retry budget exhausted after %d attempts: %v", r.Attempts, r.Last)
}

func (r RetryExhaustedErr) Unwrap() error {
	return r.Last
}

// SchemaComplianceErr is returned when structured output was requested and every
// compliance attempt came back without any content. Cause is the translation of the
// final empty response, kept for diagnostics.
type SchemaComplianceErr struct {
	Attempts int
	Cause    error
}

func (s SchemaComplianceErr) Error() string {
	if s.Cause != nil {
		return fmt.Sprintf("no schema-compliant response after %d attempts: %v", s.Attempts, s.Cause)
	}
	return fmt.Sprintf("no schema-compliant response after %d attempts", s.Attempts)
}

func (s SchemaComplianceErr) Unwrap() error {
	return s.Cause
}

// UnknownToolErr is returned when the model invokes a tool name that is not part of the
// call's declared tool set. The string value is the requested name.
type UnknownToolErr string

func (u UnknownToolErr) Error() string {
	return fmt.Sprintf("model requested unknown tool: %q", string(u))
}

// ToolCallLimitErr is returned when the tool-calling loop reaches its round limit
// without a final answer.
type ToolCallLimitErr struct {
	Rounds int
}

func (t ToolCallLimitErr) Error() string {
	return fmt.Sprintf("tool call limit of %d rounds exceeded", t.Rounds)
}

// ResponseTruncatedErr is returned when generation stopped at the output token limit
// before producing any usable content.
type ResponseTruncatedErr struct {
	// MaxOutputTokens is the limit that was in effect, 0 when none was sent
	MaxOutputTokens int
}

func (r ResponseTruncatedErr) Error() string {
	if r.MaxOutputTokens > 0 {
		return fmt.Sprintf("response truncated at max output tokens (%d); consider raising the limit", r.MaxOutputTokens)
	}
	return "response truncated at the model's output token limit; consider setting a larger max output tokens"
}

// ContentBlockedErr is returned when the remote safety system withheld the response
// or rejected the prompt. The string value contains the reason reported by the service.
type ContentBlockedErr string

func (c ContentBlockedErr) Error() string {
	return fmt.Sprintf("content blocked: %s", string(c))
}

// UnexpectedResponseShapeErr is returned when a response cannot be interpreted: an empty
// candidate without an explanatory finish reason, a body that does not decode, or
// embeddings that do not line up with their inputs.
type UnexpectedResponseShapeErr struct {
	Reason string
	// Excerpt is a truncated copy of the offending payload
	Excerpt string
}

func (u UnexpectedResponseShapeErr) Error() string {
	if u.Excerpt == "" {
		return fmt.Sprintf("unexpected response shape: %s", u.Reason)
	}
	return fmt.Sprintf("unexpected response shape: %s: %s", u.Reason, u.Excerpt)
}

// MalformedToolArgumentsErr is returned when the arguments of a tool invocation cannot be
// parsed as a JSON object. This usually means generation was cut short, so the message
// suggests a larger output token budget.
type MalformedToolArgumentsErr struct {
	Tool  string
	Raw   string
	Cause error
}

func (m MalformedToolArgumentsErr) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "malformed arguments for tool %q", m.Tool)
	if m.Cause != nil {
		fmt.Fprintf(&b, ": %v", m.Cause)
	}
	b.WriteString("; the output may have been cut short, consider raising max output tokens")
	return b.String()
}

func (m MalformedToolArgumentsErr) Unwrap() error {
	return m.Cause
}

// UnsupportedOperationErr is returned when the selected Dialect cannot perform an
// operation, e.g. embeddings against the Anthropic Messages API.
type UnsupportedOperationErr struct {
	Dialect   string
	Operation string
}

func (u UnsupportedOperationErr) Error() string {
	return fmt.Sprintf("%s dialect does not support %s", u.Dialect, u.Operation)
}

// EmptyConversationErr is returned when Continue is given a conversation without turns.
var EmptyConversationErr = errors.New("empty conversation: at least one turn required")
