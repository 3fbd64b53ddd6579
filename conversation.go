package genflow

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Role identifies the author of a Turn.
type Role string

const (
	// RoleUser marks turns authored by the caller
	RoleUser Role = "user"
	// RoleModel marks turns produced by the remote model
	RoleModel Role = "model"
	// RoleTool marks turns carrying tool results back to the model
	RoleTool Role = "tool"
)

// InlineMedia is binary content embedded directly in a Part.
type InlineMedia struct {
	MimeType string
	Data     []byte
}

// DataURI renders the media as a data URI, e.g. data:image/png;base64,iVBOR...
func (m InlineMedia) DataURI() string {
	return fmt.Sprintf("data:%s;base64,%s", m.MimeType, base64.StdEncoding.EncodeToString(m.Data))
}

// ToolCall is a model request to invoke a named tool.
//
// Dialects that receive arguments as a JSON object fill Args directly. Dialects that
// receive arguments as a string (OpenAI) fill RawArgs and leave Args nil until
// the arguments are parsed.
type ToolCall struct {
	ID      string
	Name    string
	Args    map[string]any
	RawArgs string
}

// ToolResult carries the outcome of a tool invocation back to the model.
type ToolResult struct {
	// ID matches the ToolCall.ID that produced this result, if the dialect uses IDs
	ID   string
	Name string
	// Response is the payload sent to the model: {"result": ...} or {"error": ...}
	Response map[string]any
	IsError  bool
}

// Part is a single piece of content inside a Turn. Exactly one of Text, Media,
// ToolCall or ToolResult is meaningful for any given part.
type Part struct {
	Text       string
	Media      *InlineMedia
	ToolCall   *ToolCall
	ToolResult *ToolResult
	// Thought marks reasoning text that is not part of the answer
	Thought bool
	// Signature is an opaque vendor token that must be echoed back unchanged
	Signature []byte
}

// TextPart returns a Part holding text.
func TextPart(s string) Part {
	return Part{Text: s}
}

// MediaPart returns a Part holding inline binary content.
func MediaPart(mimeType string, data []byte) Part {
	return Part{Media: &InlineMedia{MimeType: mimeType, Data: data}}
}

// Turn is one message in a Conversation.
type Turn struct {
	Role  Role
	Parts []Part
}

// Text concatenates the non-thought text parts of the turn.
func (t Turn) Text() string {
	var b strings.Builder
	for _, p := range t.Parts {
		if p.Thought || p.ToolCall != nil || p.ToolResult != nil || p.Media != nil {
			continue
		}
		b.WriteString(p.Text)
	}
	return b.String()
}

// FirstToolCall returns the first tool invocation in the turn, or nil.
func (t Turn) FirstToolCall() *ToolCall {
	for i := range t.Parts {
		if t.Parts[i].ToolCall != nil {
			return t.Parts[i].ToolCall
		}
	}
	return nil
}

// UserTurn returns a user Turn holding a single text part.
func UserTurn(text string) Turn {
	return Turn{Role: RoleUser, Parts: []Part{TextPart(text)}}
}

// Conversation is an ordered list of turns exchanged with the model.
type Conversation []Turn

// Clone returns a copy of the conversation that can be appended to without
// affecting the original.
func (c Conversation) Clone() Conversation {
	out := make(Conversation, len(c))
	for i, t := range c {
		out[i] = Turn{Role: t.Role, Parts: append([]Part(nil), t.Parts...)}
	}
	return out
}

// toolResultPayload builds the payload fed back to the model for one tool invocation.
// A successful result is serialized into {"result": "<json>"}; a failure becomes
// {"error": "<message>"}.
func toolResultPayload(result any, callErr error) (map[string]any, bool) {
	if callErr != nil {
		return map[string]any{"error": callErr.Error()}, true
	}
	switch v := result.(type) {
	case string:
		return map[string]any{"result": v}, false
	case json.RawMessage:
		return map[string]any{"result": string(v)}, false
	}
	b, err := json.Marshal(result)
	if err != nil {
		return map[string]any{"error": fmt.Sprintf("failed to serialize tool result: %v", err)}, true
	}
	return map[string]any{"result": string(b)}, false
}
