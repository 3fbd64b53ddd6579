package genflow

import (
	"net/http"
	"strings"
)

// Dialect maps the vendor-neutral request and response model onto one remote API.
// Everything vendor specific (endpoints, auth headers, field names, finish reason
// vocabulary) lives behind this interface; the transport, compliance and tool loops
// never look inside a request body.
//
// Three dialects ship with the package: [Gemini] (the default), [OpenAI] for any
// OpenAI-compatible chat completions endpoint, and [Anthropic].
type Dialect interface {
	// Name is a short identifier used in logs and errors.
	Name() string
	// DefaultBaseURL is used when the client is not given WithBaseURL.
	DefaultBaseURL() string
	// SchemaKeywords lists the JSON Schema keywords the remote rejects. They are
	// stripped unless the caller configures UnsupportedSchemaKeywords.
	SchemaKeywords() []string
	// Authorize sets the credential headers on an outbound request.
	Authorize(h http.Header, apiKey string)

	Generate(baseURL string, req *GenerateRequest) (Call, error)
	Embed(baseURL string, req *EmbedRequest) (Call, error)
	Image(baseURL string, req *ImageRequest) (Call, error)
}

// Call is one fully encoded remote operation. It can be sent any number of times;
// the body is never modified by sending it.
type Call struct {
	URL  string
	Body any
	// Decode converts a 200 response body into the neutral ApiResponse.
	Decode func(body []byte) (*ApiResponse, error)
}

// FunctionDescriptor is the wire-facing view of a ToolDeclaration: the handler is
// dropped and the schema already has unsupported keywords removed.
type FunctionDescriptor struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// GenerateRequest is the vendor-neutral output of the Request Builder.
type GenerateRequest struct {
	Model             string
	SystemInstruction string
	Conversation      Conversation

	// nil values are omitted from the wire request
	MaxOutputTokens *int
	Temperature     *float64
	TopP            *float64
	TopK            *int
	CandidateCount  *int
	StopSequences   []string
	SafetySettings  []SafetySetting

	Tools []FunctionDescriptor
	// ResponseSchema requests structured JSON output when non-nil.
	ResponseSchema map[string]any
	// ResponseModalities requests non-text output, e.g. IMAGE.
	ResponseModalities []string
}

// EmbedRequest asks for one embedding per input text.
type EmbedRequest struct {
	Model    string
	Inputs   []string
	TaskType string
	// Batch selects the batch endpoint even for a single input.
	Batch bool
}

// ImageRequest asks for a single generated image.
type ImageRequest struct {
	Model  string
	Prompt string
	// Generate is used by dialects that produce images through their
	// generate-content endpoint.
	Generate *GenerateRequest
}

// FinishReason is the normalized reason a candidate stopped generating.
type FinishReason string

const (
	FinishUnspecified FinishReason = ""
	FinishStop        FinishReason = "stop"
	FinishMaxTokens   FinishReason = "max_tokens"
	FinishSafety      FinishReason = "safety"
	FinishToolUse     FinishReason = "tool_use"
	FinishOther       FinishReason = "other"
)

// Candidate is one alternative completion.
type Candidate struct {
	Content      Turn
	FinishReason FinishReason
	// RawFinishReason is the vendor's own value, kept for error messages
	RawFinishReason string
}

// Embedding is one vector, tagged with the index of the input it belongs to.
type Embedding struct {
	Index  int
	Values []float64
}

// ApiResponse is the neutral decoding of one remote response.
type ApiResponse struct {
	Candidates []Candidate
	// PromptBlockReason is set when the prompt itself was rejected
	PromptBlockReason string
	Embeddings        []Embedding
	Usage             Metrics
	Raw               []byte
}

// hasContent reports whether the first candidate carries at least one part.
func (r *ApiResponse) hasContent() bool {
	return r != nil && len(r.Candidates) > 0 && len(r.Candidates[0].Content.Parts) > 0
}

func joinURL(base string, elem ...string) string {
	return strings.TrimRight(base, "/") + "/" + strings.Join(elem, "/")
}
