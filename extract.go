package genflow

import "fmt"

const excerptLength = 500

// Result is the outcome of a generation call.
type Result struct {
	// Text is the concatenated answer text of the first candidate.
	Text string
	// Structured holds the parsed JSON value when a response schema was requested,
	// or the parsed arguments when the model ended the call with a tool invocation.
	Structured any
	// ToolCall is set when the model's final answer is a tool invocation. This only
	// happens when the call declared no tools.
	ToolCall     *ToolCall
	FinishReason FinishReason
	// Conversation is the full exchange, including tool rounds and the final model turn.
	Conversation Conversation
	// Usage sums the usage metrics of every request of the call.
	Usage Metrics
	// Rounds is the number of tool rounds executed.
	Rounds int
	// Response is the decoded final response, for access to further candidates.
	Response *ApiResponse
}

// emptyResponseErr translates a response without content into the error that
// explains it.
func emptyResponseErr(resp *ApiResponse, maxOutputTokens *int) error {
	if resp == nil {
		return UnexpectedResponseShapeErr{Reason: "no response"}
	}
	if len(resp.Candidates) > 0 {
		cand := resp.Candidates[0]
		switch cand.FinishReason {
		case FinishMaxTokens:
			limit := 0
			if maxOutputTokens != nil {
				limit = *maxOutputTokens
			}
			return ResponseTruncatedErr{MaxOutputTokens: limit}
		case FinishSafety:
			return ContentBlockedErr(cand.RawFinishReason)
		}
	}
	if resp.PromptBlockReason != "" {
		return ContentBlockedErr(resp.PromptBlockReason)
	}
	return UnexpectedResponseShapeErr{
		Reason:  "response contains no content",
		Excerpt: truncate(string(resp.Raw), excerptLength),
	}
}

// extract interprets the final response of a generation call.
func extract(resp *ApiResponse, maxOutputTokens *int, schemaRequested bool) (*Result, error) {
	if !resp.hasContent() {
		return nil, emptyResponseErr(resp, maxOutputTokens)
	}
	cand := resp.Candidates[0]
	res := &Result{
		FinishReason: cand.FinishReason,
		Response:     resp,
	}

	if tc := cand.Content.FirstToolCall(); tc != nil {
		args, err := toolArgs(tc)
		if err != nil {
			return nil, err
		}
		res.ToolCall = tc
		res.Structured = args
		return res, nil
	}

	res.Text = cand.Content.Text()
	if schemaRequested {
		v, err := parseJSONValue(res.Text)
		if err != nil {
			return nil, UnexpectedResponseShapeErr{
				Reason:  fmt.Sprintf("structured output is not valid JSON: %v", err),
				Excerpt: truncate(res.Text, excerptLength),
			}
		}
		res.Structured = v
	}
	return res, nil
}

// extractEmbeddings places each returned vector at the position of the input it
// was computed for.
func extractEmbeddings(resp *ApiResponse, inputs int) ([][]float64, error) {
	if resp == nil || len(resp.Embeddings) != inputs {
		got := 0
		if resp != nil {
			got = len(resp.Embeddings)
		}
		return nil, UnexpectedResponseShapeErr{
			Reason:  fmt.Sprintf("expected %d embeddings, got %d", inputs, got),
			Excerpt: excerptOf(resp),
		}
	}
	out := make([][]float64, inputs)
	for _, e := range resp.Embeddings {
		if e.Index < 0 || e.Index >= inputs {
			return nil, UnexpectedResponseShapeErr{Reason: fmt.Sprintf("embedding index %d out of range", e.Index)}
		}
		if out[e.Index] != nil {
			return nil, UnexpectedResponseShapeErr{Reason: fmt.Sprintf("duplicate embedding for index %d", e.Index)}
		}
		if e.Values == nil {
			e.Values = []float64{}
		}
		out[e.Index] = e.Values
	}
	return out, nil
}

// extractImage returns the first generated image as a data URI.
func extractImage(resp *ApiResponse) (string, error) {
	if !resp.hasContent() {
		return "", emptyResponseErr(resp, nil)
	}
	for _, p := range resp.Candidates[0].Content.Parts {
		if p.Media != nil && len(p.Media.Data) > 0 {
			return p.Media.DataURI(), nil
		}
	}
	return "", UnexpectedResponseShapeErr{
		Reason:  "response contains no image",
		Excerpt: excerptOf(resp),
	}
}

func excerptOf(resp *ApiResponse) string {
	if resp == nil {
		return ""
	}
	return truncate(string(resp.Raw), excerptLength)
}
