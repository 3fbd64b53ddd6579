package genflow

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	a "github.com/anthropics/anthropic-sdk-go"
)

const (
	anthropicDefaultBaseURL = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"
	// The Messages API requires max_tokens; this is sent when none is configured.
	anthropicDefaultMaxTokens = 4096
	// structuredOutputTool is the synthetic tool used to obtain schema-shaped output.
	structuredOutputTool = "structured_output"
)

type anthropicDialect struct{}

// Anthropic returns the Dialect for the Anthropic Messages API.
//
// Structured output is obtained through a synthetic tool whose input schema is the
// requested schema; its input is surfaced as the response text. Embeddings and image
// generation are not available and fail with UnsupportedOperationErr.
func Anthropic() Dialect { return anthropicDialect{} }

func (anthropicDialect) Name() string { return "anthropic" }

func (anthropicDialect) DefaultBaseURL() string { return anthropicDefaultBaseURL }

func (anthropicDialect) SchemaKeywords() []string { return []string{"$schema"} }

func (anthropicDialect) Authorize(h http.Header, apiKey string) {
	h.Set("x-api-key", apiKey)
	h.Set("anthropic-version", anthropicVersion)
}

func anthropicInputSchema(schema map[string]any) a.ToolInputSchemaParam {
	var in a.ToolInputSchemaParam
	if schema == nil {
		return in
	}
	for k, v := range schema {
		switch k {
		case "type":
		case "properties":
			in.Properties = v
		case "required":
			req, _ := v.([]any)
			for _, r := range req {
				if s, ok := r.(string); ok {
					in.Required = append(in.Required, s)
				}
			}
		default:
			if in.ExtraFields == nil {
				in.ExtraFields = map[string]any{}
			}
			in.ExtraFields[k] = v
		}
	}
	return in
}

// Tool inputs must be objects, so other response schemas are nested under this property.
const wrappedValueKey = "value"

func isObjectSchema(schema map[string]any) bool {
	switch t := schema["type"].(type) {
	case string:
		return t == "object"
	case nil:
		_, ok := schema["properties"]
		return ok
	default:
		return false
	}
}

// wrapResponseSchema nests a non-object schema under a single required property.
// Definitions stay at the top level so references keep resolving.
func wrapResponseSchema(schema map[string]any) map[string]any {
	inner := make(map[string]any, len(schema))
	wrapper := map[string]any{
		"type":     "object",
		"required": []any{wrappedValueKey},
	}
	for k, v := range schema {
		if k == "$defs" || k == "definitions" {
			wrapper[k] = v
			continue
		}
		inner[k] = v
	}
	wrapper["properties"] = map[string]any{wrappedValueKey: inner}
	return wrapper
}

func (d anthropicDialect) Generate(baseURL string, req *GenerateRequest) (Call, error) {
	msgs, err := anthropicMessages(req.Conversation)
	if err != nil {
		return Call{}, err
	}
	params := a.MessageNewParams{
		Model:     a.Model(req.Model),
		Messages:  msgs,
		MaxTokens: anthropicDefaultMaxTokens,
	}
	if req.MaxOutputTokens != nil {
		params.MaxTokens = int64(*req.MaxOutputTokens)
	}
	if req.SystemInstruction != "" {
		params.System = []a.TextBlockParam{{Text: req.SystemInstruction}}
	}
	if req.Temperature != nil {
		params.Temperature = a.Float(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = a.Float(*req.TopP)
	}
	if req.TopK != nil {
		params.TopK = a.Int(int64(*req.TopK))
	}
	if len(req.StopSequences) > 0 {
		params.StopSequences = req.StopSequences
	}
	for _, fd := range req.Tools {
		tool := &a.ToolParam{
			Name:        fd.Name,
			InputSchema: anthropicInputSchema(fd.Parameters),
		}
		if fd.Description != "" {
			tool.Description = a.String(fd.Description)
		}
		params.Tools = append(params.Tools, a.ToolUnionParam{OfTool: tool})
	}
	wrapped := false
	if req.ResponseSchema != nil {
		schema := req.ResponseSchema
		if !isObjectSchema(schema) {
			schema, wrapped = wrapResponseSchema(schema), true
		}
		params.Tools = append(params.Tools, a.ToolUnionParam{OfTool: &a.ToolParam{
			Name:        structuredOutputTool,
			Description: a.String("Respond by calling this tool with the final answer."),
			InputSchema: anthropicInputSchema(schema),
		}})
		// Forcing the tool would hide the caller's own tools from the model
		if len(req.Tools) == 0 {
			params.ToolChoice = a.ToolChoiceUnionParam{
				OfTool: &a.ToolChoiceToolParam{Name: structuredOutputTool},
			}
		}
	}

	return Call{
		URL:    joinURL(baseURL, "v1", "messages"),
		Body:   params,
		Decode: func(raw []byte) (*ApiResponse, error) { return decodeAnthropicMessage(raw, wrapped) },
	}, nil
}

func anthropicMessages(conv Conversation) ([]a.MessageParam, error) {
	var out []a.MessageParam
	for _, turn := range conv {
		var blocks []a.ContentBlockParamUnion
		for _, p := range turn.Parts {
			switch {
			case p.ToolCall != nil:
				args, err := toolArgs(p.ToolCall)
				if err != nil {
					return nil, err
				}
				input, err := json.Marshal(args)
				if err != nil {
					return nil, fmt.Errorf("failed to marshal tool arguments: %w", err)
				}
				blocks = append(blocks, a.NewToolUseBlock(p.ToolCall.ID, json.RawMessage(input), p.ToolCall.Name))
			case p.ToolResult != nil:
				content, err := json.Marshal(p.ToolResult.Response)
				if err != nil {
					return nil, fmt.Errorf("failed to marshal tool result: %w", err)
				}
				blocks = append(blocks, a.ContentBlockParamUnion{OfToolResult: &a.ToolResultBlockParam{
					ToolUseID: p.ToolResult.ID,
					IsError:   a.Bool(p.ToolResult.IsError),
					Content: []a.ToolResultBlockParamContentUnion{
						{OfText: &a.TextBlockParam{Text: string(content)}},
					},
				}})
			case p.Media != nil:
				blocks = append(blocks, a.NewImageBlockBase64(p.Media.MimeType, base64.StdEncoding.EncodeToString(p.Media.Data)))
			case p.Thought:
				// reasoning text is not replayed
			case p.Text != "":
				blocks = append(blocks, a.NewTextBlock(p.Text))
			}
		}
		if len(blocks) == 0 {
			continue
		}
		role := a.MessageParamRoleUser
		if turn.Role == RoleModel {
			role = a.MessageParamRoleAssistant
		}
		out = append(out, a.MessageParam{Role: role, Content: blocks})
	}
	return out, nil
}

// decodeAnthropicMessage maps a Messages response. When unwrap is set the structured
// output tool's input is the wrapper built by wrapResponseSchema.
func decodeAnthropicMessage(raw []byte, unwrap bool) (*ApiResponse, error) {
	if v := parseVendorError(raw); v != nil {
		return nil, v.apiErr(http.StatusOK, raw)
	}
	var resp a.Message
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}
	out := &ApiResponse{Raw: raw, Usage: Metrics{
		UsageMetricInputTokens:      int(resp.Usage.InputTokens),
		UsageMetricGenerationTokens: int(resp.Usage.OutputTokens),
	}}

	turn := Turn{Role: RoleModel}
	structured := false
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			turn.Parts = append(turn.Parts, TextPart(block.Text))
		case "tool_use":
			if block.Name == structuredOutputTool {
				text := string(block.Input)
				if unwrap {
					var w map[string]json.RawMessage
					if err := json.Unmarshal(block.Input, &w); err == nil && w[wrappedValueKey] != nil {
						text = string(w[wrappedValueKey])
					}
				}
				turn.Parts = append(turn.Parts, TextPart(text))
				structured = true
				continue
			}
			var args map[string]any
			if err := json.Unmarshal(block.Input, &args); err != nil {
				return nil, MalformedToolArgumentsErr{Tool: block.Name, Raw: string(block.Input), Cause: err}
			}
			if args == nil {
				args = map[string]any{}
			}
			turn.Parts = append(turn.Parts, Part{ToolCall: &ToolCall{ID: block.ID, Name: block.Name, Args: args}})
		}
	}

	cand := Candidate{Content: turn, RawFinishReason: string(resp.StopReason)}
	switch resp.StopReason {
	case a.StopReasonEndTurn, a.StopReasonStopSequence:
		cand.FinishReason = FinishStop
	case a.StopReasonMaxTokens:
		cand.FinishReason = FinishMaxTokens
	case a.StopReasonToolUse:
		cand.FinishReason = FinishToolUse
		if structured {
			cand.FinishReason = FinishStop
		}
	case "refusal":
		cand.FinishReason = FinishSafety
	case "":
		cand.FinishReason = FinishUnspecified
	default:
		cand.FinishReason = FinishOther
	}
	out.Candidates = []Candidate{cand}
	return out, nil
}

func (d anthropicDialect) Embed(string, *EmbedRequest) (Call, error) {
	return Call{}, UnsupportedOperationErr{Dialect: d.Name(), Operation: "embeddings"}
}

func (d anthropicDialect) Image(string, *ImageRequest) (Call, error) {
	return Call{}, UnsupportedOperationErr{Dialect: d.Name(), Operation: "image generation"}
}
