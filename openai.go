package genflow

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	oai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/shared"
)

const openAIDefaultBaseURL = "https://api.openai.com/v1"

type openAIDialect struct{}

// OpenAI returns the Dialect for OpenAI-compatible chat completions, embeddings and
// image generation endpoints. Point the client at other compatible services with
// WithBaseURL.
//
// Safety settings, top-k and embedding task types have no equivalent and are not sent.
func OpenAI() Dialect { return openAIDialect{} }

func (openAIDialect) Name() string { return "openai" }

func (openAIDialect) DefaultBaseURL() string { return openAIDefaultBaseURL }

func (openAIDialect) SchemaKeywords() []string { return nil }

func (openAIDialect) Authorize(h http.Header, apiKey string) {
	h.Set("Authorization", "Bearer "+apiKey)
}

func (d openAIDialect) Generate(baseURL string, req *GenerateRequest) (Call, error) {
	msgs, err := openAIMessages(req.SystemInstruction, req.Conversation)
	if err != nil {
		return Call{}, err
	}
	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: msgs,
	}
	if req.MaxOutputTokens != nil {
		params.MaxCompletionTokens = oai.Int(int64(*req.MaxOutputTokens))
	}
	if req.Temperature != nil {
		params.Temperature = oai.Float(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = oai.Float(*req.TopP)
	}
	if req.CandidateCount != nil {
		params.N = oai.Int(int64(*req.CandidateCount))
	}
	if len(req.StopSequences) > 0 {
		params.Stop = oai.ChatCompletionNewParamsStopUnion{OfStringArray: req.StopSequences}
	}
	for _, fd := range req.Tools {
		fn := shared.FunctionDefinitionParam{
			Name:       fd.Name,
			Parameters: shared.FunctionParameters(fd.Parameters),
		}
		if fd.Description != "" {
			fn.Description = oai.String(fd.Description)
		}
		params.Tools = append(params.Tools, oai.ChatCompletionToolUnionParam{
			OfFunction: &oai.ChatCompletionFunctionToolParam{Function: fn},
		})
	}
	if req.ResponseSchema != nil {
		params.ResponseFormat = oai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "structured_output",
					Schema: req.ResponseSchema,
				},
			},
		}
	}

	return Call{
		URL:    joinURL(baseURL, "chat", "completions"),
		Body:   params,
		Decode: decodeOpenAIChat,
	}, nil
}

func openAIMessages(system string, conv Conversation) ([]oai.ChatCompletionMessageParamUnion, error) {
	var out []oai.ChatCompletionMessageParamUnion
	if system != "" {
		out = append(out, oai.ChatCompletionMessageParamUnion{
			OfSystem: &oai.ChatCompletionSystemMessageParam{
				Content: oai.ChatCompletionSystemMessageParamContentUnion{OfString: oai.String(system)},
			},
		})
	}
	// ids handed to the latest assistant turn's calls, in order, for results that carry none
	var pending []string
	for i, turn := range conv {
		switch turn.Role {
		case RoleUser:
			out = append(out, openAIUserMessage(turn))
		case RoleModel:
			pending = pending[:0]
			asst := &oai.ChatCompletionAssistantMessageParam{}
			if text := turn.Text(); text != "" {
				asst.Content = oai.ChatCompletionAssistantMessageParamContentUnion{OfString: oai.String(text)}
			}
			for j, p := range turn.Parts {
				if p.ToolCall == nil {
					continue
				}
				args := p.ToolCall.RawArgs
				if args == "" {
					b, err := json.Marshal(p.ToolCall.Args)
					if err != nil {
						return nil, fmt.Errorf("failed to marshal tool arguments: %w", err)
					}
					args = string(b)
				}
				id := openAIToolCallID(p.ToolCall.ID, i, j)
				pending = append(pending, id)
				asst.ToolCalls = append(asst.ToolCalls, oai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &oai.ChatCompletionMessageFunctionToolCallParam{
						ID: id,
						Function: oai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      p.ToolCall.Name,
							Arguments: args,
						},
					},
				})
			}
			out = append(out, oai.ChatCompletionMessageParamUnion{OfAssistant: asst})
		case RoleTool:
			// each tool result travels in its own message
			k := 0
			for _, p := range turn.Parts {
				if p.ToolResult == nil {
					continue
				}
				content, err := json.Marshal(p.ToolResult.Response)
				if err != nil {
					return nil, fmt.Errorf("failed to marshal tool result: %w", err)
				}
				id := p.ToolResult.ID
				if id == "" && k < len(pending) {
					id = pending[k]
				}
				if id == "" {
					id = openAIToolCallID("", i, k)
				}
				k++
				out = append(out, oai.ToolMessage(string(content), id))
			}
		default:
			return nil, fmt.Errorf("unsupported role %q", turn.Role)
		}
	}
	return out, nil
}

// openAIToolCallID synthesizes a stable id for tool calls that arrived without one.
func openAIToolCallID(id string, turn, part int) string {
	if id != "" {
		return id
	}
	return fmt.Sprintf("call_%d_%d", turn, part)
}

func openAIUserMessage(turn Turn) oai.ChatCompletionMessageParamUnion {
	// Plain-text turns are sent as a string, which more compatible servers accept
	if len(turn.Parts) == 1 && turn.Parts[0].Media == nil && turn.Parts[0].ToolResult == nil {
		return oai.UserMessage(turn.Parts[0].Text)
	}
	var parts []oai.ChatCompletionContentPartUnionParam
	for _, p := range turn.Parts {
		switch {
		case p.Media != nil:
			parts = append(parts, oai.ImageContentPart(oai.ChatCompletionContentPartImageImageURLParam{
				URL: p.Media.DataURI(),
			}))
		case p.Text != "":
			parts = append(parts, oai.TextContentPart(p.Text))
		}
	}
	return oai.UserMessage(parts)
}

func decodeOpenAIChat(raw []byte) (*ApiResponse, error) {
	if v := parseVendorError(raw); v != nil {
		return nil, v.apiErr(http.StatusOK, raw)
	}
	var resp oai.ChatCompletion
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode chat completion: %w", err)
	}
	out := &ApiResponse{Raw: raw, Usage: Metrics{}}
	if resp.Usage.PromptTokens > 0 {
		out.Usage[UsageMetricInputTokens] = int(resp.Usage.PromptTokens)
	}
	if resp.Usage.CompletionTokens > 0 {
		out.Usage[UsageMetricGenerationTokens] = int(resp.Usage.CompletionTokens)
	}
	for c, choice := range resp.Choices {
		turn := Turn{Role: RoleModel}
		if choice.Message.Content != "" {
			turn.Parts = append(turn.Parts, TextPart(choice.Message.Content))
		}
		for k, tc := range choice.Message.ToolCalls {
			if tc.Type != "function" {
				continue
			}
			fn := tc.AsFunction()
			// assigned here so the tool result echoes the same id back
			id := openAIToolCallID(fn.ID, c, k)
			turn.Parts = append(turn.Parts, Part{ToolCall: &ToolCall{
				ID:      id,
				Name:    fn.Function.Name,
				RawArgs: fn.Function.Arguments,
			}})
		}
		cand := Candidate{Content: turn, RawFinishReason: choice.FinishReason}
		switch choice.FinishReason {
		case "stop":
			cand.FinishReason = FinishStop
		case "length":
			cand.FinishReason = FinishMaxTokens
		case "tool_calls", "function_call":
			cand.FinishReason = FinishToolUse
		case "content_filter":
			cand.FinishReason = FinishSafety
		case "":
			cand.FinishReason = FinishUnspecified
		default:
			cand.FinishReason = FinishOther
		}
		// A refusal carries no content of its own
		if choice.Message.Refusal != "" && len(turn.Parts) == 0 {
			cand.FinishReason = FinishSafety
			cand.RawFinishReason = choice.Message.Refusal
		}
		out.Candidates = append(out.Candidates, cand)
	}
	return out, nil
}

func (d openAIDialect) Embed(baseURL string, req *EmbedRequest) (Call, error) {
	params := oai.EmbeddingNewParams{
		Model: oai.EmbeddingModel(req.Model),
		Input: oai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: req.Inputs},
	}
	return Call{
		URL:  joinURL(baseURL, "embeddings"),
		Body: params,
		Decode: func(raw []byte) (*ApiResponse, error) {
			if v := parseVendorError(raw); v != nil {
				return nil, v.apiErr(http.StatusOK, raw)
			}
			var resp oai.CreateEmbeddingResponse
			if err := json.Unmarshal(raw, &resp); err != nil {
				return nil, fmt.Errorf("failed to decode embeddings response: %w", err)
			}
			out := &ApiResponse{Raw: raw, Usage: Metrics{}}
			if resp.Usage.PromptTokens > 0 {
				out.Usage[UsageMetricInputTokens] = int(resp.Usage.PromptTokens)
			}
			// the data array is not guaranteed to follow input order; index is authoritative
			for _, e := range resp.Data {
				out.Embeddings = append(out.Embeddings, Embedding{Index: int(e.Index), Values: e.Embedding})
			}
			return out, nil
		},
	}, nil
}

func (d openAIDialect) Image(baseURL string, req *ImageRequest) (Call, error) {
	params := oai.ImageGenerateParams{
		Prompt:         req.Prompt,
		Model:          oai.ImageModel(req.Model),
		N:              oai.Int(1),
		ResponseFormat: oai.ImageGenerateParamsResponseFormatB64JSON,
	}
	return Call{
		URL:  joinURL(baseURL, "images", "generations"),
		Body: params,
		Decode: func(raw []byte) (*ApiResponse, error) {
			if v := parseVendorError(raw); v != nil {
				return nil, v.apiErr(http.StatusOK, raw)
			}
			var resp oai.ImagesResponse
			if err := json.Unmarshal(raw, &resp); err != nil {
				return nil, fmt.Errorf("failed to decode images response: %w", err)
			}
			turn := Turn{Role: RoleModel}
			for _, img := range resp.Data {
				if img.B64JSON == "" {
					continue
				}
				data, err := base64.StdEncoding.DecodeString(img.B64JSON)
				if err != nil {
					return nil, fmt.Errorf("failed to decode image payload: %w", err)
				}
				turn.Parts = append(turn.Parts, MediaPart(http.DetectContentType(data), data))
			}
			return &ApiResponse{
				Raw:        raw,
				Candidates: []Candidate{{Content: turn, FinishReason: FinishStop}},
			}, nil
		},
	}, nil
}
