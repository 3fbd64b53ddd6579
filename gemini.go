package genflow

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

const geminiDefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// geminiUnsupportedKeywords are JSON Schema keywords outside the OpenAPI subset the
// Gemini responseSchema and function parameters accept.
var geminiUnsupportedKeywords = []string{
	"$schema", "$id", "$ref", "$defs", "$anchor", "$comment", "definitions",
	"additionalProperties", "unevaluatedProperties", "patternProperties",
	"dependentRequired", "dependentSchemas",
	"const", "default", "examples", "not", "if", "then", "else",
	"contentEncoding", "contentMediaType",
}

type geminiDialect struct{}

// Gemini returns the Dialect for the Gemini generateContent REST API. It is the
// default Dialect of a Client.
func Gemini() Dialect { return geminiDialect{} }

func (geminiDialect) Name() string { return "gemini" }

func (geminiDialect) DefaultBaseURL() string { return geminiDefaultBaseURL }

func (geminiDialect) SchemaKeywords() []string { return geminiUnsupportedKeywords }

func (geminiDialect) Authorize(h http.Header, apiKey string) {
	h.Set("x-goog-api-key", apiKey)
}

type geminiFunctionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type geminiTool struct {
	FunctionDeclarations []geminiFunctionDeclaration `json:"functionDeclarations"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens    *int           `json:"maxOutputTokens,omitempty"`
	Temperature        *float64       `json:"temperature,omitempty"`
	TopP               *float64       `json:"topP,omitempty"`
	TopK               *int           `json:"topK,omitempty"`
	CandidateCount     *int           `json:"candidateCount,omitempty"`
	StopSequences      []string       `json:"stopSequences,omitempty"`
	ResponseMimeType   string         `json:"responseMimeType,omitempty"`
	ResponseSchema     map[string]any `json:"responseSchema,omitempty"`
	ResponseModalities []string       `json:"responseModalities,omitempty"`
}

func (c geminiGenerationConfig) empty() bool {
	return c.MaxOutputTokens == nil && c.Temperature == nil && c.TopP == nil && c.TopK == nil &&
		c.CandidateCount == nil && len(c.StopSequences) == 0 && c.ResponseMimeType == "" &&
		len(c.ResponseModalities) == 0
}

type geminiRequest struct {
	Contents          []*genai.Content        `json:"contents"`
	SystemInstruction *genai.Content          `json:"systemInstruction,omitempty"`
	Tools             []geminiTool            `json:"tools,omitempty"`
	SafetySettings    []*genai.SafetySetting  `json:"safetySettings,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiCandidate struct {
	Content      *genai.Content     `json:"content,omitempty"`
	FinishReason genai.FinishReason `json:"finishReason,omitempty"`
}

type geminiResponse struct {
	Candidates     []geminiCandidate `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata,omitempty"`
	Error *vendorError `json:"error,omitempty"`
}

func geminiModelPath(model string) string {
	if strings.HasPrefix(model, "models/") || strings.HasPrefix(model, "tunedModels/") {
		return model
	}
	return "models/" + model
}

func (g geminiDialect) Generate(baseURL string, req *GenerateRequest) (Call, error) {
	body := geminiRequest{}
	for _, turn := range req.Conversation {
		c, err := geminiContent(turn)
		if err != nil {
			return Call{}, err
		}
		body.Contents = append(body.Contents, c)
	}
	if req.SystemInstruction != "" {
		body.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}
	if len(req.Tools) > 0 {
		tool := geminiTool{}
		for _, fd := range req.Tools {
			tool.FunctionDeclarations = append(tool.FunctionDeclarations, geminiFunctionDeclaration{
				Name:        fd.Name,
				Description: fd.Description,
				Parameters:  fd.Parameters,
			})
		}
		body.Tools = []geminiTool{tool}
	}
	for _, s := range req.SafetySettings {
		body.SafetySettings = append(body.SafetySettings, &genai.SafetySetting{
			Category:  s.Category,
			Threshold: s.Threshold,
		})
	}

	cfg := geminiGenerationConfig{
		MaxOutputTokens:    req.MaxOutputTokens,
		Temperature:        req.Temperature,
		TopP:               req.TopP,
		TopK:               req.TopK,
		CandidateCount:     req.CandidateCount,
		StopSequences:      req.StopSequences,
		ResponseModalities: req.ResponseModalities,
	}
	if req.ResponseSchema != nil {
		cfg.ResponseMimeType = "application/json"
		cfg.ResponseSchema = req.ResponseSchema
	}
	if !cfg.empty() {
		body.GenerationConfig = &cfg
	}

	return Call{
		URL:    joinURL(baseURL, geminiModelPath(req.Model)+":generateContent"),
		Body:   body,
		Decode: decodeGeminiGenerate,
	}, nil
}

func decodeGeminiGenerate(raw []byte) (*ApiResponse, error) {
	var resp geminiResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode generateContent response: %w", err)
	}
	if resp.Error != nil {
		return nil, resp.Error.apiErr(http.StatusOK, raw)
	}
	out := &ApiResponse{Raw: raw, Usage: Metrics{}}
	if resp.PromptFeedback != nil {
		out.PromptBlockReason = resp.PromptFeedback.BlockReason
	}
	if resp.UsageMetadata != nil {
		out.Usage[UsageMetricInputTokens] = resp.UsageMetadata.PromptTokenCount
		out.Usage[UsageMetricGenerationTokens] = resp.UsageMetadata.CandidatesTokenCount
	}
	for _, c := range resp.Candidates {
		turn := Turn{Role: RoleModel}
		if c.Content != nil {
			turn = turnFromGemini(c.Content)
		}
		cand := Candidate{
			Content:         turn,
			FinishReason:    geminiFinishReason(c.FinishReason),
			RawFinishReason: string(c.FinishReason),
		}
		if turn.FirstToolCall() != nil {
			cand.FinishReason = FinishToolUse
		}
		out.Candidates = append(out.Candidates, cand)
	}
	return out, nil
}

func geminiFinishReason(r genai.FinishReason) FinishReason {
	switch r {
	case "", genai.FinishReasonUnspecified:
		return FinishUnspecified
	case genai.FinishReasonStop:
		return FinishStop
	case genai.FinishReasonMaxTokens:
		return FinishMaxTokens
	case genai.FinishReasonSafety, genai.FinishReasonRecitation,
		"BLOCKLIST", "PROHIBITED_CONTENT", "SPII", "IMAGE_SAFETY":
		return FinishSafety
	default:
		return FinishOther
	}
}

func geminiContent(t Turn) (*genai.Content, error) {
	role := genai.Role(genai.RoleUser)
	if t.Role == RoleModel {
		role = genai.Role(genai.RoleModel)
	}
	parts := make([]*genai.Part, 0, len(t.Parts))
	for _, p := range t.Parts {
		switch {
		case p.ToolCall != nil:
			args, err := toolArgs(p.ToolCall)
			if err != nil {
				return nil, err
			}
			part := &genai.Part{FunctionCall: &genai.FunctionCall{
				ID:   p.ToolCall.ID,
				Name: p.ToolCall.Name,
				Args: args,
			}}
			part.ThoughtSignature = p.Signature
			parts = append(parts, part)
		case p.ToolResult != nil:
			parts = append(parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       p.ToolResult.ID,
				Name:     p.ToolResult.Name,
				Response: p.ToolResult.Response,
			}})
		case p.Media != nil:
			parts = append(parts, genai.NewPartFromBytes(p.Media.Data, p.Media.MimeType))
		default:
			part := genai.NewPartFromText(p.Text)
			part.Thought = p.Thought
			part.ThoughtSignature = p.Signature
			parts = append(parts, part)
		}
	}
	return genai.NewContentFromParts(parts, role), nil
}

func turnFromGemini(c *genai.Content) Turn {
	turn := Turn{Role: RoleModel}
	if c.Role == string(genai.RoleUser) {
		turn.Role = RoleUser
	}
	for _, p := range c.Parts {
		if p == nil {
			continue
		}
		switch {
		case p.FunctionCall != nil:
			args := p.FunctionCall.Args
			if args == nil {
				args = map[string]any{}
			}
			turn.Parts = append(turn.Parts, Part{
				ToolCall:  &ToolCall{ID: p.FunctionCall.ID, Name: p.FunctionCall.Name, Args: args},
				Signature: p.ThoughtSignature,
			})
		case p.FunctionResponse != nil:
			turn.Parts = append(turn.Parts, Part{ToolResult: &ToolResult{
				ID:       p.FunctionResponse.ID,
				Name:     p.FunctionResponse.Name,
				Response: p.FunctionResponse.Response,
			}})
		case p.InlineData != nil:
			turn.Parts = append(turn.Parts, MediaPart(p.InlineData.MIMEType, p.InlineData.Data))
		case p.Text != "" || len(p.ThoughtSignature) > 0:
			turn.Parts = append(turn.Parts, Part{Text: p.Text, Thought: p.Thought, Signature: p.ThoughtSignature})
		}
	}
	return turn
}

type geminiEmbedRequest struct {
	Model    string         `json:"model"`
	Content  *genai.Content `json:"content"`
	TaskType string         `json:"taskType,omitempty"`
}

func (g geminiDialect) Embed(baseURL string, req *EmbedRequest) (Call, error) {
	model := geminiModelPath(req.Model)
	entry := func(text string) geminiEmbedRequest {
		return geminiEmbedRequest{
			Model:    model,
			Content:  genai.NewContentFromText(text, genai.RoleUser),
			TaskType: req.TaskType,
		}
	}

	if !req.Batch {
		if len(req.Inputs) != 1 {
			return Call{}, fmt.Errorf("single embedding request needs exactly one input, got %d", len(req.Inputs))
		}
		return Call{
			URL:  joinURL(baseURL, model+":embedContent"),
			Body: entry(req.Inputs[0]),
			Decode: func(raw []byte) (*ApiResponse, error) {
				var resp struct {
					Embedding *genai.ContentEmbedding `json:"embedding"`
					Error     *vendorError            `json:"error,omitempty"`
				}
				if err := json.Unmarshal(raw, &resp); err != nil {
					return nil, fmt.Errorf("failed to decode embedContent response: %w", err)
				}
				if resp.Error != nil {
					return nil, resp.Error.apiErr(http.StatusOK, raw)
				}
				out := &ApiResponse{Raw: raw}
				if resp.Embedding != nil {
					out.Embeddings = []Embedding{{Index: 0, Values: widen(resp.Embedding.Values)}}
				}
				return out, nil
			},
		}, nil
	}

	requests := make([]geminiEmbedRequest, 0, len(req.Inputs))
	for _, text := range req.Inputs {
		requests = append(requests, entry(text))
	}
	return Call{
		URL:  joinURL(baseURL, model+":batchEmbedContents"),
		Body: map[string]any{"requests": requests},
		Decode: func(raw []byte) (*ApiResponse, error) {
			var resp struct {
				Embeddings []*genai.ContentEmbedding `json:"embeddings"`
				Error      *vendorError              `json:"error,omitempty"`
			}
			if err := json.Unmarshal(raw, &resp); err != nil {
				return nil, fmt.Errorf("failed to decode batchEmbedContents response: %w", err)
			}
			if resp.Error != nil {
				return nil, resp.Error.apiErr(http.StatusOK, raw)
			}
			// batchEmbedContents answers in request order
			out := &ApiResponse{Raw: raw}
			for i, e := range resp.Embeddings {
				if e == nil {
					continue
				}
				out.Embeddings = append(out.Embeddings, Embedding{Index: i, Values: widen(e.Values)})
			}
			return out, nil
		},
	}, nil
}

// Image generates through generateContent with image output enabled.
func (g geminiDialect) Image(baseURL string, req *ImageRequest) (Call, error) {
	gen := *req.Generate
	gen.ResponseModalities = []string{"TEXT", "IMAGE"}
	return g.Generate(baseURL, &gen)
}

func widen(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}
