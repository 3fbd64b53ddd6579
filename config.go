package genflow

import (
	"fmt"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"google.golang.org/genai"
)

const (
	defaultMaxRetries        = 3
	defaultComplianceRetries = 3
	defaultMaxToolRounds     = 10
)

// SafetySetting configures the blocking threshold for one harm category.
// Dialects without a safety-settings concept ignore them.
type SafetySetting struct {
	Category  genai.HarmCategory
	Threshold genai.HarmBlockThreshold
}

// Ptr returns a pointer to v. It is a convenience for filling the optional
// fields of ClientConfig and CallParams.
func Ptr[T any](v T) *T {
	return &v
}

// ClientConfig holds the defaults a Client applies to every call. It is validated
// once by New and never modified afterwards.
//
// Optional numeric parameters are pointers: a nil value is omitted from the outbound
// request entirely, leaving the remote default in effect.
type ClientConfig struct {
	// Model is the generation model identifier, e.g. gemini-2.5-flash. Required.
	Model string
	// EmbeddingModel is used by Embed and EmbedBatch. Defaults to Model.
	EmbeddingModel string
	// ImageModel is used by GenerateImage. Defaults to Model.
	ImageModel string

	SystemInstruction string

	MaxOutputTokens *int
	// Temperature must be within [0, 2]
	Temperature *float64
	// TopP must be within [0, 1]
	TopP           *float64
	TopK           *int
	CandidateCount *int
	StopSequences  []string
	SafetySettings []SafetySetting

	// Media is attached to the first user turn of every call.
	Media []Media

	// ResponseSchema requests structured JSON output conforming to the schema.
	ResponseSchema *jsonschema.Schema
	// UnsupportedSchemaKeywords are removed from ResponseSchema and tool parameter
	// schemas before sending. Nil selects the Dialect's default set.
	UnsupportedSchemaKeywords []string

	// MaxRetries is the transport retry budget, counted in attempts. Zero selects 3.
	MaxRetries int
	// ComplianceRetries is the number of attempts made to obtain a non-empty
	// structured response. Zero selects 3.
	ComplianceRetries int
	// MaxToolRounds bounds the tool-calling loop. Zero selects 10.
	MaxToolRounds int
}

// CallParams overrides ClientConfig for a single call. A non-nil field always wins
// over the client default.
type CallParams struct {
	Model             *string
	SystemInstruction *string

	MaxOutputTokens *int
	Temperature     *float64
	TopP            *float64
	TopK            *int
	CandidateCount  *int
	StopSequences   []string
	SafetySettings  []SafetySetting

	ResponseSchema            *jsonschema.Schema
	UnsupportedSchemaKeywords []string

	MaxRetries        *int
	ComplianceRetries *int
	MaxToolRounds     *int

	// Tools available to the model during this call.
	Tools []ToolDeclaration
	// Media is appended after the client's default attachments.
	Media []Media
	// TaskType is an embeddings hint such as RETRIEVAL_DOCUMENT. Dialects without the
	// concept ignore it.
	TaskType string
	// Timeout bounds the whole call, including retries and tool rounds.
	Timeout time.Duration
}

func (c ClientConfig) validate() error {
	if c.Model == "" {
		return ConfigInvalidErr{Field: "Model", Reason: "must not be empty"}
	}
	if err := validateGeneration(c.MaxOutputTokens, c.Temperature, c.TopP, c.TopK, c.CandidateCount, c.SafetySettings); err != nil {
		return err
	}
	budgets := []struct {
		name string
		v    int
	}{
		{"MaxRetries", c.MaxRetries},
		{"ComplianceRetries", c.ComplianceRetries},
		{"MaxToolRounds", c.MaxToolRounds},
	}
	for _, b := range budgets {
		if b.v < 0 {
			return ConfigInvalidErr{Field: b.name, Reason: fmt.Sprintf("must not be negative, got %d", b.v)}
		}
	}
	return nil
}

func (p *CallParams) validate() error {
	if p == nil {
		return nil
	}
	if p.Model != nil && *p.Model == "" {
		return ConfigInvalidErr{Field: "Model", Reason: "must not be empty"}
	}
	if err := validateGeneration(p.MaxOutputTokens, p.Temperature, p.TopP, p.TopK, p.CandidateCount, p.SafetySettings); err != nil {
		return err
	}
	budgets := []struct {
		name string
		v    *int
	}{
		{"MaxRetries", p.MaxRetries},
		{"ComplianceRetries", p.ComplianceRetries},
		{"MaxToolRounds", p.MaxToolRounds},
	}
	for _, b := range budgets {
		if b.v != nil && *b.v < 1 {
			return ConfigInvalidErr{Field: b.name, Reason: fmt.Sprintf("must be at least 1, got %d", *b.v)}
		}
	}
	if p.Timeout < 0 {
		return ConfigInvalidErr{Field: "Timeout", Reason: "must not be negative"}
	}
	return nil
}

func validateGeneration(maxOut *int, temp, topP *float64, topK, candidates *int, safety []SafetySetting) error {
	if maxOut != nil && *maxOut < 1 {
		return ConfigInvalidErr{Field: "MaxOutputTokens", Reason: fmt.Sprintf("must be at least 1, got %d", *maxOut)}
	}
	if temp != nil && (*temp < 0 || *temp > 2) {
		return ConfigInvalidErr{Field: "Temperature", Reason: fmt.Sprintf("must be within [0, 2], got %v", *temp)}
	}
	if topP != nil && (*topP < 0 || *topP > 1) {
		return ConfigInvalidErr{Field: "TopP", Reason: fmt.Sprintf("must be within [0, 1], got %v", *topP)}
	}
	if topK != nil && *topK < 1 {
		return ConfigInvalidErr{Field: "TopK", Reason: fmt.Sprintf("must be at least 1, got %d", *topK)}
	}
	if candidates != nil && *candidates < 1 {
		return ConfigInvalidErr{Field: "CandidateCount", Reason: fmt.Sprintf("must be at least 1, got %d", *candidates)}
	}
	for i, s := range safety {
		if s.Category == "" || s.Threshold == "" {
			return ConfigInvalidErr{Field: fmt.Sprintf("SafetySettings[%d]", i), Reason: "category and threshold are required"}
		}
	}
	return nil
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

// pick returns the call-time value when present, the client default otherwise.
func pick[T any](call, base *T) *T {
	if call != nil {
		return call
	}
	return base
}

func pickSlice[T any](call, base []T) []T {
	if call != nil {
		return call
	}
	return base
}

// resolvedParams is the merged view of ClientConfig and CallParams for one call.
type resolvedParams struct {
	model             string
	systemInstruction string

	maxOutputTokens *int
	temperature     *float64
	topP            *float64
	topK            *int
	candidateCount  *int
	stopSequences   []string
	safetySettings  []SafetySetting

	responseSchema *jsonschema.Schema
	schemaKeywords []string

	maxRetries        int
	complianceRetries int
	maxToolRounds     int

	tools    []ToolDeclaration
	media    []Media
	taskType string
}

func resolveParams(cfg ClientConfig, p *CallParams) resolvedParams {
	if p == nil {
		p = &CallParams{}
	}
	r := resolvedParams{
		model:             cfg.Model,
		systemInstruction: cfg.SystemInstruction,
		maxOutputTokens:   pick(p.MaxOutputTokens, cfg.MaxOutputTokens),
		temperature:       pick(p.Temperature, cfg.Temperature),
		topP:              pick(p.TopP, cfg.TopP),
		topK:              pick(p.TopK, cfg.TopK),
		candidateCount:    pick(p.CandidateCount, cfg.CandidateCount),
		stopSequences:     pickSlice(p.StopSequences, cfg.StopSequences),
		safetySettings:    pickSlice(p.SafetySettings, cfg.SafetySettings),
		responseSchema:    pick(p.ResponseSchema, cfg.ResponseSchema),
		schemaKeywords:    pickSlice(p.UnsupportedSchemaKeywords, cfg.UnsupportedSchemaKeywords),
		maxRetries:        *pick(p.MaxRetries, Ptr(orDefault(cfg.MaxRetries, defaultMaxRetries))),
		complianceRetries: *pick(p.ComplianceRetries, Ptr(orDefault(cfg.ComplianceRetries, defaultComplianceRetries))),
		maxToolRounds:     *pick(p.MaxToolRounds, Ptr(orDefault(cfg.MaxToolRounds, defaultMaxToolRounds))),
		tools:             p.Tools,
		taskType:          p.TaskType,
	}
	if p.Model != nil {
		r.model = *p.Model
	}
	if p.SystemInstruction != nil {
		r.systemInstruction = *p.SystemInstruction
	}
	r.media = append(append([]Media(nil), cfg.Media...), p.Media...)
	return r
}
