package genflow

import (
	"encoding/base64"
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/genai"
)

func TestGemini_GenerateRequest(t *testing.T) {
	s := newScriptedServer(t, okReply(geminiText("ok")))
	c := newTestClient(t, s, ClientConfig{
		Model:             "gemini-2.5-flash",
		SystemInstruction: "You are terse.",
		StopSequences:     []string{"###"},
		SafetySettings: []SafetySetting{{
			Category:  genai.HarmCategoryHarassment,
			Threshold: genai.HarmBlockThresholdBlockOnlyHigh,
		}},
		Media: []Media{Blob{Mime: "image/png", Data: []byte("png")}},
	})

	if _, err := c.GenerateContent(background(t), "Describe the image", nil); err != nil {
		t.Fatalf("GenerateContent() error = %v", err)
	}
	req := s.requests()[0]
	if req.Path != "/models/gemini-2.5-flash:generateContent" {
		t.Errorf("Path = %q", req.Path)
	}
	if got := req.Header.Get("x-goog-api-key"); got != "test-key" {
		t.Errorf("x-goog-api-key = %q", got)
	}

	body := req.decode(t)
	want := map[string]any{
		"contents": []any{map[string]any{
			"role": "user",
			"parts": []any{
				map[string]any{"text": "Describe the image"},
				map[string]any{"inlineData": map[string]any{
					"mimeType": "image/png",
					"data":     base64.StdEncoding.EncodeToString([]byte("png")),
				}},
			},
		}},
		"systemInstruction": map[string]any{
			"role":  "user",
			"parts": []any{map[string]any{"text": "You are terse."}},
		},
		"safetySettings": []any{map[string]any{
			"category":  "HARM_CATEGORY_HARASSMENT",
			"threshold": "BLOCK_ONLY_HIGH",
		}},
		"generationConfig": map[string]any{"stopSequences": []any{"###"}},
	}
	if diff := cmp.Diff(want, body); diff != "" {
		t.Errorf("request body mismatch (-want +got):\n%s", diff)
	}
}

func TestGemini_ModelPath(t *testing.T) {
	tests := map[string]string{
		"gemini-2.5-flash":        "models/gemini-2.5-flash",
		"models/gemini-2.5-flash": "models/gemini-2.5-flash",
		"tunedModels/my-model":    "tunedModels/my-model",
	}
	for in, want := range tests {
		if got := geminiModelPath(in); got != want {
			t.Errorf("geminiModelPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDecodeGeminiGenerate_FinishReasons(t *testing.T) {
	tests := []struct {
		raw  string
		want FinishReason
	}{
		{"STOP", FinishStop},
		{"MAX_TOKENS", FinishMaxTokens},
		{"SAFETY", FinishSafety},
		{"RECITATION", FinishSafety},
		{"PROHIBITED_CONTENT", FinishSafety},
		{"BLOCKLIST", FinishSafety},
		{"MALFORMED_FUNCTION_CALL", FinishOther},
		{"", FinishUnspecified},
	}
	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			raw := `{"candidates":[{"finishReason":"` + tc.raw + `"}]}`
			resp, err := decodeGeminiGenerate([]byte(raw))
			if err != nil {
				t.Fatalf("decode error = %v", err)
			}
			if got := resp.Candidates[0].FinishReason; got != tc.want {
				t.Errorf("FinishReason = %q, want %q", got, tc.want)
			}
			if got := resp.Candidates[0].RawFinishReason; got != tc.raw {
				t.Errorf("RawFinishReason = %q", got)
			}
		})
	}
}

func TestDecodeGeminiGenerate(t *testing.T) {
	raw := `{
		"candidates": [{
			"content": {
				"role": "model",
				"parts": [
					{"text": "Let me look that up.", "thought": true, "thoughtSignature": "c2ln"},
					{"functionCall": {"id": "fc1", "name": "lookupWeather", "args": {"city": "Paris"}}, "thoughtSignature": "c2lnMg=="}
				]
			},
			"finishReason": "STOP"
		}],
		"promptFeedback": {},
		"usageMetadata": {"promptTokenCount": 12, "candidatesTokenCount": 5, "totalTokenCount": 17}
	}`
	resp, err := decodeGeminiGenerate([]byte(raw))
	if err != nil {
		t.Fatalf("decode error = %v", err)
	}

	want := Candidate{
		Content: Turn{Role: RoleModel, Parts: []Part{
			{Text: "Let me look that up.", Thought: true, Signature: []byte("sig")},
			{ToolCall: &ToolCall{ID: "fc1", Name: "lookupWeather", Args: map[string]any{"city": "Paris"}}, Signature: []byte("sig2")},
		}},
		FinishReason:    FinishToolUse,
		RawFinishReason: "STOP",
	}
	if diff := cmp.Diff(want, resp.Candidates[0]); diff != "" {
		t.Errorf("candidate mismatch (-want +got):\n%s", diff)
	}
	wantUsage := Metrics{UsageMetricInputTokens: 12, UsageMetricGenerationTokens: 5}
	if diff := cmp.Diff(wantUsage, resp.Usage); diff != "" {
		t.Errorf("usage mismatch (-want +got):\n%s", diff)
	}

	// signatures go back out unchanged
	content, err := geminiContent(resp.Candidates[0].Content)
	if err != nil {
		t.Fatalf("geminiContent() error = %v", err)
	}
	if string(content.Parts[1].ThoughtSignature) != "sig2" || content.Parts[1].FunctionCall == nil {
		t.Errorf("re-encoded part = %+v", content.Parts[1])
	}
}

func TestDecodeGeminiGenerate_PromptBlocked(t *testing.T) {
	resp, err := decodeGeminiGenerate([]byte(`{"promptFeedback":{"blockReason":"SAFETY"}}`))
	if err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if resp.PromptBlockReason != "SAFETY" {
		t.Errorf("PromptBlockReason = %q", resp.PromptBlockReason)
	}
	if resp.hasContent() {
		t.Errorf("a blocked prompt has no content")
	}
}

func TestGeminiContent_ToolRoleIsSentAsUser(t *testing.T) {
	turn := Turn{Role: RoleTool, Parts: []Part{{ToolResult: &ToolResult{
		Name:     "lookupWeather",
		Response: map[string]any{"result": "clear"},
	}}}}
	content, err := geminiContent(turn)
	if err != nil {
		t.Fatalf("geminiContent() error = %v", err)
	}
	if content.Role != string(genai.RoleUser) {
		t.Errorf("Role = %q", content.Role)
	}
	fr := content.Parts[0].FunctionResponse
	if fr == nil || fr.Name != "lookupWeather" || fr.Response["result"] != "clear" {
		t.Errorf("FunctionResponse = %+v", fr)
	}
}

func TestGeminiContent_Roles(t *testing.T) {
	tests := []struct {
		role Role
		want string
	}{
		{RoleUser, "user"},
		{RoleModel, "model"},
		{RoleTool, "user"},
	}
	for _, tc := range tests {
		t.Run(string(tc.role), func(t *testing.T) {
			content, err := geminiContent(Turn{Role: tc.role, Parts: []Part{TextPart("hi")}})
			if err != nil {
				t.Fatalf("geminiContent() error = %v", err)
			}
			if content.Role != tc.want {
				t.Errorf("Role = %q, want %q", content.Role, tc.want)
			}
		})
	}
}

func TestGemini_Embed(t *testing.T) {
	s := newScriptedServer(t, okReply(`{"embedding":{"values":[0.5,-0.25,1]}}`))
	c := newTestClient(t, s, ClientConfig{EmbeddingModel: "text-embedding-004"})

	got, err := c.Embed(background(t), "hello world", &CallParams{TaskType: "RETRIEVAL_QUERY"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if diff := cmp.Diff([]float64{0.5, -0.25, 1}, got); diff != "" {
		t.Errorf("vector mismatch (-want +got):\n%s", diff)
	}

	req := s.requests()[0]
	if req.Path != "/models/text-embedding-004:embedContent" {
		t.Errorf("Path = %q", req.Path)
	}
	want := map[string]any{
		"model":    "models/text-embedding-004",
		"content":  map[string]any{"role": "user", "parts": []any{map[string]any{"text": "hello world"}}},
		"taskType": "RETRIEVAL_QUERY",
	}
	if diff := cmp.Diff(want, req.decode(t)); diff != "" {
		t.Errorf("request body mismatch (-want +got):\n%s", diff)
	}
}

func TestGemini_EmbedBatch(t *testing.T) {
	s := newScriptedServer(t, okReply(`{"embeddings":[{"values":[1]},{"values":[2]},{"values":[3]}]}`))
	c := newTestClient(t, s, ClientConfig{EmbeddingModel: "text-embedding-004"})

	got, err := c.EmbedBatch(background(t), []string{"a", "b", "c"}, nil)
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}
	if diff := cmp.Diff([][]float64{{1}, {2}, {3}}, got); diff != "" {
		t.Errorf("vectors mismatch (-want +got):\n%s", diff)
	}

	req := s.requests()[0]
	if req.Path != "/models/text-embedding-004:batchEmbedContents" {
		t.Errorf("Path = %q", req.Path)
	}
	requests, _ := req.decode(t)["requests"].([]any)
	if len(requests) != 3 {
		t.Fatalf("expected 3 batch entries, got %d", len(requests))
	}
	second, _ := requests[1].(map[string]any)
	if second["model"] != "models/text-embedding-004" {
		t.Errorf("entry model = %v", second["model"])
	}
}

func TestGemini_EmbedBatchCountMismatch(t *testing.T) {
	s := newScriptedServer(t, okReply(`{"embeddings":[{"values":[1]}]}`))
	c := newTestClient(t, s, ClientConfig{})

	_, err := c.EmbedBatch(background(t), []string{"a", "b"}, nil)
	if _, ok := err.(UnexpectedResponseShapeErr); !ok {
		t.Fatalf("expected UnexpectedResponseShapeErr, got %T: %v", err, err)
	}
}

func TestGemini_GenerateImage(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n")
	raw := `{"candidates":[{"content":{"role":"model","parts":[
		{"text":"Here you go"},
		{"inlineData":{"mimeType":"image/png","data":"` + base64.StdEncoding.EncodeToString(png) + `"}}
	]},"finishReason":"STOP"}]}`
	s := newScriptedServer(t, okReply(raw))
	c := newTestClient(t, s, ClientConfig{ImageModel: "gemini-2.5-flash-image", ResponseSchema: personSchema})

	uri, err := c.GenerateImage(background(t), "a lighthouse at dusk", nil)
	if err != nil {
		t.Fatalf("GenerateImage() error = %v", err)
	}
	if uri != "data:image/png;base64,iVBORw0KGgo=" {
		t.Errorf("uri = %q", uri)
	}

	req := s.requests()[0]
	if req.Path != "/models/gemini-2.5-flash-image:generateContent" {
		t.Errorf("Path = %q", req.Path)
	}
	gen, _ := req.decode(t)["generationConfig"].(map[string]any)
	if diff := cmp.Diff([]any{"TEXT", "IMAGE"}, gen["responseModalities"]); diff != "" {
		t.Errorf("responseModalities mismatch (-want +got):\n%s", diff)
	}
	if _, present := gen["responseSchema"]; present {
		t.Errorf("image requests must not carry a response schema")
	}
}
