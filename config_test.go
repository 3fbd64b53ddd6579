package genflow

import (
	"errors"
	"testing"
	"time"

	"google.golang.org/genai"
)

func TestNew_ValidatesConfig(t *testing.T) {
	tests := []struct {
		name      string
		apiKey    string
		cfg       ClientConfig
		wantField string
	}{
		{"missing api key", "", ClientConfig{Model: "m"}, "apiKey"},
		{"missing model", "k", ClientConfig{}, "Model"},
		{"temperature too high", "k", ClientConfig{Model: "m", Temperature: Ptr(2.5)}, "Temperature"},
		{"temperature negative", "k", ClientConfig{Model: "m", Temperature: Ptr(-0.1)}, "Temperature"},
		{"topP above one", "k", ClientConfig{Model: "m", TopP: Ptr(1.5)}, "TopP"},
		{"topK zero", "k", ClientConfig{Model: "m", TopK: Ptr(0)}, "TopK"},
		{"candidate count zero", "k", ClientConfig{Model: "m", CandidateCount: Ptr(0)}, "CandidateCount"},
		{"max output tokens zero", "k", ClientConfig{Model: "m", MaxOutputTokens: Ptr(0)}, "MaxOutputTokens"},
		{"negative retries", "k", ClientConfig{Model: "m", MaxRetries: -1}, "MaxRetries"},
		{"negative tool rounds", "k", ClientConfig{Model: "m", MaxToolRounds: -2}, "MaxToolRounds"},
		{
			"incomplete safety setting", "k",
			ClientConfig{Model: "m", SafetySettings: []SafetySetting{{Category: genai.HarmCategoryHateSpeech}}},
			"SafetySettings[0]",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, err := New(tc.apiKey, tc.cfg)
			var cfgErr ConfigInvalidErr
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigInvalidErr, got %T: %v", err, err)
			}
			if cfgErr.Field != tc.wantField {
				t.Errorf("Field = %q, want %q", cfgErr.Field, tc.wantField)
			}
			if c != nil {
				t.Errorf("no client should be returned")
			}
		})
	}
}

func TestNew_AcceptsBoundaryValues(t *testing.T) {
	cfg := ClientConfig{
		Model:       "m",
		Temperature: Ptr(0.0),
		TopP:        Ptr(1.0),
		TopK:        Ptr(1),
	}
	c, err := New("k", cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c.Config().Model != "m" {
		t.Errorf("Config().Model = %q", c.Config().Model)
	}
	if _, err := New("k", ClientConfig{Model: "m", Temperature: Ptr(2.0)}); err != nil {
		t.Errorf("temperature 2 should be accepted: %v", err)
	}
}

func TestCallParams_Validate(t *testing.T) {
	tests := []struct {
		name      string
		params    *CallParams
		wantField string
	}{
		{"nil is valid", nil, ""},
		{"empty is valid", &CallParams{}, ""},
		{"empty model", &CallParams{Model: Ptr("")}, "Model"},
		{"zero retries", &CallParams{MaxRetries: Ptr(0)}, "MaxRetries"},
		{"zero compliance retries", &CallParams{ComplianceRetries: Ptr(0)}, "ComplianceRetries"},
		{"zero tool rounds", &CallParams{MaxToolRounds: Ptr(0)}, "MaxToolRounds"},
		{"negative timeout", &CallParams{Timeout: -time.Second}, "Timeout"},
		{"bad topP", &CallParams{TopP: Ptr(-1.0)}, "TopP"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.params.validate()
			if tc.wantField == "" {
				if err != nil {
					t.Fatalf("validate() error = %v", err)
				}
				return
			}
			var cfgErr ConfigInvalidErr
			if !errors.As(err, &cfgErr) || cfgErr.Field != tc.wantField {
				t.Fatalf("expected ConfigInvalidErr on %s, got %T: %v", tc.wantField, err, err)
			}
		})
	}
}

func TestGenerateContent_InvalidParamsFailBeforeSending(t *testing.T) {
	s := newScriptedServer(t)
	c := newTestClient(t, s, ClientConfig{})

	_, err := c.GenerateContent(background(t), "hi", &CallParams{Temperature: Ptr(3.0)})

	var cfgErr ConfigInvalidErr
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigInvalidErr, got %T: %v", err, err)
	}
	if n := len(s.requests()); n != 0 {
		t.Errorf("expected no requests, got %d", n)
	}
}
