package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRun(t *testing.T) {
	var gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotPath, gotBody = r.URL.Path, string(b)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"hi"}]},"finishReason":"STOP"}]}`)
	}))
	defer srv.Close()
	t.Setenv("GENFLOW_API_KEY", "k")

	err := run(context.Background(), []string{"generate", "-base-url", srv.URL, "-model", "gemini-2.5-flash", "-temperature", "0.5", "say", "hi"})
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if gotPath != "/models/gemini-2.5-flash:generateContent" {
		t.Errorf("path = %q", gotPath)
	}
	if !strings.Contains(gotBody, `"say hi"`) || !strings.Contains(gotBody, `"temperature":0.5`) {
		t.Errorf("body = %s", gotBody)
	}
}

func TestLoadSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.json")
	if err := os.WriteFile(path, []byte(`{"type":"object","properties":{"name":{"type":"string"}},"required":["name"]}`), 0o600); err != nil {
		t.Fatal(err)
	}
	s, err := loadSchema(path)
	if err != nil {
		t.Fatalf("loadSchema() error = %v", err)
	}
	if s.Type != "object" || s.Properties["name"] == nil || len(s.Required) != 1 {
		t.Errorf("schema = %+v", s)
	}
}

func TestRun_Errors(t *testing.T) {
	t.Setenv("GENFLOW_API_KEY", "k")
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no command", nil, "expected a command"},
		{"unknown dialect", []string{"generate", "-model", "m", "-dialect", "cohere", "x"}, "unknown dialect"},
		{"unknown command", []string{"chat", "-model", "m"}, "unknown command"},
		{"embed without input", []string{"embed", "-model", "m"}, "at least one text"},
		{"missing schema file", []string{"generate", "-model", "m", "-schema", "/nonexistent/schema.json", "x"}, "failed to read schema"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := run(context.Background(), tc.args)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("run() error = %v, want %q", err, tc.want)
			}
		})
	}
}
