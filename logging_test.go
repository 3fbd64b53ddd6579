package genflow

import (
	"bytes"
	"encoding/base64"
	"log/slog"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSummarizeRequest(t *testing.T) {
	blob := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0xAB}, 600))
	payload := []byte(`{
		"contents": [{"parts": [
			{"text": "describe"},
			{"inlineData": {"mimeType": "image/png", "data": "` + blob + `"}}
		]}],
		"messages": [{"content": [{"type": "image_url", "image_url": {"url": "data:image/png;base64,AAAA"}}]}],
		"other": "` + blob + `"
	}`)

	got := summarizeRequest(payload)

	if strings.Contains(got, blob) || strings.Contains(got, "AAAA") {
		t.Errorf("binary payload leaked into summary: %s", got)
	}
	for _, want := range []string{"describe", "image/png", "<elided 800 bytes>"} {
		if !strings.Contains(got, want) {
			t.Errorf("summary missing %q: %s", want, got)
		}
	}
}

func TestSummarizeRequest_NotJSON(t *testing.T) {
	if got := summarizeRequest([]byte("plain")); got != "plain" {
		t.Errorf("summarizeRequest() = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate() = %q", got)
	}
	got := truncate(strings.Repeat("x", 20), 5)
	if got != "xxxxx... (truncated, total: 20 chars)" {
		t.Errorf("truncate() = %q", got)
	}
}

func TestTruncate_RuneBoundary(t *testing.T) {
	// "é" is two bytes, so a cut at 4 would fall inside the second one
	got := truncate("aéébc", 4)
	if !utf8.ValidString(got) {
		t.Fatalf("truncate() produced invalid UTF-8: %q", got)
	}
	if got != "aé... (truncated, total: 7 chars)" {
		t.Errorf("truncate() = %q", got)
	}
}

func TestSummarizeRequest_KeepsMarkupCharacters(t *testing.T) {
	got := summarizeRequest([]byte(`{"text":"a < b && c > d"}`))
	if got != `{"text":"a < b && c > d"}` {
		t.Errorf("summarizeRequest() = %s", got)
	}
}

func TestClientLogs_OmitSecretsAndMedia(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	image := bytes.Repeat([]byte("secretpixels"), 50)
	s := newScriptedServer(t,
		reply{status: 429, header: map[string][]string{"Retry-After": {"0"}}, body: `{}`},
		okReply(geminiText("a red square")),
	)
	c := newTestClient(t, s, ClientConfig{}, WithLogger(logger))

	_, err := c.GenerateContent(background(t), "what is this?", &CallParams{
		Media: []Media{Blob{Mime: "image/png", Data: image}},
	})
	if err != nil {
		t.Fatalf("GenerateContent() error = %v", err)
	}

	logs := buf.String()
	if strings.Contains(logs, "test-key") {
		t.Errorf("api key leaked into logs:\n%s", logs)
	}
	if strings.Contains(logs, base64.StdEncoding.EncodeToString(image)) {
		t.Errorf("media bytes leaked into logs:\n%s", logs)
	}
	for _, msg := range []string{"transport attempt", "transport retry", "transport response"} {
		if !strings.Contains(logs, msg) {
			t.Errorf("expected %q in logs:\n%s", msg, logs)
		}
	}
}
