package genflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Keys whose string values hold binary payloads in one of the supported wire formats.
var binaryPayloadKeys = map[string]bool{
	"data":             true,
	"b64_json":         true,
	"thoughtSignature": true,
}

// Strings at least this long that look like base64 are elided even under other keys.
const minElidedLength = 256

// summarizeRequest renders a request body for logging with every binary payload
// replaced by a placeholder. Credentials never appear here because they travel in
// headers, which are not part of the summary.
func summarizeRequest(payload []byte) string {
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return truncate(string(payload), maxLoggedBodyLength)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(redact("", v)); err != nil {
		return "<unprintable request>"
	}
	return truncate(strings.TrimSuffix(buf.String(), "\n"), 2000)
}

func redact(key string, v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = redact(k, e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = redact(key, e)
		}
		return out
	case string:
		if binaryPayloadKeys[key] || strings.HasPrefix(t, "data:") || (len(t) >= minElidedLength && looksBase64(t)) {
			return fmt.Sprintf("<elided %d bytes>", len(t))
		}
		return t
	default:
		return v
	}
}

func looksBase64(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case r == '+', r == '/', r == '=', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// truncate shortens s to at most maxLen bytes, recording the original length.
// The cut never splits a multi-byte rune.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return fmt.Sprintf("%s... (truncated, total: %d chars)", s[:cut], len(s))
}
