package genflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	// Delay before the n-th retry of a transport failure is min(1s * 2^n, 30s).
	defaultRetryInitialInterval = time.Second
	defaultRetryMaxInterval     = 30 * time.Second
	defaultRetryMultiplier      = 2

	maxLoggedBodyLength = 500
)

// defaultBackOff is the exponential policy applied between transport-failure retries.
func defaultBackOff() backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = defaultRetryInitialInterval
	exp.MaxInterval = defaultRetryMaxInterval
	exp.Multiplier = defaultRetryMultiplier
	exp.RandomizationFactor = 0
	return exp
}

// vendorError is the error object vendors embed in failure bodies. Gemini, OpenAI
// and Anthropic all nest it under "error"; only Gemini populates Details.
type vendorError struct {
	Message string `json:"message"`
	Status  string `json:"status"`
	Type    string `json:"type"`
	Details []struct {
		Type       string `json:"@type"`
		RetryDelay string `json:"retryDelay"`
	} `json:"details"`
}

func (v *vendorError) apiErr(status int, raw []byte) ApiErr {
	s := v.Status
	if s == "" {
		s = v.Type
	}
	return ApiErr{StatusCode: status, Status: s, Message: v.Message, Body: truncate(string(raw), 4096)}
}

// retryDelay returns the google.rpc.RetryInfo delay, if the error carries one.
func (v *vendorError) retryDelay() (time.Duration, bool) {
	for _, d := range v.Details {
		if d.RetryDelay == "" {
			continue
		}
		if dur, err := time.ParseDuration(d.RetryDelay); err == nil && dur >= 0 {
			return dur, true
		}
	}
	return 0, false
}

func parseVendorError(body []byte) *vendorError {
	var envelope struct {
		Error *vendorError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil
	}
	return envelope.Error
}

// Transport sends encoded requests to the remote service, classifying failures and
// retrying the ones that may succeed on a later attempt:
//   - network errors are retried with exponential backoff
//   - 429 responses are retried after the wait the server asked for, and fail at
//     once when the server gave no hint
//   - every other non-200 status is fatal
//
// A Transport holds no per-call state and is safe for concurrent use.
type Transport struct {
	client     *http.Client
	logger     *slog.Logger
	newBackOff func() backoff.BackOff
}

// outbound is a request ready to be sent. Header carries authentication.
type outbound struct {
	URL    string
	Header http.Header
	Body   any
}

// Send posts req and hands the 200 response body to decode. At most budget attempts
// are made. Exhausting the budget on retriable failures yields RetryExhaustedErr.
func (t *Transport) Send(ctx context.Context, req outbound, budget int, decode func([]byte) error) error {
	if budget < 1 {
		budget = 1
	}
	payload, err := json.Marshal(req.Body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}
	summary := summarizeRequest(payload)

	var (
		attempts int
		last     error
		terminal error
	)
	operation := func() (struct{}, error) {
		attempts++
		t.logger.DebugContext(ctx, "transport attempt",
			"attempt", attempts,
			"budget", budget,
			"url", req.URL,
			"request", summary,
		)

		resp, err := t.do(ctx, req, payload)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				terminal = ctxErr
				return struct{}{}, backoff.Permanent(ctxErr)
			}
			last = err
			return struct{}{}, err
		}

		t.logger.DebugContext(ctx, "transport response",
			"attempt", attempts,
			"status", resp.status,
			"body", truncate(string(resp.body), maxLoggedBodyLength),
		)

		switch {
		case resp.status == http.StatusOK:
			if err := decode(resp.body); err != nil {
				terminal = err
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, nil
		case resp.status == http.StatusTooManyRequests:
			apiErr := newApiErr(resp.status, resp.body)
			wait, ok := retryHint(resp.header, resp.body)
			if !ok {
				terminal = apiErr
				return struct{}{}, backoff.Permanent(apiErr)
			}
			last = apiErr
			return struct{}{}, &backoff.RetryAfterError{Duration: wait}
		default:
			apiErr := newApiErr(resp.status, resp.body)
			terminal = apiErr
			return struct{}{}, backoff.Permanent(apiErr)
		}
	}

	_, err = backoff.Retry(ctx, operation,
		backoff.WithBackOff(t.newBackOff()),
		backoff.WithMaxTries(uint(budget)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			t.logger.WarnContext(ctx, "transport retry",
				"attempt", attempts,
				"wait", wait,
				"error", errorForLog(err, last),
			)
		}),
	)
	if err == nil {
		return nil
	}
	if terminal != nil {
		return terminal
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return RetryExhaustedErr{Attempts: attempts, Last: last}
}

type httpResult struct {
	status int
	header http.Header
	body   []byte
}

func (t *Transport) do(ctx context.Context, req outbound, payload []byte) (*httpResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range req.Header {
		httpReq.Header[k] = v
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			t.logger.Warn("failed to close response body", "error", closeErr)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return &httpResult{status: resp.StatusCode, header: resp.Header, body: body}, nil
}

func newApiErr(status int, body []byte) ApiErr {
	if v := parseVendorError(body); v != nil {
		return v.apiErr(status, body)
	}
	return ApiErr{StatusCode: status, Body: truncate(string(body), 4096)}
}

// retryHint finds the server-requested wait of a 429 response: a Retry-After header
// (matched case-insensitively, in seconds or as an HTTP date), else a RetryInfo
// delay in the error body.
func retryHint(h http.Header, body []byte) (time.Duration, bool) {
	for k, vals := range h {
		if !strings.EqualFold(k, "Retry-After") || len(vals) == 0 {
			continue
		}
		if d, ok := parseRetryAfter(vals[0]); ok {
			return d, true
		}
	}
	if v := parseVendorError(body); v != nil {
		return v.retryDelay()
	}
	return 0, false
}

func parseRetryAfter(v string) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs * float64(time.Second)), true
	}
	if at, err := http.ParseTime(v); err == nil {
		d := time.Until(at)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

func errorForLog(err, last error) string {
	var retryAfter *backoff.RetryAfterError
	if errors.As(err, &retryAfter) && last != nil {
		return last.Error()
	}
	return err.Error()
}
