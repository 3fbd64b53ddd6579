package genflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cenkalti/backoff/v5"
)

// Client sends requests to one remote generative-AI service.
// It is read-only after New and safe for concurrent use: every call owns its
// conversation and retry counters.
type Client struct {
	apiKey    string
	cfg       ClientConfig
	dialect   Dialect
	baseURL   string
	transport *Transport
	logger    *slog.Logger
}

type clientOptions struct {
	dialect    Dialect
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	newBackOff func() backoff.BackOff
}

// Option configures a Client.
type Option func(*clientOptions)

// WithDialect selects the remote API. The default is Gemini.
func WithDialect(d Dialect) Option {
	return func(o *clientOptions) { o.dialect = d }
}

// WithBaseURL overrides the dialect's default base URL, e.g. to reach a proxy or
// another OpenAI-compatible service.
func WithBaseURL(url string) Option {
	return func(o *clientOptions) { o.baseURL = url }
}

// WithHTTPClient sets the HTTP client used for every request.
func WithHTTPClient(c *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = c }
}

// WithLogger sets the structured logger. By default nothing is logged.
func WithLogger(l *slog.Logger) Option {
	return func(o *clientOptions) { o.logger = l }
}

// WithBackOff replaces the exponential policy applied between retries of
// transport failures. The factory is invoked once per request.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(o *clientOptions) { o.newBackOff = newBackOff }
}

// New validates cfg and returns a Client. Invalid configuration fails with
// ConfigInvalidErr.
func New(apiKey string, cfg ClientConfig, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, ConfigInvalidErr{Field: "apiKey", Reason: "must not be empty"}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	o := clientOptions{
		dialect:    Gemini(),
		httpClient: http.DefaultClient,
		logger:     slog.New(slog.DiscardHandler),
		newBackOff: defaultBackOff,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.baseURL == "" {
		o.baseURL = o.dialect.DefaultBaseURL()
	}
	o.baseURL = strings.TrimRight(o.baseURL, "/")
	logger := o.logger.With("dialect", o.dialect.Name())

	return &Client{
		apiKey:  apiKey,
		cfg:     cfg,
		dialect: o.dialect,
		baseURL: o.baseURL,
		transport: &Transport{
			client:     o.httpClient,
			logger:     logger,
			newBackOff: o.newBackOff,
		},
		logger: logger,
	}, nil
}

// Config returns the client defaults.
func (c *Client) Config() ClientConfig {
	return c.cfg
}

// send runs call through the transport and decodes the response. Decoding
// failures other than vendor errors surface as UnexpectedResponseShapeErr.
func (c *Client) send(ctx context.Context, call Call, budget int) (*ApiResponse, error) {
	header := http.Header{}
	c.dialect.Authorize(header, c.apiKey)

	var resp *ApiResponse
	err := c.transport.Send(ctx, outbound{URL: call.URL, Header: header, Body: call.Body}, budget, func(body []byte) error {
		r, err := call.Decode(body)
		if err != nil {
			var apiErr ApiErr
			var malformed MalformedToolArgumentsErr
			if errors.As(err, &apiErr) || errors.As(err, &malformed) {
				return err
			}
			return UnexpectedResponseShapeErr{Reason: err.Error(), Excerpt: truncate(string(body), excerptLength)}
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// begin validates params, merges them with the client defaults and applies the
// per-call timeout.
func (c *Client) begin(ctx context.Context, params *CallParams) (context.Context, context.CancelFunc, resolvedParams, error) {
	if err := params.validate(); err != nil {
		return nil, nil, resolvedParams{}, err
	}
	r := resolveParams(c.cfg, params)
	if params != nil && params.Timeout > 0 {
		ctx, cancel := context.WithTimeout(ctx, params.Timeout)
		return ctx, cancel, r, nil
	}
	return ctx, func() {}, r, nil
}

// GenerateContent sends prompt, with the configured and call-time media attached,
// and returns the final answer after any tool rounds.
//
// When a response schema is in effect, Result.Structured holds the parsed JSON
// value. When the call declared no tools and the model answered with a tool
// invocation, Result.ToolCall and Result.Structured hold the invocation and its
// parsed arguments.
func (c *Client) GenerateContent(ctx context.Context, prompt string, params *CallParams) (*Result, error) {
	ctx, cancel, r, err := c.begin(ctx, params)
	if err != nil {
		return nil, err
	}
	defer cancel()

	turn, err := newUserTurn(prompt, r.media)
	if err != nil {
		return nil, err
	}
	c.logger.DebugContext(ctx, "generate", "model", r.model, "tools", len(r.tools), "structured", r.responseSchema != nil)
	return c.run(ctx, Conversation{turn}, r)
}

// Continue generates the next model turn of an existing conversation. The
// conversation is copied, never modified. Configured media is not attached.
func (c *Client) Continue(ctx context.Context, conv Conversation, params *CallParams) (*Result, error) {
	if len(conv) == 0 {
		return nil, EmptyConversationErr
	}
	ctx, cancel, r, err := c.begin(ctx, params)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return c.run(ctx, conv.Clone(), r)
}

// GenerateAs requests structured output and decodes it into T. When neither the
// client nor params specify a response schema, one is generated from T.
func GenerateAs[T any](ctx context.Context, c *Client, prompt string, params *CallParams) (T, error) {
	var out T
	p := CallParams{}
	if params != nil {
		p = *params
	}
	if p.ResponseSchema == nil && c.cfg.ResponseSchema == nil {
		schema, err := GenerateSchema[T]()
		if err != nil {
			return out, err
		}
		p.ResponseSchema = schema
	}
	res, err := c.GenerateContent(ctx, prompt, &p)
	if err != nil {
		return out, err
	}
	b, err := json.Marshal(res.Structured)
	if err != nil {
		return out, fmt.Errorf("failed to re-encode structured output: %w", err)
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, UnexpectedResponseShapeErr{
			Reason:  fmt.Sprintf("structured output does not match %T: %v", out, err),
			Excerpt: truncate(string(b), excerptLength),
		}
	}
	return out, nil
}

func (c *Client) embeddingModel(params *CallParams) string {
	switch {
	case params != nil && params.Model != nil:
		return *params.Model
	case c.cfg.EmbeddingModel != "":
		return c.cfg.EmbeddingModel
	default:
		return c.cfg.Model
	}
}

func (c *Client) embed(ctx context.Context, texts []string, batch bool, params *CallParams) ([][]float64, error) {
	ctx, cancel, r, err := c.begin(ctx, params)
	if err != nil {
		return nil, err
	}
	defer cancel()

	req := &EmbedRequest{
		Model:    c.embeddingModel(params),
		Inputs:   texts,
		TaskType: r.taskType,
		Batch:    batch,
	}
	call, err := c.dialect.Embed(c.baseURL, req)
	if err != nil {
		return nil, err
	}
	resp, err := c.send(ctx, call, r.maxRetries)
	if err != nil {
		return nil, err
	}
	return extractEmbeddings(resp, len(texts))
}

// Embed returns the embedding vector of text.
func (c *Client) Embed(ctx context.Context, text string, params *CallParams) ([]float64, error) {
	vecs, err := c.embed(ctx, []string{text}, false, params)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch returns one vector per input, in input order, using a single request.
func (c *Client) EmbedBatch(ctx context.Context, texts []string, params *CallParams) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}
	return c.embed(ctx, texts, true, params)
}

// GenerateImage generates one image from prompt and returns it as a data URI,
// e.g. data:image/png;base64,iVBOR...
func (c *Client) GenerateImage(ctx context.Context, prompt string, params *CallParams) (string, error) {
	ctx, cancel, r, err := c.begin(ctx, params)
	if err != nil {
		return "", err
	}
	defer cancel()

	switch {
	case params != nil && params.Model != nil:
		r.model = *params.Model
	case c.cfg.ImageModel != "":
		r.model = c.cfg.ImageModel
	}
	r.responseSchema = nil

	turn, err := newUserTurn(prompt, r.media)
	if err != nil {
		return "", err
	}
	gen, err := buildGenerateRequest(c.dialect, r, toolSet{}, Conversation{turn})
	if err != nil {
		return "", err
	}
	call, err := c.dialect.Image(c.baseURL, &ImageRequest{Model: r.model, Prompt: prompt, Generate: gen})
	if err != nil {
		return "", err
	}
	resp, err := c.send(ctx, call, r.maxRetries)
	if err != nil {
		return "", err
	}
	return extractImage(resp)
}
