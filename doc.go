// Package genflow is a client for generative-AI completion services that turns a
// single "generate content" request into a reliable, possibly multi-round exchange.
//
// It hides three kinds of trouble behind a small synchronous surface:
//
//   - transport failures and rate limiting, retried by a backoff engine that honors
//     server-provided Retry-After hints
//   - structured-output non-compliance, re-requested until the model returns content
//     or a retry budget runs out
//   - tool invocation, executed locally and fed back to the model for up to a bounded
//     number of rounds
//
// # Core Concepts
//
// Client: created once with New from an API key and a ClientConfig of defaults.
// Every operation takes optional CallParams whose non-nil fields override the defaults
// for that call only.
//
// Dialect: the vendor mapping. Gemini is the default; OpenAI covers OpenAI-compatible
// services and Anthropic covers the Messages API.
//
// Conversation: the ordered turns of one call. Tool rounds append a model turn
// carrying the invocation followed by a tool turn carrying the result.
//
// ToolDeclaration: a named tool whose arguments follow a JSON Schema, executed locally
// by its ToolHandler.
//
// # Examples
//
// Plain generation:
//
//	client, err := genflow.New(os.Getenv("GEMINI_API_KEY"), genflow.ClientConfig{
//		Model:       "gemini-2.5-flash",
//		Temperature: genflow.Ptr(0.2),
//	})
//	if err != nil {
//		return err
//	}
//	res, err := client.GenerateContent(ctx, "Write a haiku about retries.", nil)
//	if err != nil {
//		return err
//	}
//	fmt.Println(res.Text)
//
// Structured output decoded into a Go type:
//
//	type Person struct {
//		Name string `json:"name"`
//		Age  int    `json:"age"`
//	}
//	p, err := genflow.GenerateAs[Person](ctx, client, "Extract: Ada, 36", nil)
//
// Tool calling:
//
//	weather, err := genflow.NewTool("lookupWeather", "Current conditions for a city",
//		func(ctx context.Context, args struct {
//			City string `json:"city"`
//		}) (map[string]string, error) {
//			return map[string]string{"conditions": "clear"}, nil
//		})
//	if err != nil {
//		return err
//	}
//	res, err := client.GenerateContent(ctx, "Weather in Paris?", &genflow.CallParams{
//		Tools: []genflow.ToolDeclaration{weather},
//	})
//
// # Errors
//
// Failures are reported with typed errors that can be matched with errors.As:
// ConfigInvalidErr, InvalidMediaErr, ApiErr, RetryExhaustedErr, SchemaComplianceErr,
// UnknownToolErr, ToolCallLimitErr, ResponseTruncatedErr, ContentBlockedErr,
// UnexpectedResponseShapeErr, MalformedToolArgumentsErr and UnsupportedOperationErr.
// Errors returned by tool handlers are never surfaced; they are reported to the model.
package genflow
