// Command genflow sends a single request through the genflow client.
//
// Configuration is read from a .env file in the working directory, then the
// environment, then flags:
//
//	GENFLOW_API_KEY   API key (required)
//	GENFLOW_DIALECT   gemini, openai or anthropic (default gemini)
//	GENFLOW_MODEL     model identifier
//	GENFLOW_BASE_URL  override the dialect's base URL
//
// Usage:
//
//	genflow generate [flags] <prompt>
//	genflow embed [flags] <text>...
//	genflow image [flags] <prompt>
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/joho/godotenv"

	"github.com/spachava753/genflow"
)

type multiFlag []string

func (m *multiFlag) String() string { return strings.Join(*m, ",") }

func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "genflow:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("expected a command: generate, embed or image")
	}
	cmd, args := args[0], args[1:]

	fset := flag.NewFlagSet(cmd, flag.ContinueOnError)
	dialect := fset.String("dialect", envOr("GENFLOW_DIALECT", "gemini"), "remote API dialect: gemini, openai, anthropic")
	model := fset.String("model", os.Getenv("GENFLOW_MODEL"), "model identifier")
	baseURL := fset.String("base-url", os.Getenv("GENFLOW_BASE_URL"), "override the dialect base URL")
	system := fset.String("system", "", "system instruction")
	temperature := fset.Float64("temperature", -1, "sampling temperature, unset when negative")
	maxTokens := fset.Int("max-tokens", 0, "max output tokens, unset when zero")
	schemaPath := fset.String("schema", "", "path to a JSON Schema file requesting structured output")
	retries := fset.Int("retries", 0, "transport retry budget, default when zero")
	verbose := fset.Bool("v", false, "log requests to stderr")
	var media multiFlag
	fset.Var(&media, "media", "file to attach, repeatable")
	if err := fset.Parse(args); err != nil {
		return err
	}

	cfg := genflow.ClientConfig{
		Model:             *model,
		SystemInstruction: *system,
		MaxRetries:        *retries,
	}
	if *temperature >= 0 {
		cfg.Temperature = genflow.Ptr(*temperature)
	}
	if *maxTokens > 0 {
		cfg.MaxOutputTokens = genflow.Ptr(*maxTokens)
	}
	for _, path := range media {
		cfg.Media = append(cfg.Media, genflow.File{Path: path})
	}
	if *schemaPath != "" {
		schema, err := loadSchema(*schemaPath)
		if err != nil {
			return err
		}
		cfg.ResponseSchema = schema
	}

	opts := []genflow.Option{genflow.WithBaseURL(*baseURL)}
	switch *dialect {
	case "gemini":
		opts = append(opts, genflow.WithDialect(genflow.Gemini()))
	case "openai":
		opts = append(opts, genflow.WithDialect(genflow.OpenAI()))
	case "anthropic":
		opts = append(opts, genflow.WithDialect(genflow.Anthropic()))
	default:
		return fmt.Errorf("unknown dialect %q", *dialect)
	}
	if *verbose {
		opts = append(opts, genflow.WithLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))))
	}

	client, err := genflow.New(os.Getenv("GENFLOW_API_KEY"), cfg, opts...)
	if err != nil {
		return err
	}

	input := strings.Join(fset.Args(), " ")
	switch cmd {
	case "generate":
		res, err := client.GenerateContent(ctx, input, nil)
		if err != nil {
			return err
		}
		if res.Structured != nil {
			return printJSON(res.Structured)
		}
		fmt.Println(res.Text)
	case "embed":
		if fset.NArg() == 0 {
			return errors.New("embed needs at least one text")
		}
		vecs, err := client.EmbedBatch(ctx, fset.Args(), nil)
		if err != nil {
			return err
		}
		return printJSON(vecs)
	case "image":
		uri, err := client.GenerateImage(ctx, input, nil)
		if err != nil {
			return err
		}
		fmt.Println(uri)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

func loadSchema(path string) (*jsonschema.Schema, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}
	var s jsonschema.Schema
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}
	return &s, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
