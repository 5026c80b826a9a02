// Package retrieval embeds the annotated pool of training questions and
// ranks it against incoming questions to pick few-shot exemplars.
package retrieval

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
	"github.com/ollama/ollama/envconfig"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"google.golang.org/genai"
)

// Embedder turns text into vectors. langchaingo's embeddings.Embedder
// satisfies it.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// EmbedderConfig selects and configures a backend.
type EmbedderConfig struct {
	Provider  string // openai, ollama, genai
	Model     string
	Token     string
	BaseURL   string
	BatchSize int
}

const genaiTaskType = "SEMANTIC_SIMILARITY"

// NewEmbedder creates the configured backend. Every backend is wrapped in
// langchaingo's batching embedder.
func NewEmbedder(ctx context.Context, cfg EmbedderConfig) (Embedder, error) {
	var client embeddings.EmbedderClient
	var err error

	switch strings.ToLower(cfg.Provider) {
	case "openai", "":
		client, err = newOpenAIClient(cfg)
	case "ollama":
		client, err = newOllamaClient(cfg)
	case "genai", "gemini":
		client, err = newGenAIClient(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 64
	}
	emb, err := embeddings.NewEmbedder(client,
		embeddings.WithBatchSize(batch),
		embeddings.WithStripNewLines(true),
	)
	if err != nil {
		return nil, err
	}
	return emb, nil
}

func newOpenAIClient(cfg EmbedderConfig) (embeddings.EmbedderClient, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("openai embeddings need an API token")
	}
	opts := []openai.Option{
		openai.WithToken(cfg.Token),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	return openai.New(opts...)
}

func newOllamaClient(cfg EmbedderConfig) (embeddings.EmbedderClient, error) {
	host := envconfig.Host()
	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid ollama url %q: %w", cfg.BaseURL, err)
		}
		host = u
	}
	client := api.NewClient(host, http.DefaultClient)
	model := cfg.Model

	return embeddings.EmbedderClientFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		resp, err := client.Embed(ctx, &api.EmbedRequest{Model: model, Input: texts})
		if err != nil {
			return nil, fmt.Errorf("ollama embed: %w", err)
		}
		if len(resp.Embeddings) != len(texts) {
			return nil, fmt.Errorf("ollama embed: got %d vectors for %d texts", len(resp.Embeddings), len(texts))
		}
		return resp.Embeddings, nil
	}), nil
}

func newGenAIClient(ctx context.Context, cfg EmbedderConfig) (embeddings.EmbedderClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.Token})
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	model := cfg.Model

	return embeddings.EmbedderClientFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		contents := make([]*genai.Content, len(texts))
		for i, t := range texts {
			contents[i] = genai.NewContentFromText(t, genai.RoleUser)
		}
		resp, err := client.Models.EmbedContent(ctx, model, contents, &genai.EmbedContentConfig{TaskType: genaiTaskType})
		if err != nil {
			return nil, fmt.Errorf("genai embed: %w", err)
		}
		if len(resp.Embeddings) != len(texts) {
			return nil, fmt.Errorf("genai embed: got %d vectors for %d texts", len(resp.Embeddings), len(texts))
		}
		out := make([][]float32, len(resp.Embeddings))
		for i, e := range resp.Embeddings {
			out[i] = e.Values
		}
		return out, nil
	}), nil
}
