package embedder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/genai"
)

// DefaultGoogleModel is the default Gemini embedding model. It outputs 3072
// dimensions natively and supports truncation to smaller sizes through
// OutputDimensionality.
const DefaultGoogleModel = "gemini-embedding-001"

// Google embeds text with the Gemini API.
type Google struct {
	client    *genai.Client
	model     string
	dimension int32
	logger    *slog.Logger
}

var _ Embedder = (*Google)(nil)

// NewGoogle creates a Gemini-backed embedder. The API key comes from the
// caller (typically configuration); the model defaults to
// DefaultGoogleModel.
func NewGoogle(ctx context.Context, apiKey, model string, dimension int, logger *slog.Logger) (*Google, error) {
	if apiKey == "" {
		return nil, errors.New("google embedder requires an API key")
	}
	if model == "" {
		model = DefaultGoogleModel
	}
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &Google{
		client:    client,
		model:     model,
		dimension: int32(dimension),
		logger:    logger,
	}, nil
}

// Embed requests a single embedding truncated to the configured dimension.
func (g *Google) Embed(ctx context.Context, text string) ([]float32, error) {
	dim := g.dimension
	resp, err := g.client.Models.EmbedContent(ctx, g.model, genai.Text(text), &genai.EmbedContentConfig{
		OutputDimensionality: &dim,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding text with %s: %w", g.model, err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, errors.New("gemini returned an empty embedding")
	}
	return resp.Embeddings[0].Values, nil
}
