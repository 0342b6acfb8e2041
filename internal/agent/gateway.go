// Package agent wraps the external AI model behind a minimal Gateway
// interface so the conversation layer stays independent of the provider and
// tests can substitute a fake.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const systemInstruction = "You are the DataGround assistant. You help users analyze " +
	"geospatial and environmental data and answer questions about their datasets. " +
	"Keep your answers concise and directly related to the user's question."

// Gateway maps a text prompt to a text reply. Implementations must be safe
// for concurrent use; a single gateway is constructed at startup and shared
// across requests.
type Gateway interface {
	Reply(ctx context.Context, prompt string) (string, error)
}

// GeminiGateway is the production Gateway backed by the Gemini API.
type GeminiGateway struct {
	client *genai.Client
	model  string
}

// NewGeminiGateway creates a Gateway using the given API key and model name.
func NewGeminiGateway(ctx context.Context, apiKey, modelName string) (*GeminiGateway, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	return &GeminiGateway{client: client, model: modelName}, nil
}

// Reply sends the prompt to the model and returns the generated text.
// Cancellation of ctx aborts the call; the caller owns the timeout.
func (g *GeminiGateway) Reply(ctx context.Context, prompt string) (string, error) {
	model := g.client.GenerativeModel(g.model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemInstruction)},
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("model returned no candidates")
	}

	var reply strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			reply.WriteString(string(txt))
		}
	}

	if reply.Len() == 0 {
		return "", fmt.Errorf("model returned no text parts")
	}

	return reply.String(), nil
}

// UnavailableGateway stands in when the real gateway could not be
// constructed. Every reply fails with the construction error, which the
// conversation layer downgrades to a stored error message, so the rest of
// the API keeps serving.
type UnavailableGateway struct {
	Err error
}

func (g UnavailableGateway) Reply(context.Context, string) (string, error) {
	return "", fmt.Errorf("agent gateway unavailable: %w", g.Err)
}

// Close releases the underlying API client.
func (g *GeminiGateway) Close() {
	if g.client != nil {
		if err := g.client.Close(); err != nil {
			slog.Warn("closing genai client", "error", err)
		}
	}
}
