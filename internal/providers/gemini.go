package providers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/vertexai/genai"

	"github.com/collate-ai/collate/internal/pipeline"
)

type gemini struct {
	client    *genai.Client
	modelName string
}

// NewGemini creates the Gemini adapter backed by Vertex AI. Client
// construction validates credentials eagerly; a misconfigured project or
// region is a fatal config error.
func NewGemini(ctx context.Context, cfg *Config, logger *slog.Logger) (Adapter, error) {
	if err := cfg.validate(Gemini); err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, cfg.ProjectID, cfg.Region)
	if err != nil {
		return nil, pipeline.ConfigErr(fmt.Errorf("create gemini client: %w", err))
	}

	return newAdapter(&gemini{client: client, modelName: cfg.Model}, logger), nil
}

func (g *gemini) name() string { return Gemini }

func (g *gemini) model() string { return g.modelName }

func (g *gemini) generate(ctx context.Context, prompt string, doc *pipeline.Payload) (string, error) {
	model := g.client.GenerativeModel(g.modelName)

	parts := []genai.Part{genai.Text(prompt)}
	if doc != nil {
		parts = append(parts, genai.Blob{MIMEType: doc.MIME, Data: doc.Bytes})
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		// Vertex AI does not expose a stable status surface here; unknown
		// failures stay retryable.
		return "", pipeline.TransientErr(fmt.Errorf("gemini call: %w", err))
	}

	return geminiText(resp), nil
}

func geminiText(resp *genai.GenerateContentResponse) string {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}

	return sb.String()
}
