package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/collate-ai/collate/internal/pipeline"
)

const anthropicAPIVersion = "2023-06-01"

type anthropic struct {
	endpoint   string
	apiKey     string
	modelName  string
	httpClient *http.Client
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	MaxTokens int                `json:"max_tokens"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicBlock struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Source *anthropicSource `json:"source,omitempty"`
}

type anthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicResponse struct {
	Content []anthropicBlock `json:"content"`
	Error   *anthropicError  `json:"error,omitempty"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewAnthropic creates the Anthropic adapter over the Messages API.
func NewAnthropic(cfg *Config, logger *slog.Logger) (Adapter, error) {
	if err := cfg.validate(Anthropic); err != nil {
		return nil, err
	}

	c := &anthropic{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		modelName:  cfg.Model,
		httpClient: &http.Client{Timeout: 10 * time.Minute},
	}

	return newAdapter(c, logger), nil
}

func (a *anthropic) name() string { return Anthropic }

func (a *anthropic) model() string { return a.modelName }

func (a *anthropic) generate(ctx context.Context, prompt string, doc *pipeline.Payload) (string, error) {
	blocks := []anthropicBlock{{Type: "text", Text: prompt}}
	if doc != nil {
		blocks = append(blocks, anthropicBlock{
			Type: blockTypeFor(doc.MIME),
			Source: &anthropicSource{
				Type:      "base64",
				MediaType: doc.MIME,
				Data:      base64.StdEncoding.EncodeToString(doc.Bytes),
			},
		})
	}

	body, err := json.Marshal(anthropicRequest{
		Model:     a.modelName,
		Messages:  []anthropicMessage{{Role: "user", Content: blocks}},
		MaxTokens: 4096,
	})
	if err != nil {
		return "", pipeline.FatalErr(fmt.Errorf("marshal anthropic request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", pipeline.FatalErr(fmt.Errorf("build anthropic request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", pipeline.TransientErr(fmt.Errorf("anthropic call: %w", err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", pipeline.TransientErr(fmt.Errorf("read anthropic response: %w", err))
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", pipeline.TransientErr(fmt.Errorf("decode anthropic response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("anthropic call: status %d: %s", resp.StatusCode, errMessage(parsed.Error))
		if httpStatusFatal(resp.StatusCode) {
			return "", pipeline.FatalErr(err)
		}
		return "", pipeline.TransientErr(err)
	}

	var sb strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	return sb.String(), nil
}

func blockTypeFor(mimeType string) string {
	if strings.HasPrefix(mimeType, "image/") {
		return "image"
	}
	return "document"
}

func errMessage(e *anthropicError) string {
	if e == nil {
		return "unknown error"
	}
	return e.Message
}
