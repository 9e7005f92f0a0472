package providers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"github.com/collate-ai/collate/internal/pipeline"
)

type openaiClient struct {
	providerName string
	client       *openai.Client
	modelName    string
}

// NewOpenAI creates the OpenAI adapter. Endpoint optionally overrides the
// API base URL for compatible gateways.
func NewOpenAI(cfg *Config, logger *slog.Logger) (Adapter, error) {
	if err := cfg.validate(OpenAI); err != nil {
		return nil, err
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientCfg.BaseURL = cfg.Endpoint
	}

	c := &openaiClient{
		providerName: OpenAI,
		client:       openai.NewClientWithConfig(clientCfg),
		modelName:    cfg.Model,
	}

	return newAdapter(c, logger), nil
}

// NewAzureOpenAI creates the Azure OpenAI adapter. Model names the Azure
// deployment; the endpoint and API version come from config.
func NewAzureOpenAI(cfg *Config, logger *slog.Logger) (Adapter, error) {
	if err := cfg.validate(Azure); err != nil {
		return nil, err
	}

	clientCfg := openai.DefaultAzureConfig(cfg.APIKey, cfg.Endpoint)
	clientCfg.APIVersion = cfg.APIVersion

	c := &openaiClient{
		providerName: Azure,
		client:       openai.NewClientWithConfig(clientCfg),
		modelName:    cfg.Model,
	}

	return newAdapter(c, logger), nil
}

func (o *openaiClient) name() string { return o.providerName }

func (o *openaiClient) model() string { return o.modelName }

func (o *openaiClient) generate(ctx context.Context, prompt string, doc *pipeline.Payload) (string, error) {
	message := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if doc != nil {
		message.MultiContent = []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: prompt},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL: dataURI(doc),
				},
			},
		}
	} else {
		message.Content = prompt
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    o.modelName,
		Messages: []openai.ChatCompletionMessage{message},
	})
	if err != nil {
		return "", o.classify(err)
	}

	if len(resp.Choices) == 0 {
		return "", nil
	}

	return resp.Choices[0].Message.Content, nil
}

func (o *openaiClient) classify(err error) error {
	wrapped := fmt.Errorf("%s call: %w", o.providerName, err)

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if httpStatusFatal(apiErr.HTTPStatusCode) {
			return pipeline.FatalErr(wrapped)
		}
	}

	return pipeline.TransientErr(wrapped)
}

// httpStatusFatal reports whether a provider HTTP status indicates a request
// that will never succeed on retry. Rate limits and server errors remain
// retryable.
func httpStatusFatal(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusRequestTimeout, http.StatusConflict:
		return false
	}
	return status >= 400 && status < 500
}

func dataURI(doc *pipeline.Payload) string {
	return fmt.Sprintf(
		"data:%s;base64,%s",
		doc.MIME, base64.StdEncoding.EncodeToString(doc.Bytes),
	)
}
