package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/zhouzirui/finchat/backend/internal/config"
	"github.com/zhouzirui/finchat/backend/internal/model/chat"
)

// GeminiCompleter calls the Gemini API and asks for a JSON answer.
type GeminiCompleter struct {
	client      *genai.Client
	model       string
	temperature *float32
}

// NewGeminiCompleter creates the genai client. Without an explicit key the
// client falls back to the GOOGLE_* environment (Vertex AI or Gemini API).
func NewGeminiCompleter(ctx context.Context, cfg config.AIConfig) (*GeminiCompleter, error) {
	clientCfg := &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1beta"},
	}
	if cfg.GeminiAPIKey != "" {
		clientCfg.APIKey = cfg.GeminiAPIKey
		clientCfg.Backend = genai.BackendGeminiAPI
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	var temperature *float32
	if cfg.Temperature != nil {
		val := float32(*cfg.Temperature)
		temperature = &val
	}

	return &GeminiCompleter{client: client, model: cfg.GeminiModel, temperature: temperature}, nil
}

// Complete implements Completer.
func (c *GeminiCompleter) Complete(ctx context.Context, req Request) (string, error) {
	window := historyWindow(req.History, req.HistoryLimit)
	contents := make([]*genai.Content, 0, len(window)+1)
	for _, msg := range window {
		role := "user"
		if msg.Role == chat.RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: msg.Content}},
		})
	}
	contents = append(contents, &genai.Content{
		Role:  "user",
		Parts: []*genai.Part{{Text: req.Query}},
	})

	genCfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      c.temperature,
	}
	if req.System != "" {
		genCfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, genCfg)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
