// Package llm wraps the language model providers behind a single completion
// interface used by the intent and extraction services.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/zhouzirui/finchat/backend/internal/config"
	"github.com/zhouzirui/finchat/backend/internal/model/chat"
)

// DefaultHistoryLimit bounds the history sent with a request.
const DefaultHistoryLimit = 6

// ErrEmptyResponse is returned when the provider answers with no content.
var ErrEmptyResponse = errors.New("empty model response")

// Request is one completion call.
type Request struct {
	System       string
	History      []chat.Message
	HistoryLimit int
	Query        string
}

// Completer returns the raw text the model produced for req.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// New builds the completer for the configured provider. It returns nil when
// no provider is configured, which callers treat as "heuristics only".
func New(ctx context.Context, cfg config.AIConfig) (Completer, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	switch cfg.Provider {
	case config.ProviderArk:
		chatModel, err := cfg.NewChatModel(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create chat model: %w", err)
		}
		return NewEinoCompleter(ctx, chatModel)
	case config.ProviderGemini:
		return NewGeminiCompleter(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported AI provider %q", cfg.Provider)
	}
}

// ExtractJSONObject returns the JSON object embedded in a model answer,
// dropping code fences and any text around the outermost braces.
func ExtractJSONObject(content string) (string, error) {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end <= start {
		return "", fmt.Errorf("missing json object")
	}
	return s[start : end+1], nil
}

// DecodeJSON extracts the JSON object from content and unmarshals it into v.
func DecodeJSON(content string, v any) error {
	raw, err := ExtractJSONObject(content)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("decode model json: %w", err)
	}
	return nil
}

func historyWindow(messages []chat.Message, limit int) []chat.Message {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if len(messages) > limit {
		return messages[len(messages)-limit:]
	}
	return messages
}
