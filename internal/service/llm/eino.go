package llm

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/finchat/backend/internal/model/chat"
)

// EinoCompleter runs a prompt template + chat model chain.
type EinoCompleter struct {
	chain compose.Runnable[map[string]any, *schema.Message]
}

// NewEinoCompleter compiles the chain around chatModel. The system prompt is
// passed as a template variable so JSON examples in it are not parsed as
// placeholders.
func NewEinoCompleter(ctx context.Context, chatModel model.BaseChatModel) (*EinoCompleter, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile completion chain: %w", err)
	}

	return &EinoCompleter{chain: runnable}, nil
}

// Complete implements Completer.
func (c *EinoCompleter) Complete(ctx context.Context, req Request) (string, error) {
	input := map[string]any{
		"system":  req.System,
		"history": buildHistoryMessages(req.History, req.HistoryLimit),
		"query":   req.Query,
	}

	response, err := c.chain.Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to run completion chain: %w", err)
	}
	if response == nil {
		return "", ErrEmptyResponse
	}
	return response.Content, nil
}

func buildHistoryMessages(messages []chat.Message, limit int) []*schema.Message {
	window := historyWindow(messages, limit)
	if len(window) == 0 {
		return nil
	}

	history := make([]*schema.Message, 0, len(window))
	for _, msg := range window {
		switch msg.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(msg.Content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}
	return history
}
