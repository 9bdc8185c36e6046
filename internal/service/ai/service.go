// Package ai hosts the chat model integration: completions for assistant
// turns, summaries for memory compaction, and the tool chain the react agent
// can call during a turn.
package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"teamassist/internal/config"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"
)

// Service wraps one configured chat model plus the optional react agent that
// gives it tool access.
type Service struct {
	chatModel model.ToolCallingChatModel
	agent     *react.Agent
	tools     []tool.BaseTool
}

// NewService builds the chat model for the named provider and wires the tool
// chain. The knowledge base may be nil when no document directory is
// configured.
func NewService(cfg *config.Config, provider string, kb *KnowledgeBase) (*Service, error) {
	provCfg, ok := cfg.Providers[provider]
	if !ok {
		return nil, fmt.Errorf("provider %s not configured", provider)
	}
	modelType := provCfg.Model
	if modelType == "" {
		return nil, fmt.Errorf("model not configured for provider %s", provider)
	}

	var (
		chatModel model.ToolCallingChatModel
		err       error
	)
	ctx := context.Background()
	switch provider {
	case "openai":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: provCfg.BaseURL,
			Model:   modelType,
			APIKey:  provCfg.APIKey,
		})
	case "gemini":
		var client *genai.Client
		client, err = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey: provCfg.APIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  modelType,
			ThinkingConfig: &genai.ThinkingConfig{
				IncludeThoughts: true,
				ThinkingBudget:  nil,
			},
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    provCfg.APIKey,
			Model:     modelType,
			BaseURL:   baseURLPtr,
			MaxTokens: 3000,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", provider, err)
	}

	tools := InitToolsChain(kb)
	var reactAgent *react.Agent
	if len(tools) > 0 {
		reactAgent, err = react.NewAgent(ctx, &react.AgentConfig{
			ToolCallingModel: chatModel,
			ToolsConfig: compose.ToolsNodeConfig{
				Tools: tools,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("init react agent: %w", err)
		}
	}

	return &Service{
		chatModel: chatModel,
		agent:     reactAgent,
		tools:     tools,
	}, nil
}

// Complete runs one assistant turn over the prepared message list. The agent
// path is preferred so the model can reach the tool chain.
func (s *Service) Complete(ctx context.Context, messages []*schema.Message) (string, error) {
	if len(messages) == 0 {
		return "", errors.New("no messages to complete")
	}
	var (
		out *schema.Message
		err error
	)
	if s.agent != nil {
		out, err = s.agent.Generate(ctx, messages)
	} else {
		out, err = s.chatModel.Generate(ctx, messages)
	}
	if err != nil {
		return "", fmt.Errorf("generate completion: %w", err)
	}
	return out.Content, nil
}

const summaryInstruction = "Summarize the key facts, decisions, and open items from this conversation in a short paragraph. Keep names, dates, and project details."

// Summarize condenses formatted conversation lines for episodic memory. It
// calls the bare model, never the agent, so no tools fire during compaction.
func (s *Service) Summarize(ctx context.Context, lines []string) (string, error) {
	if len(lines) == 0 {
		return "", nil
	}
	messages := []*schema.Message{
		schema.SystemMessage(summaryInstruction),
		schema.UserMessage(strings.Join(lines, "\n")),
	}
	out, err := s.chatModel.Generate(ctx, messages)
	if err != nil {
		log.Printf("ai: summarize failed: %v", err)
		return "", fmt.Errorf("summarize: %w", err)
	}
	return strings.TrimSpace(out.Content), nil
}
