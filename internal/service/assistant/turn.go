package assistant

import (
	"context"
	"log"
	"strings"

	"github.com/google/uuid"

	"teamassist/internal/memory"
	"teamassist/internal/models"
	"teamassist/internal/risk"
	"teamassist/internal/service/ai"
)

const (
	historyWindow  = 50
	summaryWindow  = 3
	fallbackReply  = "Sorry, I ran into a problem handling that request. Please try again."
	emptyTurnReply = "Please enter a message."
)

// TurnRequest is one user message addressed to the assistant.
type TurnRequest struct {
	ProjectID string `json:"project_id"`
	ChatID    string `json:"chat_id"`
	Message   string `json:"message"`
}

// TurnResponse carries the assistant reply plus the chat id the turn was
// stored under. Risk is set when the message was refused or needs
// confirmation.
type TurnResponse struct {
	Reply     string        `json:"reply"`
	ChatID    string        `json:"chat_id"`
	MessageID int64         `json:"message_id,omitempty"`
	Risk      *risk.Payload `json:"risk,omitempty"`
}

// HandleTurn runs one conversation turn. Every failure path degrades to a
// reply the caller can show; the method never returns an error.
func (s *Service) HandleTurn(ctx context.Context, identity models.UserIdentity, req TurnRequest) TurnResponse {
	text := strings.TrimSpace(req.Message)
	chatID := req.ChatID
	if !memory.IsUUID(chatID) {
		chatID = uuid.NewString()
	}
	if text == "" {
		return TurnResponse{Reply: emptyTurnReply, ChatID: chatID}
	}

	if reply, ok := greetingReply(identity.Email, text); ok {
		s.memory.Append(ctx, identity.Email, req.ProjectID, chatID, models.MessageRoleUser, text)
		id, _ := s.memory.Append(ctx, identity.Email, req.ProjectID, chatID, models.MessageRoleAssistant, reply)
		return TurnResponse{Reply: reply, ChatID: chatID, MessageID: id}
	}

	project, err := s.ProjectContext(ctx, identity, req.ProjectID)
	if err != nil {
		log.Printf("assistant: project context unavailable: %v", err)
	}
	rctx := risk.Context{
		ProjectID: req.ProjectID,
		ChatID:    chatID,
	}
	if project != nil {
		rctx.TechStack = project.TechStack
	}

	allowed, payload := risk.DetectAndHandle(ctx, text, identity, rctx, s.riskLogger)
	if !allowed {
		s.memory.Append(ctx, identity.Email, req.ProjectID, chatID, models.MessageRoleUser, text)
		s.memory.Append(ctx, identity.Email, req.ProjectID, chatID, models.MessageRoleAssistant, payload.Reply)
		return TurnResponse{Reply: payload.Reply, ChatID: chatID, Risk: &payload}
	}

	history := s.memory.LoadHistory(ctx, identity.Email, req.ProjectID, chatID, historyWindow)
	summaries := s.memory.LoadEpisodic(ctx, identity.Email, req.ProjectID, chatID, summaryWindow)

	s.memory.Append(ctx, identity.Email, req.ProjectID, chatID, models.MessageRoleUser, text)

	messages := buildMessages(identity, project, summaries, history, text)
	reply, err := s.completer.Complete(ai.WithToolSession(ctx, identity.Email, chatID), messages)
	if err != nil {
		log.Printf("assistant: completion failed for %s: %v", identity.Email, err)
		return TurnResponse{Reply: fallbackReply, ChatID: chatID}
	}

	id, _ := s.memory.Append(ctx, identity.Email, req.ProjectID, chatID, models.MessageRoleAssistant, reply)
	return TurnResponse{Reply: reply, ChatID: chatID, MessageID: id}
}
