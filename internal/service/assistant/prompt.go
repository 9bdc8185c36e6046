package assistant

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"teamassist/internal/models"
)

// buildMessages assembles the model input for one turn: a system prompt
// grounded in the caller and project, episodic summaries, the recent raw
// history, then the new user message.
func buildMessages(identity models.UserIdentity, project *models.ProjectContext, summaries []models.EpisodicSummary, history []models.ChatMessage, userText string) []*schema.Message {
	var sys strings.Builder
	sys.WriteString("You are a helpful assistant for a project team. ")
	fmt.Fprintf(&sys, "You are talking to %s (role: %s). ", identity.Email, identity.Role)
	sys.WriteString("Only discuss data the user is allowed to see. Be concise and concrete.")
	if project != nil {
		fmt.Fprintf(&sys, "\n\nCurrent project: %s.", project.Name)
		if len(project.TechStack) > 0 {
			fmt.Fprintf(&sys, " Tech stack: %s.", strings.Join(project.TechStack, ", "))
		}
		if project.LeaderEmail != "" {
			fmt.Fprintf(&sys, " Project lead: %s.", project.LeaderEmail)
		}
	}
	if len(summaries) > 0 {
		sys.WriteString("\n\nEarlier conversation summaries, newest first:")
		for _, s := range summaries {
			sys.WriteString("\n- ")
			sys.WriteString(s.Summary)
		}
	}

	messages := make([]*schema.Message, 0, len(history)+2)
	messages = append(messages, schema.SystemMessage(sys.String()))
	for _, msg := range history {
		switch msg.Role {
		case models.MessageRoleAssistant:
			messages = append(messages, schema.AssistantMessage(msg.Content, nil))
		default:
			messages = append(messages, schema.UserMessage(msg.Content))
		}
	}
	messages = append(messages, schema.UserMessage(userText))
	return messages
}
