package models

import "time"

// MessageRole distinguishes who authored a stored chat message.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// ChatMessage is one row of the short-term memory window for a
// (user, project, chat) triple. Rows are created only by the memory manager
// and trimmed beyond the configured keep limit.
type ChatMessage struct {
	ID               int64       `json:"id"`
	UserID           int64       `json:"user_id"`
	ProjectID        string      `json:"project_id"`
	ChatID           string      `json:"chat_id"`
	Role             MessageRole `json:"role"`
	Content          string      `json:"content"`
	CreatedAt        time.Time   `json:"created_at"`
	ResponseLength   *int        `json:"response_length,omitempty"`
	ResponseCategory *string     `json:"response_category,omitempty"`
}

// EpisodicSummary is the durable record a block of raw messages is compacted
// into. It is written exactly once per compaction and never mutated.
type EpisodicSummary struct {
	ID              int64     `json:"id"`
	UserID          int64     `json:"user_id"`
	ProjectID       string    `json:"project_id"`
	ChatID          string    `json:"chat_id"`
	Summary         string    `json:"summary"`
	MessageCount    int       `json:"message_count"`
	ImportanceScore float64   `json:"importance_score"`
	CreatedAt       time.Time `json:"created_at"`
}

// ImportanceScore computes how much weight a summary carries based on the
// number of raw messages it replaced.
func ImportanceScore(messageCount int) float64 {
	score := 0.4 + float64(messageCount)/50
	if score > 1.0 {
		return 1.0
	}
	return score
}
