package memory

import (
	"context"
	"log"
	"time"

	"teamassist/internal/models"
)

// LoadHistory returns the stored messages for a chat, oldest first, up to
// limit. An unknown user or a chat id that is not a valid UUID yields an
// empty slice rather than an error so a new chat starts clean.
func (m *Manager) LoadHistory(ctx context.Context, email, projectID, chatID string, limit int) []models.ChatMessage {
	if !IsUUID(chatID) {
		return nil
	}
	userID, err := m.users.NumericID(ctx, email)
	if err != nil || userID <= 0 {
		return nil
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := m.store.DB().QueryContext(ctx, `
		SELECT id, role, content, created_at, response_length, response_category
		FROM user_memories
		WHERE user_id = ? AND project_id = ? AND chat_id = ?
		ORDER BY created_at ASC, id ASC
		LIMIT ?`,
		userID, projectID, chatID, limit)
	if err != nil {
		log.Printf("memory: load history failed: %v", err)
		return nil
	}
	defer rows.Close()

	var out []models.ChatMessage
	for rows.Next() {
		var (
			msg       models.ChatMessage
			role      string
			createdAt time.Time
		)
		if err := rows.Scan(&msg.ID, &role, &msg.Content, &createdAt, &msg.ResponseLength, &msg.ResponseCategory); err != nil {
			log.Printf("memory: scan history row failed: %v", err)
			return nil
		}
		msg.UserID = userID
		msg.ProjectID = projectID
		msg.ChatID = chatID
		msg.Role = models.MessageRole(role)
		msg.CreatedAt = createdAt
		msg.Content = m.decrypt(msg.Content)
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		log.Printf("memory: load history failed: %v", err)
		return nil
	}
	return out
}

// LoadEpisodic returns stored episodic summaries for a chat, newest first.
func (m *Manager) LoadEpisodic(ctx context.Context, email, projectID, chatID string, limit int) []models.EpisodicSummary {
	if !IsUUID(chatID) {
		return nil
	}
	userID, err := m.users.NumericID(ctx, email)
	if err != nil || userID <= 0 {
		return nil
	}
	if limit <= 0 {
		limit = 5
	}

	rows, err := m.store.DB().QueryContext(ctx, `
		SELECT id, summary, message_count, importance_score, created_at
		FROM episodic_memory
		WHERE user_id = ? AND project_id = ? AND chat_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`,
		userID, projectID, chatID, limit)
	if err != nil {
		log.Printf("memory: load episodic summaries failed: %v", err)
		return nil
	}
	defer rows.Close()

	var out []models.EpisodicSummary
	for rows.Next() {
		var s models.EpisodicSummary
		if err := rows.Scan(&s.ID, &s.Summary, &s.MessageCount, &s.ImportanceScore, &s.CreatedAt); err != nil {
			log.Printf("memory: scan episodic row failed: %v", err)
			return nil
		}
		s.UserID = userID
		s.ProjectID = projectID
		s.ChatID = chatID
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		log.Printf("memory: load episodic summaries failed: %v", err)
		return nil
	}
	return out
}
