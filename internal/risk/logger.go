package risk

import (
	"context"
	"log"
	"time"
	"unicode/utf8"

	"teamassist/internal/models"
	"teamassist/internal/storage"
)

// maxLoggedQueryLen truncates very long queries before they hit the log table.
const maxLoggedQueryLen = 500

// Logger is the audit sink for classifier decisions.
type Logger interface {
	Log(ctx context.Context, entry models.RiskLog) error
}

// StoreLogger appends risk log rows to the tabular store.
type StoreLogger struct {
	store *storage.Store
}

// NewStoreLogger builds the store-backed audit sink.
func NewStoreLogger(store *storage.Store) *StoreLogger {
	return &StoreLogger{store: store}
}

// Log appends one audit row.
func (l *StoreLogger) Log(ctx context.Context, entry models.RiskLog) error {
	q := entry.Query
	if len(q) > maxLoggedQueryLen {
		cut := maxLoggedQueryLen
		// Back up to a rune start so the stored text stays valid UTF-8.
		for cut > 0 && !utf8.RuneStart(q[cut]) {
			cut--
		}
		q = q[:cut]
	}
	created := entry.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := l.store.Insert(ctx, "risk_logs", map[string]any{
		"user_email":      entry.UserEmail,
		"query":           q,
		"category":        string(entry.Category),
		"severity":        string(entry.Severity),
		"action":          string(entry.Action),
		"project_id":      entry.ProjectID,
		"chat_id":         entry.ChatID,
		"matched_pattern": entry.MatchedPattern,
		"created_at":      created,
	})
	return err
}

// logDecision writes the audit row for one evaluation. Failures are logged
// and swallowed: auditing must never block or alter the conversation.
func logDecision(ctx context.Context, logger Logger, email, text string, rctx Context, d models.RiskDecision) {
	if logger == nil {
		return
	}
	entry := models.RiskLog{
		UserEmail:      email,
		Query:          text,
		Category:       d.Category,
		Severity:       d.Severity,
		Action:         d.Action,
		ProjectID:      rctx.ProjectID,
		ChatID:         rctx.ChatID,
		MatchedPattern: d.MatchedPattern,
		CreatedAt:      time.Now().UTC(),
	}
	if err := logger.Log(ctx, entry); err != nil {
		log.Printf("risk audit log failed: %v", err)
	}
}
