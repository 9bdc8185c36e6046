// Package memory manages the bounded conversational short-term memory kept
// per (user, project, chat) triple, and its compaction into durable episodic
// summaries once the raw window crosses the trigger threshold.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"teamassist/internal/config"
	"teamassist/internal/models"
	"teamassist/internal/storage"
)

// Summarizer condenses formatted conversation lines into an episodic summary.
// An empty result or an error means "no summary available"; the manager then
// skips compaction and leaves the raw window untouched.
type Summarizer interface {
	Summarize(ctx context.Context, lines []string) (string, error)
}

// UserLookup resolves an email to the numeric id messages are stored under.
type UserLookup interface {
	NumericID(ctx context.Context, email string) (int64, error)
}

// Cipher optionally encrypts message content at rest.
type Cipher interface {
	Encrypt(plain string) (string, error)
	Decrypt(input string) (string, error)
}

// Manager owns the message table for every chat: it is the only writer, it
// trims the window after each insert, and it compacts raw history into
// episodic summaries. Store failures are logged and absorbed; a failed save
// surfaces as a zero message id, never as an aborted turn.
type Manager struct {
	store      *storage.Store
	users      UserLookup
	summarizer Summarizer
	cipher     Cipher

	keepLimit      int
	summaryTrigger int
	stmWindow      int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager wires the manager with its collaborators. The cipher may be nil
// for plaintext storage.
func NewManager(store *storage.Store, users UserLookup, summarizer Summarizer, cipher Cipher, cfg config.MemoryConfig) *Manager {
	if cfg.KeepLimit <= 0 {
		cfg.KeepLimit = config.DefaultKeepLimit
	}
	if cfg.SummaryTrigger <= 0 {
		cfg.SummaryTrigger = config.DefaultSummaryTrigger
	}
	if cfg.STMWindow <= 0 {
		cfg.STMWindow = config.DefaultSTMWindow
	}
	return &Manager{
		store:          store,
		users:          users,
		summarizer:     summarizer,
		cipher:         cipher,
		keepLimit:      cfg.KeepLimit,
		summaryTrigger: cfg.SummaryTrigger,
		stmWindow:      cfg.STMWindow,
		locks:          make(map[string]*sync.Mutex),
	}
}

// IsUUID reports whether a chat id candidate is a well-formed UUID.
func IsUUID(value string) bool {
	if value == "" {
		return false
	}
	_, err := uuid.Parse(strings.TrimSpace(value))
	return err == nil
}

// Append stores one message for the triple and returns the message id and the
// chat id actually used. A chat id that is not a valid UUID is replaced with
// a freshly generated one before anything is written. After the insert the
// window is trimmed to the keep limit and compaction is attempted. A zero id
// means the message was not saved.
func (m *Manager) Append(ctx context.Context, email, projectID, chatID string, role models.MessageRole, content string) (int64, string) {
	if !IsUUID(chatID) {
		chatID = uuid.NewString()
	}
	if strings.TrimSpace(content) == "" {
		log.Printf("memory: skipping append of empty content for %s", email)
		return 0, chatID
	}
	userID, err := m.users.NumericID(ctx, email)
	if err != nil || userID <= 0 {
		log.Printf("memory: cannot save message, user not found: %s (%v)", email, err)
		return 0, chatID
	}

	stored := content
	if m.cipher != nil {
		enc, err := m.cipher.Encrypt(content)
		if err != nil {
			log.Printf("memory: encrypt message failed: %v", err)
			return 0, chatID
		}
		stored = enc
	}

	// The lock spans insert, trim, and compaction: a message appended while
	// another goroutine is compacting must land before or after the window
	// replace, never inside it.
	lock := m.chatLock(chatKey(userID, projectID, chatID))
	lock.Lock()
	defer lock.Unlock()

	row := map[string]any{
		"user_id":    userID,
		"project_id": projectID,
		"chat_id":    chatID,
		"role":       string(role),
		"content":    stored,
		"created_at": time.Now().UTC(),
	}
	if role == models.MessageRoleAssistant {
		length, category := ResponseMetrics(content)
		row["response_length"] = length
		row["response_category"] = category
	}

	id, err := m.store.Insert(ctx, "user_memories", row)
	if err != nil {
		log.Printf("memory: save message failed: %v", err)
		return 0, chatID
	}

	if err := m.trim(ctx, userID, projectID, chatID); err != nil {
		log.Printf("memory: trim failed: %v", err)
	}
	if err := m.maybeCompact(ctx, userID, projectID, chatID); err != nil {
		log.Printf("memory: compaction skipped: %v", err)
	}
	return id, chatID
}

// trim deletes the oldest rows beyond the keep limit for one chat.
func (m *Manager) trim(ctx context.Context, userID int64, projectID, chatID string) error {
	// The derived table keeps the statement valid on both sqlite and mysql.
	_, err := m.store.DB().ExecContext(ctx, `
		DELETE FROM user_memories
		WHERE user_id = ? AND project_id = ? AND chat_id = ?
		  AND id NOT IN (
			SELECT id FROM (
				SELECT id FROM user_memories
				WHERE user_id = ? AND project_id = ? AND chat_id = ?
				ORDER BY created_at DESC, id DESC
				LIMIT ?
			) keep
		)`,
		userID, projectID, chatID, userID, projectID, chatID, m.keepLimit)
	return err
}

// maybeCompact summarizes and shrinks the raw window once it reaches the
// trigger threshold. The caller holds the chat lock for the whole
// read-summarize-replace sequence, and the replace itself is a single
// transaction, so a concurrent append can never be lost to the bulk delete.
func (m *Manager) maybeCompact(ctx context.Context, userID int64, projectID, chatID string) error {
	recent, err := m.recentRows(ctx, userID, projectID, chatID, 50)
	if err != nil {
		return fmt.Errorf("reload recent messages: %w", err)
	}
	if len(recent) < m.summaryTrigger {
		return nil
	}

	lines := make([]string, 0, len(recent))
	for _, r := range recent {
		lines = append(lines, strings.ToUpper(r.role)+": "+m.decrypt(r.content))
	}

	summary, err := m.summarizer.Summarize(ctx, lines)
	if err != nil {
		return fmt.Errorf("summarizer unavailable: %w", err)
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return fmt.Errorf("summarizer returned empty summary")
	}

	keep := recent
	if len(keep) > m.stmWindow {
		keep = keep[len(keep)-m.stmWindow:]
	}

	return m.store.Tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO episodic_memory (user_id, project_id, chat_id, summary, message_count, importance_score, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			userID, projectID, chatID, summary, len(recent), models.ImportanceScore(len(recent)), time.Now().UTC())
		if err != nil {
			return fmt.Errorf("store episodic summary: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM user_memories WHERE user_id = ? AND project_id = ? AND chat_id = ?`,
			userID, projectID, chatID); err != nil {
			return fmt.Errorf("clear raw window: %w", err)
		}
		for _, r := range keep {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO user_memories (user_id, project_id, chat_id, role, content, created_at, response_length, response_category)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				userID, projectID, chatID, r.role, r.content, r.createdAt, r.responseLength, r.responseCategory); err != nil {
				return fmt.Errorf("reinsert window: %w", err)
			}
		}
		return nil
	})
}

type rawRow struct {
	role             string
	content          string
	createdAt        time.Time
	responseLength   sql.NullInt64
	responseCategory sql.NullString
}

// recentRows returns up to limit of the newest rows for a chat, oldest first.
func (m *Manager) recentRows(ctx context.Context, userID int64, projectID, chatID string, limit int) ([]rawRow, error) {
	rows, err := m.store.DB().QueryContext(ctx, `
		SELECT role, content, created_at, response_length, response_category
		FROM user_memories
		WHERE user_id = ? AND project_id = ? AND chat_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`,
		userID, projectID, chatID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rawRow
	for rows.Next() {
		var r rawRow
		if err := rows.Scan(&r.role, &r.content, &r.createdAt, &r.responseLength, &r.responseCategory); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Newest-first from the query; callers want chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (m *Manager) decrypt(stored string) string {
	if m.cipher == nil {
		return stored
	}
	plain, err := m.cipher.Decrypt(stored)
	if err != nil {
		// Rows written before encryption was enabled stay readable.
		return stored
	}
	return plain
}

func (m *Manager) chatLock(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[key] = lock
	}
	return lock
}

func chatKey(userID int64, projectID, chatID string) string {
	return fmt.Sprintf("%d/%s/%s", userID, projectID, chatID)
}
