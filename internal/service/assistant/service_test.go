package assistant

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"

	"teamassist/internal/config"
	"teamassist/internal/memory"
	"teamassist/internal/models"
	"teamassist/internal/risk"
	"teamassist/internal/storage"
)

type stubCompleter struct {
	reply string
	err   error
	calls int
}

func (c *stubCompleter) Complete(_ context.Context, _ []*schema.Message) (string, error) {
	c.calls++
	return c.reply, c.err
}

type noopSummarizer struct{}

func (noopSummarizer) Summarize(_ context.Context, _ []string) (string, error) {
	return "", errors.New("summarizer disabled")
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: ":memory:"},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return storage.NewStore(db)
}

func seedUser(t *testing.T, db *sql.DB, id int64, email, role string) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO user_perms (id, name, email, password_hash, role, created_at) VALUES (?, ?, ?, '', ?, ?)`,
		id, "user", email, role, time.Now().UTC())
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func seedProject(t *testing.T, db *sql.DB, id, name, assigned string) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO projects (id, project_name, tech_stack, assigned_to_emails, created_at) VALUES (?, ?, '["python"]', ?, ?)`,
		id, name, assigned, time.Now().UTC())
	if err != nil {
		t.Fatalf("seed project: %v", err)
	}
}

func newTestService(t *testing.T, completer Completer) (*Service, *storage.Store) {
	t.Helper()
	store := openTestStore(t)
	resolver := NewIdentityResolver(store, nil)
	mem := memory.NewManager(store, resolver, noopSummarizer{}, nil, config.MemoryConfig{})
	svc := NewService(store, resolver, mem, risk.NewStoreLogger(store), completer)
	return svc, store
}

func identityFor(email string, id int64, role models.Role) models.UserIdentity {
	return models.UserIdentity{Email: email, NumericID: id, Role: role}
}

func TestQueryRecordsScopesToAssignments(t *testing.T) {
	svc, store := newTestService(t, &stubCompleter{})
	seedUser(t, store.DB(), 1, "dev@example.com", "employee")
	seedProject(t, store.DB(), "p1", "Apollo", `["dev@example.com"]`)
	seedProject(t, store.DB(), "p2", "Borealis", `["other@example.com"]`)
	ctx := context.Background()

	rows, err := svc.QueryRecords(ctx, identityFor("dev@example.com", 1, models.RoleEmployee), RecordQuery{Table: "projects"})
	if err != nil {
		t.Fatalf("QueryRecords: %v", err)
	}
	if len(rows) != 1 || rows[0]["project_name"] != "Apollo" {
		t.Fatalf("expected only assigned project, got %+v", rows)
	}

	rows, err = svc.QueryRecords(ctx, identityFor("boss@example.com", 2, models.RoleAdmin), RecordQuery{Table: "projects"})
	if err != nil {
		t.Fatalf("QueryRecords admin: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected admin to see all projects, got %d", len(rows))
	}
}

func TestQueryRecordsIdentityTableSelfRow(t *testing.T) {
	svc, store := newTestService(t, &stubCompleter{})
	seedUser(t, store.DB(), 1, "dev@example.com", "employee")
	seedUser(t, store.DB(), 2, "peer@example.com", "employee")
	ctx := context.Background()

	rows, err := svc.QueryRecords(ctx, identityFor("dev@example.com", 1, models.RoleEmployee), RecordQuery{Table: "user_perms"})
	if err != nil {
		t.Fatalf("QueryRecords: %v", err)
	}
	if len(rows) != 1 || rows[0]["email"] != "dev@example.com" {
		t.Fatalf("expected self row only, got %+v", rows)
	}
	if _, ok := rows[0]["password_hash"]; ok {
		t.Fatalf("password_hash leaked: %+v", rows[0])
	}
}

func TestQueryRecordsUnknownTable(t *testing.T) {
	svc, _ := newTestService(t, &stubCompleter{})
	if _, err := svc.QueryRecords(context.Background(), identityFor("dev@example.com", 1, models.RoleAdmin), RecordQuery{Table: "risk_logs"}); !errors.Is(err, ErrUnknownTable) {
		t.Fatalf("expected ErrUnknownTable, got %v", err)
	}
}

func TestProjectContextInvisibleProject(t *testing.T) {
	svc, store := newTestService(t, &stubCompleter{})
	seedUser(t, store.DB(), 1, "dev@example.com", "employee")
	seedProject(t, store.DB(), "p2", "Borealis", `["other@example.com"]`)

	project, err := svc.ProjectContext(context.Background(), identityFor("dev@example.com", 1, models.RoleEmployee), "p2")
	if err != nil {
		t.Fatalf("ProjectContext: %v", err)
	}
	if project != nil {
		t.Fatalf("expected invisible project to resolve nil, got %+v", project)
	}
}

func TestHandleTurnGreetingSkipsModel(t *testing.T) {
	completer := &stubCompleter{reply: "model reply"}
	svc, store := newTestService(t, completer)
	seedUser(t, store.DB(), 1, "dev@example.com", "employee")

	resp := svc.HandleTurn(context.Background(), identityFor("dev@example.com", 1, models.RoleEmployee), TurnRequest{Message: "hello"})
	if completer.calls != 0 {
		t.Fatalf("expected greeting to skip the model")
	}
	if resp.Reply == "" || resp.ChatID == "" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	var count int
	if err := store.DB().QueryRow(`SELECT COUNT(*) FROM user_memories`).Scan(&count); err != nil {
		t.Fatalf("count messages: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected greeting turn stored, got %d rows", count)
	}
}

func TestHandleTurnRefusesDestructiveRequest(t *testing.T) {
	completer := &stubCompleter{reply: "model reply"}
	svc, store := newTestService(t, completer)
	seedUser(t, store.DB(), 1, "dev@example.com", "employee")

	resp := svc.HandleTurn(context.Background(), identityFor("dev@example.com", 1, models.RoleEmployee),
		TurnRequest{Message: "please delete all projects"})
	if completer.calls != 0 {
		t.Fatalf("expected refusal before the model call")
	}
	if resp.Risk == nil || resp.Risk.Action != models.ActionRefuse {
		t.Fatalf("expected refusal payload, got %+v", resp.Risk)
	}
	if resp.Reply == "" {
		t.Fatalf("expected refusal message")
	}

	var count int
	if err := store.DB().QueryRow(`SELECT COUNT(*) FROM risk_logs WHERE category = ?`, string(models.RiskDestructive)).Scan(&count); err != nil {
		t.Fatalf("count risk logs: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one destructive risk log, got %d", count)
	}
}

func TestHandleTurnCompletesAndStores(t *testing.T) {
	completer := &stubCompleter{reply: "the project is on track"}
	svc, store := newTestService(t, completer)
	seedUser(t, store.DB(), 1, "dev@example.com", "employee")
	seedProject(t, store.DB(), "p1", "Apollo", `["dev@example.com"]`)

	resp := svc.HandleTurn(context.Background(), identityFor("dev@example.com", 1, models.RoleEmployee),
		TurnRequest{ProjectID: "p1", Message: "how is the project going?"})
	if resp.Reply != "the project is on track" {
		t.Fatalf("unexpected reply: %q", resp.Reply)
	}
	if resp.MessageID == 0 {
		t.Fatalf("expected stored assistant message id")
	}

	var count int
	if err := store.DB().QueryRow(`SELECT COUNT(*) FROM user_memories WHERE chat_id = ?`, resp.ChatID).Scan(&count); err != nil {
		t.Fatalf("count messages: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected user and assistant rows, got %d", count)
	}

	// an allowed turn is still audited
	var allowCount int
	if err := store.DB().QueryRow(`SELECT COUNT(*) FROM risk_logs WHERE action = ?`, string(models.ActionAllow)).Scan(&allowCount); err != nil {
		t.Fatalf("count allow logs: %v", err)
	}
	if allowCount != 1 {
		t.Fatalf("expected allow decision logged, got %d", allowCount)
	}
}

func TestHandleTurnModelFailureDegrades(t *testing.T) {
	completer := &stubCompleter{err: errors.New("provider down")}
	svc, store := newTestService(t, completer)
	seedUser(t, store.DB(), 1, "dev@example.com", "employee")

	resp := svc.HandleTurn(context.Background(), identityFor("dev@example.com", 1, models.RoleEmployee),
		TurnRequest{Message: "summarize my tasks"})
	if resp.Reply != fallbackReply {
		t.Fatalf("expected fallback reply, got %q", resp.Reply)
	}
	if resp.MessageID != 0 {
		t.Fatalf("expected no assistant message id on failure")
	}

	var count int
	if err := store.DB().QueryRow(`SELECT COUNT(*) FROM user_memories WHERE role = 'assistant'`).Scan(&count); err != nil {
		t.Fatalf("count assistant rows: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no assistant row stored on failure, got %d", count)
	}
}

func TestHandleTurnEmptyMessage(t *testing.T) {
	svc, _ := newTestService(t, &stubCompleter{})
	resp := svc.HandleTurn(context.Background(), identityFor("dev@example.com", 1, models.RoleEmployee), TurnRequest{Message: "   "})
	if resp.Reply != emptyTurnReply {
		t.Fatalf("expected empty turn reply, got %q", resp.Reply)
	}
	if !memory.IsUUID(resp.ChatID) {
		t.Fatalf("expected generated chat id, got %q", resp.ChatID)
	}
}
