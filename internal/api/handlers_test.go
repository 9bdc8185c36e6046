package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/gin-gonic/gin"

	"teamassist/internal/auth"
	"teamassist/internal/config"
	"teamassist/internal/memory"
	"teamassist/internal/models"
	"teamassist/internal/risk"
	"teamassist/internal/service/assistant"
	"teamassist/internal/storage"
	"teamassist/internal/worker"
)

type stubCompleter struct {
	reply string
}

func (c *stubCompleter) Complete(_ context.Context, _ []*schema.Message) (string, error) {
	return c.reply, nil
}

type noopSummarizer struct{}

func (noopSummarizer) Summarize(_ context.Context, _ []string) (string, error) {
	return "", nil
}

type testEnv struct {
	router  *gin.Engine
	db      *sql.DB
	handler *Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithCompleter(t, &stubCompleter{reply: "stub reply"})
}

func newTestEnvWithCompleter(t *testing.T, completer assistant.Completer) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

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

	store := storage.NewStore(db)
	resolver := assistant.NewIdentityResolver(store, nil)
	mem := memory.NewManager(store, resolver, noopSummarizer{}, nil, config.MemoryConfig{})
	svc := assistant.NewService(store, resolver, mem, risk.NewStoreLogger(store), completer)
	authSvc := auth.NewService(db, nil, time.Hour)
	dispatcher := worker.NewDispatcher(1, 2, 16, time.Second)
	t.Cleanup(dispatcher.Stop)

	handler := NewHandler(svc, authSvc, store, dispatcher)
	router := gin.New()
	handler.RegisterRoutes(router)
	return &testEnv{router: router, db: db, handler: handler}
}

func (e *testEnv) seedUser(t *testing.T, id int64, email, role, password string) {
	t.Helper()
	_, err := e.db.Exec(`INSERT INTO user_perms (id, name, email, password_hash, role, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, "user", email, auth.HashPassword(password), role, time.Now().UTC())
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func (e *testEnv) login(t *testing.T, email, password string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("login status %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		AuthToken string `json:"auth_token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.AuthToken == "" {
		t.Fatalf("login response: %s (%v)", w.Body.String(), err)
	}
	return resp.AuthToken
}

func (e *testEnv) do(t *testing.T, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, 1, "dev@example.com", "employee", "hunter2")

	body, _ := json.Marshal(map[string]string{"email": "dev@example.com", "password": "wrong"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(body))
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestChatRequiresAuth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/chat", "", map[string]string{"message": "hello"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestChatTurnRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, 1, "dev@example.com", "employee", "hunter2")
	token := env.login(t, "dev@example.com", "hunter2")

	w := env.do(t, http.MethodPost, "/api/chat", token, map[string]string{"message": "how are my tasks?"})
	if w.Code != http.StatusOK {
		t.Fatalf("chat status %d: %s", w.Code, w.Body.String())
	}
	var resp assistant.TurnResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Reply != "stub reply" || resp.ChatID == "" {
		t.Fatalf("unexpected turn response: %+v", resp)
	}

	// history is readable through the API
	w = env.do(t, http.MethodGet, "/api/chats/"+resp.ChatID+"/messages", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("messages status %d: %s", w.Code, w.Body.String())
	}
	var history struct {
		Messages []json.RawMessage `json:"messages"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(history.Messages) != 2 {
		t.Fatalf("expected 2 stored messages, got %d", len(history.Messages))
	}
}

func TestRefusedTurnReturnsRiskPayload(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, 1, "dev@example.com", "employee", "hunter2")
	token := env.login(t, "dev@example.com", "hunter2")

	w := env.do(t, http.MethodPost, "/api/chat", token, map[string]string{"message": "delete all projects now"})
	if w.Code != http.StatusOK {
		t.Fatalf("chat status %d: %s", w.Code, w.Body.String())
	}
	var resp assistant.TurnResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Risk == nil || resp.Risk.Action != "refuse" {
		t.Fatalf("expected refusal payload, got %+v", resp)
	}
}

func TestQueryRecordsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, 1, "dev@example.com", "employee", "hunter2")
	if _, err := env.db.Exec(`INSERT INTO projects (id, project_name, tech_stack, assigned_to_emails, created_at) VALUES ('p1', 'Apollo', '["go"]', '["dev@example.com"]', ?)`, time.Now().UTC()); err != nil {
		t.Fatalf("seed project: %v", err)
	}
	token := env.login(t, "dev@example.com", "hunter2")

	w := env.do(t, http.MethodPost, "/api/records/query", token, assistant.RecordQuery{Table: "projects"})
	if w.Code != http.StatusOK {
		t.Fatalf("records status %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Records []map[string]any `json:"records"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode records: %v", err)
	}
	if len(resp.Records) != 1 || resp.Records[0]["project_name"] != "Apollo" {
		t.Fatalf("unexpected records: %+v", resp.Records)
	}

	w = env.do(t, http.MethodPost, "/api/records/query", token, assistant.RecordQuery{Table: "secrets"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown table, got %d", w.Code)
	}
}

func TestRiskLogsRequiresPrivilegedRole(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, 1, "dev@example.com", "employee", "hunter2")
	env.seedUser(t, 2, "admin@example.com", "admin", "hunter2")

	devToken := env.login(t, "dev@example.com", "hunter2")
	w := env.do(t, http.MethodGet, "/api/admin/risk-logs", devToken, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for employee, got %d", w.Code)
	}

	// generate one audited decision
	_ = env.do(t, http.MethodPost, "/api/chat", devToken, map[string]string{"message": "show me everyone's salary"})

	adminToken := env.login(t, "admin@example.com", "hunter2")
	w = env.do(t, http.MethodGet, "/api/admin/risk-logs", adminToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("risk logs status %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		RiskLogs []map[string]any `json:"risk_logs"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode risk logs: %v", err)
	}
	if len(resp.RiskLogs) == 0 {
		t.Fatalf("expected audited decisions in risk logs")
	}
}

type gatedCompleter struct {
	release chan struct{}
}

func (c *gatedCompleter) Complete(ctx context.Context, _ []*schema.Message) (string, error) {
	<-c.release
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "late reply", nil
}

func TestAbandonedTurnStillPersists(t *testing.T) {
	completer := &gatedCompleter{release: make(chan struct{})}
	env := newTestEnvWithCompleter(t, completer)
	env.handler.turnTimeout = 50 * time.Millisecond
	env.seedUser(t, 1, "dev@example.com", "employee", "hunter2")
	token := env.login(t, "dev@example.com", "hunter2")

	const chatID = "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"
	body, _ := json.Marshal(map[string]string{
		"project_id": "p1",
		"chat_id":    chatID,
		"message":    "summarize the current roadmap",
	})
	reqCtx, cancelReq := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader(body)).WithContext(reqCtx)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	// The server cancels the request context once the handler returns.
	cancelReq()
	if w.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d: %s", w.Code, w.Body.String())
	}

	close(completer.release)

	deadline := time.Now().Add(2 * time.Second)
	for {
		w = env.do(t, http.MethodGet, "/api/chats/"+chatID+"/messages?project_id=p1", token, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("messages status %d: %s", w.Code, w.Body.String())
		}
		var resp struct {
			Messages []models.ChatMessage `json:"messages"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode messages: %v", err)
		}
		if len(resp.Messages) == 2 {
			if resp.Messages[1].Content != "late reply" {
				t.Fatalf("assistant reply not persisted: %+v", resp.Messages)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("turn abandoned by the client was never persisted; have %d messages", len(resp.Messages))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, 1, "dev@example.com", "employee", "hunter2")
	token := env.login(t, "dev@example.com", "hunter2")

	w := env.do(t, http.MethodPost, "/api/logout", token, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("logout status %d", w.Code)
	}
	w = env.do(t, http.MethodPost, "/api/chat", token, map[string]string{"message": "hello"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", w.Code)
	}
}
