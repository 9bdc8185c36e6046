// Package api wires HTTP routes to the assistant, auth, and audit services.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"teamassist/internal/auth"
	"teamassist/internal/models"
	"teamassist/internal/query"
	"teamassist/internal/service/assistant"
	"teamassist/internal/storage"
	"teamassist/internal/worker"
)

const defaultTurnTimeout = 2 * time.Minute

// turnGracePeriod extends the job deadline past the client wait so a turn the
// client gave up on can still finish and persist.
const turnGracePeriod = time.Minute

// Handler wires HTTP routes to the assistant service and the turn dispatcher.
type Handler struct {
	assistant   *assistant.Service
	auth        *auth.Service
	store       *storage.Store
	dispatcher  *worker.Dispatcher
	turnTimeout time.Duration
}

// NewHandler constructs a Handler instance.
func NewHandler(service *assistant.Service, authService *auth.Service, store *storage.Store, dispatcher *worker.Dispatcher) *Handler {
	return &Handler{
		assistant:   service,
		auth:        authService,
		store:       store,
		dispatcher:  dispatcher,
		turnTimeout: defaultTurnTimeout,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.POST("/login", h.login)

	authMW := h.auth.Middleware()
	user := api.Group("")
	user.Use(authMW, h.auth.CSRFMiddleware())
	user.POST("/logout", h.logout)
	user.POST("/chat", h.chatTurn)
	user.GET("/chats/:chat_id/messages", h.chatMessages)
	user.GET("/chats/:chat_id/summaries", h.chatSummaries)
	user.POST("/records/query", h.queryRecords)
	user.GET("/admin/risk-logs", h.riskLogs)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	token, identity, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		}
		return
	}
	csrfToken, err := h.auth.NewCSRFToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	h.setAuthCookies(c, token, csrfToken)
	c.JSON(http.StatusOK, gin.H{
		"email":      identity.Email,
		"role":       identity.Role,
		"auth_token": token,
	})
}

func (h *Handler) logout(c *gin.Context) {
	if authToken, ok := auth.AuthTokenFromContext(c); ok {
		_ = h.auth.RevokeToken(c.Request.Context(), authToken)
	}
	h.clearAuthCookies(c)
	c.Status(http.StatusNoContent)
}

func (h *Handler) authorizedIdentity(c *gin.Context) (models.UserIdentity, bool) {
	identity, ok := auth.IdentityFromContext(c)
	if !ok || identity.Email == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return models.UserIdentity{}, false
	}
	return identity, true
}

func (h *Handler) chatTurn(c *gin.Context) {
	identity, ok := h.authorizedIdentity(c)
	if !ok {
		return
	}
	var req assistant.TurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	// The turn runs on its own deadline, detached from the request: gin
	// cancels the request context as soon as the handler returns, and an
	// abandoned turn must still be able to persist its messages.
	turnCtx, cancelTurn := context.WithTimeout(
		context.WithoutCancel(c.Request.Context()), h.turnTimeout+turnGracePeriod)

	result := make(chan assistant.TurnResponse, 1)
	job := worker.Job{
		Key:  identity.Email + "/" + req.ChatID,
		Type: "turn",
		Run: func() {
			defer cancelTurn()
			result <- h.assistant.HandleTurn(turnCtx, identity, req)
		},
	}
	if err := h.dispatcher.Submit(job); err != nil {
		cancelTurn()
		if errors.Is(err, worker.ErrQueueFull) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "server is busy, please retry"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	select {
	case resp := <-result:
		c.JSON(http.StatusOK, resp)
	case <-c.Request.Context().Done():
		c.JSON(http.StatusRequestTimeout, gin.H{"error": "request cancelled"})
	case <-time.After(h.turnTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "turn timed out"})
	}
}

func (h *Handler) chatMessages(c *gin.Context) {
	identity, ok := h.authorizedIdentity(c)
	if !ok {
		return
	}
	chatID := c.Param("chat_id")
	projectID := c.Query("project_id")
	limit := intQuery(c, "limit", 50)

	messages := h.assistant.Memory().LoadHistory(c.Request.Context(), identity.Email, projectID, chatID, limit)
	if messages == nil {
		messages = []models.ChatMessage{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (h *Handler) chatSummaries(c *gin.Context) {
	identity, ok := h.authorizedIdentity(c)
	if !ok {
		return
	}
	chatID := c.Param("chat_id")
	projectID := c.Query("project_id")
	limit := intQuery(c, "limit", 5)

	summaries := h.assistant.Memory().LoadEpisodic(c.Request.Context(), identity.Email, projectID, chatID, limit)
	if summaries == nil {
		summaries = []models.EpisodicSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"summaries": summaries})
}

func (h *Handler) queryRecords(c *gin.Context) {
	identity, ok := h.authorizedIdentity(c)
	if !ok {
		return
	}
	var req assistant.RecordQuery
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	rows, err := h.assistant.QueryRecords(c.Request.Context(), identity, req)
	if err != nil {
		switch {
		case errors.Is(err, assistant.ErrUnknownTable):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		}
		return
	}
	if len(rows) == 0 {
		c.JSON(http.StatusOK, gin.H{"records": []map[string]any{}, "message": "no matching records"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": rows})
}

func (h *Handler) riskLogs(c *gin.Context) {
	identity, ok := h.authorizedIdentity(c)
	if !ok {
		return
	}
	switch identity.Role {
	case models.RoleAdmin, models.RoleHR:
	default:
		c.JSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
		return
	}

	pred := query.Predicate{}
	if email := c.Query("user_email"); email != "" {
		pred = query.Eq("user_email", email)
	}
	limit := intQuery(c, "limit", 100)

	rows, err := h.store.Select(c.Request.Context(), "risk_logs", nil, pred, "created_at DESC", limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"risk_logs": rows})
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func (h *Handler) setAuthCookies(c *gin.Context, authToken, csrfToken string) {
	ttl := int(h.auth.TokenTTL().Seconds())
	if ttl <= 0 {
		ttl = 3600
	}
	secure := gin.Mode() == gin.ReleaseMode
	setCookie(c, &http.Cookie{
		Name:     h.auth.AuthCookieName(),
		Value:    authToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	setCookie(c, &http.Cookie{
		Name:     h.auth.CSRFCookieName(),
		Value:    csrfToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearAuthCookies(c *gin.Context) {
	for _, name := range []string{h.auth.AuthCookieName(), h.auth.CSRFCookieName()} {
		setCookie(c, &http.Cookie{
			Name:     name,
			Value:    "",
			MaxAge:   -1,
			Path:     "/",
			Secure:   gin.Mode() == gin.ReleaseMode,
			HttpOnly: name == h.auth.AuthCookieName(),
			SameSite: http.SameSiteStrictMode,
		})
	}
}

func setCookie(c *gin.Context, ck *http.Cookie) {
	if ck == nil {
		return
	}
	http.SetCookie(c.Writer, ck)
}
