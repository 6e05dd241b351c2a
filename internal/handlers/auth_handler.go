package handlers

import (
	"context"
	"errors"
	"net/http"

	"mom-admin-api/internal/auth"
	"mom-admin-api/internal/credentials"
	"mom-admin-api/internal/gate"
	"mom-admin-api/internal/metrics"
	"mom-admin-api/internal/middleware"
	"mom-admin-api/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Authenticator checks a username and password pair.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (models.Credential, error)
}

// LoginRequest represents the login request payload
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents the login response
type LoginResponse struct {
	Token    string            `json:"token"`
	Username string            `json:"username"`
	Name     string            `json:"name"`
	Level    models.AdminLevel `json:"level"`
	Message  string            `json:"message"`
}

// LoginStatus is what the login screen polls to render the countdown.
type LoginStatus struct {
	Locked            bool `json:"locked"`
	RemainingAttempts int  `json:"remainingAttempts"`
	MaxAttempts       int  `json:"maxAttempts"`
	Ready             bool `json:"ready"`
}

type AuthHandler struct {
	gate    *gate.Gate
	users   Authenticator
	tokens  *auth.Manager
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// NewAuthHandler wires the login flow. m may be nil.
func NewAuthHandler(g *gate.Gate, users Authenticator, tokens *auth.Manager, m *metrics.Metrics, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		gate:    g,
		users:   users,
		tokens:  tokens,
		metrics: m,
		log:     log.With().Str("component", "auth_handler").Logger(),
	}
}

func (h *AuthHandler) record(outcome string) {
	if h.metrics != nil {
		h.metrics.RecordLogin(outcome)
	}
}

// Login checks credentials through the attempt gate
// POST /api/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request. Username and password are required.",
		})
		return
	}

	if h.gate.IsLocked() {
		h.record(metrics.OutcomeLocked)
		c.JSON(http.StatusLocked, gin.H{
			"error":             "Too many failed attempts. Contact an administrator.",
			"locked":            true,
			"remainingAttempts": 0,
		})
		return
	}

	cred, err := h.users.Authenticate(c.Request.Context(), req.Username, req.Password)
	switch {
	case err == nil:
	case errors.Is(err, credentials.ErrInvalidCredentials), errors.Is(err, credentials.ErrInactive):
		s := h.gate.RecordFailure()
		msg := "Invalid username or password"
		outcome := metrics.OutcomeFailure
		if errors.Is(err, credentials.ErrInactive) {
			msg = "Account is inactive"
			outcome = metrics.OutcomeInactive
		}
		h.record(outcome)
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":             msg,
			"locked":            s.Locked,
			"remainingAttempts": s.Remaining(),
		})
		return
	default:
		h.record(metrics.OutcomeError)
		h.log.Error().Err(err).Msg("credential check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Login is temporarily unavailable"})
		return
	}

	username := models.NormalizeUsername(req.Username)
	token, err := h.tokens.GenerateToken(username, cred)
	if err != nil {
		h.record(metrics.OutcomeError)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to generate token",
		})
		return
	}

	h.gate.RecordSuccess()
	h.record(metrics.OutcomeSuccess)
	h.log.Info().Str("username", username).Int("level", int(cred.Level)).Msg("login succeeded")

	c.JSON(http.StatusOK, LoginResponse{
		Token:    token,
		Username: username,
		Name:     cred.Name,
		Level:    cred.Level,
		Message:  "Login successful",
	})
}

// Status reports the gate state
// GET /api/login/status
func (h *AuthHandler) Status(c *gin.Context) {
	s := h.gate.State()
	c.JSON(http.StatusOK, LoginStatus{
		Locked:            s.Locked,
		RemainingAttempts: s.Remaining(),
		MaxAttempts:       s.MaxAttempts,
		Ready:             h.gate.IsReady(),
	})
}

// Session returns the claims of the calling token
// GET /api/session
func (h *AuthHandler) Session(c *gin.Context) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authorized"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"username":  claims.Username,
		"name":      claims.Name,
		"level":     claims.Level,
		"expiresAt": claims.ExpiresAt,
	})
}

// ResetLockout clears the failure counter
// POST /api/admin/lockout/reset
func (h *AuthHandler) ResetLockout(c *gin.Context) {
	s := h.gate.Reset()
	h.log.Info().Str("by", c.GetString(middleware.ContextUsername)).Msg("lockout reset requested")
	c.JSON(http.StatusOK, LoginStatus{
		Locked:            s.Locked,
		RemainingAttempts: s.Remaining(),
		MaxAttempts:       s.MaxAttempts,
		Ready:             h.gate.IsReady(),
	})
}
