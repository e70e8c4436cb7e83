package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	domainoauth "github.com/7HR4IZ3/ai-video-creator/internal/domain/oauth"
	"github.com/7HR4IZ3/ai-video-creator/internal/providers"
	authsvc "github.com/7HR4IZ3/ai-video-creator/internal/service/auth"
)

// Notifier delivers callback outcomes to the CLI waiting on a session.
type Notifier interface {
	NotifyCompletion(sessionID string, platform domainoauth.Platform, tokens *domainoauth.TokenSet) bool
	NotifyFailure(sessionID string, platform domainoauth.Platform, errText string) bool
}

// AuthHandler serves the authorization start, provider callback and token endpoints.
type AuthHandler struct {
	Sessions authsvc.SessionManager
	Notifier Notifier
	Registry *providers.Registry
	logger   *zap.Logger
}

// NewAuthHandler creates the handler set.
func NewAuthHandler(sessions authsvc.SessionManager, notifier Notifier, registry *providers.Registry, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{Sessions: sessions, Notifier: notifier, Registry: registry, logger: logger}
}

type startAuthRequest struct {
	Platform string `json:"platform" form:"platform"`
}

// Health reports liveness.
func (h *AuthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// StartAuth issues an authorization URL and session id for a platform.
func (h *AuthHandler) StartAuth(c *gin.Context) {
	var req startAuthRequest
	if err := c.ShouldBind(&req); err != nil {
		h.invalidPlatform(c)
		return
	}
	platform, ok := h.platform(req.Platform)
	if !ok {
		h.invalidPlatform(c)
		return
	}

	out, err := h.Sessions.GenerateAuthURL(c.Request.Context(), platform)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"authUrl":   out.AuthorizationURL,
		"sessionId": out.SessionID,
		"platform":  out.Platform,
	})
}

// Callback receives the provider redirect, completes the exchange and notifies the waiting CLI.
func (h *AuthHandler) Callback(c *gin.Context) {
	rawPlatform := c.Param("platform")
	platform := domainoauth.Platform(strings.ToLower(strings.TrimSpace(rawPlatform)))
	code := strings.TrimSpace(c.Query("code"))
	state := strings.TrimSpace(c.Query("state"))
	sessionID := domainoauth.SessionIDFromState(state)

	if providerErr := strings.TrimSpace(c.Query("error")); providerErr != "" {
		errText := "OAuth error: " + providerErr
		h.log().Warn("provider returned authorization error",
			zap.String("platform", platform.String()),
			zap.String("session_id", sessionID),
			zap.String("error", providerErr),
			zap.String("error_description", c.Query("error_description")),
		)
		if sessionID != "" {
			h.Notifier.NotifyFailure(sessionID, platform, errText)
			h.Sessions.DiscardSession(c.Request.Context(), sessionID, providerErr)
		}
		h.renderFailure(c, providerErr)
		return
	}

	if code == "" || state == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Missing code or state parameter"})
		return
	}

	tokens, err := h.Sessions.HandleCallback(c.Request.Context(), platform, code, state)
	if err != nil {
		h.log().Error("oauth callback failed",
			zap.String("platform", platform.String()),
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		if sessionID != "" {
			h.Notifier.NotifyFailure(sessionID, platform, err.Error())
		}
		h.renderFailure(c, err.Error())
		return
	}

	h.Notifier.NotifyCompletion(sessionID, platform, tokens)
	c.HTML(http.StatusOK, pageSuccess, gin.H{"Platform": platform.String()})
}

// StoredTokens returns the cached token set for a platform.
func (h *AuthHandler) StoredTokens(c *gin.Context) {
	platform, ok := h.platform(c.Param("platform"))
	if !ok {
		h.invalidPlatform(c)
		return
	}

	tokens, err := h.Sessions.GetStoredTokens(c.Request.Context(), platform)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	if tokens == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "error_description": "No tokens found for platform"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "tokens": tokens, "platform": platform})
}

// RefreshTokens runs a refresh grant with the stored refresh token.
func (h *AuthHandler) RefreshTokens(c *gin.Context) {
	platform, ok := h.platform(c.Param("platform"))
	if !ok {
		h.invalidPlatform(c)
		return
	}

	tokens := h.Sessions.RefreshTokens(c.Request.Context(), platform)
	if tokens == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":             "not_found",
			"error_description": "Unable to refresh tokens. Re-authorization may be required.",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "tokens": tokens, "platform": platform})
}

func (h *AuthHandler) platform(raw string) (domainoauth.Platform, bool) {
	platform, err := domainoauth.ParsePlatform(raw)
	if err != nil {
		return "", false
	}
	if h.Registry != nil && !h.Registry.Supports(platform) {
		return "", false
	}
	return platform, true
}

func (h *AuthHandler) invalidPlatform(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_platform", "error_description": "Invalid platform"})
}

func (h *AuthHandler) renderFailure(c *gin.Context, errText string) {
	c.HTML(http.StatusOK, pageFailure, gin.H{"Error": errText})
}

func (h *AuthHandler) respondServiceError(c *gin.Context, err error) {
	logger := h.log()
	switch {
	case errors.Is(err, domainoauth.ErrUnsupportedPlatform), errors.Is(err, domainoauth.ErrInvalidRequest):
		logger.Warn("oauth invalid request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": err.Error()})
	default:
		logger.Error("oauth service failure", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": err.Error()})
	}
}

func (h *AuthHandler) log() *zap.Logger {
	if h != nil && h.logger != nil {
		return h.logger
	}
	return zap.L()
}
