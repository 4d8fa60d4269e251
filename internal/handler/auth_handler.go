package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"aimate/internal/model"
	"aimate/internal/service/auth"
)

type AuthService interface {
	Register(ctx context.Context, in auth.RegisterInput) (*auth.Result, error)
	Login(ctx context.Context, email, password string) (*auth.Result, error)
	Me(ctx context.Context, userID int64) (*model.PublicUser, error)
	UpdatePreferences(ctx context.Context, userID int64, patch auth.PreferencesPatch) (*model.Preferences, error)
	GmailAuthURL(ctx context.Context, userID int64) (string, error)
	ConnectGmail(ctx context.Context, userID int64, code, state string) error
	DisconnectGmail(ctx context.Context, userID int64) error
}

type AuthHandler struct {
	svc    AuthService
	logger *zap.Logger
}

func NewAuthHandler(svc AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, logger: logger}
}

// Register handles POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}
	res, err := h.svc.Register(c.Request.Context(), auth.RegisterInput{Name: req.Name, Email: req.Email, Password: req.Password})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "token": res.Token, "user": res.User})
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}
	res, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "token": res.Token, "user": res.User})
}

// Logout handles POST /api/auth/logout；token 由客户端丢弃，这里只触发缓存清理
func (h *AuthHandler) Logout(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Logged out successfully"})
}

// Me handles GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	u, err := h.svc.Me(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": u})
}

// UpdatePreferences handles PUT /api/auth/preferences
func (h *AuthHandler) UpdatePreferences(c *gin.Context) {
	var req struct {
		Theme         *string `json:"theme" binding:"omitempty,oneof=light dark"`
		Notifications *bool   `json:"notifications"`
	}
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}
	prefs, err := h.svc.UpdatePreferences(c.Request.Context(), currentUser(c), auth.PreferencesPatch{
		Theme:         req.Theme,
		Notifications: req.Notifications,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "preferences": prefs})
}

// GmailURL handles GET /api/auth/gmail/url
func (h *AuthHandler) GmailURL(c *gin.Context) {
	url, err := h.svc.GmailAuthURL(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "authUrl": url})
}

// GmailCallback handles POST /api/auth/gmail/callback
func (h *AuthHandler) GmailCallback(c *gin.Context) {
	var req struct {
		Code  string `json:"code"`
		State string `json:"state"`
	}
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}
	if err := h.svc.ConnectGmail(c.Request.Context(), currentUser(c), req.Code, req.State); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Gmail connected successfully"})
}

// GmailDisconnect handles POST /api/auth/gmail/disconnect
func (h *AuthHandler) GmailDisconnect(c *gin.Context) {
	if err := h.svc.DisconnectGmail(c.Request.Context(), currentUser(c)); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Gmail disconnected successfully"})
}
