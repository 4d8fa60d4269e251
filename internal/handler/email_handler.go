package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"aimate/internal/model"
	"aimate/internal/service/email"
)

type EmailService interface {
	List(ctx context.Context, userID int64, status model.EmailStatus, limit, skip int) (*email.Page, error)
	Get(ctx context.Context, userID, id int64) (*model.Email, error)
	Sync(ctx context.Context, userID int64) ([]model.Email, error)
	GenerateReply(ctx context.Context, userID, id int64, extra string) (*model.Email, error)
	GenerateReplyManual(ctx context.Context, in email.ManualInput) (string, error)
	SendReply(ctx context.Context, userID, id int64, replyText string) (*model.Email, error)
	Update(ctx context.Context, userID, id int64, patch model.EmailPatch) (*model.Email, error)
	Delete(ctx context.Context, userID, id int64) error
}

type EmailHandler struct {
	svc    EmailService
	logger *zap.Logger
}

func NewEmailHandler(svc EmailService, logger *zap.Logger) *EmailHandler {
	return &EmailHandler{svc: svc, logger: logger}
}

// List handles GET /api/emails?status=&limit=&skip=
func (h *EmailHandler) List(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	skip, err := queryInt(c, "skip")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	page, err := h.svc.List(c.Request.Context(), currentUser(c), model.EmailStatus(c.Query("status")), limit, skip)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(page.Emails),
		"total":   page.Total,
		"emails":  page.Emails,
	})
}

func (h *EmailHandler) Get(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	e, err := h.svc.Get(c.Request.Context(), currentUser(c), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "email": e})
}

// Sync handles GET /api/emails/sync (POST 也可以)
func (h *EmailHandler) Sync(c *gin.Context) {
	emails, err := h.svc.Sync(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(emails),
		"emails":  emails,
		"message": "Emails synced successfully",
	})
}

// GenerateReply handles POST /api/emails/:id/generate-reply
func (h *EmailHandler) GenerateReply(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	var req struct {
		Context string `json:"context"`
	}
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}
	e, err := h.svc.GenerateReply(c.Request.Context(), currentUser(c), id, req.Context)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "email": e, "aiReply": e.AIReply})
}

// GenerateReplyManual handles POST /api/emails/generate-reply-manual
func (h *EmailHandler) GenerateReplyManual(c *gin.Context) {
	var req struct {
		OriginalBody string `json:"originalBody"`
		Subject      string `json:"subject"`
		From         string `json:"from"`
	}
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}
	reply, err := h.svc.GenerateReplyManual(c.Request.Context(), email.ManualInput{
		OriginalBody: req.OriginalBody,
		Subject:      req.Subject,
		From:         req.From,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "aiReply": reply, "message": "AI reply generated successfully"})
}

// Send handles POST /api/emails/:id/send
func (h *EmailHandler) Send(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	var req struct {
		ReplyText string `json:"replyText"`
	}
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}
	e, err := h.svc.SendReply(c.Request.Context(), currentUser(c), id, req.ReplyText)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "email": e, "message": "Email sent successfully"})
}

type updateEmailRequest struct {
	AIReply   *string            `json:"aiReply"`
	SentReply *string            `json:"sentReply"`
	Status    *model.EmailStatus `json:"status" binding:"omitempty,enum"`
	Tags      *[]string          `json:"tags"`
}

// Update handles PUT /api/emails/:id，其他字段被忽略
func (h *EmailHandler) Update(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	var req updateEmailRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}
	e, err := h.svc.Update(c.Request.Context(), currentUser(c), id, model.EmailPatch{
		AIReply:   req.AIReply,
		SentReply: req.SentReply,
		Status:    req.Status,
		Tags:      req.Tags,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "email": e})
}

func (h *EmailHandler) Delete(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if err := h.svc.Delete(c.Request.Context(), currentUser(c), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Email deleted successfully"})
}
