package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"aimate/internal/adapter/stt"
	"aimate/internal/apperr"
	"aimate/internal/model"
	"aimate/internal/service/meeting"
)

const audioField = "audio"

type MeetingService interface {
	List(ctx context.Context, userID int64) ([]model.Meeting, error)
	Get(ctx context.Context, userID, id int64) (*model.Meeting, error)
	Create(ctx context.Context, userID int64, in meeting.CreateInput) (*model.Meeting, error)
	CreateWithAI(ctx context.Context, userID int64, in meeting.CreateInput) (*model.Meeting, error)
	Update(ctx context.Context, userID, id int64, patch meeting.MeetingPatch) (*model.Meeting, error)
	Delete(ctx context.Context, userID, id int64) error
	UploadAudio(ctx context.Context, userID, id int64, audio meeting.Audio) (*model.Meeting, error)
	ConvertActionItem(ctx context.Context, userID, meetingID int64, itemID string) (*model.Task, error)
}

type MeetingHandler struct {
	svc    MeetingService
	logger *zap.Logger
}

func NewMeetingHandler(svc MeetingService, logger *zap.Logger) *MeetingHandler {
	return &MeetingHandler{svc: svc, logger: logger}
}

func (h *MeetingHandler) List(c *gin.Context) {
	meetings, err := h.svc.List(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(meetings), "meetings": meetings})
}

func (h *MeetingHandler) Get(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	m, err := h.svc.Get(c.Request.Context(), currentUser(c), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "meeting": m})
}

type createMeetingRequest struct {
	Title        string   `json:"title"`
	Participants []string `json:"participants"`
	Date         *Date    `json:"date"`
	Summary      string   `json:"summary"`
	Duration     int      `json:"duration" binding:"gte=0"`
}

func (r createMeetingRequest) input() meeting.CreateInput {
	return meeting.CreateInput{
		Title:        r.Title,
		Participants: r.Participants,
		Date:         datePtr(r.Date),
		Summary:      r.Summary,
		Duration:     r.Duration,
	}
}

// Create handles POST /api/meetings
func (h *MeetingHandler) Create(c *gin.Context) {
	var req createMeetingRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}
	m, err := h.svc.Create(c.Request.Context(), currentUser(c), req.input())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "meeting": m})
}

// CreateWithAI handles POST /api/meetings/create-with-ai
func (h *MeetingHandler) CreateWithAI(c *gin.Context) {
	var req createMeetingRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}
	m, err := h.svc.CreateWithAI(c.Request.Context(), currentUser(c), req.input())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "meeting": m})
}

type updateMeetingRequest struct {
	Title         *string             `json:"title"`
	Participants  *[]string           `json:"participants"`
	Date          *Date               `json:"date"`
	Summary       *string             `json:"summary"`
	KeyPoints     *[]string           `json:"keyPoints"`
	Transcription *string             `json:"transcription"`
	Duration      *int                `json:"duration" binding:"omitempty,gte=0"`
	ActionItems   *[]model.ActionItem `json:"actionItems"`
}

// Update handles PUT /api/meetings/:id
func (h *MeetingHandler) Update(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	var req updateMeetingRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}
	m, err := h.svc.Update(c.Request.Context(), currentUser(c), id, meeting.MeetingPatch{
		Title:         req.Title,
		Participants:  req.Participants,
		Date:          datePtr(req.Date),
		Summary:       req.Summary,
		KeyPoints:     req.KeyPoints,
		Transcription: req.Transcription,
		Duration:      req.Duration,
		ActionItems:   req.ActionItems,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "meeting": m})
}

func (h *MeetingHandler) Delete(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if err := h.svc.Delete(c.Request.Context(), currentUser(c), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Meeting deleted successfully"})
}

var errAudioTooLarge = apperr.Validation("File too large. Maximum size is 25MB.")

// UploadAudio handles POST /api/meetings/:id/upload-audio (multipart 字段 audio)
func (h *MeetingHandler) UploadAudio(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	// 额外留 1MB 给 multipart 头部
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, stt.MaxAudioSize+1<<20)
	fh, err := c.FormFile(audioField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, h.logger, errAudioTooLarge)
			return
		}
		respondError(c, h.logger, apperr.Validation("Audio file is required"))
		return
	}
	if fh.Size > stt.MaxAudioSize {
		respondError(c, h.logger, errAudioTooLarge)
		return
	}

	f, err := fh.Open()
	if err != nil {
		respondError(c, h.logger, apperr.Wrap(apperr.KindValidation, "Audio file is empty or corrupted", err))
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		respondError(c, h.logger, apperr.Wrap(apperr.KindValidation, "Audio file is empty or corrupted", err))
		return
	}

	m, err := h.svc.UploadAudio(c.Request.Context(), currentUser(c), id, meeting.Audio{
		Data:     data,
		Filename: fh.Filename,
		MimeType: fh.Header.Get("Content-Type"),
	})
	if err != nil {
		if m != nil {
			respondError(c, h.logger, err, gin.H{"meeting": m})
			return
		}
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"meeting": m,
		"message": "Audio transcribed and summarized successfully",
	})
}

// ConvertActionItem handles POST /api/meetings/:id/action-items/:itemId/convert
func (h *MeetingHandler) ConvertActionItem(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	t, err := h.svc.ConvertActionItem(c.Request.Context(), currentUser(c), id, c.Param("itemId"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"task":    t,
		"message": "Action item converted to task successfully",
	})
}
