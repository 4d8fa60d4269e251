// Package meeting 管理会议记录：AI 生成会议描述、音频转写与摘要，以及动作项转任务
package meeting

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	mqcontracts "aimate/contracts/mq"
	"aimate/internal/adapter/ai"
	"aimate/internal/adapter/stt"
	"aimate/internal/apperr"
	"aimate/internal/model"
	"aimate/internal/repository"
	"aimate/pkg/logger"
	"aimate/pkg/mq"
)

type Store interface {
	List(ctx context.Context, userID int64) ([]model.Meeting, error)
	Get(ctx context.Context, id, userID int64) (*model.Meeting, error)
	Create(ctx context.Context, m *model.Meeting) error
	Update(ctx context.Context, m *model.Meeting) error
	Delete(ctx context.Context, id, userID int64) error
	// ConvertActionItem 原子地插入任务并标记动作项，见 repository.MeetingRepository
	ConvertActionItem(ctx context.Context, meetingID, userID int64, itemID string,
		newTask func(m *model.Meeting, item *model.ActionItem) *model.Task) (*model.Task, error)
}

type NoteTaker interface {
	SummarizeTranscript(ctx context.Context, transcript string) (*ai.MeetingNotes, error)
	DescribeMeeting(ctx context.Context, title string, participants []string) (*ai.MeetingNotes, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename, mimeType string) (string, error)
}

type Service struct {
	store       Store
	notes       NoteTaker
	transcriber Transcriber
	publisher   mq.EventPublisher
	logger      *zap.Logger
	now         func() time.Time
	newID       func() string
}

func NewService(store Store, notes NoteTaker, transcriber Transcriber, publisher mq.EventPublisher, logger *zap.Logger) *Service {
	return &Service{
		store:       store,
		notes:       notes,
		transcriber: transcriber,
		publisher:   publisher,
		logger:      logger,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

func notFound(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("Meeting")
	}
	return apperr.Internal(err)
}

func (s *Service) List(ctx context.Context, userID int64) ([]model.Meeting, error) {
	meetings, err := s.store.List(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return meetings, nil
}

func (s *Service) Get(ctx context.Context, userID, id int64) (*model.Meeting, error) {
	m, err := s.store.Get(ctx, id, userID)
	if err != nil {
		return nil, notFound(err)
	}
	return m, nil
}

type CreateInput struct {
	Title        string
	Participants []string
	Date         *time.Time
	Summary      string
	Duration     int
}

func (s *Service) newMeeting(userID int64, in CreateInput) (*model.Meeting, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperr.Validation("Please provide a meeting title")
	}
	if in.Duration < 0 {
		return nil, apperr.Validation("Duration must not be negative")
	}
	m := &model.Meeting{
		UserID:       userID,
		Title:        title,
		Participants: in.Participants,
		Summary:      in.Summary,
		Duration:     in.Duration,
		KeyPoints:    []string{},
		ActionItems:  []model.ActionItem{},
	}
	if m.Participants == nil {
		m.Participants = []string{}
	}
	if in.Date != nil {
		m.Date = *in.Date
	} else {
		m.Date = s.now()
	}
	return m, nil
}

func (s *Service) Create(ctx context.Context, userID int64, in CreateInput) (*model.Meeting, error) {
	m, err := s.newMeeting(userID, in)
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, m); err != nil {
		return nil, apperr.Internal(err)
	}
	return m, nil
}

// CreateWithAI 由 AI 生成描述、议程和动作项，动作项按顺序轮流分配给参与者
func (s *Service) CreateWithAI(ctx context.Context, userID int64, in CreateInput) (*model.Meeting, error) {
	m, err := s.newMeeting(userID, in)
	if err != nil {
		return nil, err
	}
	notes, err := s.notes.DescribeMeeting(ctx, m.Title, m.Participants)
	if err != nil {
		return nil, err
	}

	m.Summary = notes.Summary
	m.KeyPoints = notes.KeyPoints
	m.IsAIGenerated = true
	m.ActionItems = make([]model.ActionItem, 0, len(notes.ActionItems))
	for i, item := range notes.ActionItems {
		assignee := ""
		if len(m.Participants) > 0 {
			assignee = m.Participants[i%len(m.Participants)]
		}
		m.ActionItems = append(m.ActionItems, model.ActionItem{
			ID:          s.newID(),
			Description: item.Description,
			AssignedTo:  assignee,
			Status:      model.ActionPending,
		})
	}

	if err := s.store.Create(ctx, m); err != nil {
		return nil, apperr.Internal(err)
	}
	return m, nil
}

// MeetingPatch 只覆盖出现的字段；actionItems 整体替换
type MeetingPatch struct {
	Title         *string
	Participants  *[]string
	Date          *time.Time
	Summary       *string
	KeyPoints     *[]string
	Transcription *string
	Duration      *int
	ActionItems   *[]model.ActionItem
}

func (s *Service) Update(ctx context.Context, userID, id int64, patch MeetingPatch) (*model.Meeting, error) {
	m, err := s.store.Get(ctx, id, userID)
	if err != nil {
		return nil, notFound(err)
	}
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, apperr.Validation("Please provide a meeting title")
		}
		m.Title = title
	}
	if patch.Participants != nil {
		m.Participants = *patch.Participants
	}
	if patch.Date != nil {
		m.Date = *patch.Date
	}
	if patch.Summary != nil {
		m.Summary = *patch.Summary
	}
	if patch.KeyPoints != nil {
		m.KeyPoints = *patch.KeyPoints
	}
	if patch.Transcription != nil {
		m.Transcription = *patch.Transcription
	}
	if patch.Duration != nil {
		if *patch.Duration < 0 {
			return nil, apperr.Validation("Duration must not be negative")
		}
		m.Duration = *patch.Duration
	}
	if patch.ActionItems != nil {
		items := make([]model.ActionItem, len(*patch.ActionItems))
		for i, item := range *patch.ActionItems {
			if item.ID == "" {
				item.ID = s.newID()
			}
			if item.Status == "" {
				item.Status = model.ActionPending
			}
			if !item.Status.Valid() {
				return nil, apperr.Validation("Invalid action item status")
			}
			items[i] = item
		}
		m.ActionItems = items
	}

	if err := s.store.Update(ctx, m); err != nil {
		return nil, notFound(err)
	}
	return m, nil
}

func (s *Service) Delete(ctx context.Context, userID, id int64) error {
	if err := s.store.Delete(ctx, id, userID); err != nil {
		return notFound(err)
	}
	return nil
}

type Audio struct {
	Data     []byte
	Filename string
	MimeType string
}

// UploadAudio 转写音频并生成摘要。
// 摘要失败时仍保存转写文本，此时同时返回会议和错误。
func (s *Service) UploadAudio(ctx context.Context, userID, id int64, audio Audio) (*model.Meeting, error) {
	m, err := s.store.Get(ctx, id, userID)
	if err != nil {
		return nil, notFound(err)
	}
	if len(audio.Data) == 0 {
		return nil, apperr.Validation("Audio file is empty or corrupted")
	}
	if err := stt.CheckFormat(audio.Filename, audio.MimeType); err != nil {
		return nil, err
	}
	log := logger.WithUser(ctx, s.logger, userID).With(zap.Int64("meeting_id", id))
	log.Info("processing meeting audio", zap.String("filename", audio.Filename), zap.Int("size", len(audio.Data)))

	transcription, err := s.transcriber.Transcribe(ctx, audio.Data, audio.Filename, audio.MimeType)
	if err != nil {
		return nil, err
	}
	m.Transcription = transcription
	m.AudioFileURL = stt.SanitizeFilename(audio.Filename)

	notes, err := s.notes.SummarizeTranscript(ctx, transcription)
	if err != nil {
		log.Warn("meeting summary failed, keeping transcription", zap.Error(err))
		if saveErr := s.store.Update(ctx, m); saveErr != nil {
			return nil, notFound(saveErr)
		}
		s.publishTranscribed(ctx, m, false)
		return m, summaryFailed(err)
	}

	m.Summary = notes.Summary
	m.KeyPoints = notes.KeyPoints
	if m.KeyPoints == nil {
		m.KeyPoints = []string{}
	}
	if len(notes.ActionItems) > 0 {
		m.ActionItems = make([]model.ActionItem, 0, len(notes.ActionItems))
		for _, item := range notes.ActionItems {
			m.ActionItems = append(m.ActionItems, model.ActionItem{
				ID:          s.newID(),
				Description: item.Description,
				AssignedTo:  item.AssignedTo,
				DueDate:     item.DueDate,
				Status:      model.ActionPending,
			})
		}
	}

	if err := s.store.Update(ctx, m); err != nil {
		return nil, notFound(err)
	}
	s.publishTranscribed(ctx, m, true)
	log.Info("meeting transcribed", zap.Int("transcript_length", len(transcription)), zap.Int("action_items", len(m.ActionItems)))
	return m, nil
}

// summaryFailed 保留原错误类型，消息说明转写已保存
func summaryFailed(err error) error {
	return apperr.Wrap(apperr.From(err).Kind, "Failed to generate summary. Transcription saved.", err)
}

func (s *Service) publishTranscribed(ctx context.Context, m *model.Meeting, summarized bool) {
	payload := mqcontracts.MeetingTranscribedPayload{
		UserID:           m.UserID,
		MeetingID:        m.ID,
		TranscriptLength: len(m.Transcription),
		ActionItems:      len(m.ActionItems),
		Summarized:       summarized,
	}
	if err := s.publisher.Publish(ctx, mqcontracts.RoutingMeetingTranscribed, payload); err != nil {
		logger.WithUser(ctx, s.logger, m.UserID).Warn("publish meeting.transcribed failed", zap.Error(err))
	}
}

// ConvertActionItem 把动作项转为任务，同一动作项只能转换一次
func (s *Service) ConvertActionItem(ctx context.Context, userID, meetingID int64, itemID string) (*model.Task, error) {
	t, err := s.store.ConvertActionItem(ctx, meetingID, userID, itemID, actionItemTask)
	switch {
	case err == nil:
		return t, nil
	case errors.Is(err, repository.ErrActionItemNotFound):
		return nil, apperr.NotFound("Action item")
	case errors.Is(err, repository.ErrAlreadyConverted):
		return nil, apperr.Conflict("Action item already converted to task")
	default:
		return nil, notFound(err)
	}
}

func actionItemTask(m *model.Meeting, item *model.ActionItem) *model.Task {
	return &model.Task{
		UserID:      m.UserID,
		Title:       item.Description,
		Description: "Action item from meeting: " + m.Title,
		Priority:    model.PriorityMedium,
		Status:      model.TaskPending,
		DueDate:     item.DueDate,
	}
}
