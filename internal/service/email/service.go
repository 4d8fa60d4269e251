// Package email 提供已同步邮件的查询、AI 回复草拟和通过 Gmail 发送回复
package email

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	mqcontracts "aimate/contracts/mq"
	"aimate/internal/adapter/gmail"
	"aimate/internal/apperr"
	"aimate/internal/emailsync"
	"aimate/internal/model"
	"aimate/internal/repository"
	"aimate/pkg/logger"
	"aimate/pkg/mq"
)

const (
	DefaultLimit = 50
	MaxLimit     = 100
)

type Store interface {
	List(ctx context.Context, userID int64, f model.EmailFilter) ([]model.Email, error)
	Count(ctx context.Context, userID int64, f model.EmailFilter) (int, error)
	Get(ctx context.Context, id, userID int64) (*model.Email, error)
	Update(ctx context.Context, e *model.Email) error
	Delete(ctx context.Context, id, userID int64) error
}

type UserStore interface {
	FindByID(ctx context.Context, id int64) (*model.User, error)
}

type Syncer interface {
	Sync(ctx context.Context, userID int64) (*emailsync.Result, error)
}

type Replier interface {
	DraftEmailReply(ctx context.Context, body, extra string) (string, error)
}

type Sender interface {
	Send(ctx context.Context, creds model.GmailCredentials, msg gmail.Outgoing) (string, error)
}

type Service struct {
	store     Store
	users     UserStore
	syncer    Syncer
	replier   Replier
	sender    Sender
	publisher mq.EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(store Store, users UserStore, syncer Syncer, replier Replier, sender Sender, publisher mq.EventPublisher, logger *zap.Logger) *Service {
	return &Service{
		store:     store,
		users:     users,
		syncer:    syncer,
		replier:   replier,
		sender:    sender,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

var errNotConnected = apperr.Validation("Gmail not connected. Please connect Gmail first.")

func notFound(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("Email")
	}
	return apperr.Internal(err)
}

func (s *Service) loadUser(ctx context.Context, userID int64) (*model.User, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("User")
		}
		return nil, apperr.Internal(err)
	}
	return u, nil
}

type Page struct {
	Emails []model.Email
	Total  int
}

// List 只返回当前连接账户的邮件；没有记录账户时返回空页
func (s *Service) List(ctx context.Context, userID int64, status model.EmailStatus, limit, skip int) (*Page, error) {
	if status != "" && !status.Valid() {
		return nil, apperr.Validation("Invalid email status")
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if skip < 0 {
		skip = 0
	}

	u, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.GmailEmail == "" {
		return &Page{Emails: []model.Email{}}, nil
	}

	f := model.EmailFilter{Account: u.GmailEmail, Status: status, Limit: limit, Skip: skip}
	total, err := s.store.Count(ctx, userID, f)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	emails, err := s.store.List(ctx, userID, f)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &Page{Emails: emails, Total: total}, nil
}

func (s *Service) Get(ctx context.Context, userID, id int64) (*model.Email, error) {
	e, err := s.store.Get(ctx, id, userID)
	if err != nil {
		return nil, notFound(err)
	}
	return e, nil
}

// Sync 触发邮箱对账，返回本次新增的邮件
func (s *Service) Sync(ctx context.Context, userID int64) ([]model.Email, error) {
	res, err := s.syncer.Sync(ctx, userID)
	switch {
	case err == nil:
		return res.Inserted, nil
	case errors.Is(err, emailsync.ErrCredentialMissing):
		return nil, errNotConnected
	case errors.Is(err, emailsync.ErrSyncInProgress):
		return nil, apperr.Wrap(apperr.KindConflict, "Email sync already in progress", err)
	case errors.Is(err, repository.ErrNotFound):
		return nil, apperr.NotFound("User")
	}
	// 适配器已给出可展示的错误时沿用其类别和提示
	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Kind != apperr.KindInternal {
		return nil, apperr.Wrap(ae.Kind, ae.Message, err)
	}
	if errors.Is(err, emailsync.ErrSyncFailed) {
		return nil, apperr.Wrap(apperr.KindAdapterFailure, "Failed to sync emails", err)
	}
	return nil, apperr.Internal(err)
}

// GenerateReply 为已存邮件草拟回复并保存为 aiReply
func (s *Service) GenerateReply(ctx context.Context, userID, id int64, extra string) (*model.Email, error) {
	e, err := s.store.Get(ctx, id, userID)
	if err != nil {
		return nil, notFound(err)
	}
	reply, err := s.replier.DraftEmailReply(ctx, e.OriginalBody, extra)
	if err != nil {
		return nil, err
	}
	e.AIReply = &reply
	e.AIGenerated = true
	if err := s.store.Update(ctx, e); err != nil {
		return nil, notFound(err)
	}
	return e, nil
}

type ManualInput struct {
	OriginalBody string
	Subject      string
	From         string
}

// GenerateReplyManual 为粘贴的邮件草拟回复，不落库
func (s *Service) GenerateReplyManual(ctx context.Context, in ManualInput) (string, error) {
	if strings.TrimSpace(in.OriginalBody) == "" || strings.TrimSpace(in.Subject) == "" || strings.TrimSpace(in.From) == "" {
		return "", apperr.Validation("Email body, subject, and from are required")
	}
	return s.replier.DraftEmailReply(ctx, in.OriginalBody, "")
}

// SendReply 通过 Gmail 在原线程中回复；失败时把邮件状态记为 failed
func (s *Service) SendReply(ctx context.Context, userID, id int64, replyText string) (*model.Email, error) {
	if strings.TrimSpace(replyText) == "" {
		return nil, apperr.Validation("Reply text is required")
	}
	e, err := s.store.Get(ctx, id, userID)
	if err != nil {
		return nil, notFound(err)
	}
	u, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.GmailConnected() {
		return nil, errNotConnected
	}
	log := logger.WithUser(ctx, s.logger, userID).With(zap.Int64("email_id", id))

	_, sendErr := s.sender.Send(ctx, u.Credentials(), gmail.Outgoing{
		From:     u.GmailEmail,
		To:       e.From,
		Subject:  gmail.ReplySubject(e.Subject),
		Body:     replyText,
		ThreadID: e.ThreadID,
	})
	if sendErr != nil {
		log.Warn("send reply failed", zap.Error(sendErr))
		e.Status = model.EmailFailed
		if err := s.store.Update(ctx, e); err != nil {
			log.Error("mark email failed", zap.Error(err))
		}
		return nil, sendErr
	}

	sentAt := s.now()
	e.SentReply = &replyText
	e.Status = model.EmailSent
	e.SentAt = &sentAt
	if err := s.store.Update(ctx, e); err != nil {
		return nil, notFound(err)
	}

	payload := mqcontracts.EmailReplySentPayload{UserID: userID, EmailID: e.ID, ThreadID: e.ThreadID, SentAt: sentAt}
	if err := s.publisher.Publish(ctx, mqcontracts.RoutingEmailReplySent, payload); err != nil {
		log.Warn("publish email.reply_sent failed", zap.Error(err))
	}
	log.Info("reply sent")
	return e, nil
}

// Update 只允许修改本地字段，远端字段保持不变
func (s *Service) Update(ctx context.Context, userID, id int64, patch model.EmailPatch) (*model.Email, error) {
	e, err := s.store.Get(ctx, id, userID)
	if err != nil {
		return nil, notFound(err)
	}
	if patch.AIReply != nil {
		e.AIReply = patch.AIReply
	}
	if patch.SentReply != nil {
		e.SentReply = patch.SentReply
	}
	if patch.Status != nil {
		if !patch.Status.Valid() {
			return nil, apperr.Validation("Invalid email status")
		}
		e.Status = *patch.Status
	}
	if patch.Tags != nil {
		e.Tags = *patch.Tags
	}
	if err := s.store.Update(ctx, e); err != nil {
		return nil, notFound(err)
	}
	return e, nil
}

func (s *Service) Delete(ctx context.Context, userID, id int64) error {
	if err := s.store.Delete(ctx, id, userID); err != nil {
		return notFound(err)
	}
	return nil
}
