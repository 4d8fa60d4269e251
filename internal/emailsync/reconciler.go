// Package emailsync reconciles the locally stored emails of a user with the
// most recent messages of the currently connected Gmail account.
package emailsync

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	mqcontracts "aimate/contracts/mq"
	"aimate/internal/model"
	"aimate/internal/repository"
	"aimate/pkg/logger"
	"aimate/pkg/metrics"
	"aimate/pkg/mq"
	"aimate/pkg/util"
)

const DefaultFetchCount = 20

var (
	ErrCredentialMissing = errors.New("gmail credentials missing")
	ErrSyncFailed        = errors.New("email sync failed")
	ErrSyncInProgress    = errors.New("email sync already in progress")
)

// Mailbox 列出远端邮箱中最新的 n 封邮件
type Mailbox interface {
	ListRecent(ctx context.Context, creds model.GmailCredentials, n int) ([]model.RemoteMessage, error)
}

// Profiler 读取已连接账户的地址
type Profiler interface {
	Profile(ctx context.Context, creds model.GmailCredentials) (string, error)
}

type EmailStore interface {
	FindByMessageID(ctx context.Context, userID int64, messageID string) (*model.Email, error)
	Insert(ctx context.Context, e *model.Email) (bool, error)
	DeleteNotAccount(ctx context.Context, userID int64, account string) (int64, error)
	DeleteStale(ctx context.Context, userID int64, account string, keepIDs []string) (int64, error)
}

type UserStore interface {
	FindByID(ctx context.Context, id int64) (*model.User, error)
	UpdateGmailEmail(ctx context.Context, id int64, gmailEmail string) error
}

// Locker 提供按用户的互斥，见 util.RedisLock
type Locker interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

type Result struct {
	Account     string
	Fetched     int
	Inserted    []model.Email
	SwitchedOut int64
	Pruned      int64
}

func (r *Result) Count() int { return len(r.Inserted) }

type Reconciler struct {
	mailbox    Mailbox
	emails     EmailStore
	users      UserStore
	locker     Locker
	profiler   Profiler
	publisher  mq.EventPublisher
	fetchCount int
	logger     *zap.Logger
	now        func() time.Time
}

type Option func(*Reconciler)

func WithLocker(l Locker) Option { return func(r *Reconciler) { r.locker = l } }

func WithProfiler(p Profiler) Option { return func(r *Reconciler) { r.profiler = p } }

func WithPublisher(p mq.EventPublisher) Option { return func(r *Reconciler) { r.publisher = p } }

func WithFetchCount(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.fetchCount = n
		}
	}
}

func NewReconciler(mailbox Mailbox, emails EmailStore, users UserStore, logger *zap.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		mailbox:    mailbox,
		emails:     emails,
		users:      users,
		fetchCount: DefaultFetchCount,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Sync 拉取最新邮件并与本地记录对齐。
// 远端拉取失败时不写入任何数据；拉取结果为空时跳过过期清理。
func (r *Reconciler) Sync(ctx context.Context, userID int64) (*Result, error) {
	log := logger.WithUser(ctx, r.logger, userID)

	user, err := r.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user.GmailRefreshToken == "" {
		return nil, ErrCredentialMissing
	}

	if r.locker != nil {
		release, err := r.locker.Acquire(ctx, strconv.FormatInt(userID, 10))
		if err != nil {
			if errors.Is(err, util.ErrLockHeld) {
				metrics.IncrementEmailSync("locked")
				return nil, ErrSyncInProgress
			}
			return nil, err
		}
		defer release()
	}

	res, err := r.reconcile(ctx, user)
	if err != nil {
		metrics.IncrementEmailSync("failed")
		log.Warn("Email sync failed", zap.Error(err))
		return nil, err
	}

	metrics.IncrementEmailSync("success")
	metrics.AddEmailSyncRows("inserted", int64(res.Count()))
	metrics.AddEmailSyncRows("switched_out", res.SwitchedOut)
	metrics.AddEmailSyncRows("pruned", res.Pruned)
	log.Info("Email sync completed",
		zap.String("account", res.Account),
		zap.Int("fetched", res.Fetched),
		zap.Int("inserted", res.Count()),
		zap.Int64("switched_out", res.SwitchedOut),
		zap.Int64("pruned", res.Pruned),
	)
	r.publish(ctx, log, userID, res)
	return res, nil
}

func (r *Reconciler) reconcile(ctx context.Context, user *model.User) (*Result, error) {
	messages, err := r.mailbox.ListRecent(ctx, user.Credentials(), r.fetchCount)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSyncFailed, err)
	}

	account := r.resolveAccount(ctx, user, messages)
	res := &Result{Account: account, Fetched: len(messages), Inserted: []model.Email{}}

	if account != "" && account != user.GmailEmail {
		if err := r.users.UpdateGmailEmail(ctx, user.ID, account); err != nil {
			return nil, fmt.Errorf("persist gmail address: %w", err)
		}
	}

	if account != "" {
		n, err := r.emails.DeleteNotAccount(ctx, user.ID, account)
		if err != nil {
			return nil, fmt.Errorf("delete other accounts: %w", err)
		}
		res.SwitchedOut = n
	}

	keepIDs := make([]string, 0, len(messages))
	for _, msg := range messages {
		keepIDs = append(keepIDs, msg.ID)

		_, err := r.emails.FindByMessageID(ctx, user.ID, msg.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("lookup message %s: %w", msg.ID, err)
		}

		// 拉取的邮件都来自当前账户，和 To 头无关
		row := model.Email{
			UserID:         user.ID,
			GmailEmail:     account,
			GmailMessageID: msg.ID,
			ThreadID:       msg.ThreadID,
			From:           msg.From,
			To:             msg.To,
			Subject:        msg.Subject,
			OriginalBody:   msg.Body,
			Status:         model.EmailDraft,
			ReceivedAt:     msg.ReceivedAt,
		}
		inserted, err := r.emails.Insert(ctx, &row)
		if err != nil {
			return nil, fmt.Errorf("insert message %s: %w", msg.ID, err)
		}
		if inserted {
			res.Inserted = append(res.Inserted, row)
		}
	}

	// 空结果不能清理，否则会清空整个账户
	if account != "" && len(keepIDs) > 0 {
		n, err := r.emails.DeleteStale(ctx, user.ID, account, keepIDs)
		if err != nil {
			return nil, fmt.Errorf("prune stale messages: %w", err)
		}
		res.Pruned = n
	}
	return res, nil
}

// resolveAccount 依次使用已记录的地址、账户 profile、第一个看起来像地址的 To 头
func (r *Reconciler) resolveAccount(ctx context.Context, user *model.User, messages []model.RemoteMessage) string {
	if account := NormalizeAddress(user.GmailEmail); account != "" {
		return account
	}
	if r.profiler != nil {
		addr, err := r.profiler.Profile(ctx, user.Credentials())
		if err == nil && IsAddress(NormalizeAddress(addr)) {
			return NormalizeAddress(addr)
		}
		if err != nil {
			logger.WithUser(ctx, r.logger, user.ID).Warn("Failed to read Gmail profile, deriving address from messages", zap.Error(err))
		}
	}
	for _, msg := range messages {
		if addr := NormalizeAddress(msg.To); IsAddress(addr) {
			return addr
		}
	}
	return ""
}

func (r *Reconciler) publish(ctx context.Context, log *zap.Logger, userID int64, res *Result) {
	if r.publisher == nil {
		return
	}
	payload := mqcontracts.EmailSyncedPayload{
		UserID:      userID,
		Account:     res.Account,
		Fetched:     res.Fetched,
		Inserted:    res.Count(),
		SwitchedOut: res.SwitchedOut,
		Pruned:      res.Pruned,
		SyncedAt:    r.now(),
	}
	if err := r.publisher.Publish(ctx, mqcontracts.RoutingEmailSynced, payload); err != nil {
		log.Warn("Failed to publish email.synced", zap.Error(err))
	}
}
