package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"aimate/internal/model"
)

type EmailRepository struct {
	db *pgxpool.Pool
}

func NewEmailRepository(db *pgxpool.Pool) *EmailRepository {
	return &EmailRepository{db: db}
}

const emailColumns = `id, user_id, gmail_email, gmail_message_id, thread_id, from_addr, to_addr, subject,
	original_body, ai_reply, sent_reply, status, received_at, sent_at, ai_generated, tags, created_at, updated_at`

func scanEmail(row interface{ Scan(...any) error }) (*model.Email, error) {
	var e model.Email
	err := row.Scan(
		&e.ID, &e.UserID, &e.GmailEmail, &e.GmailMessageID, &e.ThreadID, &e.From, &e.To, &e.Subject,
		&e.OriginalBody, &e.AIReply, &e.SentReply, &e.Status, &e.ReceivedAt, &e.SentAt, &e.AIGenerated,
		&e.Tags, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

// FindByMessageID 按远端消息 id 查找，不区分账户
func (r *EmailRepository) FindByMessageID(ctx context.Context, userID int64, messageID string) (*model.Email, error) {
	return scanEmail(r.db.QueryRow(ctx,
		`SELECT `+emailColumns+` FROM emails WHERE user_id = $1 AND gmail_message_id = $2`, userID, messageID))
}

// Insert 插入草稿行；(user_id, gmail_message_id) 已存在时不覆盖，返回 false
func (r *EmailRepository) Insert(ctx context.Context, e *model.Email) (bool, error) {
	query := `
		INSERT INTO emails (user_id, gmail_email, gmail_message_id, thread_id, from_addr, to_addr, subject,
		                    original_body, status, received_at, ai_generated, tags)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (user_id, gmail_message_id) DO NOTHING
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		e.UserID, e.GmailEmail, e.GmailMessageID, e.ThreadID, e.From, e.To, e.Subject,
		e.OriginalBody, e.Status, e.ReceivedAt, e.AIGenerated, nonNil(e.Tags),
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if notFound(err) == ErrNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// DeleteNotAccount 删除不属于 account 的全部行（账户切换）
func (r *EmailRepository) DeleteNotAccount(ctx context.Context, userID int64, account string) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM emails WHERE user_id = $1 AND gmail_email <> $2`, userID, account)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteStale 删除 account 下不在 keepIDs 中的行
func (r *EmailRepository) DeleteStale(ctx context.Context, userID int64, account string, keepIDs []string) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM emails
		WHERE user_id = $1 AND gmail_email = $2 AND gmail_message_id <> ALL($3)
	`, userID, account, keepIDs)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *EmailRepository) DeleteAllForUser(ctx context.Context, userID int64) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM emails WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func emailWhere(userID int64, f model.EmailFilter) ([]string, []any) {
	where := []string{"user_id = $1", "gmail_email = $2"}
	args := []any{userID, f.Account}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	return where, args
}

// Count 统计过滤条件下的总数，忽略分页
func (r *EmailRepository) Count(ctx context.Context, userID int64, f model.EmailFilter) (int, error) {
	where, args := emailWhere(userID, f)
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM emails WHERE `+strings.Join(where, " AND "), args...).Scan(&n)
	return n, err
}

// List 按接收时间倒序，再按创建时间倒序
func (r *EmailRepository) List(ctx context.Context, userID int64, f model.EmailFilter) ([]model.Email, error) {
	where, args := emailWhere(userID, f)
	args = append(args, f.Limit, f.Skip)

	query := `SELECT ` + emailColumns + ` FROM emails WHERE ` + strings.Join(where, " AND ") +
		fmt.Sprintf(` ORDER BY received_at DESC NULLS LAST, created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	emails := []model.Email{}
	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		emails = append(emails, *e)
	}
	return emails, rows.Err()
}

func (r *EmailRepository) Get(ctx context.Context, id, userID int64) (*model.Email, error) {
	return scanEmail(r.db.QueryRow(ctx,
		`SELECT `+emailColumns+` FROM emails WHERE id = $1 AND user_id = $2`, id, userID))
}

// Update 保存回复、状态和标签
func (r *EmailRepository) Update(ctx context.Context, e *model.Email) error {
	query := `
		UPDATE emails
		SET ai_reply = $3, sent_reply = $4, status = $5, sent_at = $6, ai_generated = $7, tags = $8,
		    updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING updated_at
	`
	err := r.db.QueryRow(ctx, query,
		e.ID, e.UserID, e.AIReply, e.SentReply, e.Status, e.SentAt, e.AIGenerated, nonNil(e.Tags),
	).Scan(&e.UpdatedAt)
	return notFound(err)
}

func (r *EmailRepository) Delete(ctx context.Context, id, userID int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM emails WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
