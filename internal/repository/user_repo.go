package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"aimate/internal/model"
	"aimate/pkg/util"
)

// ErrDuplicateEmail email 已注册
var ErrDuplicateEmail = errors.New("email already registered")

type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, name, email, password_hash, preferences,
	COALESCE(gmail_access_token, ''), COALESCE(gmail_refresh_token, ''), COALESCE(gmail_email, ''),
	created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Preferences,
		&u.GmailAccessToken, &u.GmailRefreshToken, &u.GmailEmail,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// Create inserts a new user.
func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	query := `
		INSERT INTO users (name, email, password_hash, preferences)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query, u.Name, u.Email, u.PasswordHash, u.Preferences).
		Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if util.IsUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	return err
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

func (r *UserRepository) FindByID(ctx context.Context, id int64) (*model.User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *UserRepository) UpdatePreferences(ctx context.Context, id int64, prefs model.Preferences) error {
	return r.exec(ctx, `UPDATE users SET preferences = $2, updated_at = NOW() WHERE id = $1`, id, prefs)
}

// UpdateGmailTokens 保存 OAuth 令牌；refresh 为空时保留旧值
func (r *UserRepository) UpdateGmailTokens(ctx context.Context, id int64, access, refresh string) error {
	return r.exec(ctx, `
		UPDATE users
		SET gmail_access_token = $2,
		    gmail_refresh_token = COALESCE(NULLIF($3, ''), gmail_refresh_token),
		    updated_at = NOW()
		WHERE id = $1
	`, id, access, refresh)
}

func (r *UserRepository) UpdateGmailEmail(ctx context.Context, id int64, gmailEmail string) error {
	return r.exec(ctx, `UPDATE users SET gmail_email = NULLIF($2, ''), updated_at = NOW() WHERE id = $1`, id, gmailEmail)
}

// ClearGmail 断开 Gmail：清除令牌和账户地址
func (r *UserRepository) ClearGmail(ctx context.Context, id int64) error {
	return r.exec(ctx, `
		UPDATE users
		SET gmail_access_token = NULL, gmail_refresh_token = NULL, gmail_email = NULL, updated_at = NOW()
		WHERE id = $1
	`, id)
}

func (r *UserRepository) exec(ctx context.Context, query string, args ...any) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
