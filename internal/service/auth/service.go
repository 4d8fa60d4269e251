// Package auth 负责注册登录、用户偏好以及 Gmail 授权的接入与断开
package auth

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"aimate/internal/apperr"
	"aimate/internal/model"
	"aimate/internal/repository"
	"aimate/internal/util"
	"aimate/pkg/logger"
)

const (
	minPasswordLength = 6
	stateTTL          = 10 * time.Minute
)

type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByID(ctx context.Context, id int64) (*model.User, error)
	UpdatePreferences(ctx context.Context, id int64, prefs model.Preferences) error
	UpdateGmailTokens(ctx context.Context, id int64, access, refresh string) error
	UpdateGmailEmail(ctx context.Context, id int64, gmailEmail string) error
	ClearGmail(ctx context.Context, id int64) error
}

// EmailPurger 断开 Gmail 时清空该用户缓存的邮件
type EmailPurger interface {
	DeleteAllForUser(ctx context.Context, userID int64) (int64, error)
}

// OAuth 是 Gmail OAuth2 流程的两端，Profile 读取授权账户的地址
type OAuth interface {
	AuthURL(state string) (string, error)
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	Profile(ctx context.Context, creds model.GmailCredentials) (string, error)
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

type Result struct {
	Token string           `json:"token"`
	User  model.PublicUser `json:"user"`
}

type Service struct {
	users     UserStore
	emails    EmailPurger
	oauth     OAuth
	jwtSecret string
	tokenTTL  time.Duration
	logger    *zap.Logger
}

func NewService(users UserStore, emails EmailPurger, oauth OAuth, jwtSecret string, tokenTTL time.Duration, logger *zap.Logger) *Service {
	return &Service{
		users:     users,
		emails:    emails,
		oauth:     oauth,
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
		logger:    logger,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register 创建新用户并签发 token
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Result, error) {
	name := strings.TrimSpace(in.Name)
	email := normalizeEmail(in.Email)
	if name == "" || email == "" || in.Password == "" {
		return nil, apperr.Validation("Please provide name, email, and password")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperr.Validation("Please provide a valid email")
	}
	if len(in.Password) < minPasswordLength {
		return nil, apperr.Validation("Password must be at least 6 characters")
	}

	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Internal(err)
	}
	if existing != nil {
		return nil, apperr.Validation("User already exists")
	}

	hash, err := util.HashPassword(in.Password)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	u := &model.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Preferences:  model.DefaultPreferences(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		// 并发注册同一邮箱时由唯一索引兜底
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, apperr.Validation("User already exists")
		}
		return nil, apperr.Internal(err)
	}

	token, err := util.GenerateJWT(u.ID, s.jwtSecret, s.tokenTTL)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	logger.WithUser(ctx, s.logger, u.ID).Info("user registered")
	return &Result{Token: token, User: model.PublicUser{ID: u.ID, Name: u.Name, Email: u.Email}}, nil
}

// Login 校验密码，不区分“用户不存在”和“密码错误”
func (s *Service) Login(ctx context.Context, email, password string) (*Result, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperr.Validation("Please provide email and password")
	}

	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Unauthorized("Invalid credentials")
		}
		return nil, apperr.Internal(err)
	}
	if !util.CheckPassword(password, u.PasswordHash) {
		return nil, apperr.Unauthorized("Invalid credentials")
	}

	token, err := util.GenerateJWT(u.ID, s.jwtSecret, s.tokenTTL)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &Result{Token: token, User: model.PublicUser{ID: u.ID, Name: u.Name, Email: u.Email}}, nil
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

// Me 返回当前用户的公开信息
func (s *Service) Me(ctx context.Context, userID int64) (*model.PublicUser, error) {
	u, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	prefs := u.Preferences
	connected := u.GmailConnected()
	return &model.PublicUser{
		ID:             u.ID,
		Name:           u.Name,
		Email:          u.Email,
		Preferences:    &prefs,
		GmailConnected: &connected,
	}, nil
}

// PreferencesPatch 只覆盖请求中出现的字段
type PreferencesPatch struct {
	Theme         *string
	Notifications *bool
}

func (s *Service) UpdatePreferences(ctx context.Context, userID int64, patch PreferencesPatch) (*model.Preferences, error) {
	u, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	prefs := u.Preferences
	if patch.Theme != nil {
		if *patch.Theme != "light" && *patch.Theme != "dark" {
			return nil, apperr.Validation("Theme must be light or dark")
		}
		prefs.Theme = *patch.Theme
	}
	if patch.Notifications != nil {
		prefs.Notifications = *patch.Notifications
	}
	if err := s.users.UpdatePreferences(ctx, userID, prefs); err != nil {
		return nil, apperr.Internal(err)
	}
	return &prefs, nil
}

// GmailAuthURL 生成授权地址，state 是绑定当前用户的短期 token
func (s *Service) GmailAuthURL(ctx context.Context, userID int64) (string, error) {
	state, err := util.GenerateJWT(userID, s.jwtSecret, stateTTL)
	if err != nil {
		return "", apperr.Internal(err)
	}
	return s.oauth.AuthURL(state)
}

// ConnectGmail 用授权码换取 token 并保存，同时记录授权账户的地址。
// 读取地址失败时清空记录，由下一次同步重新推导。
func (s *Service) ConnectGmail(ctx context.Context, userID int64, code, state string) error {
	if strings.TrimSpace(code) == "" {
		return apperr.Validation("Authorization code is required")
	}
	if state != "" {
		owner, err := util.ParseJWT(state, s.jwtSecret)
		if err != nil || owner != userID {
			return apperr.Validation("Invalid authorization state")
		}
	}
	if _, err := s.loadUser(ctx, userID); err != nil {
		return err
	}

	tok, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return err
	}
	if err := s.users.UpdateGmailTokens(ctx, userID, tok.AccessToken, tok.RefreshToken); err != nil {
		return apperr.Internal(err)
	}

	log := logger.WithUser(ctx, s.logger, userID)
	account, err := s.oauth.Profile(ctx, model.GmailCredentials{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken})
	if err != nil {
		log.Warn("Failed to read Gmail profile, address left for next sync", zap.Error(err))
		account = ""
	}
	account = normalizeEmail(account)
	if err := s.users.UpdateGmailEmail(ctx, userID, account); err != nil {
		return apperr.Internal(err)
	}
	log.Info("gmail connected",
		zap.String("account", account),
		zap.Bool("refresh_token_issued", tok.RefreshToken != ""))
	return nil
}

// DisconnectGmail 清除凭据、记录的地址以及所有缓存邮件
func (s *Service) DisconnectGmail(ctx context.Context, userID int64) error {
	if err := s.users.ClearGmail(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("User")
		}
		return apperr.Internal(err)
	}
	removed, err := s.emails.DeleteAllForUser(ctx, userID)
	if err != nil {
		return apperr.Internal(err)
	}
	logger.WithUser(ctx, s.logger, userID).Info("gmail disconnected", zap.Int64("emails_removed", removed))
	return nil
}
