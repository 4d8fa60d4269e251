// Package gmail talks to the Gmail REST API on behalf of a connected user.
package gmail

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"aimate/internal/apperr"
	"aimate/internal/model"
	"aimate/pkg/circuitbreaker"
	"aimate/pkg/config"
)

const adapterName = "gmail"

var Scopes = []string{
	gmailapi.GmailReadonlyScope,
	gmailapi.GmailSendScope,
	gmailapi.GmailModifyScope,
}

var (
	ErrNotConfigured  = errors.New("gmail oauth client not configured")
	ErrAuthFailed     = errors.New("gmail authentication failed")
	ErrInvalidRequest = errors.New("gmail rejected the request")
	ErrRequestFailed  = errors.New("gmail request failed")
)

type Client struct {
	oauth   *oauth2.Config
	timeout time.Duration
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger

	// 测试时替换
	endpoint   string
	httpClient func(ctx context.Context, creds model.GmailCredentials) *http.Client
}

func NewClient(cfg config.GmailConfig, logger *zap.Logger) *Client {
	c := &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       Scopes,
			Endpoint:     google.Endpoint,
		},
		timeout: cfg.Timeout,
		logger:  logger,
	}
	if c.timeout <= 0 {
		c.timeout = 30 * time.Second
	}
	c.httpClient = c.oauthHTTPClient

	breakerCfg := circuitbreaker.DefaultConfig()
	breakerCfg.IsFailure = isProviderFault
	breakerCfg.OnStateChange = func(from, to circuitbreaker.State) {
		logger.Warn("Gmail circuit breaker state changed",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
	c.breaker = circuitbreaker.NewCircuitBreaker(breakerCfg)

	if !c.Configured() {
		logger.Warn("GMAIL_CLIENT_ID / GMAIL_CLIENT_SECRET not set, Gmail features disabled")
	}
	return c
}

func (c *Client) Configured() bool {
	return c.oauth.ClientID != "" && c.oauth.ClientSecret != ""
}

// AuthURL 返回授权页面地址，要求离线访问并强制显示同意页以拿到 refresh token
func (c *Client) AuthURL(state string) (string, error) {
	if !c.Configured() {
		return "", notConfigured()
	}
	return c.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent")), nil
}

// Exchange 用授权码换取令牌
func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if !c.Configured() {
		return nil, notConfigured()
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		c.logger.Warn("Gmail code exchange failed", zap.Error(err))
		return nil, apperr.Wrap(apperr.KindValidation, "Failed to connect Gmail. The authorization code may be invalid or expired.", errors.Join(ErrAuthFailed, err))
	}
	return tok, nil
}

// oauthHTTPClient 存储的令牌没有过期时间，标记为已过期让 refresh token 负责续期
func (c *Client) oauthHTTPClient(ctx context.Context, creds model.GmailCredentials) *http.Client {
	tok := &oauth2.Token{AccessToken: creds.AccessToken, RefreshToken: creds.RefreshToken}
	if creds.RefreshToken != "" {
		tok.Expiry = time.Now().Add(-time.Minute)
	}
	return oauth2.NewClient(ctx, c.oauth.TokenSource(ctx, tok))
}

func (c *Client) service(ctx context.Context, creds model.GmailCredentials) (*gmailapi.Service, error) {
	opts := []option.ClientOption{option.WithHTTPClient(c.httpClient(ctx, creds))}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}
	svc, err := gmailapi.NewService(ctx, opts...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "Failed to initialise Gmail client", err)
	}
	return svc, nil
}

func notConfigured() error {
	return apperr.Wrap(apperr.KindAdapterNotConfigured,
		"Gmail integration is not configured. Please set GMAIL_CLIENT_ID and GMAIL_CLIENT_SECRET.", ErrNotConfigured)
}

// isProviderFault 只有 Gmail 5xx 和网络错误计入熔断，授权与参数错误属于用户侧
func isProviderFault(err error) bool {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return gErr.Code >= http.StatusInternalServerError
	}
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

// classify 将 Gmail API 错误映射为用户可理解的错误
func classify(err error) error {
	var gErr *googleapi.Error
	var rErr *oauth2.RetrieveError
	switch {
	case errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen):
		return apperr.Wrap(apperr.KindAdapterFailure, "Gmail is temporarily unavailable. Please try again later.", errors.Join(ErrRequestFailed, err))
	case errors.As(err, &rErr):
		return apperr.Wrap(apperr.KindAdapterFailure, "Gmail authentication failed. Please reconnect your Gmail account.", errors.Join(ErrAuthFailed, err))
	case errors.As(err, &gErr) && (gErr.Code == http.StatusUnauthorized || gErr.Code == http.StatusForbidden):
		return apperr.Wrap(apperr.KindAdapterFailure, "Gmail authentication failed. Please reconnect your Gmail account.", errors.Join(ErrAuthFailed, err))
	case errors.As(err, &gErr) && gErr.Code == http.StatusBadRequest:
		return apperr.Wrap(apperr.KindValidation, "Invalid email format or parameters.", errors.Join(ErrInvalidRequest, err))
	case errors.As(err, &gErr) && gErr.Code == http.StatusTooManyRequests:
		return apperr.Wrap(apperr.KindTooManyRequests, "Gmail rate limit reached. Please try again later.", errors.Join(ErrRequestFailed, err))
	default:
		return apperr.Wrap(apperr.KindAdapterFailure, "Gmail API error", errors.Join(ErrRequestFailed, err))
	}
}
