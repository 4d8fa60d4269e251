// Package ai wraps the OpenAI chat completion API for the productivity features:
// task planning, expense classification, budget insights, meeting notes and email drafts.
package ai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"aimate/internal/apperr"
	"aimate/pkg/circuitbreaker"
	"aimate/pkg/config"
	"aimate/pkg/metrics"
	"aimate/pkg/otel"
)

const adapterName = "openai"

var (
	ErrAdapterUnavailable = errors.New("ai adapter unavailable")
	ErrProviderFailure    = errors.New("ai provider request failed")
	ErrMalformedResponse  = errors.New("ai response malformed")
)

type Client struct {
	api     *openai.Client
	model   string
	timeout time.Duration
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewClient 创建 AI 客户端；未配置 API key 时所有调用返回 ErrAdapterUnavailable
func NewClient(cfg config.OpenAIConfig, logger *zap.Logger) *Client {
	c := &Client{
		model:   cfg.Model,
		timeout: cfg.Timeout,
		logger:  logger,
	}
	if c.model == "" {
		c.model = openai.GPT4oMini
	}
	if c.timeout <= 0 {
		c.timeout = 60 * time.Second
	}

	breakerCfg := circuitbreaker.DefaultConfig()
	breakerCfg.IsFailure = isProviderFault
	breakerCfg.OnStateChange = func(from, to circuitbreaker.State) {
		logger.Warn("OpenAI circuit breaker state changed",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
	c.breaker = circuitbreaker.NewCircuitBreaker(breakerCfg)

	if cfg.APIKey == "" {
		logger.Warn("OPENAI_API_KEY not set, AI features disabled")
		return c
	}
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	c.api = openai.NewClientWithConfig(apiCfg)
	return c
}

func (c *Client) Configured() bool { return c.api != nil }

// API 返回底层 openai 客户端，供语音转写复用同一凭证
func (c *Client) API() *openai.Client { return c.api }

// Breaker 供同一 OpenAI 账户下的其他调用（语音转写）共用
func (c *Client) Breaker() *circuitbreaker.CircuitBreaker { return c.breaker }

type chatRequest struct {
	operation   string
	system      string
	user        string
	temperature float32
	jsonObject  bool
}

// complete 执行一次 chat completion，返回去掉首尾空白的内容
func (c *Client) complete(ctx context.Context, req chatRequest) (string, error) {
	if c.api == nil {
		return "", notConfigured()
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	ctx, span := otel.AdapterSpan(ctx, adapterName, req.operation)

	request := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.system},
			{Role: openai.ChatMessageRoleUser, Content: req.user},
		},
		Temperature: req.temperature,
	}
	if req.jsonObject {
		request.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	start := time.Now()
	var resp openai.ChatCompletionResponse
	err := c.breaker.ExecuteContext(ctx, func(ctx context.Context) error {
		var callErr error
		resp, callErr = c.api.CreateChatCompletion(ctx, request)
		return callErr
	})
	otel.EndSpan(span, err)

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RecordAdapterCallLatency(adapterName, req.operation, status, time.Since(start))

	if err != nil {
		c.logger.Error("OpenAI request failed", zap.String("operation", req.operation), zap.Error(err))
		return "", c.classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", malformed("AI returned no choices", nil)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (c *Client) classify(err error) error {
	if errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen) {
		return apperr.Wrap(apperr.KindAdapterFailure, "AI service is temporarily unavailable. Please try again later.", errors.Join(ErrProviderFailure, err))
	}
	if status := statusCode(err); status == http.StatusUnauthorized || status == http.StatusForbidden {
		return apperr.Wrap(apperr.KindAdapterNotConfigured, "AI service unavailable. Check that the OpenAI API key is valid.", errors.Join(ErrAdapterUnavailable, err))
	}
	if status := statusCode(err); status == http.StatusNotFound {
		return apperr.Wrap(apperr.KindAdapterFailure, "OpenAI model error. Please check your API key has access to "+c.model+".", errors.Join(ErrProviderFailure, err))
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(apperr.KindAdapterFailure, "AI service timed out. Please try again.", errors.Join(ErrProviderFailure, err))
	}
	return apperr.Wrap(apperr.KindAdapterFailure, "AI service request failed", errors.Join(ErrProviderFailure, err))
}

func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

// isProviderFault 只有服务端错误和网络错误计入熔断
func isProviderFault(err error) bool {
	status := statusCode(err)
	if status == 0 {
		return !errors.Is(err, context.Canceled)
	}
	return status >= 500 || status == http.StatusTooManyRequests
}

func notConfigured() error {
	return apperr.Wrap(apperr.KindAdapterNotConfigured,
		"OpenAI API key is not configured. Please set OPENAI_API_KEY.", ErrAdapterUnavailable)
}

func malformed(message string, err error) error {
	if err != nil {
		err = errors.Join(ErrMalformedResponse, err)
	} else {
		err = ErrMalformedResponse
	}
	return apperr.Wrap(apperr.KindAdapterMalformed, message, err)
}
