// Package stt transcribes meeting audio with the OpenAI Whisper API.
package stt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"aimate/internal/apperr"
	"aimate/pkg/circuitbreaker"
	"aimate/pkg/metrics"
	"aimate/pkg/otel"
)

const (
	adapterName  = "whisper"
	MaxAudioSize = 25 << 20
)

var (
	ErrEmptyAudio         = errors.New("audio buffer is empty")
	ErrUnsupportedFormat  = errors.New("unsupported audio format")
	ErrTranscriptionEmpty = errors.New("transcription returned empty result")
	ErrNotConfigured      = errors.New("speech-to-text not configured")
)

var (
	allowedMIME = map[string]bool{
		"audio/mpeg": true, "audio/mp3": true, "audio/wav": true, "audio/x-wav": true,
		"audio/m4a": true, "audio/x-m4a": true, "audio/webm": true, "audio/ogg": true,
		"audio/opus": true, "audio/flac": true, "audio/aac": true, "audio/x-aac": true,
		"application/octet-stream": true,
	}
	AllowedExtensions = []string{".mp3", ".wav", ".m4a", ".webm", ".ogg", ".opus", ".flac", ".aac"}

	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
)

// SanitizeFilename 替换路径和特殊字符
func SanitizeFilename(name string) string {
	return unsafeChars.ReplaceAllString(name, "_")
}

// CheckFormat 文件扩展名或 MIME 任一在白名单内即可
func CheckFormat(filename, mimeType string) error {
	if allowedMIME[strings.ToLower(mimeType)] {
		return nil
	}
	ext := strings.ToLower(filepath.Ext(filename))
	for _, allowed := range AllowedExtensions {
		if ext == allowed {
			return nil
		}
	}
	return apperr.Wrap(apperr.KindValidation,
		"Invalid file type. Allowed types: "+strings.Join(AllowedExtensions, ", "), ErrUnsupportedFormat)
}

type Transcriber struct {
	api     *openai.Client
	timeout time.Duration
	tempDir string
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewTranscriber api 为 nil 时所有调用返回未配置错误
func NewTranscriber(api *openai.Client, timeout time.Duration, logger *zap.Logger) *Transcriber {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	cfg := circuitbreaker.DefaultConfig()
	cfg.IsFailure = isProviderFault
	return &Transcriber{
		api:     api,
		timeout: timeout,
		breaker: circuitbreaker.NewCircuitBreaker(cfg),
		logger:  logger,
	}
}

// WithBreaker 与 chat 调用共用同一个 OpenAI 熔断器
func (t *Transcriber) WithBreaker(cb *circuitbreaker.CircuitBreaker) *Transcriber {
	if cb != nil {
		t.breaker = cb
	}
	return t
}

// WithTempDir 指定临时文件目录，默认使用 os.TempDir
func (t *Transcriber) WithTempDir(dir string) *Transcriber {
	t.tempDir = dir
	return t
}

// Transcribe 返回去掉首尾空白的转写文本；临时文件在任何情况下都会删除
func (t *Transcriber) Transcribe(ctx context.Context, audio []byte, filename, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", apperr.Wrap(apperr.KindValidation, "Audio file is empty or corrupted", ErrEmptyAudio)
	}
	if err := CheckFormat(filename, mimeType); err != nil {
		return "", err
	}
	if t.api == nil {
		return "", apperr.Wrap(apperr.KindAdapterNotConfigured,
			"OpenAI API key is not configured. Please set OPENAI_API_KEY.", ErrNotConfigured)
	}

	sanitized := SanitizeFilename(filename)
	if filepath.Ext(sanitized) == "" {
		sanitized += ".mp3"
	}
	// Whisper 根据文件扩展名识别格式，临时文件名保留原扩展名
	tmp, err := os.CreateTemp(t.tempDir, "aimate_audio_*_"+sanitized)
	if err != nil {
		return "", fmt.Errorf("create temp audio file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			t.logger.Warn("Failed to remove temp audio file", zap.String("path", tmpPath), zap.Error(err))
		}
	}()

	_, writeErr := tmp.Write(audio)
	closeErr := tmp.Close()
	if err := errors.Join(writeErr, closeErr); err != nil {
		return "", fmt.Errorf("write temp audio file: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	ctx, span := otel.AdapterSpan(ctx, adapterName, "transcribe")

	start := time.Now()
	var resp openai.AudioResponse
	err = t.breaker.ExecuteContext(ctx, func(ctx context.Context) error {
		var callErr error
		resp, callErr = t.api.CreateTranscription(ctx, openai.AudioRequest{
			Model:    openai.Whisper1,
			FilePath: tmpPath,
			Language: "en",
			Format:   openai.AudioResponseFormatText,
		})
		return callErr
	})
	otel.EndSpan(span, err)

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RecordAdapterCallLatency(adapterName, "transcribe", status, time.Since(start))

	if err != nil {
		t.logger.Error("Whisper transcription failed", zap.String("filename", sanitized), zap.Int("size", len(audio)), zap.Error(err))
		return "", classify(err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", apperr.Wrap(apperr.KindAdapterMalformed, "Transcription returned empty result", ErrTranscriptionEmpty)
	}
	return text, nil
}

// isProviderFault 只有服务端错误、429 和网络错误计入熔断
func isProviderFault(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode >= 500 || apiErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode >= 500 || reqErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	return !errors.Is(err, context.Canceled)
}

func classify(err error) error {
	if errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen) {
		return apperr.Wrap(apperr.KindAdapterFailure, "AI service is temporarily unavailable. Please try again later.", err)
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusUnauthorized:
			return apperr.Wrap(apperr.KindAdapterNotConfigured, "AI service unavailable. Check that the OpenAI API key is valid.", err)
		case apiErr.HTTPStatusCode == http.StatusRequestEntityTooLarge:
			return apperr.Wrap(apperr.KindValidation, "Audio file is too large. Maximum size is 25MB.", err)
		case apiErr.HTTPStatusCode == http.StatusBadRequest:
			return apperr.Wrap(apperr.KindValidation, "Invalid audio file format. Supported formats: MP3, WAV, M4A, WebM.", errors.Join(ErrUnsupportedFormat, err))
		}
	}
	return apperr.Wrap(apperr.KindAdapterFailure, "Failed to transcribe audio file", err)
}
