package stt

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"aimate/internal/apperr"
	"aimate/pkg/circuitbreaker"
)

func newTranscriber(t *testing.T, handler http.HandlerFunc) (*Transcriber, string) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := openai.DefaultConfig("sk-test")
	cfg.BaseURL = srv.URL + "/v1"
	dir := t.TempDir()
	tr := NewTranscriber(openai.NewClientWithConfig(cfg), 5*time.Second, zap.NewNop()).WithTempDir(dir)
	return tr, dir
}

func assertDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, ".._.._etc_passwd.mp3", SanitizeFilename("../../etc/passwd.mp3"))
	assert.Equal(t, "my_meeting__1_.m4a", SanitizeFilename("my meeting (1).m4a"))
}

func TestCheckFormat(t *testing.T) {
	assert.NoError(t, CheckFormat("a.MP3", ""))
	assert.NoError(t, CheckFormat("blob", "audio/webm"))
	assert.NoError(t, CheckFormat("blob", "application/octet-stream"))

	err := CheckFormat("notes.txt", "text/plain")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestTranscribe_EmptyAudio(t *testing.T) {
	tr := NewTranscriber(nil, 0, zap.NewNop())
	_, err := tr.Transcribe(context.Background(), nil, "a.mp3", "audio/mpeg")
	assert.ErrorIs(t, err, ErrEmptyAudio)
}

func TestTranscribe_NotConfigured(t *testing.T) {
	tr := NewTranscriber(nil, 0, zap.NewNop())
	_, err := tr.Transcribe(context.Background(), []byte("abc"), "a.mp3", "audio/mpeg")
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.True(t, apperr.IsKind(err, apperr.KindAdapterNotConfigured))
}

func TestTranscribe_Success(t *testing.T) {
	var gotModel, gotFormat, gotLang string
	var gotAudio []byte
	tr, dir := newTranscriber(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotModel = r.FormValue("model")
		gotFormat = r.FormValue("response_format")
		gotLang = r.FormValue("language")
		f, _, err := r.FormFile("file")
		require.NoError(t, err)
		gotAudio, _ = io.ReadAll(f)
		_, _ = w.Write([]byte("  hello team, let's start.  \n"))
	})

	text, err := tr.Transcribe(context.Background(), []byte("RIFFdata"), "standup.wav", "audio/wav")
	require.NoError(t, err)
	assert.Equal(t, "hello team, let's start.", text)
	assert.Equal(t, "whisper-1", gotModel)
	assert.Equal(t, "text", gotFormat)
	assert.Equal(t, "en", gotLang)
	assert.Equal(t, []byte("RIFFdata"), gotAudio)
	assertDirEmpty(t, dir)
}

func TestTranscribe_BlankResult(t *testing.T) {
	tr, dir := newTranscriber(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("   "))
	})

	_, err := tr.Transcribe(context.Background(), []byte("x"), "a.ogg", "")
	assert.ErrorIs(t, err, ErrTranscriptionEmpty)
	assertDirEmpty(t, dir)
}

func TestTranscribe_ProviderError(t *testing.T) {
	tr, dir := newTranscriber(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	})

	_, err := tr.Transcribe(context.Background(), []byte("x"), "a.flac", "")
	assert.True(t, apperr.IsKind(err, apperr.KindAdapterFailure))
	assertDirEmpty(t, dir)
}

func TestTranscribe_BreakerOpensOnRepeatedProviderErrors(t *testing.T) {
	calls := 0
	tr, _ := newTranscriber(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":{"message":"upstream","type":"server_error"}}`))
	})

	threshold := circuitbreaker.DefaultConfig().FailureThreshold
	for i := 0; i < threshold; i++ {
		_, err := tr.Transcribe(context.Background(), []byte("x"), "a.mp3", "audio/mpeg")
		require.Error(t, err)
	}

	_, err := tr.Transcribe(context.Background(), []byte("x"), "a.mp3", "audio/mpeg")
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitBreakerOpen)
	assert.True(t, apperr.IsKind(err, apperr.KindAdapterFailure))
	assert.Equal(t, threshold, calls)
}

func TestTranscribe_ClientErrorsDoNotTripBreaker(t *testing.T) {
	calls := 0
	tr, _ := newTranscriber(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad audio","type":"invalid_request_error"}}`))
	})

	for i := 0; i < circuitbreaker.DefaultConfig().FailureThreshold+2; i++ {
		_, err := tr.Transcribe(context.Background(), []byte("x"), "a.mp3", "audio/mpeg")
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	}
	assert.Equal(t, circuitbreaker.DefaultConfig().FailureThreshold+2, calls)
}

func TestWithBreaker_SharesState(t *testing.T) {
	shared := circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig())
	tr := NewTranscriber(nil, 0, zap.NewNop()).WithBreaker(shared)
	assert.Same(t, shared, tr.breaker)

	assert.NotNil(t, NewTranscriber(nil, 0, zap.NewNop()).WithBreaker(nil).breaker)
}
