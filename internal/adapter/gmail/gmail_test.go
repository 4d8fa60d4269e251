package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"aimate/internal/apperr"
	"aimate/internal/model"
	"aimate/pkg/config"
)

func b64(s string) string { return base64.URLEncoding.EncodeToString([]byte(s)) }

type fakeGmail struct {
	messages map[string]map[string]any
	order    []string
	sent     []map[string]any
	failGet  string
	sendCode int
}

func (f *fakeGmail) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	path := strings.TrimPrefix(r.URL.Path, "/gmail/v1/users/me/")
	switch {
	case path == "messages" && r.Method == http.MethodGet:
		var refs []map[string]string
		for _, id := range f.order {
			refs = append(refs, map[string]string{"id": id, "threadId": "t-" + id})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"messages": refs})
	case strings.HasPrefix(path, "messages/") && r.Method == http.MethodGet:
		id := strings.TrimPrefix(path, "messages/")
		if id == f.failGet {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"code":500,"message":"backend error"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(f.messages[id])
	case path == "messages/send":
		if f.sendCode != 0 {
			w.WriteHeader(f.sendCode)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": f.sendCode, "message": "denied"}})
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.sent = append(f.sent, body)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "sent-1"})
	case path == "profile":
		_ = json.NewEncoder(w).Encode(map[string]string{"emailAddress": "me@mail.com"})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestClient(t *testing.T, f *fakeGmail) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	c := NewClient(config.GmailConfig{ClientID: "cid", ClientSecret: "secret"}, zap.NewNop())
	c.endpoint = srv.URL + "/"
	c.httpClient = func(context.Context, model.GmailCredentials) *http.Client { return srv.Client() }
	return c
}

func TestAuthURL(t *testing.T) {
	c := NewClient(config.GmailConfig{ClientID: "cid", ClientSecret: "secret", RedirectURI: "http://localhost:5173/cb"}, zap.NewNop())
	raw, err := c.AuthURL("state-1")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Equal(t, "cid", q.Get("client_id"))
	assert.Contains(t, q.Get("scope"), "gmail.readonly")
	assert.Contains(t, q.Get("scope"), "gmail.send")
	assert.Contains(t, q.Get("scope"), "gmail.modify")
}

func TestAuthURL_NotConfigured(t *testing.T) {
	_, err := NewClient(config.GmailConfig{}, zap.NewNop()).AuthURL("s")
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.True(t, apperr.IsKind(err, apperr.KindAdapterNotConfigured))
}

func TestListRecent(t *testing.T) {
	f := &fakeGmail{
		order: []string{"old", "new", "nodate"},
		messages: map[string]map[string]any{
			"old": {
				"id": "old", "threadId": "t-old", "internalDate": "1700000000000",
				"payload": map[string]any{
					"headers": []map[string]string{{"name": "from", "value": "a@x.com"}, {"name": "TO", "value": "Me <me@mail.com>"}, {"name": "Subject", "value": "Old"}},
					"body":    map[string]any{"data": b64("old body")},
				},
			},
			"new": {
				"id": "new", "threadId": "t-new", "internalDate": "1800000000000",
				"payload": map[string]any{
					"headers": []map[string]string{{"name": "From", "value": "b@x.com"}, {"name": "To", "value": "me@mail.com"}},
					"parts": []map[string]any{
						{"mimeType": "text/html", "body": map[string]any{"data": b64("<p>html</p>")}},
						{"mimeType": "text/plain", "body": map[string]any{"data": b64("plain body")}},
					},
				},
			},
			"nodate": {
				"id": "nodate", "threadId": "t-nodate",
				"payload": map[string]any{
					"headers": []map[string]string{{"name": "Date", "value": "Mon, 02 Jan 2023 15:04:05 +0000"}},
					"parts": []map[string]any{{
						"mimeType": "multipart/alternative",
						"parts":    []map[string]any{{"mimeType": "text/plain", "body": map[string]any{"data": b64("nested")}}},
					}},
				},
			},
		},
	}
	c := newTestClient(t, f)

	msgs, err := c.ListRecent(context.Background(), model.GmailCredentials{RefreshToken: "rt"}, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, "new", msgs[0].ID)
	assert.Equal(t, "plain body", msgs[0].Body)
	assert.Equal(t, "old", msgs[1].ID)
	assert.Equal(t, "a@x.com", msgs[1].From)
	assert.Equal(t, "Me <me@mail.com>", msgs[1].To)
	assert.Equal(t, "old body", msgs[1].Body)
	assert.Equal(t, "t-old", msgs[1].ThreadID)
}

func TestListRecent_DateHeaderFallbackAndNested(t *testing.T) {
	f := &fakeGmail{
		order: []string{"nodate"},
		messages: map[string]map[string]any{
			"nodate": {
				"id": "nodate",
				"payload": map[string]any{
					"headers": []map[string]string{{"name": "Date", "value": "Mon, 02 Jan 2023 15:04:05 +0000"}},
					"parts": []map[string]any{{
						"mimeType": "multipart/alternative",
						"parts":    []map[string]any{{"mimeType": "text/plain", "body": map[string]any{"data": b64("nested")}}},
					}},
				},
			},
		},
	}
	msgs, err := newTestClient(t, f).ListRecent(context.Background(), model.GmailCredentials{}, 20)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.NotNil(t, msgs[0].ReceivedAt)
	assert.Equal(t, 2023, msgs[0].ReceivedAt.Year())
	assert.Equal(t, "nested", msgs[0].Body)
}

func TestListRecent_MessageFailureAbortsAll(t *testing.T) {
	f := &fakeGmail{
		order:    []string{"a", "b"},
		messages: map[string]map[string]any{"a": {"id": "a"}},
		failGet:  "b",
	}
	_, err := newTestClient(t, f).ListRecent(context.Background(), model.GmailCredentials{}, 20)
	assert.ErrorIs(t, err, ErrRequestFailed)
}

func TestBuildRaw(t *testing.T) {
	raw := BuildRaw(Outgoing{From: "me@mail.com", To: "you@x.com", Subject: "Re: Hi", Body: "Thanks!"})
	assert.NotContains(t, raw, "=")
	assert.NotContains(t, raw, "+")
	assert.NotContains(t, raw, "/")

	decoded, err := base64.RawURLEncoding.DecodeString(raw)
	require.NoError(t, err)
	assert.Equal(t, "From: me@mail.com\nTo: you@x.com\nSubject: Re: Hi\nContent-Type: text/plain; charset=utf-8\nMIME-Version: 1.0\n\nThanks!", string(decoded))

	noFrom, _ := base64.RawURLEncoding.DecodeString(BuildRaw(Outgoing{To: "you@x.com", Subject: "S", Body: "B"}))
	assert.True(t, strings.HasPrefix(string(noFrom), "To: you@x.com\n"))
}

func TestBuildRaw_StripsHeaderLineBreaks(t *testing.T) {
	raw := BuildRaw(Outgoing{
		To:      "you@x.com\r\nBcc: victim@evil.com",
		Subject: "Re: Hi\nX-Injected: 1",
		Body:    "line one\nline two",
	})
	decoded, err := base64.RawURLEncoding.DecodeString(raw)
	require.NoError(t, err)

	lines := strings.Split(string(decoded), "\n")
	assert.Equal(t, "To: you@x.com Bcc: victim@evil.com", lines[0])
	assert.Equal(t, "Subject: Re: Hi X-Injected: 1", lines[1])
	for _, l := range lines {
		assert.False(t, strings.HasPrefix(l, "Bcc:"), l)
		assert.False(t, strings.HasPrefix(l, "X-Injected:"), l)
	}
	assert.True(t, strings.HasSuffix(string(decoded), "\n\nline one\nline two"))
}

func TestReplySubject(t *testing.T) {
	assert.Equal(t, "Re: Hello", ReplySubject("Hello"))
	assert.Equal(t, "Re: Hello", ReplySubject("Re: Hello"))
	assert.Equal(t, "Re: RE: Hello", ReplySubject("RE: Hello"))
}

func TestSend_UsesProfileAndThread(t *testing.T) {
	f := &fakeGmail{}
	c := newTestClient(t, f)

	id, err := c.Send(context.Background(), model.GmailCredentials{}, Outgoing{To: "you@x.com", Subject: "Re: Hi", Body: "ok", ThreadID: "t-1"})
	require.NoError(t, err)
	assert.Equal(t, "sent-1", id)
	require.Len(t, f.sent, 1)
	assert.Equal(t, "t-1", f.sent[0]["threadId"])

	decoded, err := base64.RawURLEncoding.DecodeString(f.sent[0]["raw"].(string))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(decoded), "From: me@mail.com\n"))
}

func TestSend_AuthFailure(t *testing.T) {
	f := &fakeGmail{sendCode: http.StatusUnauthorized}
	_, err := newTestClient(t, f).Send(context.Background(), model.GmailCredentials{}, Outgoing{From: "me@mail.com", To: "a@b.c"})
	assert.ErrorIs(t, err, ErrAuthFailed)
	assert.Equal(t, "Gmail authentication failed. Please reconnect your Gmail account.", apperr.From(err).Message)
}

func TestIsProviderFault(t *testing.T) {
	assert.True(t, isProviderFault(&googleapi.Error{Code: http.StatusServiceUnavailable}))
	assert.True(t, isProviderFault(errors.New("dial tcp: connection refused")))
	assert.False(t, isProviderFault(&googleapi.Error{Code: http.StatusUnauthorized}))
	assert.False(t, isProviderFault(&googleapi.Error{Code: http.StatusBadRequest}))
	assert.False(t, isProviderFault(&oauth2.RetrieveError{}))
	assert.False(t, isProviderFault(context.Canceled))
}
