package gmail

import (
	"context"
	"encoding/base64"
	"net/mail"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	gmailapi "google.golang.org/api/gmail/v1"

	"aimate/internal/model"
	"aimate/pkg/metrics"
	"aimate/pkg/otel"
)

const me = "me"

// ListRecent 拉取最新的 n 封邮件（format=full）。任何一封获取失败都会让整个调用失败。
func (c *Client) ListRecent(ctx context.Context, creds model.GmailCredentials, n int) (msgs []model.RemoteMessage, err error) {
	if !c.Configured() {
		return nil, notConfigured()
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ctx, span := otel.AdapterSpan(ctx, adapterName, "list_recent")
	start := time.Now()
	defer func() {
		otel.EndSpan(span, err)
		metrics.RecordAdapterCallLatency(adapterName, "list_recent", status(err), time.Since(start))
	}()

	svc, err := c.service(ctx, creds)
	if err != nil {
		return nil, err
	}

	err = c.breaker.ExecuteContext(ctx, func(ctx context.Context) error {
		list, err := svc.Users.Messages.List(me).MaxResults(int64(n)).Context(ctx).Do()
		if err != nil {
			c.logger.Warn("Gmail list failed", zap.Error(err))
			return err
		}

		msgs = make([]model.RemoteMessage, 0, len(list.Messages))
		for _, ref := range list.Messages {
			full, err := svc.Users.Messages.Get(me, ref.Id).Format("full").Context(ctx).Do()
			if err != nil {
				c.logger.Warn("Gmail get failed", zap.String("message_id", ref.Id), zap.Error(err))
				return err
			}
			msgs = append(msgs, parseMessage(full))
		}
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}

	sortNewestFirst(msgs)
	if len(msgs) > n {
		msgs = msgs[:n]
	}
	return msgs, nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func parseMessage(m *gmailapi.Message) model.RemoteMessage {
	msg := model.RemoteMessage{ID: m.Id, ThreadID: m.ThreadId}
	if m.Payload == nil {
		return msg
	}

	msg.From = header(m.Payload.Headers, "From")
	msg.To = header(m.Payload.Headers, "To")
	msg.Subject = header(m.Payload.Headers, "Subject")
	msg.Body = extractBody(m.Payload)

	if m.InternalDate > 0 {
		t := time.UnixMilli(m.InternalDate).UTC()
		msg.ReceivedAt = &t
	} else if date := header(m.Payload.Headers, "Date"); date != "" {
		if t, err := mail.ParseDate(date); err == nil {
			msg.ReceivedAt = &t
		}
	}
	return msg
}

// header 大小写不敏感地取邮件头
func header(headers []*gmailapi.MessagePartHeader, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// extractBody 优先使用 payload 本身的正文，其次是第一个 text/plain 部分
func extractBody(p *gmailapi.MessagePart) string {
	if p.Body != nil && p.Body.Data != "" {
		return decodeBase64URL(p.Body.Data)
	}
	for _, part := range p.Parts {
		if part.MimeType == "text/plain" && part.Body != nil && part.Body.Data != "" {
			return decodeBase64URL(part.Body.Data)
		}
	}
	for _, part := range p.Parts {
		if strings.HasPrefix(part.MimeType, "multipart/") {
			if body := extractBody(part); body != "" {
				return body
			}
		}
	}
	return ""
}

func decodeBase64URL(data string) string {
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(b)
	}
	if b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "=")); err == nil {
		return string(b)
	}
	return ""
}

func sortNewestFirst(msgs []model.RemoteMessage) {
	sort.SliceStable(msgs, func(i, j int) bool {
		a, b := msgs[i].ReceivedAt, msgs[j].ReceivedAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
}
