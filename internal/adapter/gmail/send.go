package gmail

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"go.uber.org/zap"
	gmailapi "google.golang.org/api/gmail/v1"

	"aimate/internal/model"
	"aimate/pkg/metrics"
	"aimate/pkg/otel"
)

// Outgoing 是一封待发送的纯文本回复
type Outgoing struct {
	From     string
	To       string
	Subject  string
	Body     string
	ThreadID string
}

var headerBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// headerValue 去掉换行，远端邮件头不能注入额外的头
func headerValue(v string) string {
	return strings.TrimSpace(headerBreaks.Replace(v))
}

// BuildRaw 生成 RFC 2822 文本并做无填充的 base64url 编码
func BuildRaw(msg Outgoing) string {
	var lines []string
	if from := headerValue(msg.From); from != "" {
		lines = append(lines, "From: "+from)
	}
	lines = append(lines,
		"To: "+headerValue(msg.To),
		"Subject: "+headerValue(msg.Subject),
		"Content-Type: text/plain; charset=utf-8",
		"MIME-Version: 1.0",
		"",
		msg.Body,
	)
	return base64.RawURLEncoding.EncodeToString([]byte(strings.Join(lines, "\n")))
}

// ReplySubject 没有 "Re:" 前缀时补上
func ReplySubject(subject string) string {
	if strings.HasPrefix(subject, "Re:") {
		return subject
	}
	return "Re: " + subject
}

// Send 发送回复，返回 Gmail 消息 id。From 为空时尝试读取账户地址。
func (c *Client) Send(ctx context.Context, creds model.GmailCredentials, msg Outgoing) (id string, err error) {
	if !c.Configured() {
		return "", notConfigured()
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ctx, span := otel.AdapterSpan(ctx, adapterName, "send")
	start := time.Now()
	defer func() {
		otel.EndSpan(span, err)
		metrics.RecordAdapterCallLatency(adapterName, "send", status(err), time.Since(start))
	}()

	svc, err := c.service(ctx, creds)
	if err != nil {
		return "", err
	}

	if msg.From == "" {
		profile, err := svc.Users.GetProfile(me).Context(ctx).Do()
		if err != nil {
			c.logger.Warn("Failed to read Gmail profile, sending without From", zap.Error(err))
		} else {
			msg.From = profile.EmailAddress
		}
	}

	var sent *gmailapi.Message
	err = c.breaker.ExecuteContext(ctx, func(ctx context.Context) error {
		var sendErr error
		sent, sendErr = svc.Users.Messages.Send(me, &gmailapi.Message{
			Raw:      BuildRaw(msg),
			ThreadId: msg.ThreadID,
		}).Context(ctx).Do()
		return sendErr
	})
	if err != nil {
		c.logger.Error("Gmail send failed", zap.String("thread_id", msg.ThreadID), zap.Error(err))
		return "", classify(err)
	}
	return sent.Id, nil
}

// Profile 返回已连接账户的邮箱地址
func (c *Client) Profile(ctx context.Context, creds model.GmailCredentials) (string, error) {
	if !c.Configured() {
		return "", notConfigured()
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	svc, err := c.service(ctx, creds)
	if err != nil {
		return "", err
	}
	profile, err := svc.Users.GetProfile(me).Context(ctx).Do()
	if err != nil {
		return "", classify(err)
	}
	return profile.EmailAddress, nil
}
