package ai

import (
	"context"
)

const replySystemPrompt = "You are an email assistant. Generate professional, concise email replies. Keep replies under 150 words unless the situation requires more detail."

// DraftEmailReply 为邮件正文生成回复草稿，extra 为可选的补充说明
func (c *Client) DraftEmailReply(ctx context.Context, body, extra string) (string, error) {
	prompt := "Generate a reply to this email:\n\n" + body + "\n\n"
	if extra != "" {
		prompt += "Context: " + extra
	}

	reply, err := c.complete(ctx, chatRequest{
		operation:   "draft_reply",
		system:      replySystemPrompt,
		user:        prompt,
		temperature: 0.7,
	})
	if err != nil {
		return "", err
	}
	if reply == "" {
		return "", malformed("AI returned an empty reply. Please try again.", nil)
	}
	return reply, nil
}
