package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const (
	summarySystemPrompt     = "You are a meeting assistant that summarizes meetings and extracts key information. You MUST return only valid JSON, no additional text or markdown."
	descriptionSystemPrompt = "You are a professional meeting coordinator that creates detailed meeting descriptions, agendas, and action items based on meeting titles. You MUST return only valid JSON, no additional text."
)

// SummarizeTranscript 从转写文本提取摘要、要点和动作项。
// 模型输出无法解析时退回模板摘要，调用本身失败时返回错误。
func (c *Client) SummarizeTranscript(ctx context.Context, transcript string) (*MeetingNotes, error) {
	trimmed := strings.TrimSpace(transcript)
	if trimmed == "" {
		return nil, malformed("Transcription is empty or invalid", nil)
	}
	if len([]rune(trimmed)) < briefTranscriptLimit {
		return briefNotes(transcript), nil
	}

	prompt := fmt.Sprintf(`Analyze the following meeting transcription and provide:
1. A concise summary (2-3 paragraphs)
2. Key points as a bulleted list (array of strings)
3. Action items mentioned (if any) as an array of strings

Transcription: %s

Return ONLY a valid JSON object with this exact structure:
{
  "summary": "summary text here",
  "keyPoints": ["point 1", "point 2"],
  "actionItems": ["action 1", "action 2"]
}`, promptTranscript(transcript))

	content, err := c.complete(ctx, chatRequest{
		operation:   "summarize_transcript",
		system:      summarySystemPrompt,
		user:        prompt,
		temperature: 0.5,
		jsonObject:  true,
	})
	if err != nil {
		if !errors.Is(err, ErrMalformedResponse) {
			return nil, err
		}
		content = ""
	}

	notes, err := decodeNotes(content)
	if err != nil {
		c.logger.Warn("Unparseable meeting summary, using fallback", zap.Int("content_length", len(content)))
		return transcriptFallback(transcript), nil
	}
	if notes.Summary == "" {
		notes.Summary = "No summary available"
	}
	return notes, nil
}

// DescribeMeeting 根据标题和参与者生成会议描述、议程和动作项
func (c *Client) DescribeMeeting(ctx context.Context, title string, participants []string) (*MeetingNotes, error) {
	prompt := fmt.Sprintf(`Based on the meeting title %q%s, generate:
1. A detailed description of what this meeting should cover (2-3 paragraphs)
2. A list of 4-6 key agenda items or discussion points
3. 3-5 suggested action items or outcomes for this meeting

Return ONLY a valid JSON object with this exact structure:
{
  "summary": "detailed description text",
  "keyPoints": ["agenda item 1", "agenda item 2", "..."],
  "actionItems": ["action 1", "action 2", "..."]
}`, title, participantsLine(participants))

	content, err := c.complete(ctx, chatRequest{
		operation:   "describe_meeting",
		system:      descriptionSystemPrompt,
		user:        prompt,
		temperature: 0.7,
		jsonObject:  true,
	})
	if err != nil {
		if !errors.Is(err, ErrMalformedResponse) {
			return nil, err
		}
		content = ""
	}

	notes, err := decodeNotes(content)
	if err != nil {
		c.logger.Warn("Unparseable meeting description, using fallback", zap.String("title", title))
		return descriptionFallback(title, participants), nil
	}
	if notes.Summary == "" {
		notes.Summary = "Meeting: " + title
	}
	return notes, nil
}
