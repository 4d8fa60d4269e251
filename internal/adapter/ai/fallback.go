package ai

import (
	"strings"
)

const (
	briefTranscriptLimit = 50
	transcriptLimit      = 15000
	summaryExcerptLimit  = 500
)

// briefNotes 用于过短的转写文本，不调用模型
func briefNotes(transcript string) *MeetingNotes {
	return &MeetingNotes{
		Summary:     "Brief meeting transcription: " + transcript,
		KeyPoints:   []string{transcript},
		ActionItems: []NoteItem{},
		Fallback:    true,
	}
}

// transcriptFallback 模型输出无法解析时的摘要
func transcriptFallback(transcript string) *MeetingNotes {
	summary := "Meeting transcription: " + truncateRunes(transcript, summaryExcerptLimit)
	if len([]rune(transcript)) > summaryExcerptLimit {
		summary += "..."
	}

	points := []string{}
	sentences := strings.Split(transcript, ".")
	if len(sentences) > 5 {
		sentences = sentences[:5]
	}
	for _, s := range sentences {
		if s = strings.TrimSpace(s); len(s) > 10 {
			points = append(points, s)
		}
	}
	return &MeetingNotes{Summary: summary, KeyPoints: points, ActionItems: []NoteItem{}, Fallback: true}
}

func participantsLine(participants []string) string {
	if len(participants) == 0 {
		return ""
	}
	return "\nParticipants: " + strings.Join(participants, ", ")
}

// descriptionFallback 会议描述生成失败时的模板
func descriptionFallback(title string, participants []string) *MeetingNotes {
	return &MeetingNotes{
		Summary: "Meeting to discuss: " + title + participantsLine(participants),
		KeyPoints: []string{
			"Review current status",
			"Discuss key challenges",
			"Plan next steps",
			"Assign responsibilities",
		},
		ActionItems: []NoteItem{
			{Description: "Document discussion points"},
			{Description: "Follow up on action items"},
			{Description: "Schedule next meeting if needed"},
		},
		Fallback: true,
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// promptTranscript 超长转写截断后附加标记
func promptTranscript(transcript string) string {
	if len([]rune(transcript)) > transcriptLimit {
		return truncateRunes(transcript, transcriptLimit) + "... (truncated)"
	}
	return transcript
}
