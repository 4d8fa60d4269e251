package mq

type MeetingTranscribedPayload struct {
	UserID           int64 `json:"user_id"`
	MeetingID        int64 `json:"meeting_id"`
	TranscriptLength int   `json:"transcript_length"`
	ActionItems      int   `json:"action_items"`
	Summarized       bool  `json:"summarized"`
}
