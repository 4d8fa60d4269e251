package model

import "time"

type EmailStatus string

const (
	EmailDraft  EmailStatus = "draft"
	EmailSent   EmailStatus = "sent"
	EmailFailed EmailStatus = "failed"
)

func (s EmailStatus) Valid() bool {
	switch s {
	case EmailDraft, EmailSent, EmailFailed:
		return true
	}
	return false
}

type Email struct {
	ID             int64       `json:"id"`
	UserID         int64       `json:"user"`
	GmailEmail     string      `json:"gmailEmail"`
	GmailMessageID string      `json:"gmailMessageId"`
	ThreadID       string      `json:"threadId"`
	From           string      `json:"from"`
	To             string      `json:"to"`
	Subject        string      `json:"subject"`
	OriginalBody   string      `json:"originalBody"`
	AIReply        *string     `json:"aiReply"`
	SentReply      *string     `json:"sentReply"`
	Status         EmailStatus `json:"status"`
	ReceivedAt     *time.Time  `json:"receivedAt"`
	SentAt         *time.Time  `json:"sentAt"`
	AIGenerated    bool        `json:"aiGenerated"`
	Tags           []string    `json:"tags"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

// RemoteMessage is a message as returned by the mailbox provider.
type RemoteMessage struct {
	ID         string
	ThreadID   string
	From       string
	To         string
	Subject    string
	Body       string
	ReceivedAt *time.Time
}

type EmailFilter struct {
	Account string
	Status  EmailStatus
	Limit   int
	Skip    int
}

type EmailPatch struct {
	AIReply     *string
	SentReply   *string
	Status      *EmailStatus
	Tags        *[]string
	AIGenerated *bool
	SentAt      *time.Time
}
