package mq

import "time"

// EmailSyncedPayload 邮件同步完成事件的 payload
type EmailSyncedPayload struct {
	UserID      int64     `json:"user_id"`
	Account     string    `json:"account"`
	Fetched     int       `json:"fetched"`
	Inserted    int       `json:"inserted"`
	SwitchedOut int64     `json:"switched_out"`
	Pruned      int64     `json:"pruned"`
	SyncedAt    time.Time `json:"synced_at"`
}

// EmailReplySentPayload 回复发送事件的 payload
type EmailReplySentPayload struct {
	UserID   int64     `json:"user_id"`
	EmailID  int64     `json:"email_id"`
	ThreadID string    `json:"thread_id"`
	SentAt   time.Time `json:"sent_at"`
}
