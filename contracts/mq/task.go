package mq

import "time"

type TaskItem struct {
	TaskID   int64      `json:"task_id"`
	Title    string     `json:"title"`
	Priority string     `json:"priority"`
	DueDate  *time.Time `json:"due_date,omitempty"`
}

// TaskBulkCreatedPayload 从目标批量生成任务后发布
type TaskBulkCreatedPayload struct {
	UserID int64      `json:"user_id"`
	Goal   string     `json:"goal"`
	Tasks  []TaskItem `json:"tasks"`
}
