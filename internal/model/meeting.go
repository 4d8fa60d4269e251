package model

import "time"

type ActionItemStatus string

const (
	ActionPending    ActionItemStatus = "pending"
	ActionInProgress ActionItemStatus = "in-progress"
	ActionCompleted  ActionItemStatus = "completed"
)

func (s ActionItemStatus) Valid() bool {
	switch s {
	case ActionPending, ActionInProgress, ActionCompleted:
		return true
	}
	return false
}

type ActionItem struct {
	ID              string           `json:"id"`
	Description     string           `json:"description"`
	AssignedTo      string           `json:"assignedTo"`
	DueDate         *time.Time       `json:"dueDate"`
	Status          ActionItemStatus `json:"status"`
	ConvertedToTask bool             `json:"convertedToTask"`
}

type Meeting struct {
	ID            int64        `json:"id"`
	UserID        int64        `json:"user"`
	Title         string       `json:"title"`
	AudioFileURL  string       `json:"audioFileUrl"`
	Transcription string       `json:"transcription"`
	Summary       string       `json:"summary"`
	KeyPoints     []string     `json:"keyPoints"`
	ActionItems   []ActionItem `json:"actionItems"`
	Participants  []string     `json:"participants"`
	Date          time.Time    `json:"date"`
	Duration      int          `json:"duration"`
	IsAIGenerated bool         `json:"isAIGenerated"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// FindActionItem returns the index of the action item with the given id, or -1.
func (m *Meeting) FindActionItem(id string) int {
	for i := range m.ActionItems {
		if m.ActionItems[i].ID == id {
			return i
		}
	}
	return -1
}
