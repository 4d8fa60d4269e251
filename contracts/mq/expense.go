package mq

import "time"

type ExpenseCreatedPayload struct {
	UserID       int64     `json:"user_id"`
	ExpenseID    int64     `json:"expense_id"`
	Amount       float64   `json:"amount"`
	Category     string    `json:"category"`
	AIClassified bool      `json:"ai_classified"`
	Date         time.Time `json:"date"`
}
