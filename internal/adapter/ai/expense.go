package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"aimate/internal/model"
)

const (
	classifySystemPrompt = "You are an expense classifier. Classify expenses into one of these categories: food, transport, entertainment, shopping, bills, healthcare, education, travel, other. Return only the category name."
	insightsSystemPrompt = "You are a financial advisor for an Indian user. Analyze expenses and provide actionable budget insights. IMPORTANT: Always use Indian Rupee (INR) currency and the rupee symbol (₹) for every amount. Do NOT use dollars ($). Keep the tone concise and professional."
)

// ClassifyExpense 返回支出分类。出错或结果不在枚举内时返回 other，
// 第二个返回值表示结果是否来自模型。
func (c *Client) ClassifyExpense(ctx context.Context, description string) (model.ExpenseCategory, bool) {
	content, err := c.complete(ctx, chatRequest{
		operation:   "classify_expense",
		system:      classifySystemPrompt,
		user:        fmt.Sprintf("Classify this expense: %q", description),
		temperature: 0.3,
	})
	if err != nil {
		c.logger.Warn("Expense classification failed, using other", zap.Error(err))
		return model.CategoryOther, false
	}

	category := model.ExpenseCategory(strings.Trim(strings.ToLower(strings.TrimSpace(content)), ".\"'"))
	if !category.Valid() {
		return model.CategoryOther, true
	}
	return category, true
}

type expenseSummary struct {
	Amount      float64   `json:"amount"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
}

// BudgetInsights 生成预算分析文本（INR）
func (c *Client) BudgetInsights(ctx context.Context, expenses []model.Expense) (string, error) {
	summary := make([]expenseSummary, 0, len(expenses))
	for _, e := range expenses {
		summary = append(summary, expenseSummary{
			Amount:      e.Amount,
			Category:    string(e.Category),
			Description: e.Description,
			Date:        e.Date,
		})
	}
	body, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", err
	}

	return c.complete(ctx, chatRequest{
		operation: "budget_insights",
		system:    insightsSystemPrompt,
		user: "Analyze these expenses (currency: INR ₹) and provide budget insights. " +
			"When listing amounts, prefix with the rupee symbol (₹). Do not use $ anywhere.\n" + string(body),
		temperature: 0.7,
	})
}
