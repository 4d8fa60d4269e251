// Package expense 记录支出，按类别汇总，并借助 AI 自动分类与生成预算分析
package expense

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	mqcontracts "aimate/contracts/mq"
	"aimate/internal/apperr"
	"aimate/internal/model"
	"aimate/internal/repository"
	"aimate/pkg/logger"
	"aimate/pkg/metrics"
	"aimate/pkg/mq"
)

const noExpensesMessage = "No expenses found for the selected period."

type Store interface {
	List(ctx context.Context, userID int64, f model.ExpenseFilter) ([]model.Expense, error)
	Get(ctx context.Context, id, userID int64) (*model.Expense, error)
	Create(ctx context.Context, e *model.Expense) error
	Update(ctx context.Context, e *model.Expense) error
	Delete(ctx context.Context, id, userID int64) error
}

// Advisor 提供分类与预算分析
type Advisor interface {
	ClassifyExpense(ctx context.Context, description string) (model.ExpenseCategory, bool)
	BudgetInsights(ctx context.Context, expenses []model.Expense) (string, error)
}

type Service struct {
	store     Store
	advisor   Advisor
	publisher mq.EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(store Store, advisor Advisor, publisher mq.EventPublisher, logger *zap.Logger) *Service {
	return &Service{store: store, advisor: advisor, publisher: publisher, logger: logger, now: time.Now}
}

func notFound(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("Expense")
	}
	return apperr.Internal(err)
}

// Summary 是列表接口附带的汇总
type Summary struct {
	Total      float64                           `json:"total"`
	ByCategory map[model.ExpenseCategory]float64 `json:"byCategory"`
}

func Summarize(expenses []model.Expense) Summary {
	s := Summary{ByCategory: map[model.ExpenseCategory]float64{}}
	for _, e := range expenses {
		s.Total += e.Amount
		s.ByCategory[e.Category] += e.Amount
	}
	return s
}

func (s *Service) List(ctx context.Context, userID int64, f model.ExpenseFilter) ([]model.Expense, Summary, error) {
	if f.Category != "" && !f.Category.Valid() {
		return nil, Summary{}, apperr.Validation("Invalid expense category")
	}
	if f.StartDate != nil && f.EndDate != nil && f.EndDate.Before(*f.StartDate) {
		return nil, Summary{}, apperr.Validation("endDate must not be before startDate")
	}
	expenses, err := s.store.List(ctx, userID, f)
	if err != nil {
		return nil, Summary{}, apperr.Internal(err)
	}
	return expenses, Summarize(expenses), nil
}

func (s *Service) Get(ctx context.Context, userID, id int64) (*model.Expense, error) {
	e, err := s.store.Get(ctx, id, userID)
	if err != nil {
		return nil, notFound(err)
	}
	return e, nil
}

type CreateInput struct {
	Amount        *float64
	Description   string
	Category      model.ExpenseCategory
	Date          *time.Time
	PaymentMethod model.PaymentMethod
	Notes         string
}

// Create 保存支出；未给出类别时交给 AI 分类，分类失败记为 other
func (s *Service) Create(ctx context.Context, userID int64, in CreateInput) (*model.Expense, error) {
	description := strings.TrimSpace(in.Description)
	if in.Amount == nil || description == "" {
		return nil, apperr.Validation("Please provide amount and description")
	}
	if *in.Amount < 0 {
		return nil, apperr.Validation("Amount must be a positive number")
	}

	e := &model.Expense{
		UserID:        userID,
		Amount:        *in.Amount,
		Description:   description,
		Category:      in.Category,
		PaymentMethod: in.PaymentMethod,
		Notes:         in.Notes,
	}
	if in.Date != nil {
		e.Date = *in.Date
	} else {
		e.Date = s.now()
	}
	if e.PaymentMethod == "" {
		e.PaymentMethod = model.PaymentCard
	}
	if !e.PaymentMethod.Valid() {
		return nil, apperr.Validation("Invalid payment method")
	}

	if e.Category != "" {
		if !e.Category.Valid() {
			return nil, apperr.Validation("Invalid expense category")
		}
		metrics.IncrementExpenseClassified("manual")
	} else {
		// 未指定类别即视为自动分类，兜底到 other 也一样
		category, ok := s.advisor.ClassifyExpense(ctx, description)
		e.Category = category
		e.AIClassified = true
		if ok {
			metrics.IncrementExpenseClassified("ai")
		} else {
			metrics.IncrementExpenseClassified("fallback")
		}
	}

	if err := s.store.Create(ctx, e); err != nil {
		return nil, apperr.Internal(err)
	}

	payload := mqcontracts.ExpenseCreatedPayload{
		UserID:       userID,
		ExpenseID:    e.ID,
		Amount:       e.Amount,
		Category:     string(e.Category),
		AIClassified: e.AIClassified,
		Date:         e.Date,
	}
	if err := s.publisher.Publish(ctx, mqcontracts.RoutingExpenseCreated, payload); err != nil {
		logger.WithUser(ctx, s.logger, userID).Warn("publish expense.created failed", zap.Error(err))
	}
	return e, nil
}

func (s *Service) Update(ctx context.Context, userID, id int64, patch model.ExpensePatch) (*model.Expense, error) {
	e, err := s.store.Get(ctx, id, userID)
	if err != nil {
		return nil, notFound(err)
	}
	if patch.Amount != nil {
		if *patch.Amount < 0 {
			return nil, apperr.Validation("Amount must be a positive number")
		}
		e.Amount = *patch.Amount
	}
	if patch.Description != nil {
		description := strings.TrimSpace(*patch.Description)
		if description == "" {
			return nil, apperr.Validation("Please provide amount and description")
		}
		e.Description = description
	}
	if patch.Category != nil {
		if !patch.Category.Valid() {
			return nil, apperr.Validation("Invalid expense category")
		}
		e.Category = *patch.Category
		e.AIClassified = false
	}
	if patch.Date != nil {
		e.Date = *patch.Date
	}
	if patch.PaymentMethod != nil {
		if !patch.PaymentMethod.Valid() {
			return nil, apperr.Validation("Invalid payment method")
		}
		e.PaymentMethod = *patch.PaymentMethod
	}
	if patch.Notes != nil {
		e.Notes = *patch.Notes
	}
	if err := s.store.Update(ctx, e); err != nil {
		return nil, notFound(err)
	}
	return e, nil
}

func (s *Service) Delete(ctx context.Context, userID, id int64) error {
	if err := s.store.Delete(ctx, id, userID); err != nil {
		return notFound(err)
	}
	return nil
}

// Insights 对所选时间段的支出给出分析；没有支出时不调用 AI
func (s *Service) Insights(ctx context.Context, userID int64, start, end *time.Time) (string, error) {
	expenses, _, err := s.List(ctx, userID, model.ExpenseFilter{StartDate: start, EndDate: end})
	if err != nil {
		return "", err
	}
	if len(expenses) == 0 {
		return noExpensesMessage, nil
	}
	return s.advisor.BudgetInsights(ctx, expenses)
}
