package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"aimate/internal/model"
	"aimate/internal/service/expense"
)

type ExpenseService interface {
	List(ctx context.Context, userID int64, f model.ExpenseFilter) ([]model.Expense, expense.Summary, error)
	Get(ctx context.Context, userID, id int64) (*model.Expense, error)
	Create(ctx context.Context, userID int64, in expense.CreateInput) (*model.Expense, error)
	Update(ctx context.Context, userID, id int64, patch model.ExpensePatch) (*model.Expense, error)
	Delete(ctx context.Context, userID, id int64) error
	Insights(ctx context.Context, userID int64, start, end *time.Time) (string, error)
}

type ExpenseHandler struct {
	svc    ExpenseService
	logger *zap.Logger
}

func NewExpenseHandler(svc ExpenseService, logger *zap.Logger) *ExpenseHandler {
	return &ExpenseHandler{svc: svc, logger: logger}
}

func dateRange(c *gin.Context) (*time.Time, *time.Time, error) {
	start, err := queryDate(c, "startDate", false)
	if err != nil {
		return nil, nil, err
	}
	end, err := queryDate(c, "endDate", true)
	if err != nil {
		return nil, nil, err
	}
	return start, end, nil
}

// List handles GET /api/expenses
func (h *ExpenseHandler) List(c *gin.Context) {
	start, end, err := dateRange(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	f := model.ExpenseFilter{
		Category:  model.ExpenseCategory(c.Query("category")),
		StartDate: start,
		EndDate:   end,
	}
	expenses, summary, err := h.svc.List(c.Request.Context(), currentUser(c), f)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"count":      len(expenses),
		"total":      summary.Total,
		"byCategory": summary.ByCategory,
		"expenses":   expenses,
	})
}

// Insights handles GET /api/expenses/insights
func (h *ExpenseHandler) Insights(c *gin.Context) {
	start, end, err := dateRange(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	insights, err := h.svc.Insights(c.Request.Context(), currentUser(c), start, end)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "insights": insights})
}

func (h *ExpenseHandler) Get(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	e, err := h.svc.Get(c.Request.Context(), currentUser(c), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "expense": e})
}

type createExpenseRequest struct {
	Amount        *float64              `json:"amount"`
	Description   string                `json:"description"`
	Category      model.ExpenseCategory `json:"category" binding:"omitempty,enum"`
	Date          *Date                 `json:"date"`
	PaymentMethod model.PaymentMethod   `json:"paymentMethod" binding:"omitempty,enum"`
	Notes         string                `json:"notes"`
}

// Create handles POST /api/expenses
func (h *ExpenseHandler) Create(c *gin.Context) {
	var req createExpenseRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}
	e, err := h.svc.Create(c.Request.Context(), currentUser(c), expense.CreateInput{
		Amount:        req.Amount,
		Description:   req.Description,
		Category:      req.Category,
		Date:          datePtr(req.Date),
		PaymentMethod: req.PaymentMethod,
		Notes:         req.Notes,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "expense": e})
}

type updateExpenseRequest struct {
	Amount        *float64               `json:"amount"`
	Description   *string                `json:"description"`
	Category      *model.ExpenseCategory `json:"category" binding:"omitempty,enum"`
	Date          *Date                  `json:"date"`
	PaymentMethod *model.PaymentMethod   `json:"paymentMethod" binding:"omitempty,enum"`
	Notes         *string                `json:"notes"`
}

// Update handles PUT /api/expenses/:id
func (h *ExpenseHandler) Update(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	var req updateExpenseRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}
	e, err := h.svc.Update(c.Request.Context(), currentUser(c), id, model.ExpensePatch{
		Amount:        req.Amount,
		Description:   req.Description,
		Category:      req.Category,
		Date:          datePtr(req.Date),
		PaymentMethod: req.PaymentMethod,
		Notes:         req.Notes,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "expense": e})
}

func (h *ExpenseHandler) Delete(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if err := h.svc.Delete(c.Request.Context(), currentUser(c), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Expense deleted successfully"})
}
