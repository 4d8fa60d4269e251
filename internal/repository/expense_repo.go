package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"aimate/internal/model"
)

type ExpenseRepository struct {
	db *pgxpool.Pool
}

func NewExpenseRepository(db *pgxpool.Pool) *ExpenseRepository {
	return &ExpenseRepository{db: db}
}

const expenseColumns = `id, user_id, amount, description, category, date, payment_method, notes,
	ai_classified, created_at, updated_at`

func scanExpense(row interface{ Scan(...any) error }) (*model.Expense, error) {
	var e model.Expense
	err := row.Scan(
		&e.ID, &e.UserID, &e.Amount, &e.Description, &e.Category, &e.Date, &e.PaymentMethod, &e.Notes,
		&e.AIClassified, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

// List 按日期倒序返回用户支出，日期区间两端都包含
func (r *ExpenseRepository) List(ctx context.Context, userID int64, f model.ExpenseFilter) ([]model.Expense, error) {
	where := []string{"user_id = $1"}
	args := []any{userID}
	if f.Category != "" {
		args = append(args, f.Category)
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	if f.StartDate != nil {
		args = append(args, *f.StartDate)
		where = append(where, fmt.Sprintf("date >= $%d", len(args)))
	}
	if f.EndDate != nil {
		args = append(args, *f.EndDate)
		where = append(where, fmt.Sprintf("date <= $%d", len(args)))
	}

	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY date DESC`
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expenses := []model.Expense{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, *e)
	}
	return expenses, rows.Err()
}

func (r *ExpenseRepository) Get(ctx context.Context, id, userID int64) (*model.Expense, error) {
	return scanExpense(r.db.QueryRow(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE id = $1 AND user_id = $2`, id, userID))
}

func (r *ExpenseRepository) Create(ctx context.Context, e *model.Expense) error {
	query := `
		INSERT INTO expenses (user_id, amount, description, category, date, payment_method, notes, ai_classified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`
	return r.db.QueryRow(ctx, query,
		e.UserID, e.Amount, e.Description, e.Category, e.Date, e.PaymentMethod, e.Notes, e.AIClassified,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}

func (r *ExpenseRepository) Update(ctx context.Context, e *model.Expense) error {
	query := `
		UPDATE expenses
		SET amount = $3, description = $4, category = $5, date = $6, payment_method = $7, notes = $8,
		    updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING updated_at
	`
	err := r.db.QueryRow(ctx, query,
		e.ID, e.UserID, e.Amount, e.Description, e.Category, e.Date, e.PaymentMethod, e.Notes,
	).Scan(&e.UpdatedAt)
	return notFound(err)
}

func (r *ExpenseRepository) Delete(ctx context.Context, id, userID int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM expenses WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
