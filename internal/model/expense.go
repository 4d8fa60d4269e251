package model

import "time"

type ExpenseCategory string

const (
	CategoryFood          ExpenseCategory = "food"
	CategoryTransport     ExpenseCategory = "transport"
	CategoryEntertainment ExpenseCategory = "entertainment"
	CategoryShopping      ExpenseCategory = "shopping"
	CategoryBills         ExpenseCategory = "bills"
	CategoryHealthcare    ExpenseCategory = "healthcare"
	CategoryEducation     ExpenseCategory = "education"
	CategoryTravel        ExpenseCategory = "travel"
	CategoryOther         ExpenseCategory = "other"
)

// ExpenseCategories lists the closed category set in display order.
var ExpenseCategories = []ExpenseCategory{
	CategoryFood, CategoryTransport, CategoryEntertainment, CategoryShopping, CategoryBills,
	CategoryHealthcare, CategoryEducation, CategoryTravel, CategoryOther,
}

func (c ExpenseCategory) Valid() bool {
	for _, known := range ExpenseCategories {
		if c == known {
			return true
		}
	}
	return false
}

type PaymentMethod string

const (
	PaymentCash    PaymentMethod = "cash"
	PaymentCard    PaymentMethod = "card"
	PaymentDigital PaymentMethod = "digital"
	PaymentOther   PaymentMethod = "other"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentDigital, PaymentOther:
		return true
	}
	return false
}

type Expense struct {
	ID            int64           `json:"id"`
	UserID        int64           `json:"user"`
	Amount        float64         `json:"amount"`
	Description   string          `json:"description"`
	Category      ExpenseCategory `json:"category"`
	Date          time.Time       `json:"date"`
	PaymentMethod PaymentMethod   `json:"paymentMethod"`
	Notes         string          `json:"notes"`
	AIClassified  bool            `json:"aiClassified"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

type ExpenseFilter struct {
	Category  ExpenseCategory
	StartDate *time.Time
	EndDate   *time.Time
}

type ExpensePatch struct {
	Amount        *float64
	Description   *string
	Category      *ExpenseCategory
	Date          *time.Time
	PaymentMethod *PaymentMethod
	Notes         *string
}
