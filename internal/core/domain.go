package core

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"
)

const (
	TypeIncome  TransactionType = "income"
	TypeExpense TransactionType = "expense"
)

const (
	BudgetActive    BudgetStatus = "active"
	BudgetCompleted BudgetStatus = "completed"
	BudgetExpired   BudgetStatus = "expired"
	BudgetReached   BudgetStatus = "reached"
)

const (
	GoalActive    GoalStatus = "active"
	GoalCompleted GoalStatus = "completed"
	GoalCancelled GoalStatus = "cancelled"
	GoalReached   GoalStatus = "reached"
)

// DefaultEditWindow is how long after creation a transaction may be edited.
const DefaultEditWindow = time.Hour

type (
	TransactionType string
	BudgetStatus    string
	GoalStatus      string

	// Entity is anything cached in a list and addressed by id.
	Entity interface {
		EntityID() int64
	}

	Transaction struct {
		ID           int64           `json:"id"`
		Type         TransactionType `json:"type"`
		Amount       Money           `json:"amount"`
		Date         Date            `json:"date"`
		Name         string          `json:"name"`
		Description  string          `json:"description,omitempty"`
		CategoryID   *int64          `json:"category_id"`
		BudgetID     *int64          `json:"budget_id"`
		SavingGoalID *int64          `json:"saving_goal_id"`
		CreatedAt    time.Time       `json:"created_at"`
	}

	Budget struct {
		ID         int64        `json:"id"`
		Name       string       `json:"name"`
		Amount     Money        `json:"amount"`
		CategoryID int64        `json:"category_id"`
		StartDate  Date         `json:"start_date"`
		EndDate    Date         `json:"end_date"`
		Status     BudgetStatus `json:"status"`
		TotalSpent *Money       `json:"total_spent,omitempty"` // server computed
	}

	SavingGoal struct {
		ID            int64      `json:"id"`
		Name          string     `json:"name"`
		TargetAmount  Money      `json:"target_amount"`
		CurrentAmount Money      `json:"current_amount"`
		Description   string     `json:"description,omitempty"`
		Status        GoalStatus `json:"status"`
	}

	// TransactionInput is the create/update payload for a transaction.
	TransactionInput struct {
		Type         TransactionType `json:"type"`
		Amount       Money           `json:"amount"`
		Date         Date            `json:"date"`
		Name         string          `json:"name"`
		Description  string          `json:"description,omitempty"`
		CategoryID   *int64          `json:"category_id"`
		BudgetID     *int64          `json:"budget_id"`
		SavingGoalID *int64          `json:"saving_goal_id"`
	}

	BudgetInput struct {
		Name       string `json:"name"`
		Amount     Money  `json:"amount"`
		CategoryID int64  `json:"category_id"`
		StartDate  Date   `json:"start_date"`
		EndDate    Date   `json:"end_date"`
	}

	SavingGoalInput struct {
		Name          string     `json:"name"`
		TargetAmount  Money      `json:"target_amount"`
		CurrentAmount Money      `json:"current_amount"`
		Description   string     `json:"description,omitempty"`
		Status        GoalStatus `json:"status,omitempty"`
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidType      = errors.New("invalid transaction type")
	ErrEmptyName        = errors.New("empty name")
	ErrDateOrder        = errors.New("end date must not be before start date")
	ErrBudgetOnIncome   = errors.New("only expenses can be linked to a budget")
	ErrMissingCategory  = errors.New("category is required")
	ErrEditWindowClosed = errors.New("transaction can no longer be edited")
)

func (t TransactionType) Valid() bool {
	return t == TypeIncome || t == TypeExpense
}

func (t Transaction) EntityID() int64 { return t.ID }
func (b Budget) EntityID() int64      { return b.ID }
func (g SavingGoal) EntityID() int64  { return g.ID }

// EditableAt reports whether the transaction may still be edited at now.
// Records without a creation time (optimistic placeholders) are editable.
func (t Transaction) EditableAt(now time.Time, window time.Duration) bool {
	if t.CreatedAt.IsZero() {
		return true
	}
	return now.Sub(t.CreatedAt) <= window
}

// IsContribution is a linked expense moving money into a saving goal.
func (t Transaction) IsContribution() bool {
	return t.SavingGoalID != nil && t.Type == TypeExpense
}

// IsWithdrawal is a linked income moving money out of a saving goal.
func (t Transaction) IsWithdrawal() bool {
	return t.SavingGoalID != nil && t.Type == TypeIncome
}

// Merge shallow-merges an update payload over the record, keeping identity
// and server-owned fields.
func (t Transaction) Merge(in TransactionInput) Transaction {
	t.Type = in.Type
	t.Amount = in.Amount
	t.Date = in.Date
	t.Name = in.Name
	t.Description = in.Description
	t.CategoryID = in.CategoryID
	t.BudgetID = in.BudgetID
	t.SavingGoalID = in.SavingGoalID
	return t
}

// Record builds a client-side placeholder for a transaction not yet persisted.
func (in TransactionInput) Record(id int64) Transaction {
	return Transaction{ID: id}.Merge(in)
}

func (in TransactionInput) Validate() error {
	if !in.Type.Valid() {
		return ErrInvalidType
	}
	if err := in.Amount.Validate(); err != nil {
		return err
	}
	if err := in.Date.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(in.Name) == "" {
		return ErrEmptyName
	}
	if len(in.Name) > 200 {
		return errors.New("name too long (max 200 characters)")
	}
	if in.BudgetID != nil && in.Type != TypeExpense {
		return ErrBudgetOnIncome
	}
	return nil
}

func (b Budget) Merge(in BudgetInput) Budget {
	b.Name = in.Name
	b.Amount = in.Amount
	b.CategoryID = in.CategoryID
	b.StartDate = in.StartDate
	b.EndDate = in.EndDate
	return b
}

// IsActive is true for budgets still accepting spending.
func (b Budget) IsActive() bool {
	return b.Status == "" || b.Status == BudgetActive
}

func (in BudgetInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return ErrEmptyName
	}
	if err := in.Amount.Validate(); err != nil {
		return err
	}
	if in.CategoryID <= 0 {
		return ErrMissingCategory
	}
	if err := in.StartDate.Validate(); err != nil {
		return errors.New("invalid start date: " + err.Error())
	}
	if !in.EndDate.IsEmpty() && in.EndDate.Before(in.StartDate.Time) {
		return ErrDateOrder
	}
	return nil
}

func (g SavingGoal) Merge(in SavingGoalInput) SavingGoal {
	g.Name = in.Name
	g.TargetAmount = in.TargetAmount
	g.CurrentAmount = in.CurrentAmount
	g.Description = in.Description
	if in.Status != "" {
		g.Status = in.Status
	}
	return g
}

// Input returns the goal as an update payload.
func (g SavingGoal) Input() SavingGoalInput {
	return SavingGoalInput{
		Name:          g.Name,
		TargetAmount:  g.TargetAmount,
		CurrentAmount: g.CurrentAmount,
		Description:   g.Description,
		Status:        g.Status,
	}
}

func (in SavingGoalInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return ErrEmptyName
	}
	if err := in.TargetAmount.Validate(); err != nil {
		return err
	}
	if in.CurrentAmount.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}

var lastTemporaryID atomic.Int64

// NewTemporaryID returns a unique negative id for an optimistic record.
// Server ids are always positive.
func NewTemporaryID() int64 {
	for {
		prev := lastTemporaryID.Load()
		next := -time.Now().UnixNano()
		if next >= prev {
			next = prev - 1
		}
		if lastTemporaryID.CompareAndSwap(prev, next) {
			return next
		}
	}
}

func IsTemporaryID(id int64) bool {
	return id < 0
}

// IDRef returns a pointer to id for nullable foreign keys.
func IDRef(id int64) *int64 {
	return &id
}

// SameID compares a nullable foreign key with id.
func SameID(ref *int64, id int64) bool {
	return ref != nil && *ref == id
}
