package api

import (
	"net/url"
	"strconv"

	"fintrack/internal/core"
)

// TransactionQuery mirrors the GET /transactions filters.
type TransactionQuery struct {
	Type         core.TransactionType
	CategoryID   *int64
	BudgetID     *int64
	SavingGoalID *int64
	Search       string
	SortBy       string
	SortOrder    string
	StartDate    core.Date
	EndDate      core.Date
	Page         int
	PerPage      int
	All          bool
}

// Values encodes only the filters that are set.
func (q TransactionQuery) Values() url.Values {
	v := url.Values{}
	if q.Type != "" {
		v.Set("type", string(q.Type))
	}
	setID(v, "category_id", q.CategoryID)
	setID(v, "budget_id", q.BudgetID)
	setID(v, "saving_goal_id", q.SavingGoalID)
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.SortBy != "" {
		v.Set("sort_by", q.SortBy)
	}
	if q.SortOrder != "" {
		v.Set("sort_order", q.SortOrder)
	}
	if !q.StartDate.IsEmpty() {
		v.Set("start_date", q.StartDate.String())
	}
	if !q.EndDate.IsEmpty() {
		v.Set("end_date", q.EndDate.String())
	}
	if q.All {
		v.Set("all", "true")
	} else {
		if q.Page > 0 {
			v.Set("page", strconv.Itoa(q.Page))
		}
		if q.PerPage > 0 {
			v.Set("per_page", strconv.Itoa(q.PerPage))
		}
	}
	return v
}

// StatusParams filters budgets or savings by status ("active", "history").
func StatusParams(status string) url.Values {
	v := url.Values{}
	if status != "" {
		v.Set("status", status)
	}
	return v
}

// TypeParams filters categories by transaction type.
func TypeParams(t core.TransactionType) url.Values {
	v := url.Values{}
	if t != "" {
		v.Set("type", string(t))
	}
	return v
}

// RefundParams asks the server to delete a goal's linked transactions too.
func RefundParams(refund bool) url.Values {
	return url.Values{"refund_transactions": []string{strconv.FormatBool(refund)}}
}

func setID(v url.Values, name string, id *int64) {
	if id != nil {
		v.Set(name, strconv.FormatInt(*id, 10))
	}
}
