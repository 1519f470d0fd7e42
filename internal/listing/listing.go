// Package listing holds the filter, sort and pagination state of a
// transaction list and turns it into API parameters and a cache key.
package listing

import (
	"strings"
	"time"

	"fintrack/internal/api"
	"fintrack/internal/core"
	"fintrack/internal/query"
)

type Preset string

const (
	PresetThisMonth Preset = "this_month"
	PresetLastMonth Preset = "last_month"
	PresetAll       Preset = "all"
	PresetCustom    Preset = "custom"
)

type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

const (
	DefaultSortColumn = "date"
	DefaultPerPage    = 15
)

// dateColumns sort newest first when selected.
var dateColumns = map[string]bool{
	"date":       true,
	"created_at": true,
	"updated_at": true,
	"start_date": true,
	"end_date":   true,
}

// DefaultDirection is the direction a column starts with when selected.
func DefaultDirection(column string) Direction {
	if dateColumns[column] || strings.HasSuffix(column, "_date") || strings.HasSuffix(column, "_at") {
		return Desc
	}
	return Asc
}

// ParsePreset maps user input to a preset, defaulting to this month.
func ParsePreset(s string) Preset {
	switch p := Preset(strings.ToLower(strings.TrimSpace(s))); p {
	case PresetThisMonth, PresetLastMonth, PresetAll, PresetCustom:
		return p
	default:
		return PresetThisMonth
	}
}

// State is the list state of one page. The zero value is not ready; use New.
// Every setter except SetPage returns to page 1.
type State struct {
	search       string
	txType       core.TransactionType
	categoryID   *int64
	budgetID     *int64
	savingGoalID *int64
	preset       Preset
	start        core.Date
	end          core.Date
	sortBy       string
	direction    Direction
	page         int
	perPage      int
}

func New() *State {
	return &State{
		preset:    PresetThisMonth,
		sortBy:    DefaultSortColumn,
		direction: DefaultDirection(DefaultSortColumn),
		page:      1,
		perPage:   DefaultPerPage,
	}
}

func (s *State) Page() int            { return s.page }
func (s *State) SortColumn() string   { return s.sortBy }
func (s *State) Direction() Direction { return s.direction }
func (s *State) Preset() Preset       { return s.preset }

func (s *State) SetSearch(q string) {
	s.search = strings.TrimSpace(q)
	s.page = 1
}

// SetType filters by transaction type; "" clears the filter.
func (s *State) SetType(t core.TransactionType) {
	s.txType = t
	s.page = 1
}

// SetCategory filters by category; nil clears the filter.
func (s *State) SetCategory(id *int64) {
	s.categoryID = id
	s.page = 1
}

func (s *State) SetBudget(id *int64) {
	s.budgetID = id
	s.page = 1
}

func (s *State) SetSavingGoal(id *int64) {
	s.savingGoalID = id
	s.page = 1
}

// SetPreset selects a named date range. Custom keeps the explicit range.
func (s *State) SetPreset(p Preset) {
	s.preset = p
	s.page = 1
}

// SetRange switches to a custom explicit range.
func (s *State) SetRange(start, end core.Date) {
	s.preset = PresetCustom
	s.start, s.end = start, end
	s.page = 1
}

func (s *State) SetPerPage(n int) {
	if n <= 0 {
		n = DefaultPerPage
	}
	s.perPage = n
	s.page = 1
}

func (s *State) SetPage(page int) {
	if page < 1 {
		page = 1
	}
	s.page = page
}

// SortBy toggles direction on the active column, otherwise activates column
// with its default direction.
func (s *State) SortBy(column string) {
	if column == s.sortBy {
		if s.direction == Asc {
			s.direction = Desc
		} else {
			s.direction = Asc
		}
	} else {
		s.sortBy = column
		s.direction = DefaultDirection(column)
	}
	s.page = 1
}

// Range resolves the date range at now. Zero dates mean unbounded.
func (s *State) Range(now time.Time) (core.Date, core.Date) {
	y, m, _ := now.Date()
	switch s.preset {
	case PresetThisMonth:
		first := core.NewDate(y, int(m), 1)
		return first, core.Date{Time: first.AddDate(0, 1, -1)}
	case PresetLastMonth:
		first := core.Date{Time: core.NewDate(y, int(m), 1).AddDate(0, -1, 0)}
		return first, core.Date{Time: first.AddDate(0, 1, -1)}
	case PresetCustom:
		return s.start, s.end
	default:
		return core.Date{}, core.Date{}
	}
}

// Query builds the API filters at now.
func (s *State) Query(now time.Time) api.TransactionQuery {
	start, end := s.Range(now)
	return api.TransactionQuery{
		Type:         s.txType,
		CategoryID:   s.categoryID,
		BudgetID:     s.budgetID,
		SavingGoalID: s.savingGoalID,
		Search:       s.search,
		SortBy:       s.sortBy,
		SortOrder:    string(s.direction),
		StartDate:    start,
		EndDate:      end,
		Page:         s.page,
		PerPage:      s.perPage,
	}
}

// Key is the cache key of the list at now. Two states producing the same
// filters share a key.
func (s *State) Key(now time.Time) query.Key {
	return QueryKey(s.Query(now))
}

// QueryKey is the cache key for a transaction query.
func QueryKey(q api.TransactionQuery) query.Key {
	encoded := q.Values().Encode()
	if encoded == "" {
		return query.NewKey(api.PathTransactions)
	}
	return query.NewKey(api.PathTransactions, encoded)
}
