package ledger

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"fintrack/internal/api"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/mutation"
	"fintrack/internal/query"
)

// fakeAPI is an in-memory finance REST API.
type fakeAPI struct {
	mu           sync.Mutex
	nextID       int64
	transactions []core.Transaction
	budgets      []core.Budget
	savings      []core.SavingGoal
	categories   []core.Category
	// fail maps "METHOD /path" to a status code to answer with.
	fail  map[string]int
	calls []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{nextID: 100, fail: map[string]int{}}
}

func (f *fakeAPI) called(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/api/")
	call := r.Method + " /" + path
	f.calls = append(f.calls, call)
	if status, ok := f.fail[call]; ok {
		writeJSON(w, status, map[string]any{"message": "forced failure", "errors": map[string][]string{"amount": {"forced"}}})
		return
	}

	parts := strings.Split(path, "/")
	var id int64
	if len(parts) > 1 {
		id, _ = strconv.ParseInt(parts[1], 10, 64)
	}
	q := r.URL.Query()

	switch parts[0] {
	case api.PathTransactions:
		f.serveTransactions(w, r, id, q.Get)
	case api.PathBudgets:
		f.serveBudgets(w, r, id, q.Get("status"))
	case api.PathSavings:
		f.serveSavings(w, r, id, q.Get("refund_transactions") == "true")
	case api.PathCategories:
		var out []core.Category
		for _, c := range f.categories {
			if t := q.Get("type"); t == "" || string(c.Type) == t {
				out = append(out, c)
			}
		}
		writeJSON(w, http.StatusOK, out)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeAPI) serveTransactions(w http.ResponseWriter, r *http.Request, id int64, param func(string) string) {
	switch r.Method {
	case http.MethodGet:
		var out []core.Transaction
		totals := api.Totals{}
		for _, tx := range f.transactions {
			if !matchID(param("budget_id"), tx.BudgetID) || !matchID(param("saving_goal_id"), tx.SavingGoalID) {
				continue
			}
			if s := param("start_date"); s != "" && tx.Date.String() < s {
				continue
			}
			if e := param("end_date"); e != "" && tx.Date.String() > e {
				continue
			}
			out = append(out, tx)
			if tx.Type == core.TypeIncome {
				totals.Income = totals.Income.Add(tx.Amount)
			} else {
				totals.Expenses = totals.Expenses.Add(tx.Amount)
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"data":   nonNil(out),
			"meta":   api.Meta{CurrentPage: 1, LastPage: 1, Total: len(out), PerPage: len(out)},
			"totals": totals,
		})
	case http.MethodPost:
		var in core.TransactionInput
		_ = json.NewDecoder(r.Body).Decode(&in)
		f.nextID++
		tx := in.Record(f.nextID)
		tx.CreatedAt = time.Now()
		f.transactions = append([]core.Transaction{tx}, f.transactions...)
		writeJSON(w, http.StatusCreated, map[string]any{"data": tx})
	case http.MethodPut:
		var in core.TransactionInput
		_ = json.NewDecoder(r.Body).Decode(&in)
		for i, tx := range f.transactions {
			if tx.ID == id {
				f.transactions[i] = tx.Merge(in)
				writeJSON(w, http.StatusOK, f.transactions[i])
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	case http.MethodDelete:
		f.transactions = filterTx(f.transactions, func(tx core.Transaction) bool { return tx.ID != id })
		w.WriteHeader(http.StatusNoContent)
	}
}

func (f *fakeAPI) serveBudgets(w http.ResponseWriter, r *http.Request, id int64, status string) {
	switch r.Method {
	case http.MethodGet:
		var out []core.Budget
		for _, b := range f.budgets {
			if (status == StatusActive && !b.IsActive()) || (status == StatusHistory && b.IsActive()) {
				continue
			}
			out = append(out, b)
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": nonNil(out)})
	case http.MethodPost:
		var in core.BudgetInput
		_ = json.NewDecoder(r.Body).Decode(&in)
		f.nextID++
		b := core.Budget{ID: f.nextID, Status: core.BudgetActive}.Merge(in)
		f.budgets = append(f.budgets, b)
		writeJSON(w, http.StatusCreated, b)
	case http.MethodPut:
		var in core.BudgetInput
		_ = json.NewDecoder(r.Body).Decode(&in)
		for i, b := range f.budgets {
			if b.ID == id {
				f.budgets[i] = b.Merge(in)
				writeJSON(w, http.StatusOK, f.budgets[i])
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	case http.MethodDelete:
		var out []core.Budget
		for _, b := range f.budgets {
			if b.ID != id {
				out = append(out, b)
			}
		}
		f.budgets = out
		w.WriteHeader(http.StatusNoContent)
	}
}

func (f *fakeAPI) serveSavings(w http.ResponseWriter, r *http.Request, id int64, refund bool) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"data": nonNil(f.savings)})
	case http.MethodPost:
		var in core.SavingGoalInput
		_ = json.NewDecoder(r.Body).Decode(&in)
		f.nextID++
		g := core.SavingGoal{ID: f.nextID, Status: core.GoalActive}.Merge(in)
		f.savings = append(f.savings, g)
		writeJSON(w, http.StatusCreated, g)
	case http.MethodPut:
		var in core.SavingGoalInput
		_ = json.NewDecoder(r.Body).Decode(&in)
		for i, g := range f.savings {
			if g.ID == id {
				f.savings[i] = g.Merge(in)
				writeJSON(w, http.StatusOK, f.savings[i])
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	case http.MethodDelete:
		var out []core.SavingGoal
		for _, g := range f.savings {
			if g.ID != id {
				out = append(out, g)
			}
		}
		f.savings = out
		if refund {
			f.transactions = filterTx(f.transactions, func(tx core.Transaction) bool { return !core.SameID(tx.SavingGoalID, id) })
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (f *fakeAPI) goal(id int64) core.SavingGoal {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, g := range f.savings {
		if g.ID == id {
			return g
		}
	}
	return core.SavingGoal{}
}

func (f *fakeAPI) transactionsSnapshot() []core.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.Transaction(nil), f.transactions...)
}

func matchID(param string, ref *int64) bool {
	if param == "" {
		return true
	}
	return ref != nil && strconv.FormatInt(*ref, 10) == param
}

func filterTx(in []core.Transaction, keep func(core.Transaction) bool) []core.Transaction {
	var out []core.Transaction
	for _, tx := range in {
		if keep(tx) {
			out = append(out, tx)
		}
	}
	return out
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type testEnv struct {
	fake   *fakeAPI
	ledger *Ledger
}

func newTestEnv(t *testing.T, fake *fakeAPI, opts Options) *testEnv {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := api.New(api.Config{BaseURL: srv.URL + "/api", HTTPClient: srv.Client(), Logger: log.Discard()})
	if err != nil {
		t.Fatalf("api.New: %v", err)
	}
	store := query.NewStore(query.Options{Logger: log.Discard()})
	exec := mutation.NewExecutor(store, nil, log.Discard())
	opts.Logger = log.Discard()
	return &testEnv{fake: fake, ledger: New(client, exec, opts)}
}
