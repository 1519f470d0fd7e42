package ledger

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"testing"
	"time"

	"fintrack/internal/api"
	"fintrack/internal/core"
	"fintrack/internal/listing"
	"fintrack/internal/mutation"
	"fintrack/internal/progress"
	"fintrack/internal/query"
	"fintrack/internal/sheets/memory"
)

var ctx = context.Background()

func money(units int64) core.Money { return core.NewMoney(units, 0) }

func moneyRef(units int64) *core.Money {
	m := money(units)
	return &m
}

func incomeInput(amount core.Money) core.TransactionInput {
	return core.TransactionInput{Type: core.TypeIncome, Amount: amount, Date: core.NewDate(2025, 6, 1), Name: "Salary"}
}

func seededFake() *fakeAPI {
	f := newFakeAPI()
	f.categories = []core.Category{
		{ID: 1, Name: "Other", Type: core.TypeExpense},
		{ID: 2, Name: "Groceries", Type: core.TypeExpense},
		{ID: 3, Name: "Salary", Type: core.TypeIncome},
	}
	f.budgets = []core.Budget{
		{ID: 10, Name: "Food", Amount: money(500), CategoryID: 2, Status: core.BudgetActive, StartDate: core.NewDate(2025, 6, 1), TotalSpent: moneyRef(300)},
	}
	f.savings = []core.SavingGoal{
		{ID: 20, Name: "Trip", TargetAmount: money(500), CurrentAmount: money(50), Status: core.GoalActive},
	}
	return f
}

func TestCreateTransactionReconcilesTempRecord(t *testing.T) {
	env := newTestEnv(t, seededFake(), Options{})
	l := env.ledger
	if _, err := l.Transactions.All(ctx); err != nil {
		t.Fatal(err)
	}

	tx, err := l.Transactions.Create(ctx, incomeInput(money(1000)))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if core.IsTemporaryID(tx.ID) {
		t.Fatalf("server record has temp id %d", tx.ID)
	}

	key := query.NewKey(api.PathTransactions, api.TransactionQuery{All: true}.Values().Encode())
	page, ok := query.Get[api.Page[core.Transaction]](l.Store(), key)
	if !ok || page.Len() != 1 || page.Data[0].ID != tx.ID {
		t.Fatalf("cache not reconciled: %+v", page.Data)
	}
	if page.Totals == nil || page.Totals.Income != money(1000) {
		t.Fatalf("totals not adjusted: %+v", page.Totals)
	}
	if !l.Store().IsStale(key) {
		t.Fatal("create must settle the transactions namespace")
	}
}

func TestCreateTransactionFailureRollsBack(t *testing.T) {
	fake := seededFake()
	fake.fail["POST /transactions"] = http.StatusInternalServerError
	env := newTestEnv(t, fake, Options{})
	l := env.ledger
	if _, err := l.Transactions.All(ctx); err != nil {
		t.Fatal(err)
	}
	before := l.Store().Records()

	_, err := l.Transactions.Create(ctx, incomeInput(money(5)))
	var merr *mutation.Error
	if !errors.As(err, &merr) {
		t.Fatalf("expected mutation error, got %v", err)
	}
	after := l.Store().Records()
	if len(before) != len(after) || !reflect.DeepEqual(before[0].Data, after[0].Data) {
		t.Fatalf("cache not rolled back:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestCreateTransactionValidationSkipsRemote(t *testing.T) {
	env := newTestEnv(t, seededFake(), Options{})
	in := incomeInput(money(10))
	in.BudgetID = core.IDRef(10)
	if _, err := env.ledger.Transactions.Create(ctx, in); !errors.Is(err, core.ErrBudgetOnIncome) {
		t.Fatalf("expected ErrBudgetOnIncome, got %v", err)
	}
	if env.fake.called("POST /transactions") != 0 {
		t.Fatal("invalid transaction reached the server")
	}
}

func TestUpdateTransactionOutsideEditWindow(t *testing.T) {
	fake := seededFake()
	fake.transactions = []core.Transaction{{
		ID: 1, Type: core.TypeExpense, Amount: money(20), Date: core.NewDate(2025, 6, 2), Name: "Lunch",
		CreatedAt: time.Now().Add(-2 * time.Hour),
	}}
	env := newTestEnv(t, fake, Options{})
	if _, err := env.ledger.Transactions.All(ctx); err != nil {
		t.Fatal(err)
	}

	in := core.TransactionInput{Type: core.TypeExpense, Amount: money(25), Date: core.NewDate(2025, 6, 2), Name: "Lunch"}
	if _, err := env.ledger.Transactions.Update(ctx, 1, in); !errors.Is(err, core.ErrEditWindowClosed) {
		t.Fatalf("expected ErrEditWindowClosed, got %v", err)
	}
	if fake.called("PUT /transactions/1") != 0 {
		t.Fatal("closed transaction reached the server")
	}

	env2 := newTestEnv(t, fake, Options{EditWindow: 3 * time.Hour})
	if _, err := env2.ledger.Transactions.All(ctx); err != nil {
		t.Fatal(err)
	}
	got, err := env2.ledger.Transactions.Update(ctx, 1, in)
	if err != nil || got.Amount != money(25) {
		t.Fatalf("Update = %+v, %v", got, err)
	}
}

func TestDeleteTransactionReversesLinkedTotals(t *testing.T) {
	tests := []struct {
		name      string
		amount    int64
		spent     int64
		wantSpent int64
	}{
		{"partial", 100, 300, 200},
		{"floored at zero", 400, 300, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := seededFake()
			fake.budgets[0].TotalSpent = moneyRef(tt.spent)
			fake.transactions = []core.Transaction{{
				ID: 1, Type: core.TypeExpense, Amount: money(tt.amount), Date: core.NewDate(2025, 6, 3),
				Name: "Shop", BudgetID: core.IDRef(10), CreatedAt: time.Now(),
			}}
			env := newTestEnv(t, fake, Options{})
			l := env.ledger
			if _, err := l.Transactions.All(ctx); err != nil {
				t.Fatal(err)
			}
			if _, err := l.Budgets.List(ctx, ""); err != nil {
				t.Fatal(err)
			}
			if _, err := l.Budgets.List(ctx, StatusActive); err != nil {
				t.Fatal(err)
			}

			if err := l.Transactions.Delete(ctx, 1); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			for _, status := range []string{"", StatusActive} {
				page, _ := query.Get[api.Page[core.Budget]](l.Store(), keyFor(api.PathBudgets, status))
				if got := page.Data[0].TotalSpent; got == nil || *got != money(tt.wantSpent) {
					t.Errorf("budgets/%s spent = %v, want %d", status, got, tt.wantSpent)
				}
			}
			if _, found := mutation.Find[core.Transaction](l.Store(), 1, api.PathTransactions); found {
				t.Error("deleted transaction still cached")
			}
		})
	}
}

func TestDeleteContributionReversesGoal(t *testing.T) {
	fake := seededFake()
	fake.savings[0].CurrentAmount = money(200)
	fake.transactions = []core.Transaction{
		{ID: 1, Type: core.TypeExpense, Amount: money(80), Date: core.NewDate(2025, 6, 3), Name: "Contribution", SavingGoalID: core.IDRef(20)},
	}
	env := newTestEnv(t, fake, Options{ClientSideReversal: true})
	l := env.ledger
	if _, err := l.Transactions.All(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Savings.List(ctx, ""); err != nil {
		t.Fatal(err)
	}

	if err := l.Transactions.Delete(ctx, 1); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if g, _ := mutation.Find[core.SavingGoal](l.Store(), 20, api.PathSavings); g.CurrentAmount != money(120) {
		t.Fatalf("cached goal current = %s, want 120.00", g.CurrentAmount)
	}
	if g := fake.goal(20); g.CurrentAmount != money(120) {
		t.Fatalf("server goal current = %s, want 120.00", g.CurrentAmount)
	}
}

func TestReverseGoal(t *testing.T) {
	goal := core.SavingGoal{ID: 20, CurrentAmount: money(50)}
	contribution := core.Transaction{Type: core.TypeExpense, Amount: money(80), SavingGoalID: core.IDRef(20)}
	withdrawal := core.Transaction{Type: core.TypeIncome, Amount: money(30), SavingGoalID: core.IDRef(20)}
	other := core.Transaction{Type: core.TypeExpense, Amount: money(30), SavingGoalID: core.IDRef(21)}

	if got := ReverseGoal(goal, contribution).CurrentAmount; got != money(0) {
		t.Errorf("contribution reversal = %s, want 0", got)
	}
	if got := ReverseGoal(goal, withdrawal).CurrentAmount; got != money(80) {
		t.Errorf("withdrawal reversal = %s, want 80", got)
	}
	if got := ReverseGoal(goal, other).CurrentAmount; got != money(50) {
		t.Errorf("unrelated reversal = %s, want 50", got)
	}
}

func TestDeleteTransactionGoalReversalPartialFailure(t *testing.T) {
	fake := seededFake()
	fake.transactions = []core.Transaction{
		{ID: 1, Type: core.TypeExpense, Amount: money(20), Date: core.NewDate(2025, 6, 3), Name: "Contribution", SavingGoalID: core.IDRef(20)},
	}
	fake.fail["PUT /savings/20"] = http.StatusServiceUnavailable
	env := newTestEnv(t, fake, Options{ClientSideReversal: true})
	l := env.ledger
	if _, err := l.Transactions.All(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Savings.List(ctx, ""); err != nil {
		t.Fatal(err)
	}

	err := l.Transactions.Delete(ctx, 1)
	var pe *PartialError
	if !errors.As(err, &pe) || pe.Failed != "reverse saving goal" {
		t.Fatalf("expected partial error, got %v", err)
	}
	if len(fake.transactionsSnapshot()) != 0 {
		t.Fatal("transaction delete should have committed")
	}
}

func TestCreateIncomeWithAllocation(t *testing.T) {
	fake := seededFake()
	env := newTestEnv(t, fake, Options{})
	l := env.ledger

	res, err := l.CreateIncomeWithAllocation(ctx, incomeInput(money(1000)), 20, 10)
	if err != nil {
		t.Fatalf("allocation: %v", err)
	}
	if res.Income.Amount != money(1000) || res.Income.Type != core.TypeIncome {
		t.Errorf("income recorded as %s %s, want gross 1000.00", res.Income.Type, res.Income.Amount)
	}
	if res.Amount != money(100) {
		t.Errorf("allocation = %s", res.Amount)
	}
	tr := res.Transfer
	if tr.Type != core.TypeExpense || tr.Amount != money(100) || !core.SameID(tr.SavingGoalID, 20) {
		t.Errorf("unexpected transfer %+v", tr)
	}
	if !core.SameID(tr.CategoryID, 1) {
		t.Errorf("transfer category = %v, want Other (1)", tr.CategoryID)
	}
	if res.Goal.CurrentAmount != money(150) {
		t.Errorf("goal current = %s, want 150.00", res.Goal.CurrentAmount)
	}
	if p := progress.ForSavings(fake.goal(20)); p.Percentage != 30 {
		t.Errorf("goal percentage = %v, want 30", p.Percentage)
	}
	if n := len(fake.transactionsSnapshot()); n != 2 {
		t.Errorf("expected income + transfer on server, got %d", n)
	}
}

func TestCreateIncomeWithAllocationPartialFailure(t *testing.T) {
	fake := seededFake()
	fake.fail["PUT /savings/20"] = http.StatusInternalServerError
	env := newTestEnv(t, fake, Options{})

	res, err := env.ledger.CreateIncomeWithAllocation(ctx, incomeInput(money(1000)), 20, 10)
	var pe *PartialError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PartialError, got %v", err)
	}
	if pe.Failed != stepUpdateGoal || !IsPartial(err) {
		t.Errorf("failed step = %q", pe.Failed)
	}
	if res.Income.ID == 0 {
		t.Error("committed income missing from result")
	}
	if n := len(fake.transactionsSnapshot()); n != 1 {
		t.Errorf("expected only the income on server, got %d", n)
	}
	if fake.called("POST /transactions") != 1 {
		t.Error("transfer must not be recorded after goal update failed")
	}
}

func TestCreateIncomeWithAllocationValidation(t *testing.T) {
	tests := []struct {
		name    string
		in      core.TransactionInput
		percent float64
		want    error
	}{
		{"zero percent", incomeInput(money(100)), 0, ErrInvalidPercentage},
		{"over 100 percent", incomeInput(money(100)), 150, ErrInvalidPercentage},
		{"expense", core.TransactionInput{Type: core.TypeExpense, Amount: money(100), Date: core.NewDate(2025, 6, 1), Name: "x"}, 10, ErrNotIncome},
		{"rounds to nothing", incomeInput(core.Money{Cents: 1}), 10, core.ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, seededFake(), Options{})
			if _, err := env.ledger.CreateIncomeWithAllocation(ctx, tt.in, 20, tt.percent); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if env.fake.called("POST /transactions") != 0 {
				t.Fatal("invalid allocation reached the server")
			}
		})
	}
}

func TestBudgetCreateRejectsSecondActiveBudget(t *testing.T) {
	env := newTestEnv(t, seededFake(), Options{})
	in := core.BudgetInput{Name: "More food", Amount: money(100), CategoryID: 2, StartDate: core.NewDate(2025, 6, 1)}
	if _, err := env.ledger.Budgets.Create(ctx, in); !errors.Is(err, ErrActiveBudgetExists) {
		t.Fatalf("expected ErrActiveBudgetExists, got %v", err)
	}

	in.CategoryID = 1
	b, err := env.ledger.Budgets.Create(ctx, in)
	if err != nil || b.ID <= 0 {
		t.Fatalf("Create = %+v, %v", b, err)
	}
	page, _ := query.Get[api.Page[core.Budget]](env.ledger.Store(), keyFor(api.PathBudgets, StatusActive))
	if page.Data[0].ID != b.ID {
		t.Fatalf("created budget not first in active list: %+v", page.Data)
	}
}

func TestBudgetDeleteRequiresRefund(t *testing.T) {
	fake := seededFake()
	fake.transactions = []core.Transaction{
		{ID: 1, Type: core.TypeExpense, Amount: money(40), Date: core.NewDate(2025, 6, 3), Name: "a", BudgetID: core.IDRef(10)},
		{ID: 2, Type: core.TypeExpense, Amount: money(60), Date: core.NewDate(2025, 6, 4), Name: "b", BudgetID: core.IDRef(10)},
		{ID: 3, Type: core.TypeExpense, Amount: money(5), Date: core.NewDate(2025, 6, 4), Name: "c"},
	}
	env := newTestEnv(t, fake, Options{})
	l := env.ledger

	err := l.Budgets.Delete(ctx, 10, false)
	var rr *RefundRequiredError
	if !errors.As(err, &rr) || !errors.Is(err, ErrRefundRequired) {
		t.Fatalf("expected RefundRequiredError, got %v", err)
	}
	if rr.Count != 2 || rr.Total != money(100) {
		t.Errorf("unexpected refund details %+v", rr)
	}
	if fake.called("DELETE /budgets/10") != 0 {
		t.Fatal("budget deleted without refund confirmation")
	}

	if err := l.Budgets.Delete(ctx, 10, true); err != nil {
		t.Fatalf("Delete with refund: %v", err)
	}
	if left := fake.transactionsSnapshot(); len(left) != 1 || left[0].ID != 3 {
		t.Fatalf("unexpected remaining transactions %+v", left)
	}
	if fake.called("DELETE /budgets/10") != 1 {
		t.Fatal("budget not deleted")
	}
}

func TestBudgetDeleteRefundFailureKeepsBudget(t *testing.T) {
	fake := seededFake()
	fake.transactions = []core.Transaction{
		{ID: 1, Type: core.TypeExpense, Amount: money(40), Date: core.NewDate(2025, 6, 3), Name: "a", BudgetID: core.IDRef(10)},
		{ID: 2, Type: core.TypeExpense, Amount: money(60), Date: core.NewDate(2025, 6, 4), Name: "b", BudgetID: core.IDRef(10)},
	}
	fake.fail["DELETE /transactions/2"] = http.StatusInternalServerError
	env := newTestEnv(t, fake, Options{})

	err := env.ledger.Budgets.Delete(ctx, 10, true)
	if !IsPartial(err) {
		t.Fatalf("expected partial error, got %v", err)
	}
	if fake.called("DELETE /budgets/10") != 0 {
		t.Fatal("budget deleted although a refund failed")
	}
}

func TestBudgetDeleteAfterRefundIsPartial(t *testing.T) {
	fake := seededFake()
	fake.transactions = []core.Transaction{
		{ID: 1, Type: core.TypeExpense, Amount: money(40), Date: core.NewDate(2025, 6, 3), Name: "a", BudgetID: core.IDRef(10)},
	}
	fake.fail["DELETE /budgets/10"] = http.StatusInternalServerError
	env := newTestEnv(t, fake, Options{})
	l := env.ledger
	if _, err := l.Transactions.All(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Budgets.List(ctx, StatusActive); err != nil {
		t.Fatal(err)
	}

	err := l.Budgets.Delete(ctx, 10, true)
	var pe *PartialError
	if !errors.As(err, &pe) {
		t.Fatalf("expected partial error, got %v", err)
	}
	if pe.Failed != "delete budget" || len(pe.Completed) != 1 {
		t.Errorf("unexpected partial error %+v", pe)
	}
	var merr *mutation.Error
	if !errors.As(err, &merr) {
		t.Errorf("partial error should wrap the mutation error, got %v", err)
	}
	if len(fake.transactionsSnapshot()) != 0 {
		t.Fatal("refund not committed on the server")
	}
	if _, found := mutation.Find[core.Transaction](l.Store(), 1, api.PathTransactions); found {
		t.Fatal("rollback restored a refunded transaction")
	}
	if _, found := mutation.Find[core.Budget](l.Store(), 10, api.PathBudgets); !found {
		t.Fatal("budget should be restored after the failed delete")
	}
}

func TestDeleteUncachedTransactionSettlesLinkedNamespaces(t *testing.T) {
	fake := seededFake()
	fake.transactions = []core.Transaction{
		{ID: 1, Type: core.TypeExpense, Amount: money(100), Date: core.NewDate(2025, 6, 3), Name: "Shop", BudgetID: core.IDRef(10)},
	}
	env := newTestEnv(t, fake, Options{})
	l := env.ledger
	if _, err := l.Budgets.List(ctx, StatusActive); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Savings.List(ctx, ""); err != nil {
		t.Fatal(err)
	}

	if err := l.Transactions.Delete(ctx, 1); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !l.Store().IsStale(keyFor(api.PathBudgets, StatusActive)) {
		t.Error("budgets not settled after deleting an uncached transaction")
	}
	if !l.Store().IsStale(keyFor(api.PathSavings, "")) {
		t.Error("savings not settled after deleting an uncached transaction")
	}
}

func TestCreateTransactionSkipsNonMatchingLists(t *testing.T) {
	env := newTestEnv(t, seededFake(), Options{})
	l := env.ledger
	incomeOnly := api.TransactionQuery{Type: core.TypeIncome, All: true}
	budgetOnly := api.TransactionQuery{BudgetID: core.IDRef(10), All: true}
	all := api.TransactionQuery{All: true}
	for _, q := range []api.TransactionQuery{incomeOnly, budgetOnly, all} {
		if _, err := l.Transactions.List(ctx, q); err != nil {
			t.Fatal(err)
		}
	}

	in := core.TransactionInput{Type: core.TypeExpense, Amount: money(7), Date: core.NewDate(2025, 6, 5), Name: "coffee"}
	tx, err := l.Transactions.Create(ctx, in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	tests := []struct {
		name string
		q    api.TransactionQuery
		want int
	}{
		{"type filter", incomeOnly, 0},
		{"budget filter", budgetOnly, 0},
		{"unfiltered", all, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, ok := query.Get[api.Page[core.Transaction]](l.Store(), listing.QueryKey(tt.q))
			if !ok {
				t.Fatal("list not cached")
			}
			if page.Len() != tt.want {
				t.Fatalf("got %d records, want %d: %+v", page.Len(), tt.want, page.Data)
			}
			if tt.want == 0 && page.Totals != nil && page.Totals.Expenses != (core.Money{}) {
				t.Errorf("totals changed for a list the record does not match: %+v", page.Totals)
			}
			if tt.want == 1 && page.Data[0].ID != tx.ID {
				t.Errorf("cached id %d, want %d", page.Data[0].ID, tx.ID)
			}
		})
	}
}

func TestMatchesFilter(t *testing.T) {
	tx := core.Transaction{
		Type: core.TypeExpense, Amount: money(7), Date: core.NewDate(2025, 6, 5),
		Name: "Coffee", CategoryID: core.IDRef(2), SavingGoalID: core.IDRef(20),
	}
	tests := []struct {
		name string
		q    api.TransactionQuery
		want bool
	}{
		{"no filter", api.TransactionQuery{}, true},
		{"matching type", api.TransactionQuery{Type: core.TypeExpense}, true},
		{"other type", api.TransactionQuery{Type: core.TypeIncome}, false},
		{"matching category", api.TransactionQuery{CategoryID: core.IDRef(2)}, true},
		{"other budget", api.TransactionQuery{BudgetID: core.IDRef(10)}, false},
		{"matching goal", api.TransactionQuery{SavingGoalID: core.IDRef(20)}, true},
		{"inside range", api.TransactionQuery{StartDate: core.NewDate(2025, 6, 1), EndDate: core.NewDate(2025, 6, 30)}, true},
		{"before range", api.TransactionQuery{StartDate: core.NewDate(2025, 7, 1)}, false},
		{"search hit", api.TransactionQuery{Search: "coff"}, true},
		{"search miss", api.TransactionQuery{Search: "rent"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchesFilter(listing.QueryKey(tt.q), tx); got != tt.want {
				t.Errorf("matchesFilter = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSavingsDeleteSendsRefund(t *testing.T) {
	fake := seededFake()
	fake.transactions = []core.Transaction{
		{ID: 1, Type: core.TypeExpense, Amount: money(40), Date: core.NewDate(2025, 6, 3), Name: "a", SavingGoalID: core.IDRef(20)},
	}
	env := newTestEnv(t, fake, Options{})
	l := env.ledger

	if err := l.Savings.Delete(ctx, 20, false); !errors.Is(err, ErrRefundRequired) {
		t.Fatalf("expected refund required, got %v", err)
	}
	if err := l.Savings.Delete(ctx, 20, true); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(fake.transactionsSnapshot()) != 0 || fake.goal(20).ID != 0 {
		t.Fatal("server did not delete goal and linked transactions")
	}
	if _, found := mutation.Find[core.Transaction](l.Store(), 1, api.PathTransactions); found {
		t.Fatal("refunded transaction still cached")
	}
}

func TestContributeAndWithdraw(t *testing.T) {
	fake := seededFake()
	env := newTestEnv(t, fake, Options{})
	l := env.ledger

	g, err := l.Savings.Contribute(ctx, 20, money(25), core.NewDate(2025, 6, 5))
	if err != nil || g.CurrentAmount != money(75) {
		t.Fatalf("Contribute = %+v, %v", g, err)
	}
	g, err = l.Savings.Withdraw(ctx, 20, money(100), core.NewDate(2025, 6, 6))
	if err != nil || g.CurrentAmount != money(0) {
		t.Fatalf("Withdraw = %+v, %v", g, err)
	}

	txs := fake.transactionsSnapshot()
	if len(txs) != 2 || !txs[0].IsWithdrawal() || !txs[1].IsContribution() {
		t.Fatalf("unexpected linked transactions %+v", txs)
	}
}

func TestBudgetProgress(t *testing.T) {
	fake := seededFake()
	fake.budgets = append(fake.budgets, core.Budget{ID: 11, Name: "Fun", Amount: money(100), CategoryID: 1, Status: core.BudgetActive})
	fake.transactions = []core.Transaction{
		{ID: 1, Type: core.TypeExpense, Amount: money(90), Date: core.NewDate(2025, 6, 3), Name: "Cinema", BudgetID: core.IDRef(11)},
	}
	env := newTestEnv(t, fake, Options{})

	got, err := env.ledger.Budgets.Progress(ctx, StatusActive)
	if err != nil || len(got) != 2 {
		t.Fatalf("Progress = %+v, %v", got, err)
	}
	if got[0].Source != progress.SourceServer || got[0].Spent != money(300) {
		t.Errorf("food progress = %s from %s", got[0].Spent, got[0].Source)
	}
	if got[1].Source != progress.SourceComputedLocal || got[1].Status != progress.StatusNearLimit {
		t.Errorf("fun progress = %s/%s", got[1].Status, got[1].Source)
	}

	// After a settle the server totals are stale and the loaded list wins.
	env.ledger.Store().Invalidate(api.PathBudgets)
	cached := env.ledger.Budgets.CachedProgress(StatusActive)
	if len(cached) != 2 || cached[0].Source != progress.SourceComputedLocal || cached[0].Spent != money(0) {
		t.Fatalf("unexpected cached progress %+v", cached)
	}
}

func TestExportReport(t *testing.T) {
	fake := seededFake()
	fake.transactions = []core.Transaction{
		{ID: 1, Type: core.TypeIncome, Amount: money(1000), Date: core.NewDate(2025, 6, 1), Name: "Salary"},
		{ID: 2, Type: core.TypeExpense, Amount: money(40), Date: core.NewDate(2025, 6, 3), Name: "Shop", CategoryID: core.IDRef(2), BudgetID: core.IDRef(10)},
		{ID: 3, Type: core.TypeExpense, Amount: money(70), Date: core.NewDate(2025, 7, 3), Name: "Later"},
	}
	env := newTestEnv(t, fake, Options{})
	w := memory.New()

	ref, err := env.ledger.ExportReport(ctx, w, 2025, time.June)
	if err != nil || ref != "mem:1" {
		t.Fatalf("ExportReport = %q, %v", ref, err)
	}
	r, err := env.ledger.Report(ctx, 2025, time.June)
	if err != nil {
		t.Fatal(err)
	}
	if r.Income != money(1000) || r.Expenses != money(40) || len(r.ByCategory) != 1 || r.ByCategory[0].Name != "Groceries" {
		t.Fatalf("unexpected report %+v", r.MonthOverview)
	}
	if _, err := env.ledger.Report(ctx, 2025, 13); err == nil {
		t.Fatal("expected invalid month error")
	}
}
