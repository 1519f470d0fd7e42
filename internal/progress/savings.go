package progress

import "fintrack/internal/core"

type SavingsStatus string

const (
	SavingsCompleted   SavingsStatus = "Completed"
	SavingsAlmostThere SavingsStatus = "Almost There"
	SavingsHalfway     SavingsStatus = "Halfway"
	SavingsInProgress  SavingsStatus = "In Progress"
)

type SavingsProgress struct {
	Goal              core.SavingGoal
	Current           core.Money
	Target            core.Money
	Remaining         core.Money
	Percentage        float64
	DisplayPercentage float64
	IsCompleted       bool
	Status            SavingsStatus
}

// ForSavings computes progress towards a saving goal.
func ForSavings(g core.SavingGoal) SavingsProgress {
	p := SavingsProgress{
		Goal:       g,
		Current:    g.CurrentAmount,
		Target:     g.TargetAmount,
		Remaining:  g.TargetAmount.Sub(g.CurrentAmount).FloorZero(),
		Percentage: percent(g.CurrentAmount, g.TargetAmount),
	}
	p.DisplayPercentage = clamp(p.Percentage)
	p.IsCompleted = g.Status == core.GoalCompleted ||
		g.Status == core.GoalReached ||
		g.CurrentAmount.Cents >= g.TargetAmount.Cents

	switch {
	case p.IsCompleted || p.Percentage >= 100:
		p.Status = SavingsCompleted
	case p.Percentage >= 75:
		p.Status = SavingsAlmostThere
	case p.Percentage >= 50:
		p.Status = SavingsHalfway
	default:
		p.Status = SavingsInProgress
	}
	return p
}

// RemainingLabel renders how much is still needed. A goal never reports a
// negative remainder.
func (p SavingsProgress) RemainingLabel(code string) string {
	return remainingLabel(p.Remaining, code)
}
