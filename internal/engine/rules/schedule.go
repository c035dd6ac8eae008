package rules

import "math"

const (
	AdvancePaymentLabel = "Advance Payment"
	FinalPaymentLabel   = "Final Payment"
)

var milestoneLabels = []string{"1st Milestone", "2nd Milestone", "3rd Milestone", "4th Milestone", "5th Milestone"}

type ScheduledPayment struct {
	Label  string  `json:"label"`
	Amount float64 `json:"amount"`
}

// MilestoneLabel names the i-th (zero-based) milestone payment.
func MilestoneLabel(i int) string {
	if i >= 0 && i < len(milestoneLabels) {
		return milestoneLabels[i]
	}
	return FinalPaymentLabel
}

// PaymentSchedule splits total into an advance and n milestones. Amounts are
// rounded to whole units and the last milestone absorbs the remainder, so the
// schedule always sums to total.
func PaymentSchedule(total, advancePercent float64, milestones int) []ScheduledPayment {
	if total <= 0 {
		return nil
	}
	if milestones <= 0 {
		milestones = 1
	}
	advance := math.Round(total * advancePercent / 100)
	remaining := total - advance
	each := math.Round(remaining / float64(milestones))

	out := []ScheduledPayment{{Label: AdvancePaymentLabel, Amount: advance}}
	for i := 0; i < milestones; i++ {
		amt := each
		if i == milestones-1 {
			amt = remaining - each*float64(milestones-1)
		}
		out = append(out, ScheduledPayment{Label: MilestoneLabel(i), Amount: amt})
	}
	return out
}
