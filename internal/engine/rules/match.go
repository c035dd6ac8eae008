package rules

import (
	"strings"

	"agencyline/internal/domain"
)

// PendingMilestonePayment reports the first pending payment whose label equals
// milestone exactly. Labels are weak references; no case folding is applied.
func PendingMilestonePayment(payments []domain.Payment, milestone string) (domain.Payment, bool) {
	if milestone == "" {
		return domain.Payment{}, false
	}
	for _, p := range payments {
		if p.Label == milestone && p.Status == domain.PaymentPending {
			return p, true
		}
	}
	return domain.Payment{}, false
}

// MatchChecklistItem returns the index of the first open checklist item that an
// asset label satisfies, or -1.
//
// An item matches when its text contains the label, or when every significant
// word of the item (longer than three letters) appears in the label. Both
// comparisons are case-insensitive, so "Client Approval Document" closes
// "Get client approval" but not "Get design approval".
func MatchChecklistItem(items []domain.ChecklistItem, label string) int {
	needle := strings.ToLower(strings.TrimSpace(label))
	if needle == "" {
		return -1
	}
	labelWords := map[string]bool{}
	for _, w := range words(needle) {
		labelWords[w] = true
	}
	for i, it := range items {
		if it.Done || it.Text == "" {
			continue
		}
		text := strings.ToLower(it.Text)
		if strings.Contains(text, needle) {
			return i
		}
		sig := significant(words(text))
		if len(sig) == 0 {
			continue
		}
		all := true
		for _, w := range sig {
			if !labelWords[w] {
				all = false
				break
			}
		}
		if all {
			return i
		}
	}
	return -1
}

func textHas(text, keyword string) bool {
	return strings.Contains(strings.ToLower(text), keyword)
}

func words(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r > 127)
	})
}

func significant(ws []string) []string {
	out := ws[:0:0]
	for _, w := range ws {
		if len(w) > 3 {
			out = append(out, w)
		}
	}
	return out
}
