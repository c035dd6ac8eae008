package rules

import (
	"fmt"

	"agencyline/internal/domain"
)

const (
	BlockerPaymentPending = "payment-pending"
	BlockerClientApproval = "client-approval"
	BlockerAssetsMissing  = "assets-missing"
	BlockerRepoEmpty      = "repo-empty"

	SeverityBlocked = "blocked"
	SeverityWaiting = "waiting"
	SeverityInfo    = "info"
)

type StageBlockers struct {
	StageID   string                 `json:"stage_id"`
	StageName string                 `json:"stage_name"`
	Status    string                 `json:"status"`
	Blockers  []domain.BlockerReason `json:"blockers"`
}

// ComputeBlockers derives the blocker list and resulting status of every stage.
// Stages are evaluated independently and the input is not modified.
func ComputeBlockers(stages []domain.Stage, payments []domain.Payment) []StageBlockers {
	out := make([]StageBlockers, 0, len(stages))
	for _, st := range stages {
		blockers := StageBlockerReasons(st, payments)
		out = append(out, StageBlockers{
			StageID:   st.ID,
			StageName: st.Name,
			Status:    AdjustedStatus(st, blockers),
			Blockers:  blockers,
		})
	}
	return out
}

// StageBlockerReasons evaluates the four blocker rules for one stage.
func StageBlockerReasons(st domain.Stage, payments []domain.Payment) []domain.BlockerReason {
	blockers := []domain.BlockerReason{}
	status := baseStatus(st)

	if st.LinkedPaymentMilestone != "" {
		if _, ok := PendingMilestonePayment(payments, st.LinkedPaymentMilestone); ok {
			blockers = append(blockers, domain.BlockerReason{
				Type:     BlockerPaymentPending,
				Label:    fmt.Sprintf("Payment %q is pending", st.LinkedPaymentMilestone),
				Severity: SeverityBlocked,
			})
		}
	}

	if st.Type == domain.StageTypeChecklist && !st.Approved && status != domain.StagePending {
		for _, it := range st.Items {
			if !it.Done && textHas(it.Text, "approval") {
				blockers = append(blockers, domain.BlockerReason{
					Type:     BlockerClientApproval,
					Label:    "Client approval is missing",
					Severity: SeverityWaiting,
				})
				break
			}
		}
	}

	if n := pendingAssets(st); n > 0 {
		blockers = append(blockers, domain.BlockerReason{
			Type:     BlockerAssetsMissing,
			Label:    fmt.Sprintf("%d requested asset(s) not received", n),
			Severity: SeverityWaiting,
		})
	}

	// A stage manually set to blocked or waiting-client has no base status
	// and still counts as in flight.
	if st.Type == domain.StageTypeDevelopment && inFlight(status) && st.RepoURL == "" {
		blockers = append(blockers, domain.BlockerReason{
			Type:     BlockerRepoEmpty,
			Label:    "Repository URL is empty",
			Severity: SeverityInfo,
		})
	}
	return blockers
}

// AdjustedStatus applies the blocker severities to a stage status. It can move
// a stage to blocked or waiting-client but never advances it.
func AdjustedStatus(st domain.Stage, blockers []domain.BlockerReason) string {
	if st.IsCompleted() {
		return st.Status
	}
	if hasSeverity(blockers, SeverityBlocked) {
		return domain.StageBlocked
	}
	if hasSeverity(blockers, SeverityWaiting) {
		return domain.StageWaitingClient
	}
	return st.Status
}

// ApplyBlockers writes computed results back onto the stages, replacing each
// blockerReasons list wholesale. A stage moved to blocked or waiting-client
// remembers the status it had before, so later passes evaluate the rules
// against that status and give the same result.
func ApplyBlockers(stages []domain.Stage, results []StageBlockers) {
	byID := make(map[string]StageBlockers, len(results))
	for _, r := range results {
		byID[r.StageID] = r
	}
	for i := range stages {
		r, ok := byID[stages[i].ID]
		if !ok {
			continue
		}
		st := &stages[i]
		st.BlockerReasons = append([]domain.BlockerReason{}, r.Blockers...)
		switch {
		case !autoAdjusted(r.Status):
			st.StatusBeforeBlock = ""
		case r.Status != st.Status && !autoAdjusted(st.Status):
			st.StatusBeforeBlock = st.Status
		}
		st.Status = r.Status
	}
}

// baseStatus is the status the blocker rules see: the one recorded before an
// earlier pass moved the stage to blocked or waiting-client, if any.
func baseStatus(st domain.Stage) string {
	if autoAdjusted(st.Status) && st.StatusBeforeBlock != "" {
		return domain.Stage{Status: st.StatusBeforeBlock}.NormalizedStatus()
	}
	return st.NormalizedStatus()
}

func autoAdjusted(status string) bool {
	return status == domain.StageBlocked || status == domain.StageWaitingClient
}

func inFlight(status string) bool {
	switch status {
	case domain.StageInProgress, domain.StageBlocked, domain.StageWaitingClient:
		return true
	}
	return false
}

func hasSeverity(blockers []domain.BlockerReason, severity string) bool {
	for _, b := range blockers {
		if b.Severity == severity {
			return true
		}
	}
	return false
}

func pendingAssets(st domain.Stage) int {
	n := 0
	for _, a := range st.AssetRequests {
		if a.Status == domain.AssetPending {
			n++
		}
	}
	return n
}
