package rules

import (
	"math"
	"time"

	"agencyline/internal/domain"
)

type ClientView struct {
	ProjectName       string               `json:"project_name"`
	Client            string               `json:"client"`
	Progress          int                  `json:"progress"`
	Mode              string               `json:"mode"`
	CurrentStage      string               `json:"current_stage"`
	DueDate           *time.Time           `json:"due_date,omitempty"`
	Phases            []ClientPhase        `json:"phases"`
	Payments          ClientPayments       `json:"payments"`
	PendingFromClient []ClientPendingAsset `json:"pending_from_client"`
	CompletedByClient []ClientSharedAsset  `json:"completed_by_client"`
	BlockerReasons    []ClientBlocker      `json:"blocker_reasons"`
	IsPaused          bool                 `json:"is_paused"`
}

type ClientPhase struct {
	Name            string     `json:"name"`
	Status          string     `json:"status"`
	Icon            string     `json:"icon,omitempty"`
	Order           int        `json:"order"`
	Approved        bool       `json:"approved"`
	Deadline        *time.Time `json:"deadline,omitempty"`
	Type            string     `json:"type"`
	RepoURL         string     `json:"repo_url"`
	LiveURL         string     `json:"live_url"`
	Health          string     `json:"health"`
	HostingProvider string     `json:"hosting_provider"`
	DomainURL       string     `json:"domain_url"`
	SSLStatus       string     `json:"ssl_status"`
	CompletionRate  int        `json:"completion_rate"`
}

type ClientPayments struct {
	Total        float64               `json:"total"`
	Received     float64               `json:"received"`
	Pending      float64               `json:"pending"`
	IsOverdue    bool                  `json:"is_overdue"`
	OverdueCount int                   `json:"overdue_count"`
	Details      []ClientPaymentDetail `json:"details"`
}

type ClientPaymentDetail struct {
	Label  string     `json:"label"`
	Amount float64    `json:"amount"`
	Status string     `json:"status"`
	Date   *time.Time `json:"date,omitempty"`
}

type ClientPendingAsset struct {
	StageName string `json:"stage_name"`
	StageID   string `json:"stage_id"`
	AssetID   string `json:"asset_id"`
	Label     string `json:"label"`
	Type      string `json:"type"`
}

type ClientSharedAsset struct {
	StageName  string     `json:"stage_name"`
	Label      string     `json:"label"`
	ReceivedAt *time.Time `json:"received_at,omitempty"`
	FileName   string     `json:"file_name"`
	FileURL    string     `json:"file_url"`
}

type ClientBlocker struct {
	StageName string `json:"stage_name"`
	domain.BlockerReason
}

// ProjectClientView builds the client-facing projection of a project. Approval
// workflow records, team members and actor ids never reach the result.
func ProjectClientView(p domain.Project, payments []domain.Payment, now time.Time) ClientView {
	view := ClientView{
		ProjectName:       p.Name,
		Client:            p.Client,
		Progress:          p.Progress,
		Mode:              p.Mode,
		CurrentStage:      p.CurrentStage,
		DueDate:           p.DueDate,
		Phases:            []ClientPhase{},
		PendingFromClient: []ClientPendingAsset{},
		CompletedByClient: []ClientSharedAsset{},
		BlockerReasons:    []ClientBlocker{},
		IsPaused:          p.Mode == domain.ModePaused,
	}

	for _, st := range VisibleStages(p.Stages) {
		view.Phases = append(view.Phases, clientPhase(st))
	}

	for _, st := range p.Stages {
		for _, a := range st.AssetRequests {
			switch a.Status {
			case domain.AssetPending:
				view.PendingFromClient = append(view.PendingFromClient, ClientPendingAsset{
					StageName: st.Name, StageID: st.ID, AssetID: a.ID, Label: a.Label, Type: a.Type,
				})
			case domain.AssetReceived:
				view.CompletedByClient = append(view.CompletedByClient, ClientSharedAsset{
					StageName: st.Name, Label: a.Label, ReceivedAt: a.ReceivedAt, FileName: a.FileName, FileURL: a.FileURL,
				})
			}
		}
		for _, b := range st.BlockerReasons {
			view.BlockerReasons = append(view.BlockerReasons, ClientBlocker{StageName: st.Name, BlockerReason: b})
		}
	}

	totals := PaymentTotals(payments, now)
	view.Payments = ClientPayments{
		Total:        totals.Total,
		Received:     totals.Received,
		Pending:      totals.Total - totals.Received,
		IsOverdue:    totals.Overdue > 0,
		OverdueCount: totals.Overdue,
		Details:      make([]ClientPaymentDetail, 0, len(payments)),
	}
	for _, pay := range payments {
		view.Payments.Details = append(view.Payments.Details, ClientPaymentDetail{
			Label: pay.Label, Amount: pay.Amount, Status: pay.Status, Date: pay.Date,
		})
	}
	return view
}

// VisibleStages returns the client-visible stages, or every stage when none is
// marked visible so a misconfigured project is never opaque to its client.
func VisibleStages(stages []domain.Stage) []domain.Stage {
	var out []domain.Stage
	for _, st := range stages {
		if st.ClientVisible {
			out = append(out, st)
		}
	}
	if len(out) == 0 {
		return stages
	}
	return out
}

// CompletionRate is the share of done checklist items, or 100/0 by status for
// stages without items.
func CompletionRate(st domain.Stage) int {
	if len(st.Items) == 0 {
		if st.IsCompleted() {
			return 100
		}
		return 0
	}
	done := 0
	for _, it := range st.Items {
		if it.Done {
			done++
		}
	}
	return int(math.Round(100 * float64(done) / float64(len(st.Items))))
}

func clientPhase(st domain.Stage) ClientPhase {
	return ClientPhase{
		Name:            st.Name,
		Status:          st.Status,
		Icon:            st.Icon,
		Order:           st.Order,
		Approved:        st.Approved,
		Deadline:        st.Deadline,
		Type:            orDefault(st.Type, domain.StageTypeChecklist),
		RepoURL:         st.RepoURL,
		LiveURL:         st.LiveURL,
		Health:          orDefault(st.Health, "pending"),
		HostingProvider: st.HostingProvider,
		DomainURL:       st.DomainURL,
		SSLStatus:       orDefault(st.SSLStatus, "pending"),
		CompletionRate:  CompletionRate(st),
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
