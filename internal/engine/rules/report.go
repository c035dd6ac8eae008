package rules

import (
	"fmt"
	"time"

	"agencyline/internal/domain"
)

const (
	ReportTechnical = "technical"
	ReportClient    = "client"
	ReportHandover  = "handover"
)

type ReportMember struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

type RepoLink struct {
	Stage string `json:"stage"`
	URL   string `json:"url"`
}

// StageReport is the data behind a printable stage report. Which optional
// sections are filled depends on Type.
type StageReport struct {
	ProjectName string `json:"project_name"`
	ClientName  string `json:"client_name"`
	StageName   string `json:"stage_name"`
	StageStatus string `json:"stage_status"`
	StageIcon   string `json:"stage_icon,omitempty"`
	GeneratedAt string `json:"generated_at"`
	Type        string `json:"type"`

	Team           []ReportMember         `json:"team,omitempty"`
	Deadline       *time.Time             `json:"deadline,omitempty"`
	RepoURL        string                 `json:"repo_url,omitempty"`
	LiveURL        string                 `json:"live_url,omitempty"`
	Health         string                 `json:"health,omitempty"`
	Checklist      []domain.ChecklistItem `json:"checklist,omitempty"`
	CompletionRate *int                   `json:"completion_rate,omitempty"`
	Blockers       []domain.BlockerReason `json:"blockers,omitempty"`
	Remarks        string                 `json:"remarks,omitempty"`

	Progress          *int     `json:"progress,omitempty"`
	Deliverables      []string `json:"deliverables,omitempty"`
	CompletedItems    []string `json:"completed_items,omitempty"`
	PendingFromClient []string `json:"pending_from_client,omitempty"`

	HostingProvider string     `json:"hosting_provider,omitempty"`
	Domain          string     `json:"domain,omitempty"`
	SSLStatus       string     `json:"ssl_status,omitempty"`
	RepoLinks       []RepoLink `json:"repo_links,omitempty"`
	DeploymentNotes string     `json:"deployment_notes,omitempty"`
}

func ValidReportType(t string) bool {
	return t == ReportTechnical || t == ReportClient || t == ReportHandover
}

// BuildStageReport assembles report data for one stage. An empty kind means technical.
func BuildStageReport(p domain.Project, st domain.Stage, kind string, now time.Time) (StageReport, error) {
	if kind == "" {
		kind = ReportTechnical
	}
	if !ValidReportType(kind) {
		return StageReport{}, domain.Invalid("type", fmt.Sprintf("unknown report type %q", kind))
	}
	r := StageReport{
		ProjectName: p.Name,
		ClientName:  p.Client,
		StageName:   st.Name,
		StageStatus: st.Status,
		StageIcon:   st.Icon,
		GeneratedAt: now.UTC().Format(time.RFC3339),
		Type:        kind,
	}
	switch kind {
	case ReportTechnical:
		for _, m := range p.Team {
			r.Team = append(r.Team, ReportMember{Name: m.Name, Role: m.Role})
		}
		rate := 0
		if len(st.Items) > 0 {
			rate = CompletionRate(st)
		}
		r.Deadline = st.Deadline
		r.RepoURL = orDefault(st.RepoURL, "N/A")
		r.LiveURL = orDefault(st.LiveURL, "N/A")
		r.Health = orDefault(st.Health, "pending")
		r.Checklist = append([]domain.ChecklistItem{}, st.Items...)
		r.CompletionRate = &rate
		r.Blockers = append([]domain.BlockerReason{}, st.BlockerReasons...)
		r.Remarks = orDefault(st.Summary, "No remarks")
	case ReportClient:
		progress := p.Progress
		r.Progress = &progress
		r.Deliverables = []string{}
		r.CompletedItems = []string{}
		r.PendingFromClient = []string{}
		for _, it := range st.Items {
			r.Deliverables = append(r.Deliverables, it.Text)
			if it.Done {
				r.CompletedItems = append(r.CompletedItems, it.Text)
			}
		}
		for _, a := range st.AssetRequests {
			if a.Status == domain.AssetPending {
				r.PendingFromClient = append(r.PendingFromClient, a.Label)
			}
		}
	case ReportHandover:
		r.HostingProvider, r.Domain, r.SSLStatus = "N/A", "N/A", "N/A"
		for _, s := range p.Stages {
			if s.Name == domain.StageHosting {
				r.HostingProvider = s.HostingProvider
				r.Domain = s.DomainURL
				r.SSLStatus = s.SSLStatus
			}
			if s.RepoURL != "" {
				r.RepoLinks = append(r.RepoLinks, RepoLink{Stage: s.Name, URL: s.RepoURL})
			}
		}
		r.DeploymentNotes = st.Summary
	}
	return r, nil
}
