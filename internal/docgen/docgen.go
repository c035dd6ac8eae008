// Package docgen writes the structured documents produced by stage approvals.
// Documents hold JSON content; rendering them to PDF or mail is left to consumers.
package docgen

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"agencyline/internal/domain"
	"agencyline/internal/engine/rules"
	"agencyline/internal/events"
	"agencyline/internal/repo"
)

const (
	TypeStageSummary         = "stage-summary"
	TypeHandoverKit          = "handover-kit"
	TypeMaintenanceAgreement = "maintenance-agreement"
)

type Generator struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Now    func() time.Time
}

func New(db *sql.DB) Generator {
	return Generator{DB: db, Repo: repo.Repo{DB: db}, Events: events.Writer{}, Now: time.Now}
}

func (g Generator) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

type stageSummary struct {
	ProjectName    string                 `json:"project_name"`
	Client         string                 `json:"client"`
	Stage          string                 `json:"stage"`
	Order          int                    `json:"order"`
	Status         string                 `json:"status"`
	ApprovedBy     string                 `json:"approved_by,omitempty"`
	ReviewedBy     string                 `json:"reviewed_by,omitempty"`
	Summary        string                 `json:"summary,omitempty"`
	CompletionRate int                    `json:"completion_rate"`
	Checklist      []domain.ChecklistItem `json:"checklist,omitempty"`
	Assets         []string               `json:"assets_received,omitempty"`
	RepoURL        string                 `json:"repo_url,omitempty"`
	LiveURL        string                 `json:"live_url,omitempty"`
	ProjectStatus  int                    `json:"project_progress"`
}

func (g Generator) GenerateStageSummary(ctx context.Context, p domain.Project, stageID string, actor domain.Actor) (domain.Document, error) {
	_, st, err := domain.FindStage(&p, stageID)
	if err != nil {
		return domain.Document{}, err
	}
	content := stageSummary{
		ProjectName:    p.Name,
		Client:         p.Client,
		Stage:          st.Name,
		Order:          st.Order,
		Status:         st.Status,
		ApprovedBy:     st.ApprovalWorkflow.AdminApproval.ActorName,
		ReviewedBy:     st.ApprovalWorkflow.SubadminReview.ActorName,
		Summary:        st.Summary,
		CompletionRate: rules.CompletionRate(*st),
		Checklist:      st.Items,
		RepoURL:        st.RepoURL,
		LiveURL:        st.LiveURL,
		ProjectStatus:  p.Progress,
	}
	for _, a := range st.AssetRequests {
		if a.Status == domain.AssetReceived {
			content.Assets = append(content.Assets, a.Label)
		}
	}
	return g.store(ctx, p, actor, TypeStageSummary, fmt.Sprintf("%s Stage Summary - %s", st.Name, p.Name), st.Name, content)
}

type handoverKit struct {
	ProjectName     string           `json:"project_name"`
	Client          string           `json:"client"`
	HostingProvider string           `json:"hosting_provider"`
	Domain          string           `json:"domain"`
	SSLStatus       string           `json:"ssl_status"`
	LiveURLs        []rules.RepoLink `json:"live_urls"`
	Repositories    []rules.RepoLink `json:"repositories"`
	Stages          []string         `json:"completed_stages"`
}

func (g Generator) GenerateHandoverKit(ctx context.Context, p domain.Project, actor domain.Actor) (domain.Document, error) {
	content := handoverKit{ProjectName: p.Name, Client: p.Client}
	for _, st := range p.Stages {
		if st.Name == domain.StageHosting {
			content.HostingProvider = st.HostingProvider
			content.Domain = st.DomainURL
			content.SSLStatus = st.SSLStatus
		}
		if st.RepoURL != "" {
			content.Repositories = append(content.Repositories, rules.RepoLink{Stage: st.Name, URL: st.RepoURL})
		}
		if st.LiveURL != "" {
			content.LiveURLs = append(content.LiveURLs, rules.RepoLink{Stage: st.Name, URL: st.LiveURL})
		}
		if st.IsCompleted() {
			content.Stages = append(content.Stages, st.Name)
		}
	}
	return g.store(ctx, p, actor, TypeHandoverKit, "Handover Kit - "+p.Name, domain.StageDelivery, content)
}

type maintenanceAgreement struct {
	ProjectName string   `json:"project_name"`
	Client      string   `json:"client"`
	StartDate   string   `json:"start_date"`
	Scope       []string `json:"scope"`
	Notes       string   `json:"notes,omitempty"`
}

func (g Generator) GenerateMaintenanceAgreement(ctx context.Context, p domain.Project, actor domain.Actor) (domain.Document, error) {
	content := maintenanceAgreement{
		ProjectName: p.Name,
		Client:      p.Client,
		StartDate:   g.now().UTC().Format("2006-01-02"),
		Scope: []string{
			"Bug fixes for delivered features",
			"Security and dependency updates",
			"Hosting and SSL monitoring",
		},
		Notes: p.MaintenanceNotes,
	}
	return g.store(ctx, p, actor, TypeMaintenanceAgreement, "Maintenance Agreement - "+p.Name, domain.StageDelivery, content)
}

// SaveDocument stores a document built elsewhere and records the event.
func (g Generator) SaveDocument(ctx context.Context, doc domain.Document) error {
	tx, err := g.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := g.Repo.InsertDocument(ctx, tx, doc); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	if err := g.Events.Append(ctx, tx, events.DocumentGenerated, doc.ProjectID, "document", doc.ID, doc.GeneratedBy, events.EventPayload{
		"type":  doc.Type,
		"title": doc.Title,
		"stage": doc.Stage,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

func (g Generator) store(ctx context.Context, p domain.Project, actor domain.Actor, docType, title, stage string, content any) (domain.Document, error) {
	body, err := json.Marshal(content)
	if err != nil {
		return domain.Document{}, err
	}
	doc := domain.Document{
		ID:              uuid.NewString(),
		ProjectID:       p.ID,
		Type:            docType,
		Title:           title,
		Stage:           stage,
		Status:          "draft",
		Content:         string(body),
		GeneratedBy:     actor.ID,
		GeneratedByName: actor.Name,
		GeneratedAt:     g.now().UTC().Format(time.RFC3339),
	}
	if err := g.SaveDocument(ctx, doc); err != nil {
		return domain.Document{}, err
	}
	return doc, nil
}
