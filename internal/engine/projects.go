package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"agencyline/internal/domain"
	"agencyline/internal/engine/auth"
	"agencyline/internal/engine/rules"
	"agencyline/internal/events"
	"agencyline/internal/repo"
)

// ProjectCreateOptions are the intake parameters of a project. Zero
// AdvancePercent and Milestones fall back to the agency intake defaults.
type ProjectCreateOptions struct {
	ID             string
	Name           string
	Client         string
	Type           string
	Priority       string
	Description    string
	DueDate        *time.Time
	StartDate      *time.Time
	Team           []domain.TeamMember
	TotalAmount    float64
	AdvancePercent *float64
	Milestones     int
	ClientDetails  *domain.ClientDetails
}

// CreateProject seeds the stage template and the payment schedule.
func (e Engine) CreateProject(ctx context.Context, opts ProjectCreateOptions, actor domain.Actor) (domain.Project, error) {
	if err := e.authorize(actor, auth.PermProjectCreate); err != nil {
		return domain.Project{}, err
	}
	if opts.TotalAmount < 0 {
		return domain.Project{}, domain.Invalid("total_amount", "must not be negative")
	}
	advance, milestones := e.intakeDefaults()
	if opts.AdvancePercent != nil {
		advance = *opts.AdvancePercent
	}
	if opts.Milestones > 0 {
		milestones = opts.Milestones
	}
	if advance < 0 || advance > 100 {
		return domain.Project{}, domain.Invalid("advance_percent", "must be between 0 and 100")
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.Type == "" {
		opts.Type = "web"
	}
	if opts.Priority == "" {
		opts.Priority = "medium"
	}
	team := opts.Team
	if team == nil {
		team = []domain.TeamMember{}
	}
	p := domain.Project{
		ID:             opts.ID,
		Name:           strings.TrimSpace(opts.Name),
		Client:         strings.TrimSpace(opts.Client),
		Type:           opts.Type,
		Priority:       opts.Priority,
		Status:         "info",
		Mode:           domain.ModeActive,
		DueDate:        opts.DueDate,
		StartDate:      opts.StartDate,
		Team:           team,
		Stages:         domain.DefaultStages(),
		TotalAmount:    opts.TotalAmount,
		AdvancePercent: advance,
		Milestones:     milestones,
		Description:    opts.Description,
		ClientDetails:  opts.ClientDetails,
		CreatedAt:      timestamp(e.now()),
	}
	p.CurrentStage = p.Stages[0].Name
	p.RecomputeProgress()
	if err := p.Validate(); err != nil {
		return domain.Project{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertProject(ctx, tx, &p); err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.ProjectCreated, p.ID, "project", p.ID, actor.ID, events.EventPayload{"name": p.Name, "client": p.Client}); err != nil {
		return domain.Project{}, err
	}
	for _, sp := range rules.PaymentSchedule(p.TotalAmount, p.AdvancePercent, p.Milestones) {
		pay := domain.Payment{
			ID:        uuid.NewString(),
			ProjectID: p.ID,
			Label:     sp.Label,
			Amount:    sp.Amount,
			Status:    domain.PaymentPending,
			CreatedAt: p.CreatedAt,
		}
		if err := e.Repo.InsertPayment(ctx, tx, pay); err != nil {
			return domain.Project{}, fmt.Errorf("insert payment %s: %w", pay.Label, err)
		}
		if err := e.Events.Append(ctx, tx, events.PaymentRecorded, p.ID, "payment", pay.ID, actor.ID, events.EventPayload{"label": pay.Label, "amount": pay.Amount}); err != nil {
			return domain.Project{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func (e Engine) intakeDefaults() (float64, int) {
	if e.Config == nil {
		return 25, 3
	}
	return e.Config.Intake.AdvancePercent, e.Config.Intake.Milestones
}

func (e Engine) GetProject(ctx context.Context, projectID string, actor domain.Actor) (domain.Project, error) {
	if err := e.authorize(actor, auth.PermProjectRead); err != nil {
		return domain.Project{}, err
	}
	return e.Repo.GetProject(ctx, projectID)
}

func (e Engine) ListProjects(ctx context.Context, f repo.ProjectFilters, actor domain.Actor) ([]domain.Project, error) {
	if err := e.authorize(actor, auth.PermProjectRead); err != nil {
		return nil, err
	}
	if f.Mode != "" && !domain.ValidMode(f.Mode) {
		return nil, domain.Invalid("mode", fmt.Sprintf("unknown mode %q", f.Mode))
	}
	return e.Repo.ListProjects(ctx, f)
}

// ProjectUpdateOptions lists the editable project fields; nil leaves a field as is.
type ProjectUpdateOptions struct {
	Name          *string
	Client        *string
	Type          *string
	Priority      *string
	Status        *string
	Mode          *string
	Description   *string
	DueDate       *time.Time
	StartDate     *time.Time
	Team          []domain.TeamMember
	ClientDetails *domain.ClientDetails
}

func (e Engine) UpdateProject(ctx context.Context, projectID string, opts ProjectUpdateOptions, actor domain.Actor) (domain.Project, error) {
	if err := e.authorize(actor, auth.PermProjectUpdate); err != nil {
		return domain.Project{}, err
	}
	return e.mutate(ctx, projectID, actor, func(_ *sql.Tx, p *domain.Project) ([]change, error) {
		fields := []string{}
		set := func(name string, dst *string, v *string) {
			if v != nil {
				*dst = strings.TrimSpace(*v)
				fields = append(fields, name)
			}
		}
		set("name", &p.Name, opts.Name)
		set("client", &p.Client, opts.Client)
		set("type", &p.Type, opts.Type)
		set("priority", &p.Priority, opts.Priority)
		set("status", &p.Status, opts.Status)
		set("description", &p.Description, opts.Description)
		if opts.Mode != nil {
			if *opts.Mode == domain.ModeMaintenance && p.Mode != domain.ModeMaintenance {
				return nil, domain.InvalidState("update_project", "use maintenance entry to switch a project to maintenance")
			}
			p.Mode = *opts.Mode
			fields = append(fields, "mode")
		}
		if opts.DueDate != nil {
			p.DueDate = opts.DueDate
			fields = append(fields, "due_date")
		}
		if opts.StartDate != nil {
			p.StartDate = opts.StartDate
			fields = append(fields, "start_date")
		}
		if opts.Team != nil {
			p.Team = opts.Team
			fields = append(fields, "team")
		}
		if opts.ClientDetails != nil {
			p.ClientDetails = opts.ClientDetails
			fields = append(fields, "client_details")
		}
		if len(fields) == 0 {
			return nil, domain.Invalid("", "no fields to update")
		}
		return []change{projectChange(events.ProjectUpdated, p.ID, events.EventPayload{"fields": fields})}, nil
	})
}

// ProjectStats counts projects by their status flag.
type ProjectStats struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Warning int `json:"warning"`
	Danger  int `json:"danger"`
	Info    int `json:"info"`
}

func (e Engine) ProjectStats(ctx context.Context, actor domain.Actor) (ProjectStats, error) {
	if err := e.authorize(actor, auth.PermProjectRead); err != nil {
		return ProjectStats{}, err
	}
	counts, err := e.Repo.CountProjectsByStatus(ctx)
	if err != nil {
		return ProjectStats{}, err
	}
	s := ProjectStats{
		Success: counts["success"],
		Warning: counts["warning"],
		Danger:  counts["danger"],
		Info:    counts["info"],
	}
	for _, n := range counts {
		s.Total += n
	}
	return s, nil
}
