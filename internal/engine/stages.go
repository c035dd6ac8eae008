package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"agencyline/internal/domain"
	"agencyline/internal/engine/auth"
	"agencyline/internal/engine/rules"
	"agencyline/internal/events"
)

// StageUpdateOptions holds the editable stage fields. Approval records and
// blockers are not editable here.
type StageUpdateOptions struct {
	Status                 *string
	Health                 *string
	Approved               *bool
	RepoURL                *string
	LiveURL                *string
	HostingProvider        *string
	DomainURL              *string
	SSLStatus              *string
	Summary                *string
	Deadline               *time.Time
	ClientVisible          *bool
	LinkedPaymentMilestone *string
}

// UpdateStage applies the given fields. Moving a stage to in-progress makes it
// the project's current stage.
func (e Engine) UpdateStage(ctx context.Context, projectID, stageID string, opts StageUpdateOptions, actor domain.Actor) (domain.Project, error) {
	if err := e.authorize(actor, auth.PermStageUpdate); err != nil {
		return domain.Project{}, err
	}
	if opts.Status != nil {
		switch *opts.Status {
		case domain.StagePending, domain.StageInProgress, domain.StageCompleted, domain.StageBlocked, domain.StageWaitingClient:
		default:
			return domain.Project{}, domain.Invalid("status", fmt.Sprintf("unknown stage status %q", *opts.Status))
		}
	}
	return e.mutate(ctx, projectID, actor, func(_ *sql.Tx, p *domain.Project) ([]change, error) {
		_, st, err := domain.FindStage(p, stageID)
		if err != nil {
			return nil, err
		}
		fields := []string{}
		set := func(name string, dst *string, v *string) {
			if v != nil {
				*dst = strings.TrimSpace(*v)
				fields = append(fields, name)
			}
		}
		set("status", &st.Status, opts.Status)
		if opts.Status != nil {
			st.StatusBeforeBlock = ""
		}
		set("health", &st.Health, opts.Health)
		set("repo_url", &st.RepoURL, opts.RepoURL)
		set("live_url", &st.LiveURL, opts.LiveURL)
		set("hosting_provider", &st.HostingProvider, opts.HostingProvider)
		set("domain_url", &st.DomainURL, opts.DomainURL)
		set("ssl_status", &st.SSLStatus, opts.SSLStatus)
		set("summary", &st.Summary, opts.Summary)
		set("linked_payment_milestone", &st.LinkedPaymentMilestone, opts.LinkedPaymentMilestone)
		if opts.Approved != nil {
			st.Approved = *opts.Approved
			fields = append(fields, "approved")
		}
		if opts.Deadline != nil {
			st.Deadline = opts.Deadline
			fields = append(fields, "deadline")
		}
		if opts.ClientVisible != nil {
			st.ClientVisible = *opts.ClientVisible
			fields = append(fields, "client_visible")
		}
		if len(fields) == 0 {
			return nil, domain.Invalid("", "no fields to update")
		}
		if st.Status == domain.StageInProgress {
			p.CurrentStage = st.Name
		}
		return []change{stageChange(events.StageUpdated, st, events.EventPayload{"fields": fields})}, nil
	})
}

func (e Engine) UpdateStageItem(ctx context.Context, projectID, stageID, itemID string, done bool, actor domain.Actor) (domain.Project, error) {
	if err := e.authorize(actor, auth.PermStageUpdate); err != nil {
		return domain.Project{}, err
	}
	return e.mutate(ctx, projectID, actor, func(_ *sql.Tx, p *domain.Project) ([]change, error) {
		_, st, err := domain.FindStage(p, stageID)
		if err != nil {
			return nil, err
		}
		i, err := domain.FindItem(st, itemID)
		if err != nil {
			return nil, err
		}
		st.Items[i].Done = done
		return []change{stageChange(events.StageItemUpdated, st, events.EventPayload{"item_id": itemID, "done": done})}, nil
	})
}

// ToggleStageVisibility sets the client visibility of a stage, or flips it
// when visible is nil.
func (e Engine) ToggleStageVisibility(ctx context.Context, projectID, stageID string, visible *bool, actor domain.Actor) (domain.Project, error) {
	if err := e.authorize(actor, auth.PermStageVisibility); err != nil {
		return domain.Project{}, err
	}
	return e.mutate(ctx, projectID, actor, func(_ *sql.Tx, p *domain.Project) ([]change, error) {
		_, st, err := domain.FindStage(p, stageID)
		if err != nil {
			return nil, err
		}
		if visible != nil {
			st.ClientVisible = *visible
		} else {
			st.ClientVisible = !st.ClientVisible
		}
		return []change{stageChange(events.StageVisibility, st, events.EventPayload{"client_visible": st.ClientVisible})}, nil
	})
}

// LinkPaymentToStage ties a stage to a payment milestone label. An empty
// label removes the link. The label is not checked against existing payments.
func (e Engine) LinkPaymentToStage(ctx context.Context, projectID, stageID, milestone string, actor domain.Actor) (domain.Project, error) {
	if err := e.authorize(actor, auth.PermPaymentLink); err != nil {
		return domain.Project{}, err
	}
	milestone = strings.TrimSpace(milestone)
	return e.mutate(ctx, projectID, actor, func(_ *sql.Tx, p *domain.Project) ([]change, error) {
		_, st, err := domain.FindStage(p, stageID)
		if err != nil {
			return nil, err
		}
		st.LinkedPaymentMilestone = milestone
		return []change{stageChange(events.StagePaymentLinked, st, events.EventPayload{"milestone": milestone})}, nil
	})
}

// StageReport returns the data of a printable stage report of the given kind.
func (e Engine) StageReport(ctx context.Context, projectID, stageID, kind string, actor domain.Actor) (rules.StageReport, error) {
	if err := e.authorize(actor, auth.PermReportRead); err != nil {
		return rules.StageReport{}, err
	}
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return rules.StageReport{}, err
	}
	_, st, err := domain.FindStage(&p, stageID)
	if err != nil {
		return rules.StageReport{}, err
	}
	return rules.BuildStageReport(p, *st, kind, e.now())
}
