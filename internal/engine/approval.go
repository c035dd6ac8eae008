package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"agencyline/internal/automation"
	"agencyline/internal/domain"
	"agencyline/internal/engine/auth"
	"agencyline/internal/events"
)

// Approval steps of a stage.
const (
	stepSubmit   = "submit"
	stepSubadmin = "subadmin_review"
	stepAdmin    = "admin_approve"
)

// normalizeDecision defaults an empty decision to approved.
func normalizeDecision(decision string) (string, error) {
	switch d := strings.ToLower(strings.TrimSpace(decision)); d {
	case "":
		return domain.DecisionApproved, nil
	case domain.DecisionApproved, domain.DecisionRejected:
		return d, nil
	default:
		return "", domain.Invalid("decision", fmt.Sprintf("must be approved or rejected, got %q", decision))
	}
}

// ensureApprovalTransition checks that step may run against the workflow
// record. Submission is always allowed and resets the record.
func ensureApprovalTransition(step string, wf domain.ApprovalWorkflow) error {
	switch step {
	case stepSubmit:
		return nil
	case stepSubadmin:
		if wf.SubmittedAt != nil {
			return nil
		}
		return domain.InvalidState(step, "stage has not been submitted for approval")
	case stepAdmin:
		if wf.SubadminReview.Status == domain.DecisionApproved {
			return nil
		}
		return domain.InvalidState(step, fmt.Sprintf("sub-admin review is %s, must be approved", wf.SubadminReview.Status))
	}
	return fmt.Errorf("invalid approval step %s", step)
}

func (e Engine) SubmitStageForApproval(ctx context.Context, projectID, stageID string, actor domain.Actor) (domain.Project, error) {
	if err := e.authorize(actor, auth.PermStageSubmit); err != nil {
		return domain.Project{}, err
	}
	now := e.now().UTC()
	p, err := e.mutate(ctx, projectID, actor, func(_ *sql.Tx, p *domain.Project) ([]change, error) {
		_, st, err := domain.FindStage(p, stageID)
		if err != nil {
			return nil, err
		}
		if err := ensureApprovalTransition(stepSubmit, st.ApprovalWorkflow); err != nil {
			return nil, err
		}
		st.ApprovalWorkflow = domain.ApprovalWorkflow{
			SubmittedAt:     &now,
			SubmittedBy:     actor.ID,
			SubmittedByName: actor.Name,
			SubadminReview:  domain.ReviewDecision{Status: domain.DecisionPending},
			AdminApproval:   domain.ReviewDecision{Status: domain.DecisionPending},
		}
		return []change{stageChange(events.StageSubmitted, st, nil)}, nil
	})
	if err != nil {
		return domain.Project{}, err
	}
	e.Metrics.StageTransition(stepSubmit, "")
	return p, nil
}

func (e Engine) SubadminReviewStage(ctx context.Context, projectID, stageID string, actor domain.Actor, decision, comment string) (domain.Project, error) {
	if err := e.authorize(actor, auth.PermStageReview); err != nil {
		return domain.Project{}, err
	}
	decision, err := normalizeDecision(decision)
	if err != nil {
		return domain.Project{}, err
	}
	now := e.now().UTC()
	p, err := e.mutate(ctx, projectID, actor, func(_ *sql.Tx, p *domain.Project) ([]change, error) {
		_, st, err := domain.FindStage(p, stageID)
		if err != nil {
			return nil, err
		}
		if err := ensureApprovalTransition(stepSubadmin, st.ApprovalWorkflow); err != nil {
			return nil, err
		}
		st.ApprovalWorkflow.SubadminReview = domain.ReviewDecision{
			Status:    decision,
			ActorID:   actor.ID,
			ActorName: actor.Name,
			At:        &now,
			Comment:   comment,
		}
		return []change{stageChange(events.StageSubadminReviewed, st, events.EventPayload{"decision": decision, "comment": comment})}, nil
	})
	if err != nil {
		return domain.Project{}, err
	}
	e.Metrics.StageTransition(stepSubadmin, decision)
	return p, nil
}

// AdminApproveStage records the final decision. An approval completes the
// stage, moves the next stage in order to in-progress when it is still
// pending, and then hands the committed project to the automation hooks.
func (e Engine) AdminApproveStage(ctx context.Context, projectID, stageID string, actor domain.Actor, decision, comment string) (domain.Project, error) {
	if err := e.authorize(actor, auth.PermStageApprove); err != nil {
		return domain.Project{}, err
	}
	decision, err := normalizeDecision(decision)
	if err != nil {
		return domain.Project{}, err
	}
	now := e.now().UTC()
	approved := false
	p, err := e.mutate(ctx, projectID, actor, func(_ *sql.Tx, p *domain.Project) ([]change, error) {
		_, st, err := domain.FindStage(p, stageID)
		if err != nil {
			return nil, err
		}
		if err := ensureApprovalTransition(stepAdmin, st.ApprovalWorkflow); err != nil {
			return nil, err
		}
		st.ApprovalWorkflow.AdminApproval = domain.ReviewDecision{
			Status:    decision,
			ActorID:   actor.ID,
			ActorName: actor.Name,
			At:        &now,
			Comment:   comment,
		}
		changes := []change{stageChange(events.StageAdminReviewed, st, events.EventPayload{"decision": decision, "comment": comment})}
		if decision != domain.DecisionApproved {
			return changes, nil
		}
		st.Approved = true
		st.Status = domain.StageCompleted
		st.StatusBeforeBlock = ""
		approved = true
		if next, ok := domain.FindStageByOrder(p, st.Order+1); ok && next.Status == domain.StagePending {
			next.Status = domain.StageInProgress
			p.CurrentStage = next.Name
			changes = append(changes, stageChange(events.StageAdvanced, next, events.EventPayload{"from": st.Name}))
		}
		return changes, nil
	})
	if err != nil {
		return domain.Project{}, err
	}
	e.Metrics.StageTransition(stepAdmin, decision)
	if approved && e.Automation != nil {
		_, st, _ := domain.FindStage(&p, stageID)
		results := e.Automation.OnStageApproved(ctx, automation.StageApproved{
			Project:   p.Clone(),
			StageID:   st.ID,
			StageName: st.Name,
			Actor:     actor,
			At:        now,
		})
		e.logger().Debug("automation dispatched",
			zap.String("project_id", p.ID),
			zap.String("stage", st.Name),
			zap.Int("hooks", len(results)))
	}
	return p, nil
}
