package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"agencyline/internal/domain"
	"agencyline/internal/engine/auth"
	"agencyline/internal/engine/rules"
	"agencyline/internal/events"
)

// ComputeBlockers re-derives every stage's blockers from the project and its
// payments, persists them with the adjusted statuses and returns the results.
func (e Engine) ComputeBlockers(ctx context.Context, projectID string, actor domain.Actor) ([]rules.StageBlockers, error) {
	if err := e.authorize(actor, auth.PermBlockersCompute); err != nil {
		return nil, err
	}
	var results []rules.StageBlockers
	_, err := e.mutate(ctx, projectID, actor, func(tx *sql.Tx, p *domain.Project) ([]change, error) {
		payments, err := e.Repo.ListPayments(ctx, tx, p.ID)
		if err != nil {
			return nil, err
		}
		results = rules.ComputeBlockers(p.Stages, payments)
		rules.ApplyBlockers(p.Stages, results)
		count := 0
		for _, r := range results {
			count += len(r.Blockers)
		}
		return []change{projectChange(events.ProjectBlockers, p.ID, events.EventPayload{"blockers": count})}, nil
	})
	if err != nil {
		return nil, err
	}
	e.Metrics.BlockerRun()
	return results, nil
}

// applyOverduePause pauses an active project that has an overdue payment and
// flags it danger. It reports whether anything changed; a project that is not
// active is left alone.
func applyOverduePause(p *domain.Project, payments []domain.Payment, now time.Time) bool {
	if p.Mode != domain.ModeActive || !rules.HasOverduePayment(payments, now) {
		return false
	}
	p.Mode = domain.ModePaused
	p.Status = "danger"
	return true
}

func pausedChange(p *domain.Project, reason string) change {
	return projectChange(events.ProjectPaused, p.ID, events.EventPayload{"mode": p.Mode, "reason": reason})
}

// GetProjectHealth scores the project, stores the snapshot and applies the
// overdue pause.
func (e Engine) GetProjectHealth(ctx context.Context, projectID string, actor domain.Actor) (rules.HealthReport, error) {
	if err := e.authorize(actor, auth.PermHealthRead); err != nil {
		return rules.HealthReport{}, err
	}
	now := e.now()
	var (
		report rules.HealthReport
		paused bool
	)
	_, err := e.mutate(ctx, projectID, actor, func(tx *sql.Tx, p *domain.Project) ([]change, error) {
		payments, err := e.Repo.ListPayments(ctx, tx, p.ID)
		if err != nil {
			return nil, err
		}
		p.RecomputeProgress()
		report = rules.ComputeHealth(*p, payments, now)
		p.Health = report.Health
		changes := []change{projectChange(events.ProjectHealth, p.ID, events.EventPayload{"overall_score": report.OverallScore})}
		if paused = applyOverduePause(p, payments, now); paused {
			changes = append(changes, pausedChange(p, "health"))
		}
		return changes, nil
	})
	if err != nil {
		return rules.HealthReport{}, err
	}
	e.Metrics.HealthScore(projectID, report.OverallScore)
	if paused {
		e.Metrics.OverduePause()
		e.logger().Info("project paused on overdue payment", zap.String("project_id", projectID), zap.String("source", "health"))
	}
	return report, nil
}

// CheckPaymentOverdue is the standalone form of the overdue pause, meant for
// scheduled runs. It writes nothing when the project needs no change.
func (e Engine) CheckPaymentOverdue(ctx context.Context, projectID string, actor domain.Actor) (bool, error) {
	if err := e.authorize(actor, auth.PermOverdueCheck); err != nil {
		return false, err
	}
	now := e.now()
	paused := false
	_, err := e.mutate(ctx, projectID, actor, func(tx *sql.Tx, p *domain.Project) ([]change, error) {
		payments, err := e.Repo.ListPayments(ctx, tx, p.ID)
		if err != nil {
			return nil, err
		}
		if !applyOverduePause(p, payments, now) {
			return nil, errUnchanged
		}
		paused = true
		return []change{pausedChange(p, "overdue-check")}, nil
	})
	if err != nil {
		return false, err
	}
	if paused {
		e.Metrics.OverduePause()
		e.logger().Info("project paused on overdue payment", zap.String("project_id", projectID), zap.String("source", "overdue-check"))
	}
	return paused, nil
}

// CheckAllOverdue runs the overdue check over every active project holding an
// overdue payment and returns the ids it paused. A failing project does not
// stop the others; their errors are joined.
func (e Engine) CheckAllOverdue(ctx context.Context, actor domain.Actor) ([]string, error) {
	if err := e.authorize(actor, auth.PermOverdueCheck); err != nil {
		return nil, err
	}
	ids, err := e.Repo.ProjectsWithOverduePayments(ctx, e.now())
	if err != nil {
		return nil, err
	}
	var (
		paused []string
		errs   []error
	)
	for _, id := range ids {
		ok, err := e.CheckPaymentOverdue(ctx, id, actor)
		if err != nil {
			e.logger().Warn("overdue check failed", zap.String("project_id", id), zap.Error(err))
			errs = append(errs, fmt.Errorf("project %s: %w", id, err))
			continue
		}
		if ok {
			paused = append(paused, id)
		}
	}
	return paused, errors.Join(errs...)
}

// CheckResult is the outcome of RunChecks.
type CheckResult struct {
	Paused   bool                  `json:"paused"`
	Blockers []rules.StageBlockers `json:"blockers"`
}

// RunChecks runs the overdue check and then recomputes blockers so pending
// payments and missing assets are reflected on the stages.
func (e Engine) RunChecks(ctx context.Context, projectID string, actor domain.Actor) (CheckResult, error) {
	paused, err := e.CheckPaymentOverdue(ctx, projectID, actor)
	if err != nil {
		return CheckResult{}, err
	}
	blockers, err := e.ComputeBlockers(ctx, projectID, actor)
	if err != nil {
		return CheckResult{}, err
	}
	return CheckResult{Paused: paused, Blockers: blockers}, nil
}

// GetClientView projects the project for its client. It reads only.
func (e Engine) GetClientView(ctx context.Context, projectID string, actor domain.Actor) (rules.ClientView, error) {
	if err := e.authorize(actor, auth.PermClientViewRead); err != nil {
		return rules.ClientView{}, err
	}
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return rules.ClientView{}, err
	}
	payments, err := e.Repo.ListPayments(ctx, nil, p.ID)
	if err != nil {
		return rules.ClientView{}, err
	}
	return rules.ProjectClientView(p, payments, e.now()), nil
}
