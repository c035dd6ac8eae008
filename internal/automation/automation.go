package automation

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"agencyline/internal/domain"
	"agencyline/internal/metrics"
)

const DefaultHookTimeout = 15 * time.Second

// StageApproved is emitted after a stage's final approval has been committed.
// Project is a copy of the committed aggregate.
type StageApproved struct {
	Project   domain.Project
	StageID   string
	StageName string
	Actor     domain.Actor
	At        time.Time
}

// DocumentGenerator produces client documents for a project.
type DocumentGenerator interface {
	GenerateStageSummary(ctx context.Context, project domain.Project, stageID string, actor domain.Actor) (domain.Document, error)
	GenerateHandoverKit(ctx context.Context, project domain.Project, actor domain.Actor) (domain.Document, error)
	GenerateMaintenanceAgreement(ctx context.Context, project domain.Project, actor domain.Actor) (domain.Document, error)
}

// DocumentStore persists documents synthesized by hooks themselves.
type DocumentStore interface {
	SaveDocument(ctx context.Context, doc domain.Document) error
}

// AuditSink records the outcome of a dispatch in the event log.
type AuditSink interface {
	Record(ctx context.Context, evtType, projectID, entityKind, entityID, actorID string, payload map[string]any) error
}

type Hook struct {
	Name string
	// When restricts the hook to matching events; nil runs on every approval.
	When func(evt StageApproved) bool
	Run  func(ctx context.Context, evt StageApproved) error
}

type HookResult struct {
	Hook     string        `json:"hook"`
	Outcome  string        `json:"outcome"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

const (
	OutcomeOK      = "ok"
	OutcomeFailed  = "failed"
	OutcomePanic   = "panic"
	OutcomeTimeout = "timeout"
	OutcomeSkipped = "skipped"
)

// Dispatcher runs the post-approval hook list. Each hook is isolated: its own
// timeout, its own panic recovery. Failures are logged and counted, never
// returned to the caller.
type Dispatcher struct {
	Hooks   []Hook
	Timeout time.Duration
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	Audit   AuditSink
}

func (d Dispatcher) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

func (d Dispatcher) timeout() time.Duration {
	if d.Timeout <= 0 {
		return DefaultHookTimeout
	}
	return d.Timeout
}

// OnStageApproved runs every matching hook in order. Hooks run detached from
// the caller's cancellation so an aborted request does not cut them short.
func (d Dispatcher) OnStageApproved(ctx context.Context, evt StageApproved) []HookResult {
	base := context.WithoutCancel(ctx)
	log := d.logger().With(
		zap.String("project_id", evt.Project.ID),
		zap.String("stage", evt.StageName),
		zap.String("actor_id", evt.Actor.ID),
	)
	results := make([]HookResult, 0, len(d.Hooks))
	for _, h := range d.Hooks {
		if h.When != nil && !h.When(evt) {
			continue
		}
		res := d.runHook(base, h, evt)
		d.Metrics.HookRun(h.Name, res.Outcome, res.Duration)
		if res.Outcome != OutcomeOK {
			log.Warn("automation hook failed",
				zap.String("hook", h.Name),
				zap.String("outcome", res.Outcome),
				zap.String("error", res.Error),
				zap.Duration("took", res.Duration))
		} else {
			log.Debug("automation hook done", zap.String("hook", h.Name), zap.Duration("took", res.Duration))
		}
		results = append(results, res)
	}
	d.audit(base, evt, results, log)
	return results
}

func (d Dispatcher) runHook(parent context.Context, h Hook, evt StageApproved) HookResult {
	ctx, cancel := context.WithTimeout(parent, d.timeout())
	defer cancel()
	start := time.Now()
	done := make(chan HookResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- HookResult{Hook: h.Name, Outcome: OutcomePanic, Error: fmt.Sprintf("%v\n%s", r, debug.Stack())}
			}
		}()
		if err := h.Run(ctx, evt); err != nil {
			done <- HookResult{Hook: h.Name, Outcome: OutcomeFailed, Error: err.Error()}
			return
		}
		done <- HookResult{Hook: h.Name, Outcome: OutcomeOK}
	}()
	var res HookResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res = HookResult{Hook: h.Name, Outcome: OutcomeTimeout, Error: ctx.Err().Error()}
	}
	res.Duration = time.Since(start)
	return res
}

func (d Dispatcher) audit(ctx context.Context, evt StageApproved, results []HookResult, log *zap.Logger) {
	if d.Audit == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout())
	defer cancel()
	ran := make([]string, 0, len(results))
	for _, r := range results {
		if r.Outcome == OutcomeOK {
			ran = append(ran, r.Hook)
			continue
		}
		err := d.Audit.Record(ctx, "automation.hook.failed", evt.Project.ID, "stage", evt.StageID, evt.Actor.ID, map[string]any{
			"hook":    r.Hook,
			"outcome": r.Outcome,
			"error":   firstLine(r.Error),
		})
		if err != nil {
			log.Error("record automation failure", zap.Error(err))
		}
	}
	err := d.Audit.Record(ctx, "automation.completed", evt.Project.ID, "stage", evt.StageID, evt.Actor.ID, map[string]any{
		"stage": evt.StageName,
		"hooks": ran,
	})
	if err != nil {
		log.Error("record automation completion", zap.Error(err))
	}
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
