package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"agencyline/internal/automation"
	"agencyline/internal/config"
	"agencyline/internal/docgen"
	"agencyline/internal/domain"
	"agencyline/internal/engine/auth"
	"agencyline/internal/events"
	"agencyline/internal/metrics"
	"agencyline/internal/repo"
)

// ApprovalListener receives committed final approvals.
type ApprovalListener interface {
	OnStageApproved(ctx context.Context, evt automation.StageApproved) []automation.HookResult
}

type Engine struct {
	DB         *sql.DB
	Repo       repo.Repo
	Events     events.Writer
	Config     *config.Config
	Auth       auth.Service
	Automation ApprovalListener
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
	Now        func() time.Time
}

// SystemActor is used for scheduled checks that run without a caller.
var SystemActor = domain.Actor{ID: "system", Name: "System", Role: domain.RoleAdmin}

func New(db *sql.DB, cfg *config.Config) Engine {
	e := Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{},
		Config: cfg,
		Auth:   auth.Service{Config: cfg},
		Logger: zap.NewNop(),
		Now:    time.Now,
	}
	e.Automation = e.DefaultAutomation()
	return e
}

// WithObservability returns a copy logging to log and recording into m, with
// the automation dispatcher rebuilt to share them.
func (e Engine) WithObservability(log *zap.Logger, m *metrics.Metrics) Engine {
	if log != nil {
		e.Logger = log
	}
	e.Metrics = m
	if _, ok := e.Automation.(automation.Dispatcher); ok || e.Automation == nil {
		e.Automation = e.DefaultAutomation()
	}
	return e
}

// DefaultAutomation builds the dispatcher configured by the agency config.
// It returns nil when automation is disabled.
func (e Engine) DefaultAutomation() ApprovalListener {
	if e.Config != nil && !e.Config.Automation.Enabled {
		return nil
	}
	gen := docgen.New(e.DB)
	gen.Now = e.Now
	gen.Events = events.Writer{Now: e.Now}
	hooks := automation.DefaultHooks(gen, gen, e.Now)
	d := automation.Dispatcher{
		Hooks:   automation.Enabled(hooks, e.Config.HookEnabled),
		Logger:  e.logger().Named("automation"),
		Metrics: e.Metrics,
	}
	if e.Config != nil {
		d.Timeout = e.Config.Automation.HookTimeout
	}
	if e.Config.HookEnabled(automation.HookAudit) {
		d.Audit = events.Recorder{DB: e.DB, Writer: events.Writer{Now: e.Now}}
	}
	return d
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func (e Engine) authorize(actor domain.Actor, perm string) error {
	if actor.ID == "" {
		return domain.Invalid("actor", "is required")
	}
	return e.Auth.Require(actor, perm)
}

// change is an event queued by a mutation, appended in the same transaction.
type change struct {
	Type       string
	EntityKind string
	EntityID   string
	Payload    events.EventPayload
}

func projectChange(evtType, projectID string, payload events.EventPayload) change {
	return change{Type: evtType, EntityKind: "project", EntityID: projectID, Payload: payload}
}

func stageChange(evtType string, st *domain.Stage, payload events.EventPayload) change {
	if payload == nil {
		payload = events.EventPayload{}
	}
	payload["stage"] = st.Name
	return change{Type: evtType, EntityKind: "stage", EntityID: st.ID, Payload: payload}
}

// errUnchanged lets a mutation report that it had nothing to write.
var errUnchanged = errors.New("unchanged")

// mutate loads a project inside a write transaction, applies fn, recomputes
// progress, validates and saves the aggregate with its version check, then
// appends the returned events. Nothing is written when fn fails; when fn
// returns errUnchanged the loaded project is returned as is.
func (e Engine) mutate(ctx context.Context, projectID string, actor domain.Actor, fn func(tx *sql.Tx, p *domain.Project) ([]change, error)) (domain.Project, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	p, err := e.Repo.GetProjectTx(ctx, tx, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	changes, err := fn(tx, &p)
	if errors.Is(err, errUnchanged) {
		return p, nil
	}
	if err != nil {
		return domain.Project{}, err
	}
	p.RecomputeProgress()
	if err := p.Validate(); err != nil {
		return domain.Project{}, err
	}
	if err := e.Repo.SaveProject(ctx, tx, &p); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			e.Metrics.Conflict()
		}
		return domain.Project{}, fmt.Errorf("save project %s: %w", projectID, err)
	}
	for _, c := range changes {
		if err := e.Events.Append(ctx, tx, c.Type, p.ID, c.EntityKind, c.EntityID, actor.ID, c.Payload); err != nil {
			return domain.Project{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
