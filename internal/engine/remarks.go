package engine

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"agencyline/internal/domain"
	"agencyline/internal/engine/auth"
	"agencyline/internal/events"
	"agencyline/internal/repo"
)

const (
	maxRemarks       = 500
	activityPageSize = 50
)

// AddRemark leaves a note on a project. Remarks live in the event log and do
// not bump the project version.
func (e Engine) AddRemark(ctx context.Context, projectID, text string, actor domain.Actor) (domain.Remark, error) {
	if err := e.authorize(actor, auth.PermRemarkWrite); err != nil {
		return domain.Remark{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Remark{}, domain.Invalid("text", "remark text is required")
	}
	r := domain.Remark{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		ActorID:   actor.ID,
		ActorName: actor.Name,
		Text:      text,
		CreatedAt: timestamp(e.now()),
	}
	payload := events.EventPayload{"text": r.Text, "actor_name": r.ActorName}
	if err := e.appendToProject(ctx, events.ProjectRemark, "remark", r.ID, projectID, actor, payload); err != nil {
		return domain.Remark{}, err
	}
	return r, nil
}

// ListRemarks returns the remarks of a project, newest first.
func (e Engine) ListRemarks(ctx context.Context, projectID string, actor domain.Actor) ([]domain.Remark, error) {
	if err := e.authorize(actor, auth.PermProjectRead); err != nil {
		return nil, err
	}
	evts, err := e.projectEvents(ctx, projectID, events.ProjectRemark, maxRemarks)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Remark, 0, len(evts))
	for _, evt := range evts {
		var body struct {
			Text      string `json:"text"`
			ActorName string `json:"actor_name"`
		}
		if err := json.Unmarshal([]byte(evt.Payload), &body); err != nil {
			continue
		}
		out = append(out, domain.Remark{
			ID:        evt.EntityID,
			ProjectID: evt.ProjectID,
			ActorID:   evt.ActorID,
			ActorName: body.ActorName,
			Text:      body.Text,
			CreatedAt: evt.TS,
		})
	}
	return out, nil
}

type ActivityOptions struct {
	Action string
	Icon   string
	Type   string
}

// AddActivity logs a manual entry on the project timeline.
func (e Engine) AddActivity(ctx context.Context, projectID string, opts ActivityOptions, actor domain.Actor) (domain.Activity, error) {
	if err := e.authorize(actor, auth.PermActivityWrite); err != nil {
		return domain.Activity{}, err
	}
	action := strings.TrimSpace(opts.Action)
	if action == "" {
		return domain.Activity{}, domain.Invalid("action", "is required")
	}
	if opts.Type == "" {
		opts.Type = "general"
	}
	a := domain.Activity{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		ActorID:   actor.ID,
		ActorName: actor.Name,
		Action:    action,
		Icon:      opts.Icon,
		Type:      opts.Type,
		CreatedAt: timestamp(e.now()),
	}
	payload := events.EventPayload{"action": a.Action, "type": a.Type, "actor_name": a.ActorName}
	if a.Icon != "" {
		payload["icon"] = a.Icon
	}
	if err := e.appendToProject(ctx, events.ProjectActivity, "activity", a.ID, projectID, actor, payload); err != nil {
		return domain.Activity{}, err
	}
	return a, nil
}

// ListActivities returns the latest manual timeline entries, newest first.
func (e Engine) ListActivities(ctx context.Context, projectID string, actor domain.Actor) ([]domain.Activity, error) {
	if err := e.authorize(actor, auth.PermProjectRead); err != nil {
		return nil, err
	}
	evts, err := e.projectEvents(ctx, projectID, events.ProjectActivity, activityPageSize)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Activity, 0, len(evts))
	for _, evt := range evts {
		var body struct {
			Action    string `json:"action"`
			Icon      string `json:"icon"`
			Type      string `json:"type"`
			ActorName string `json:"actor_name"`
		}
		if err := json.Unmarshal([]byte(evt.Payload), &body); err != nil {
			continue
		}
		out = append(out, domain.Activity{
			ID:        evt.EntityID,
			ProjectID: evt.ProjectID,
			ActorID:   evt.ActorID,
			ActorName: body.ActorName,
			Action:    body.Action,
			Icon:      body.Icon,
			Type:      body.Type,
			CreatedAt: evt.TS,
		})
	}
	return out, nil
}

func (e Engine) appendToProject(ctx context.Context, evtType, kind, entityID, projectID string, actor domain.Actor, payload events.EventPayload) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := e.Repo.GetProjectTx(ctx, tx, projectID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, evtType, projectID, kind, entityID, actor.ID, payload); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) projectEvents(ctx context.Context, projectID, evtType string, limit int) ([]domain.Event, error) {
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	return e.Repo.LatestEvents(ctx, repo.EventFilters{ProjectID: projectID, Type: evtType, Limit: limit})
}
