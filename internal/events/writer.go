package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types appended by the engine.
const (
	ProjectCreated        = "project.created"
	ProjectUpdated        = "project.updated"
	ProjectBlockers       = "project.blockers.computed"
	ProjectHealth         = "project.health.computed"
	ProjectPaused         = "project.paused"
	ProjectMaintenance    = "project.maintenance.entered"
	ProjectRemark         = "project.remark"
	ProjectActivity       = "project.activity"
	StageUpdated          = "stage.updated"
	StageItemUpdated      = "stage.item.updated"
	StageSubmitted        = "stage.submitted"
	StageSubadminReviewed = "stage.subadmin_reviewed"
	StageAdminReviewed    = "stage.admin_reviewed"
	StageAdvanced         = "stage.advanced"
	StageVisibility       = "stage.visibility.changed"
	StagePaymentLinked    = "stage.payment.linked"
	AssetRequested        = "asset.requested"
	AssetUpdated          = "asset.updated"
	AssetDeleted          = "asset.deleted"
	PaymentRecorded       = "payment.recorded"
	PaymentStatusChanged  = "payment.status.changed"
	DocumentGenerated     = "document.generated"
	AutomationCompleted   = "automation.completed"
	AutomationHookFailed  = "automation.hook.failed"
	AgencyConfigImported  = "agency.config.imported"
)

// Writer appends rows to the event log inside the caller's transaction.
type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, projectID, entityKind, entityID, actorID string, payload EventPayload) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	if actorID == "" {
		actorID = "system"
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,project_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		now().UTC().Format(time.RFC3339), evtType, nullable(projectID), entityKind, nullable(entityID), actorID, string(data))
	if err != nil {
		return fmt.Errorf("append event %s: %w", evtType, err)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// Recorder appends single events in their own transaction, for callers that
// run outside an engine write such as automation hooks.
type Recorder struct {
	DB     *sql.DB
	Writer Writer
}

func (r Recorder) Record(ctx context.Context, evtType, projectID, entityKind, entityID, actorID string, payload map[string]any) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := r.Writer.Append(ctx, tx, evtType, projectID, entityKind, entityID, actorID, EventPayload(payload)); err != nil {
		return err
	}
	return tx.Commit()
}
