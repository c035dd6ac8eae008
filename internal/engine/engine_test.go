package engine_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"agencyline/internal/automation"
	"agencyline/internal/config"
	"agencyline/internal/db"
	"agencyline/internal/domain"
	"agencyline/internal/engine"
	"agencyline/internal/engine/auth"
	"agencyline/internal/engine/rules"
	"agencyline/internal/migrate"
	"agencyline/internal/repo"
)

var (
	admin    = domain.Actor{ID: "u-admin", Name: "Ada", Role: domain.RoleAdmin}
	lead     = domain.Actor{ID: "u-lead", Name: "Lin", Role: domain.RoleSubadmin}
	dev      = domain.Actor{ID: "u-dev", Name: "Dev", Role: domain.RoleDeveloper}
	customer = domain.Actor{ID: "u-client", Name: "Acme", Role: domain.RoleClient}
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("agency-1")
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return testNow }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func (env testEnv) project(t *testing.T, total float64) domain.Project {
	t.Helper()
	p, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{
		Name:        "Storefront",
		Client:      "Acme",
		TotalAmount: total,
	}, admin)
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return p
}

func stageID(t *testing.T, p domain.Project, name string) string {
	t.Helper()
	st, ok := domain.FindStageByName(&p, name)
	if !ok {
		t.Fatalf("stage %s missing", name)
	}
	return st.ID
}

func stage(t *testing.T, p domain.Project, name string) domain.Stage {
	t.Helper()
	st, ok := domain.FindStageByName(&p, name)
	if !ok {
		t.Fatalf("stage %s missing", name)
	}
	return *st
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func (env testEnv) approve(t *testing.T, projectID, stageID string) domain.Project {
	t.Helper()
	if _, err := env.Engine.SubmitStageForApproval(env.Ctx, projectID, stageID, lead); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := env.Engine.SubadminReviewStage(env.Ctx, projectID, stageID, lead, "", "looks good"); err != nil {
		t.Fatalf("subadmin review: %v", err)
	}
	p, err := env.Engine.AdminApproveStage(env.Ctx, projectID, stageID, admin, "", "")
	if err != nil {
		t.Fatalf("admin approve: %v", err)
	}
	return p
}

func TestCreateProjectSeedsTemplateAndSchedule(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, 10000)
	if len(p.Stages) != 7 || p.CurrentStage != domain.StageRequirement || p.Mode != domain.ModeActive {
		t.Fatalf("unexpected intake state: %+v", p)
	}
	if p.Stages[0].Status != domain.StageInProgress || p.Stages[1].Status != domain.StagePending {
		t.Fatalf("unexpected stage statuses: %s %s", p.Stages[0].Status, p.Stages[1].Status)
	}
	payments, err := env.Engine.ListPayments(env.Ctx, p.ID, admin)
	if err != nil {
		t.Fatalf("list payments: %v", err)
	}
	if len(payments) != 4 || payments[0].Label != rules.AdvancePaymentLabel || payments[0].Amount != 2500 {
		t.Fatalf("unexpected schedule: %+v", payments)
	}
	sum := 0.0
	for _, pay := range payments {
		sum += pay.Amount
	}
	if sum != 10000 {
		t.Fatalf("schedule sums to %v", sum)
	}
}

func TestFullApprovalChainAdvancesProject(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, 0)
	designID := stageID(t, p, domain.StageDesign)
	if _, err := env.Engine.UpdateStage(env.Ctx, p.ID, designID, engine.StageUpdateOptions{Status: strPtr(domain.StageInProgress)}, lead); err != nil {
		t.Fatalf("start design: %v", err)
	}

	p = env.approve(t, p.ID, designID)

	design := stage(t, p, domain.StageDesign)
	frontend := stage(t, p, domain.StageFrontend)
	if design.Status != domain.StageCompleted || !design.Approved {
		t.Fatalf("design not completed: %+v", design)
	}
	if frontend.Status != domain.StageInProgress || p.CurrentStage != domain.StageFrontend {
		t.Fatalf("frontend not advanced: status=%s current=%s", frontend.Status, p.CurrentStage)
	}
	if p.Progress != 14 {
		t.Fatalf("expected progress 14, got %d", p.Progress)
	}
	if design.ApprovalWorkflow.AdminApproval.ActorID != admin.ID || design.ApprovalWorkflow.SubadminReview.Comment != "looks good" {
		t.Fatalf("workflow not recorded: %+v", design.ApprovalWorkflow)
	}

	docs, err := env.Engine.ListDocuments(env.Ctx, p.ID, "", admin)
	if err != nil {
		t.Fatalf("list documents: %v", err)
	}
	if len(docs) != 1 || docs[0].Type != "stage-summary" || docs[0].Stage != domain.StageDesign {
		t.Fatalf("expected one design summary, got %+v", docs)
	}
	evts, err := env.Engine.ListEvents(env.Ctx, repo.EventFilters{ProjectID: p.ID, Type: "stage.advanced"}, admin)
	if err != nil || len(evts) != 1 {
		t.Fatalf("expected stage.advanced event, got %v %v", evts, err)
	}
}

func TestAdminApproveRequiresSubadminApproval(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, 0)
	id := stageID(t, p, domain.StageRequirement)

	if _, err := env.Engine.SubadminReviewStage(env.Ctx, p.ID, id, lead, "approved", ""); !domain.IsInvalidState(err) {
		t.Fatalf("review before submit: expected invalid state, got %v", err)
	}
	if _, err := env.Engine.SubmitStageForApproval(env.Ctx, p.ID, id, lead); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := env.Engine.AdminApproveStage(env.Ctx, p.ID, id, admin, "approved", ""); !domain.IsInvalidState(err) {
		t.Fatalf("approve before review: expected invalid state, got %v", err)
	}
	if _, err := env.Engine.SubadminReviewStage(env.Ctx, p.ID, id, lead, "rejected", "missing specs"); err != nil {
		t.Fatalf("reject review: %v", err)
	}
	if _, err := env.Engine.AdminApproveStage(env.Ctx, p.ID, id, admin, "", ""); !domain.IsInvalidState(err) {
		t.Fatalf("approve after rejection: expected invalid state, got %v", err)
	}
	got, err := env.Engine.GetProject(env.Ctx, p.ID, admin)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if st := stage(t, got, domain.StageRequirement); st.Approved || st.Status != domain.StageInProgress {
		t.Fatalf("stage changed by rejected attempts: %+v", st)
	}
}

func TestUnknownDecisionIsValidationError(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, 0)
	id := stageID(t, p, domain.StageRequirement)
	_, _ = env.Engine.SubmitStageForApproval(env.Ctx, p.ID, id, lead)
	if _, err := env.Engine.SubadminReviewStage(env.Ctx, p.ID, id, lead, "maybe", ""); !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSubmitResetsWorkflow(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, 0)
	id := stageID(t, p, domain.StageRequirement)
	_, _ = env.Engine.SubmitStageForApproval(env.Ctx, p.ID, id, lead)
	_, _ = env.Engine.SubadminReviewStage(env.Ctx, p.ID, id, lead, "approved", "")
	_, _ = env.Engine.AdminApproveStage(env.Ctx, p.ID, id, admin, "rejected", "redo")

	p, err := env.Engine.SubmitStageForApproval(env.Ctx, p.ID, id, lead)
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	wf := stage(t, p, domain.StageRequirement).ApprovalWorkflow
	if wf.SubadminReview.Status != domain.DecisionPending || wf.AdminApproval.Status != domain.DecisionPending || wf.AdminApproval.Comment != "" {
		t.Fatalf("workflow not reset: %+v", wf)
	}
	if wf.SubmittedBy != lead.ID || wf.SubmittedAt == nil || !wf.SubmittedAt.Equal(testNow) {
		t.Fatalf("submission not recorded: %+v", wf)
	}
}

func TestRejectedApprovalDoesNotAdvance(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, 0)
	id := stageID(t, p, domain.StageRequirement)
	_, _ = env.Engine.SubmitStageForApproval(env.Ctx, p.ID, id, lead)
	_, _ = env.Engine.SubadminReviewStage(env.Ctx, p.ID, id, lead, "", "")
	p, err := env.Engine.AdminApproveStage(env.Ctx, p.ID, id, admin, "rejected", "not yet")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if st := stage(t, p, domain.StageRequirement); st.Approved || st.Status == domain.StageCompleted {
		t.Fatalf("rejected stage completed: %+v", st)
	}
	if stage(t, p, domain.StageDesign).Status != domain.StagePending {
		t.Fatalf("design advanced on rejection")
	}
}

func TestAdvancementLeavesNonPendingNextStage(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, 0)
	designID := stageID(t, p, domain.StageDesign)
	frontendID := stageID(t, p, domain.StageFrontend)
	if _, err := env.Engine.UpdateStage(env.Ctx, p.ID, frontendID, engine.StageUpdateOptions{Status: strPtr(domain.StageBlocked)}, lead); err != nil {
		t.Fatalf("block frontend: %v", err)
	}
	if _, err := env.Engine.UpdateStage(env.Ctx, p.ID, designID, engine.StageUpdateOptions{Status: strPtr(domain.StageInProgress)}, lead); err != nil {
		t.Fatalf("start design: %v", err)
	}
	p = env.approve(t, p.ID, designID)
	if st := stage(t, p, domain.StageFrontend); st.Status != domain.StageBlocked {
		t.Fatalf("frontend clobbered: %s", st.Status)
	}
	if p.CurrentStage != domain.StageDesign {
		t.Fatalf("current stage moved to %s", p.CurrentStage)
	}
}

func TestLegacyStageIDLookup(t *testing.T) {
	env := newTestEnv(t)
	legacy := `{"id":"legacy-1","name":"Old Site","client":"Acme","mode":"active","team":[],"stages":[
{"legacy_id":"64f0aa01","name":"Design","status":"active","type":"checklist","order":1,"items":[{"id":"i1","text":"Get design approval"}]},
{"legacy_id":"64f0aa02","name":"Frontend","status":"pending","type":"development","order":2}]}`
	if _, err := env.Engine.DB.ExecContext(env.Ctx, `INSERT INTO projects(id,name,client,mode,status,aggregate_json,version,created_at,updated_at) VALUES ('legacy-1','Old Site','Acme','active','info',?,1,'2023-01-01T00:00:00Z','2023-01-01T00:00:00Z')`, legacy); err != nil {
		t.Fatalf("seed legacy: %v", err)
	}
	p := env.approve(t, "legacy-1", "64f0aa01")
	if st := stage(t, p, domain.StageFrontend); st.Status != domain.StageInProgress {
		t.Fatalf("legacy frontend not advanced: %s", st.Status)
	}
	if _, err := env.Engine.SubmitStageForApproval(env.Ctx, "legacy-1", "nope", lead); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestBlockedByPaymentScenario(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, 10000)
	frontendID := stageID(t, p, domain.StageFrontend)
	if _, err := env.Engine.LinkPaymentToStage(env.Ctx, p.ID, frontendID, "2nd Milestone", admin); err != nil {
		t.Fatalf("link: %v", err)
	}
	if _, err := env.Engine.UpdateStage(env.Ctx, p.ID, frontendID, engine.StageUpdateOptions{Status: strPtr(domain.StageInProgress)}, lead); err != nil {
		t.Fatalf("start frontend: %v", err)
	}

	first, err := env.Engine.ComputeBlockers(env.Ctx, p.ID, dev)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	p1, _ := env.Engine.GetProject(env.Ctx, p.ID, admin)
	frontend := stage(t, p1, domain.StageFrontend)
	if frontend.Status != domain.StageBlocked {
		t.Fatalf("expected blocked, got %s", frontend.Status)
	}
	found := false
	for _, b := range frontend.BlockerReasons {
		if b.Type == rules.BlockerPaymentPending && b.Severity == rules.SeverityBlocked {
			found = true
		}
	}
	if !found {
		t.Fatalf("payment blocker missing: %+v", frontend.BlockerReasons)
	}

	second, err := env.Engine.ComputeBlockers(env.Ctx, p.ID, dev)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("blockers not idempotent:\n%+v\n%+v", first, second)
	}
	p2, _ := env.Engine.GetProject(env.Ctx, p.ID, admin)
	for i := range p1.Stages {
		if p1.Stages[i].Status != p2.Stages[i].Status || !reflect.DeepEqual(p1.Stages[i].BlockerReasons, p2.Stages[i].BlockerReasons) {
			t.Fatalf("stage %s changed on rerun", p1.Stages[i].Name)
		}
	}
}

func TestBlockersStableForPendingDesignStage(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, 10000)
	designID := stageID(t, p, domain.StageDesign)
	if _, err := env.Engine.LinkPaymentToStage(env.Ctx, p.ID, designID, "1st Milestone", admin); err != nil {
		t.Fatalf("link: %v", err)
	}
	if _, err := env.Engine.AddAssetRequest(env.Ctx, p.ID, designID, engine.AssetCreateOptions{Label: "Brand guide", Type: "brand-guide"}, lead); err != nil {
		t.Fatalf("add asset: %v", err)
	}

	first, err := env.Engine.ComputeBlockers(env.Ctx, p.ID, admin)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	second, err := env.Engine.ComputeBlockers(env.Ctx, p.ID, admin)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("blockers not idempotent:\n%+v\n%+v", first, second)
	}
	got, _ := env.Engine.GetProject(env.Ctx, p.ID, admin)
	design := stage(t, got, domain.StageDesign)
	if design.Status != domain.StageBlocked || design.StatusBeforeBlock != domain.StagePending {
		t.Fatalf("design status %s (before %q)", design.Status, design.StatusBeforeBlock)
	}
	for _, b := range design.BlockerReasons {
		if b.Type == rules.BlockerClientApproval {
			t.Fatalf("pending stage gained a client approval blocker: %+v", design.BlockerReasons)
		}
	}

	if _, err := env.Engine.UpdateStage(env.Ctx, p.ID, designID, engine.StageUpdateOptions{Status: strPtr(domain.StageInProgress)}, lead); err != nil {
		t.Fatalf("start design: %v", err)
	}
	got, _ = env.Engine.GetProject(env.Ctx, p.ID, admin)
	if design := stage(t, got, domain.StageDesign); design.StatusBeforeBlock != "" {
		t.Fatalf("manual status kept base status %q", design.StatusBeforeBlock)
	}
}

func TestMaintenanceGate(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, 0)
	if _, err := env.Engine.EnterMaintenanceMode(env.Ctx, p.ID, admin, "monthly"); !domain.IsInvalidState(err) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	got, _ := env.Engine.GetProject(env.Ctx, p.ID, admin)
	if len(got.Stages) != 7 || got.Mode != domain.ModeActive {
		t.Fatalf("failed entry changed project: %d stages, mode %s", len(got.Stages), got.Mode)
	}

	if _, err := env.Engine.UpdateStage(env.Ctx, p.ID, stageID(t, p, domain.StageDelivery), engine.StageUpdateOptions{Approved: boolPtr(true)}, admin); err != nil {
		t.Fatalf("approve delivery: %v", err)
	}
	got, err := env.Engine.EnterMaintenanceMode(env.Ctx, p.ID, admin, "monthly")
	if err != nil {
		t.Fatalf("enter maintenance: %v", err)
	}
	if got.Mode != domain.ModeMaintenance || got.CurrentStage != domain.StageMaintenance || got.MaintenanceNotes != "monthly" {
		t.Fatalf("unexpected project: %+v", got)
	}
	m := stage(t, got, domain.StageMaintenance)
	if m.Order != 8 || m.Type != domain.StageTypeMaintenance {
		t.Fatalf("unexpected maintenance stage: %+v", m)
	}
	got, err = env.Engine.EnterMaintenanceMode(env.Ctx, p.ID, admin, "again")
	if err != nil || len(got.Stages) != 8 {
		t.Fatalf("maintenance stage appended twice: %d %v", len(got.Stages), err)
	}
}

func TestAssetReceivedChecksItem(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, 0)
	reqID := stageID(t, p, domain.StageRequirement)
	p, err := env.Engine.AddAssetRequest(env.Ctx, p.ID, reqID, engine.AssetCreateOptions{Label: "Client Approval Document", Type: "approval"}, admin)
	if err != nil {
		t.Fatalf("add asset: %v", err)
	}
	asset := stage(t, p, domain.StageRequirement).AssetRequests[0]

	p, err = env.Engine.UpdateAssetRequest(env.Ctx, p.ID, reqID, asset.ID, engine.AssetUpdateOptions{Status: strPtr(domain.AssetReceived), FileName: strPtr("approval.pdf")}, customer)
	if err != nil {
		t.Fatalf("receive asset: %v", err)
	}
	st := stage(t, p, domain.StageRequirement)
	if st.AssetRequests[0].ReceivedAt == nil || st.AssetRequests[0].FileName != "approval.pdf" {
		t.Fatalf("asset not stamped: %+v", st.AssetRequests[0])
	}
	for _, it := range st.Items {
		want := it.Text == "Get client approval"
		if it.Done != want {
			t.Fatalf("item %q done=%v", it.Text, it.Done)
		}
	}

	p, err = env.Engine.DeleteAssetRequest(env.Ctx, p.ID, reqID, asset.ID, admin)
	if err != nil || len(stage(t, p, domain.StageRequirement).AssetRequests) != 0 {
		t.Fatalf("delete asset: %v", err)
	}
	if _, err := env.Engine.DeleteAssetRequest(env.Ctx, p.ID, reqID, asset.ID, admin); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestHealthPausesOnOverduePayment(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, 0)
	past := testNow.Add(-72 * time.Hour)
	if _, err := env.Engine.RecordPayment(env.Ctx, p.ID, engine.PaymentCreateOptions{Label: "Advance Payment", Amount: 500, Date: &past}, admin); err != nil {
		t.Fatalf("record payment: %v", err)
	}

	report, err := env.Engine.GetProjectHealth(env.Ctx, p.ID, admin)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if report.Payment != rules.PaymentDanger || !report.OverduePaymentsExist || report.OverallScore < 0 || report.OverallScore > 100 {
		t.Fatalf("unexpected report: %+v", report)
	}
	got, _ := env.Engine.GetProject(env.Ctx, p.ID, admin)
	if got.Mode != domain.ModePaused || got.Status != "danger" || got.Health.OverallScore != report.OverallScore {
		t.Fatalf("project not paused: mode=%s status=%s", got.Mode, got.Status)
	}

	paused, err := env.Engine.CheckPaymentOverdue(env.Ctx, p.ID, admin)
	if err != nil || paused {
		t.Fatalf("second pause should be a no-op: %v %v", paused, err)
	}
	again, _ := env.Engine.GetProject(env.Ctx, p.ID, admin)
	if again.Version != got.Version {
		t.Fatalf("no-op check wrote the project: %d -> %d", got.Version, again.Version)
	}
	if _, err := env.Engine.GetProjectHealth(env.Ctx, p.ID, admin); err != nil {
		t.Fatalf("health rerun: %v", err)
	}
	if evts, _ := env.Engine.ListEvents(env.Ctx, repo.EventFilters{ProjectID: p.ID, Type: "project.paused"}, admin); len(evts) != 1 {
		t.Fatalf("expected one pause event, got %d", len(evts))
	}
}

func TestCheckAllOverdue(t *testing.T) {
	env := newTestEnv(t)
	late := env.project(t, 0)
	fine := env.project(t, 0)
	past := testNow.Add(-24 * time.Hour)
	future := testNow.Add(24 * time.Hour)
	_, _ = env.Engine.RecordPayment(env.Ctx, late.ID, engine.PaymentCreateOptions{Label: "1st Milestone", Amount: 100, Date: &past}, admin)
	_, _ = env.Engine.RecordPayment(env.Ctx, fine.ID, engine.PaymentCreateOptions{Label: "1st Milestone", Amount: 100, Date: &future}, admin)

	ids, err := env.Engine.CheckAllOverdue(env.Ctx, engine.SystemActor)
	if err != nil {
		t.Fatalf("check all: %v", err)
	}
	if len(ids) != 1 || ids[0] != late.ID {
		t.Fatalf("expected %s paused, got %v", late.ID, ids)
	}
	ids, _ = env.Engine.CheckAllOverdue(env.Ctx, engine.SystemActor)
	if len(ids) != 0 {
		t.Fatalf("paused project checked again: %v", ids)
	}
}

func TestClientViewFallbackAndVisibility(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, 1000)
	for _, st := range p.Stages {
		if _, err := env.Engine.ToggleStageVisibility(env.Ctx, p.ID, st.ID, nil, admin); err != nil {
			t.Fatalf("toggle: %v", err)
		}
	}
	view, err := env.Engine.GetClientView(env.Ctx, p.ID, customer)
	if err != nil {
		t.Fatalf("client view: %v", err)
	}
	if len(view.Phases) != 7 {
		t.Fatalf("expected fallback to all stages, got %d", len(view.Phases))
	}
	if view.Payments.Total != 1000 || view.Payments.Received != 0 || view.IsPaused {
		t.Fatalf("unexpected payments: %+v", view.Payments)
	}

	if _, err := env.Engine.ToggleStageVisibility(env.Ctx, p.ID, p.Stages[0].ID, boolPtr(true), admin); err != nil {
		t.Fatalf("show: %v", err)
	}
	view, _ = env.Engine.GetClientView(env.Ctx, p.ID, customer)
	if len(view.Phases) != 1 || view.Phases[0].Name != domain.StageRequirement {
		t.Fatalf("expected only requirement visible, got %+v", view.Phases)
	}
}

func TestClientCannotApprove(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, 0)
	_, err := env.Engine.AdminApproveStage(env.Ctx, p.ID, p.Stages[0].ID, customer, "", "")
	var fe auth.ForbiddenError
	if !errors.As(err, &fe) || fe.Permission != auth.PermStageApprove {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := env.Engine.GetProject(env.Ctx, p.ID, domain.Actor{}); !domain.IsValidation(err) {
		t.Fatalf("expected validation error for missing actor, got %v", err)
	}
}

func TestClientCannotEditAssetRequests(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, 0)
	reqID := stageID(t, p, domain.StageRequirement)
	p, err := env.Engine.AddAssetRequest(env.Ctx, p.ID, reqID, engine.AssetCreateOptions{Label: "Logo files", Type: "logo"}, lead)
	if err != nil {
		t.Fatalf("add asset: %v", err)
	}
	assetID := stage(t, p, domain.StageRequirement).AssetRequests[0].ID

	var fe auth.ForbiddenError
	_, err = env.Engine.UpdateAssetRequest(env.Ctx, p.ID, reqID, assetID, engine.AssetUpdateOptions{Status: strPtr(domain.AssetReceived)}, customer)
	if !errors.As(err, &fe) || fe.Permission != auth.PermAssetWrite {
		t.Fatalf("update: expected forbidden, got %v", err)
	}
	_, err = env.Engine.DeleteAssetRequest(env.Ctx, p.ID, reqID, assetID, customer)
	if !errors.As(err, &fe) || fe.Permission != auth.PermAssetWrite {
		t.Fatalf("delete: expected forbidden, got %v", err)
	}
	got, err := env.Engine.GetProject(env.Ctx, p.ID, admin)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if a := stage(t, got, domain.StageRequirement).AssetRequests; len(a) != 1 || a[0].Status != domain.AssetPending {
		t.Fatalf("asset changed: %+v", a)
	}
}

func TestDeveloperCannotMoveStages(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, 0)
	id := p.Stages[0].ID
	var fe auth.ForbiddenError
	if _, err := env.Engine.SubmitStageForApproval(env.Ctx, p.ID, id, dev); !errors.As(err, &fe) || fe.Permission != auth.PermStageSubmit {
		t.Fatalf("submit: expected forbidden, got %v", err)
	}
	_, err := env.Engine.UpdateStage(env.Ctx, p.ID, id, engine.StageUpdateOptions{Status: strPtr(domain.StageCompleted)}, dev)
	if !errors.As(err, &fe) || fe.Permission != auth.PermStageUpdate {
		t.Fatalf("update: expected forbidden, got %v", err)
	}
}

func TestRemarksAndActivities(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, 0)

	if _, err := env.Engine.AddRemark(env.Ctx, p.ID, "Client prefers the blue palette", dev); err != nil {
		t.Fatalf("dev remark: %v", err)
	}
	second, err := env.Engine.AddRemark(env.Ctx, p.ID, "  Waiting on copy  ", lead)
	if err != nil {
		t.Fatalf("lead remark: %v", err)
	}
	if second.Text != "Waiting on copy" || second.ActorName != lead.Name || second.ID == "" {
		t.Fatalf("unexpected remark %+v", second)
	}
	if _, err := env.Engine.AddRemark(env.Ctx, p.ID, "   ", lead); !domain.IsValidation(err) {
		t.Fatalf("expected validation error for blank text, got %v", err)
	}
	var fe auth.ForbiddenError
	if _, err := env.Engine.AddRemark(env.Ctx, p.ID, "hello", customer); !errors.As(err, &fe) || fe.Permission != auth.PermRemarkWrite {
		t.Fatalf("expected forbidden for client, got %v", err)
	}
	if _, err := env.Engine.AddRemark(env.Ctx, "missing", "hello", lead); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	remarks, err := env.Engine.ListRemarks(env.Ctx, p.ID, dev)
	if err != nil {
		t.Fatalf("list remarks: %v", err)
	}
	if len(remarks) != 2 || remarks[0].ID != second.ID || remarks[1].ActorID != dev.ID {
		t.Fatalf("unexpected remarks %+v", remarks)
	}

	a, err := env.Engine.AddActivity(env.Ctx, p.ID, engine.ActivityOptions{Action: "Kickoff call held"}, lead)
	if err != nil {
		t.Fatalf("add activity: %v", err)
	}
	if a.Type != "general" {
		t.Fatalf("default type %q", a.Type)
	}
	if _, err := env.Engine.AddActivity(env.Ctx, p.ID, engine.ActivityOptions{Action: "Standup"}, dev); !errors.As(err, &fe) || fe.Permission != auth.PermActivityWrite {
		t.Fatalf("expected forbidden for developer, got %v", err)
	}
	if _, err := env.Engine.AddActivity(env.Ctx, p.ID, engine.ActivityOptions{}, lead); !domain.IsValidation(err) {
		t.Fatalf("expected validation error for missing action, got %v", err)
	}
	acts, err := env.Engine.ListActivities(env.Ctx, p.ID, dev)
	if err != nil {
		t.Fatalf("list activities: %v", err)
	}
	if len(acts) != 1 || acts[0].Action != "Kickoff call held" || acts[0].ID != a.ID {
		t.Fatalf("unexpected activities %+v", acts)
	}

	got, err := env.Engine.GetProject(env.Ctx, p.ID, admin)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Version != p.Version {
		t.Fatalf("remarks bumped version %d -> %d", p.Version, got.Version)
	}
}

func TestDeliveryApprovalRunsHandoverHooks(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, 0)
	p = env.approve(t, p.ID, stageID(t, p, domain.StageDelivery))

	docs, err := env.Engine.ListDocuments(env.Ctx, p.ID, "", admin)
	if err != nil {
		t.Fatalf("documents: %v", err)
	}
	types := map[string]bool{}
	for _, d := range docs {
		types[d.Type] = true
	}
	for _, want := range []string{"stage-summary", "handover-kit", "maintenance-agreement", "feedback-request"} {
		if !types[want] {
			t.Fatalf("missing %s document, have %v", want, types)
		}
	}
	if evts, _ := env.Engine.ListEvents(env.Ctx, repo.EventFilters{ProjectID: p.ID, Type: "automation.completed"}, admin); len(evts) != 1 {
		t.Fatalf("expected automation audit event, got %d", len(evts))
	}
}

func TestFailingHooksDoNotFailApproval(t *testing.T) {
	env := newTestEnv(t)
	ran := false
	env.Engine.Automation = automation.Dispatcher{
		Timeout: time.Second,
		Hooks: []automation.Hook{
			{Name: "boom", Run: func(context.Context, automation.StageApproved) error { return errors.New("generator down") }},
			{Name: "panic", Run: func(context.Context, automation.StageApproved) error { panic("bad template") }},
			{Name: "record", Run: func(_ context.Context, evt automation.StageApproved) error {
				ran = evt.StageName == domain.StageRequirement
				return nil
			}},
		},
	}
	p := env.project(t, 0)
	p = env.approve(t, p.ID, stageID(t, p, domain.StageRequirement))
	if st := stage(t, p, domain.StageRequirement); !st.Approved {
		t.Fatalf("approval lost after hook failures")
	}
	if !ran {
		t.Fatalf("sibling hook did not run")
	}
}

func TestUpdateProjectRejectsMaintenanceShortcut(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, 0)
	if _, err := env.Engine.UpdateProject(env.Ctx, p.ID, engine.ProjectUpdateOptions{Mode: strPtr(domain.ModeMaintenance)}, admin); !domain.IsInvalidState(err) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	got, err := env.Engine.UpdateProject(env.Ctx, p.ID, engine.ProjectUpdateOptions{Priority: strPtr("high"), Name: strPtr("Storefront v2")}, admin)
	if err != nil || got.Priority != "high" || got.Name != "Storefront v2" {
		t.Fatalf("update: %+v %v", got, err)
	}
	if _, err := env.Engine.UpdateProject(env.Ctx, p.ID, engine.ProjectUpdateOptions{Priority: strPtr("urgent")}, admin); !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	stats, err := env.Engine.ProjectStats(env.Ctx, admin)
	if err != nil || stats.Total != 1 || stats.Info != 1 {
		t.Fatalf("stats: %+v %v", stats, err)
	}
}

func TestStageReportKinds(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, 0)
	id := stageID(t, p, domain.StageRequirement)
	r, err := env.Engine.StageReport(env.Ctx, p.ID, id, "", dev)
	if err != nil || r.Type != rules.ReportTechnical || r.StageName != domain.StageRequirement {
		t.Fatalf("technical report: %+v %v", r, err)
	}
	if _, err := env.Engine.StageReport(env.Ctx, p.ID, id, "poster", dev); !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
