package repo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"agencyline/internal/db"
	"agencyline/internal/domain"
	"agencyline/internal/migrate"
	"agencyline/internal/repo"
)

func openRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.Repo{DB: conn}
}

func seedProject(t *testing.T, r repo.Repo) domain.Project {
	t.Helper()
	p := domain.Project{ID: "p1", Name: "Site", Client: "Acme", Mode: domain.ModeActive, Status: "info", Stages: domain.DefaultStages()}
	if err := r.InsertProject(context.Background(), nil, &p); err != nil {
		t.Fatalf("insert project: %v", err)
	}
	return p
}

func TestSaveProjectRejectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	r := openRepo(t)
	seedProject(t, r)

	a, err := r.GetProject(ctx, "p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := r.GetProject(ctx, "p1")

	a.Mode = domain.ModePaused
	if err := r.SaveProject(ctx, nil, &a); err != nil {
		t.Fatalf("save a: %v", err)
	}
	if a.Version != 2 {
		t.Fatalf("expected version 2, got %d", a.Version)
	}
	b.Name = "Other"
	err = r.SaveProject(ctx, nil, &b)
	if !errors.Is(err, repo.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if b.Version != 1 {
		t.Fatalf("stale copy version should stay 1, got %d", b.Version)
	}

	got, _ := r.GetProject(ctx, "p1")
	if got.Mode != domain.ModePaused || got.Name != "Site" {
		t.Fatalf("unexpected stored project: %+v", got)
	}
}

func TestGetProjectNotFound(t *testing.T) {
	r := openRepo(t)
	_, err := r.GetProject(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	p := domain.Project{ID: "missing", Version: 1}
	if err := r.SaveProject(context.Background(), nil, &p); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found on save, got %v", err)
	}
}

func TestLegacyStageIDsNormalizeOnLoad(t *testing.T) {
	ctx := context.Background()
	r := openRepo(t)
	legacy := `{"id":"old","name":"Old","client":"Acme","mode":"active","stages":[{"legacy_id":"64f0c0ffee","name":"Design","status":"active","type":"checklist","order":2}]}`
	if _, err := r.DB.ExecContext(ctx, `INSERT INTO projects(id,name,client,mode,status,aggregate_json,version,created_at,updated_at) VALUES ('old','Old','Acme','active','info',?,3,'2024-01-01T00:00:00Z','2024-01-01T00:00:00Z')`, legacy); err != nil {
		t.Fatalf("seed: %v", err)
	}
	p, err := r.GetProject(ctx, "old")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.Version != 3 {
		t.Fatalf("version from column expected 3, got %d", p.Version)
	}
	_, st, err := domain.FindStage(&p, "64f0c0ffee")
	if err != nil {
		t.Fatalf("find by legacy id: %v", err)
	}
	if st.ID != "64f0c0ffee" || st.NormalizedStatus() != domain.StageInProgress {
		t.Fatalf("unexpected stage %+v", st)
	}
	if st.BlockerReasons == nil || st.ApprovalWorkflow.AdminApproval.Status != domain.DecisionPending {
		t.Fatalf("defaults not filled: %+v", st)
	}
}

func TestOverduePaymentQuery(t *testing.T) {
	ctx := context.Background()
	r := openRepo(t)
	seedProject(t, r)
	now := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-48 * time.Hour)
	future := now.Add(48 * time.Hour)
	for _, p := range []domain.Payment{
		{ID: "x1", ProjectID: "p1", Label: "Advance Payment", Amount: 10, Status: domain.PaymentPending, Date: &future},
		{ID: "x2", ProjectID: "p1", Label: "1st Milestone", Amount: 10, Status: domain.PaymentReceived, Date: &past},
	} {
		if err := r.InsertPayment(ctx, nil, p); err != nil {
			t.Fatalf("insert payment: %v", err)
		}
	}
	ids, err := r.ProjectsWithOverduePayments(ctx, now)
	if err != nil || len(ids) != 0 {
		t.Fatalf("expected none, got %v %v", ids, err)
	}
	if err := r.InsertPayment(ctx, nil, domain.Payment{ID: "x3", ProjectID: "p1", Label: "2nd Milestone", Status: domain.PaymentPending, Date: &past}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	ids, err = r.ProjectsWithOverduePayments(ctx, now)
	if err != nil || len(ids) != 1 || ids[0] != "p1" {
		t.Fatalf("expected p1, got %v %v", ids, err)
	}
	list, err := r.ListPayments(ctx, nil, "p1")
	if err != nil || len(list) != 3 {
		t.Fatalf("list payments: %v %v", list, err)
	}
	if list[0].Date == nil || !list[0].Date.Equal(future) {
		t.Fatalf("date round trip failed: %+v", list[0])
	}
}
