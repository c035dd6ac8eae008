package agencylinesdk_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"agencyline/internal/config"
	"agencyline/internal/db"
	"agencyline/internal/domain"
	"agencyline/internal/engine"
	"agencyline/internal/migrate"
	"agencyline/internal/server"
	agencylinesdk "agencyline/sdk/go"
)

func newAPI(t *testing.T) (*httptest.Server, engine.Engine) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default("sdk"))
	handler, err := server.New(server.Config{Engine: e})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, e
}

func clientFor(t *testing.T, srv *httptest.Server, e engine.Engine, actor domain.Actor) *agencylinesdk.Client {
	t.Helper()
	_, key, err := e.CreateAPIKey(context.Background(), actor, "sdk-test", engine.SystemActor)
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	c := agencylinesdk.New(srv.URL)
	c.APIKey = key
	return c
}

func TestClientDrivesApprovalChain(t *testing.T) {
	srv, e := newAPI(t)
	ctx := context.Background()
	adminC := clientFor(t, srv, e, domain.Actor{ID: "u-admin", Role: domain.RoleAdmin})
	leadC := clientFor(t, srv, e, domain.Actor{ID: "u-lead", Role: domain.RoleSubadmin})

	p, err := adminC.CreateProject(ctx, agencylinesdk.NewProject{Name: "Storefront", Client: "Acme", TotalAmount: 4000})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	req, ok := p.StageByName(domain.StageRequirement)
	if !ok {
		t.Fatalf("requirement stage missing")
	}
	if _, err := leadC.SubmitStage(ctx, p.ID, req.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := leadC.ApproveStage(ctx, p.ID, req.ID, "approved", ""); !agencylinesdk.IsCode(err, "forbidden") {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := leadC.ReviewStage(ctx, p.ID, req.ID, "approved", "ok"); err != nil {
		t.Fatalf("review: %v", err)
	}
	p, err = adminC.ApproveStage(ctx, p.ID, req.ID, "approved", "")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if p.CurrentStage != domain.StageDesign {
		t.Fatalf("current stage %s", p.CurrentStage)
	}

	page, err := adminC.EventsPage(ctx, p.ID, 1, 0)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(page.Items) != 1 || page.NextCursor == 0 {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestClientReportsErrorCodes(t *testing.T) {
	srv, e := newAPI(t)
	c := clientFor(t, srv, e, domain.Actor{ID: "u-admin", Role: domain.RoleAdmin})
	_, err := c.GetProject(context.Background(), "missing")
	if !agencylinesdk.IsCode(err, "not_found") {
		t.Fatalf("expected not_found, got %v", err)
	}
	anon := agencylinesdk.New(srv.URL)
	if _, err := anon.GetProject(context.Background(), "missing"); !agencylinesdk.IsCode(err, "unauthorized") {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}
