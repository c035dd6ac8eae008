package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"agencyline/internal/config"
	"agencyline/internal/db"
	"agencyline/internal/domain"
	"agencyline/internal/engine"
	"agencyline/internal/migrate"
)

const testSecret = "test-secret"

var (
	adminHeaders  = map[string]string{"X-Actor-Id": "u-admin", "X-Actor-Role": "admin", "X-Actor-Name": "Ada"}
	leadHeaders   = map[string]string{"X-Actor-Id": "u-lead", "X-Actor-Role": "subadmin"}
	devHeaders    = map[string]string{"X-Actor-Id": "u-dev", "X-Actor-Role": "developer"}
	clientHeaders = map[string]string{"X-Actor-Id": "u-client", "X-Actor-Role": "client"}
)

func newTestEngine(t *testing.T) engine.Engine {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return engine.New(conn, config.Default("agency-test"))
}

func newTestServer(t *testing.T) (*httptest.Server, engine.Engine) {
	t.Helper()
	e := newTestEngine(t)
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth: AuthConfig{
			JWTSecret:              testSecret,
			AllowLegacyActorHeader: true,
			DevLogin:               true,
		},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, e
}

func doJSON(t *testing.T, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func createProject(t *testing.T, srv *httptest.Server) domain.Project {
	t.Helper()
	res, data := doJSON(t, http.MethodPost, srv.URL+"/v0/projects", map[string]any{
		"name":         "Storefront",
		"client":       "Acme",
		"total_amount": 8000,
	}, adminHeaders)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project status %d: %s", res.StatusCode, string(data))
	}
	var p domain.Project
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}
	return p
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return env.Error.Code
}

func TestApprovalFlowOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)
	p := createProject(t, srv)
	stageURL := srv.URL + "/v0/projects/" + p.ID + "/stages/" + p.Stages[0].ID

	steps := []struct {
		path    string
		headers map[string]string
	}{
		{"/submit", leadHeaders},
		{"/subadmin-review", leadHeaders},
		{"/admin-approval", adminHeaders},
	}
	var final domain.Project
	for _, step := range steps {
		res, data := doJSON(t, http.MethodPost, stageURL+step.path, map[string]any{"decision": "approved"}, step.headers)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("%s status %d: %s", step.path, res.StatusCode, string(data))
		}
		final = domain.Project{}
		if err := json.Unmarshal(data, &final); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
	}
	if final.CurrentStage != domain.StageDesign || !final.Stages[0].Approved {
		t.Fatalf("stage not advanced: current=%s approved=%v", final.CurrentStage, final.Stages[0].Approved)
	}
	if final.Stages[1].Status != domain.StageInProgress {
		t.Fatalf("next stage status %s", final.Stages[1].Status)
	}

	res, data := doJSON(t, http.MethodGet, srv.URL+"/v0/projects/"+p.ID+"/documents?type=stage-summary", nil, adminHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("documents status %d: %s", res.StatusCode, string(data))
	}
	var docs []domain.Document
	_ = json.Unmarshal(data, &docs)
	if len(docs) != 1 {
		t.Fatalf("expected one stage summary, got %d", len(docs))
	}
}

func TestErrorEnvelopeMapping(t *testing.T) {
	srv, _ := newTestServer(t)
	p := createProject(t, srv)
	stageURL := srv.URL + "/v0/projects/" + p.ID + "/stages/" + p.Stages[0].ID

	cases := []struct {
		name    string
		method  string
		url     string
		body    any
		headers map[string]string
		status  int
		code    string
	}{
		{"approve before review", http.MethodPost, stageURL + "/admin-approval", map[string]any{}, adminHeaders, http.StatusConflict, "invalid_state"},
		{"unknown project", http.MethodGet, srv.URL + "/v0/projects/missing", nil, adminHeaders, http.StatusNotFound, "not_found"},
		{"unknown stage", http.MethodPost, srv.URL + "/v0/projects/" + p.ID + "/stages/nope/submit", nil, leadHeaders, http.StatusNotFound, "not_found"},
		{"developer cannot submit", http.MethodPost, stageURL + "/submit", nil, devHeaders, http.StatusForbidden, "forbidden"},
		{"client cannot approve", http.MethodPost, stageURL + "/admin-approval", map[string]any{}, clientHeaders, http.StatusForbidden, "forbidden"},
		{"maintenance via update", http.MethodPatch, srv.URL + "/v0/projects/" + p.ID, map[string]any{"mode": "maintenance"}, adminHeaders, http.StatusConflict, "invalid_state"},
		{"empty update", http.MethodPatch, srv.URL + "/v0/projects/" + p.ID, map[string]any{}, adminHeaders, http.StatusBadRequest, "bad_request"},
		{"no credentials", http.MethodGet, srv.URL + "/v0/projects", nil, nil, http.StatusUnauthorized, "unauthorized"},
		{"bad token", http.MethodGet, srv.URL + "/v0/projects", nil, map[string]string{"Authorization": "Bearer nope"}, http.StatusUnauthorized, "invalid_credentials"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, data := doJSON(t, tc.method, tc.url, tc.body, tc.headers)
			if res.StatusCode != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, res.StatusCode, string(data))
			}
			if code := errorCode(t, data); code != tc.code {
				t.Fatalf("expected code %s, got %s", tc.code, code)
			}
		})
	}
}

func TestDevTokenAndAPIKeyAuth(t *testing.T) {
	srv, _ := newTestServer(t)

	res, data := doJSON(t, http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{
		"actor_id": "u-lead",
		"name":     "Lin",
		"role":     "subadmin",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login status %d: %s", res.StatusCode, string(data))
	}
	var login DevLoginResponse
	_ = json.Unmarshal(data, &login)

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"Authorization": "Bearer " + login.Token})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, string(data))
	}
	var who WhoAmIResponse
	_ = json.Unmarshal(data, &who)
	if who.ActorID != "u-lead" || who.Role != "subadmin" || who.Source != "jwt" || len(who.Permissions) == 0 {
		t.Fatalf("unexpected principal: %+v", who)
	}

	res, data = doJSON(t, http.MethodPost, srv.URL+"/v0/api-keys", map[string]any{
		"actor_id":   "u-client",
		"actor_name": "Acme",
		"role":       "client",
		"name":       "portal",
	}, adminHeaders)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create key status %d: %s", res.StatusCode, string(data))
	}
	var created CreatedAPIKeyResponse
	_ = json.Unmarshal(data, &created)
	if created.Key == "" || created.ID == "" {
		t.Fatalf("key not returned: %s", string(data))
	}

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"X-Api-Key": created.Key})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me with key status %d: %s", res.StatusCode, string(data))
	}
	who = WhoAmIResponse{}
	_ = json.Unmarshal(data, &who)
	if who.ActorID != "u-client" || who.Role != "client" || who.Source != "api_key" {
		t.Fatalf("unexpected key principal: %+v", who)
	}

	res, _ = doJSON(t, http.MethodDelete, srv.URL+"/v0/api-keys/"+created.ID, nil, adminHeaders)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("revoke status %d", res.StatusCode)
	}
	res, _ = doJSON(t, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"X-Api-Key": created.Key})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("revoked key accepted: %d", res.StatusCode)
	}
}

func TestClientViewHidesWorkflow(t *testing.T) {
	srv, _ := newTestServer(t)
	p := createProject(t, srv)

	res, data := doJSON(t, http.MethodGet, srv.URL+"/v0/projects/"+p.ID+"/client-view", nil, clientHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("client view status %d: %s", res.StatusCode, string(data))
	}
	if bytes.Contains(data, []byte("approval_workflow")) || bytes.Contains(data, []byte("u-admin")) {
		t.Fatalf("client view leaks internal fields: %s", string(data))
	}
	res, _ = doJSON(t, http.MethodGet, srv.URL+"/v0/projects/"+p.ID, nil, clientHeaders)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("client read full project: %d", res.StatusCode)
	}
}

func TestEventsPagination(t *testing.T) {
	srv, _ := newTestServer(t)
	p := createProject(t, srv)

	res, data := doJSON(t, http.MethodGet, srv.URL+"/v0/events?limit=2&project_id="+p.ID, nil, adminHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(data))
	}
	var page paginatedEvents
	_ = json.Unmarshal(data, &page)
	if len(page.Items) != 2 || page.NextCursor == 0 {
		t.Fatalf("unexpected first page: %+v", page)
	}
	if page.Items[0].ID <= page.Items[1].ID {
		t.Fatalf("events not newest first")
	}
	res, data = doJSON(t, http.MethodGet, srv.URL+"/v0/events?limit=200&project_id="+p.ID+"&cursor="+strconv.FormatInt(page.NextCursor, 10), nil, adminHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("second page status %d: %s", res.StatusCode, string(data))
	}
	var next paginatedEvents
	_ = json.Unmarshal(data, &next)
	if len(next.Items) == 0 || next.Items[0].ID >= page.NextCursor {
		t.Fatalf("cursor not applied: %+v", next.Items)
	}
}

func TestWebhookDeliversSignedEvents(t *testing.T) {
	var (
		mu       sync.Mutex
		received []webhookEvent
		sigs     []struct{ header, want string }
	)
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var evt webhookEvent
		_ = json.Unmarshal(body, &evt)
		mu.Lock()
		received = append(received, evt)
		sigs = append(sigs, struct{ header, want string }{r.Header.Get("X-Agencyline-Signature"), signPayload("s3cret", body)})
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer target.Close()

	e := newTestEngine(t)
	ctx := context.Background()
	// Events before the first dispatch are not replayed.
	if _, err := e.CreateProject(ctx, engine.ProjectCreateOptions{Name: "Old", Client: "Acme"}, engine.SystemActor); err != nil {
		t.Fatalf("create: %v", err)
	}
	e.Config.Webhooks = []config.Webhook{{ID: "ops", URL: target.URL, Secret: "s3cret", Events: []string{"project.*"}}}
	d := newWebhookDispatcher(e, nil)
	d.dispatchAll(ctx)

	p, err := e.CreateProject(ctx, engine.ProjectCreateOptions{Name: "New", Client: "Acme", TotalAmount: 100}, engine.SystemActor)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	d.dispatchAll(ctx)
	d.dispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 || received[0].Type != "project.created" || received[0].EntityID != p.ID {
		t.Fatalf("unexpected deliveries: %+v", received)
	}
	if sigs[0].header != "sha256="+sigs[0].want {
		t.Fatalf("signature mismatch: %s vs %s", sigs[0].header, sigs[0].want)
	}
	cur, ok, err := e.Repo.WebhookCursor(ctx, "ops")
	if err != nil || !ok {
		t.Fatalf("cursor not stored: %v", err)
	}
	latest, _ := e.Repo.LatestEventID(ctx)
	if cur != latest {
		t.Fatalf("cursor %d behind latest %d", cur, latest)
	}
}

func TestPublicRoutesAndSpec(t *testing.T) {
	srv, _ := newTestServer(t)

	res, data := doJSON(t, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}

	res, _ = doJSON(t, http.MethodGet, srv.URL+"/v0/openapi.json", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("spec without credentials: status %d", res.StatusCode)
	}
	res, data = doJSON(t, http.MethodGet, srv.URL+"/v0/openapi.json", nil, adminHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("spec status %d", res.StatusCode)
	}
	var spec struct {
		Components struct {
			SecuritySchemes map[string]any `json:"securitySchemes"`
		} `json:"components"`
		Paths map[string]map[string]struct {
			Security []map[string][]string `json:"security"`
		} `json:"paths"`
	}
	if err := json.Unmarshal(data, &spec); err != nil {
		t.Fatalf("decode spec: %v", err)
	}
	for _, name := range []string{"bearerAuth", "apiKeyAuth"} {
		if _, ok := spec.Components.SecuritySchemes[name]; !ok {
			t.Fatalf("missing security scheme %s", name)
		}
	}
	if sec := spec.Paths["/v0/health"]["get"].Security; len(sec) != 0 {
		t.Fatalf("health should be public, got %v", sec)
	}
	if sec := spec.Paths["/v0/projects"]["post"].Security; len(sec) == 0 {
		t.Fatalf("create project should require credentials")
	}

	res, _ = doJSON(t, http.MethodGet, srv.URL+"/docs", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("docs status %d", res.StatusCode)
	}
}

func TestRemarksOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)
	p := createProject(t, srv)
	url := srv.URL + "/v0/projects/" + p.ID + "/remarks"

	res, data := doJSON(t, http.MethodPost, url, map[string]any{"text": "Logo draft shared"}, devHeaders)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add remark status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, http.MethodPost, url, map[string]any{"text": ""}, devHeaders)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty remark status %d: %s", res.StatusCode, string(data))
	}
	res, _ = doJSON(t, http.MethodPost, url, map[string]any{"text": "hi"}, clientHeaders)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("client remark status %d", res.StatusCode)
	}

	res, data = doJSON(t, http.MethodGet, url, nil, leadHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list remarks status %d: %s", res.StatusCode, string(data))
	}
	var remarks []domain.Remark
	if err := json.Unmarshal(data, &remarks); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(remarks) != 1 || remarks[0].Text != "Logo draft shared" || remarks[0].ActorID != "u-dev" {
		t.Fatalf("unexpected remarks %+v", remarks)
	}

	res, data = doJSON(t, http.MethodPost, srv.URL+"/v0/projects/"+p.ID+"/activities", map[string]any{"action": "Kickoff call"}, leadHeaders)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add activity status %d: %s", res.StatusCode, string(data))
	}
}
