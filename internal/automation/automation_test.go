package automation_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"agencyline/internal/automation"
	"agencyline/internal/domain"
)

type fakeGen struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func (f *fakeGen) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return f.fail[name]
}

func (f *fakeGen) GenerateStageSummary(_ context.Context, p domain.Project, stageID string, _ domain.Actor) (domain.Document, error) {
	return domain.Document{ProjectID: p.ID, Type: "stage-summary"}, f.record("summary:" + stageID)
}

func (f *fakeGen) GenerateHandoverKit(_ context.Context, p domain.Project, _ domain.Actor) (domain.Document, error) {
	return domain.Document{ProjectID: p.ID}, f.record("handover")
}

func (f *fakeGen) GenerateMaintenanceAgreement(_ context.Context, p domain.Project, _ domain.Actor) (domain.Document, error) {
	return domain.Document{ProjectID: p.ID}, f.record("maintenance")
}

type fakeStore struct {
	mu   sync.Mutex
	docs []domain.Document
}

func (s *fakeStore) SaveDocument(_ context.Context, d domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append(s.docs, d)
	return nil
}

type auditEntry struct {
	Type    string
	Payload map[string]any
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []auditEntry
}

func (a *fakeAudit) Record(_ context.Context, evtType, _, _, _, _ string, payload map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, auditEntry{Type: evtType, Payload: payload})
	return nil
}

var now = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func approvedEvent(stageName string) automation.StageApproved {
	return automation.StageApproved{
		Project:   domain.Project{ID: "p1", Name: "Storefront", Client: "Acme"},
		StageID:   "s-" + stageName,
		StageName: stageName,
		Actor:     domain.Actor{ID: "u-admin", Name: "Ada", Role: domain.RoleAdmin},
		At:        now,
	}
}

func TestNonDeliveryApprovalOnlySummarizes(t *testing.T) {
	gen := &fakeGen{}
	store := &fakeStore{}
	d := automation.Dispatcher{Hooks: automation.DefaultHooks(gen, store, func() time.Time { return now })}

	results := d.OnStageApproved(context.Background(), approvedEvent(domain.StageDesign))

	require.Len(t, results, 1)
	require.Equal(t, automation.HookStageSummary, results[0].Hook)
	require.Equal(t, automation.OutcomeOK, results[0].Outcome)
	require.Equal(t, []string{"summary:s-Design"}, gen.calls)
	require.Empty(t, store.docs)
}

func TestDeliveryApprovalRunsBundle(t *testing.T) {
	gen := &fakeGen{}
	store := &fakeStore{}
	d := automation.Dispatcher{Hooks: automation.DefaultHooks(gen, store, func() time.Time { return now })}

	results := d.OnStageApproved(context.Background(), approvedEvent(domain.StageDelivery))

	require.Len(t, results, 4)
	require.Equal(t, []string{"summary:s-Delivery", "handover", "maintenance"}, gen.calls)
	require.Len(t, store.docs, 1)
	fb := store.docs[0]
	require.Equal(t, "feedback-request", fb.Type)
	require.Equal(t, "draft", fb.Status)
	var content struct {
		Sections struct {
			RatingCategories []map[string]string `json:"rating_categories"`
		} `json:"sections"`
	}
	require.NoError(t, json.Unmarshal([]byte(fb.Content), &content))
	require.Len(t, content.Sections.RatingCategories, 4)
}

func TestDeliveryMatchIsExact(t *testing.T) {
	require.False(t, automation.IsFinalDelivery(approvedEvent("delivery")))
	require.False(t, automation.IsFinalDelivery(approvedEvent("Delivery ")))
	require.True(t, automation.IsFinalDelivery(approvedEvent(domain.StageDelivery)))
}

func TestHookFailuresAreIsolated(t *testing.T) {
	audit := &fakeAudit{}
	var order []string
	var mu sync.Mutex
	mark := func(name string) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, name)
	}
	d := automation.Dispatcher{
		Timeout: 50 * time.Millisecond,
		Audit:   audit,
		Hooks: []automation.Hook{
			{Name: "fails", Run: func(context.Context, automation.StageApproved) error {
				mark("fails")
				return errors.New("smtp down")
			}},
			{Name: "panics", Run: func(context.Context, automation.StageApproved) error {
				mark("panics")
				panic("nil template")
			}},
			{Name: "hangs", Run: func(ctx context.Context, _ automation.StageApproved) error {
				mark("hangs")
				<-ctx.Done()
				return ctx.Err()
			}},
			{Name: "ok", Run: func(context.Context, automation.StageApproved) error {
				mark("ok")
				return nil
			}},
		},
	}

	results := d.OnStageApproved(context.Background(), approvedEvent(domain.StageQA))

	require.Len(t, results, 4)
	outcomes := map[string]string{}
	for _, r := range results {
		outcomes[r.Hook] = r.Outcome
	}
	require.Equal(t, automation.OutcomeFailed, outcomes["fails"])
	require.Equal(t, automation.OutcomePanic, outcomes["panics"])
	require.Contains(t, []string{automation.OutcomeTimeout, automation.OutcomeFailed}, outcomes["hangs"])
	require.Equal(t, automation.OutcomeOK, outcomes["ok"])
	require.Equal(t, []string{"fails", "panics", "hangs", "ok"}, order)

	require.Len(t, audit.entries, 4)
	require.Equal(t, "automation.completed", audit.entries[3].Type)
	require.Equal(t, []string{"ok"}, audit.entries[3].Payload["hooks"])
	for _, e := range audit.entries[:3] {
		require.Equal(t, "automation.hook.failed", e.Type)
		require.NotContains(t, e.Payload["error"], "\n")
	}
}

func TestHooksIgnoreCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ran := false
	d := automation.Dispatcher{Hooks: []automation.Hook{{
		Name: "doc",
		Run: func(ctx context.Context, _ automation.StageApproved) error {
			ran = ctx.Err() == nil
			return nil
		},
	}}}
	results := d.OnStageApproved(ctx, approvedEvent(domain.StageDesign))
	require.True(t, ran)
	require.Equal(t, automation.OutcomeOK, results[0].Outcome)
}

func TestEnabledFiltersByName(t *testing.T) {
	hooks := automation.DefaultHooks(&fakeGen{}, &fakeStore{}, nil)
	kept := automation.Enabled(hooks, func(name string) bool { return name != automation.HookHandoverKit })
	require.Len(t, kept, 3)
	for _, h := range kept {
		require.NotEqual(t, automation.HookHandoverKit, h.Name)
	}
}

func TestFeedbackRequestAddressesClientContact(t *testing.T) {
	p := domain.Project{ID: "p1", Name: "Storefront", Client: "Acme", ClientDetails: &domain.ClientDetails{Name: "Jo"}}
	doc, err := automation.FeedbackRequest(p, domain.Actor{ID: "u1"}, now)
	require.NoError(t, err)
	require.Equal(t, "Feedback Request - Storefront", doc.Title)
	require.Contains(t, doc.Content, "Dear Jo")
	require.Equal(t, "u1", doc.GeneratedBy)
}
