package agencylinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal agencyline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Stage represents the API stage model (partial).
type Stage struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Status        string `json:"status"`
	Order         int    `json:"order"`
	Approved      bool   `json:"approved"`
	ClientVisible bool   `json:"client_visible"`
}

// Project represents the API project model (partial).
type Project struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Client       string  `json:"client"`
	Status       string  `json:"status"`
	Mode         string  `json:"mode"`
	CurrentStage string  `json:"current_stage"`
	Progress     int     `json:"progress"`
	Stages       []Stage `json:"stages"`
	Version      int64   `json:"version"`
}

// StageByName returns the first stage with the given name.
func (p Project) StageByName(name string) (Stage, bool) {
	for _, st := range p.Stages {
		if st.Name == name {
			return st, true
		}
	}
	return Stage{}, false
}

// NewProject holds the intake fields sent on creation.
type NewProject struct {
	ID             string   `json:"id,omitempty"`
	Name           string   `json:"name"`
	Client         string   `json:"client"`
	Type           string   `json:"type,omitempty"`
	Priority       string   `json:"priority,omitempty"`
	TotalAmount    float64  `json:"total_amount,omitempty"`
	AdvancePercent *float64 `json:"advance_percent,omitempty"`
	Milestones     int      `json:"milestones,omitempty"`
}

type Health struct {
	Payment             string `json:"payment"`
	ClientPending       int    `json:"client_pending"`
	DeveloperAssignment string `json:"developer_assignment"`
	QAStatus            string `json:"qa_status"`
	DeadlineRisk        string `json:"deadline_risk"`
	OverallScore        int    `json:"overall_score"`
}

// Blocker is one reason a stage cannot progress.
type Blocker struct {
	Type     string `json:"type"`
	Label    string `json:"label"`
	Severity string `json:"severity"`
}

type StageBlockers struct {
	StageID   string    `json:"stage_id"`
	StageName string    `json:"stage_name"`
	Status    string    `json:"status"`
	Blockers  []Blocker `json:"blockers"`
}

// ClientView is the client-facing projection (partial).
type ClientView struct {
	ProjectName  string `json:"project_name"`
	Progress     int    `json:"progress"`
	Mode         string `json:"mode"`
	CurrentStage string `json:"current_stage"`
	IsPaused     bool   `json:"is_paused"`
	Phases       []struct {
		Name           string `json:"name"`
		Status         string `json:"status"`
		CompletionRate int    `json:"completion_rate"`
	} `json:"phases"`
}

type Payment struct {
	ID     string  `json:"id"`
	Label  string  `json:"label"`
	Amount float64 `json:"amount"`
	Status string  `json:"status"`
	Date   string  `json:"date,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor int64   `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsCode reports whether err is an APIError carrying the given code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// CreateProject creates a project with the default stage template.
func (c *Client) CreateProject(ctx context.Context, in NewProject) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPost, "v0/projects", in, &resp)
	return resp, err
}

func (c *Client) GetProject(ctx context.Context, projectID string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, c.projectPath(projectID, ""), nil, &resp)
	return resp, err
}

// SubmitStage starts the approval workflow of a stage.
func (c *Client) SubmitStage(ctx context.Context, projectID, stageID string) (Project, error) {
	return c.stageAction(ctx, projectID, stageID, "submit", nil)
}

// ReviewStage records the sub-admin decision ("approved" or "rejected").
func (c *Client) ReviewStage(ctx context.Context, projectID, stageID, decision, comment string) (Project, error) {
	return c.stageAction(ctx, projectID, stageID, "subadmin-review", map[string]any{"decision": decision, "comment": comment})
}

// ApproveStage records the admin decision. Approval advances the project.
func (c *Client) ApproveStage(ctx context.Context, projectID, stageID, decision, comment string) (Project, error) {
	return c.stageAction(ctx, projectID, stageID, "admin-approval", map[string]any{"decision": decision, "comment": comment})
}

func (c *Client) stageAction(ctx context.Context, projectID, stageID, action string, body any) (Project, error) {
	var resp Project
	endpoint := c.projectPath(projectID, fmt.Sprintf("stages/%s/%s", url.PathEscape(stageID), action))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Blockers recomputes and returns the blockers of every stage.
func (c *Client) Blockers(ctx context.Context, projectID string) ([]StageBlockers, error) {
	var resp []StageBlockers
	err := c.do(ctx, http.MethodPost, c.projectPath(projectID, "blockers"), nil, &resp)
	return resp, err
}

func (c *Client) Health(ctx context.Context, projectID string) (Health, error) {
	var resp Health
	err := c.do(ctx, http.MethodGet, c.projectPath(projectID, "health"), nil, &resp)
	return resp, err
}

func (c *Client) ClientView(ctx context.Context, projectID string) (ClientView, error) {
	var resp ClientView
	err := c.do(ctx, http.MethodGet, c.projectPath(projectID, "client-view"), nil, &resp)
	return resp, err
}

// RecordPayment adds a payment to a project.
func (c *Client) RecordPayment(ctx context.Context, projectID, label string, amount float64, status string) (Payment, error) {
	body := map[string]any{"label": label, "amount": amount}
	if status != "" {
		body["status"] = status
	}
	var resp Payment
	err := c.do(ctx, http.MethodPost, c.projectPath(projectID, "payments"), body, &resp)
	return resp, err
}

// SetPaymentStatus changes a payment status.
func (c *Client) SetPaymentStatus(ctx context.Context, paymentID, status string) (Payment, error) {
	var resp Payment
	endpoint := fmt.Sprintf("v0/payments/%s", url.PathEscape(paymentID))
	err := c.do(ctx, http.MethodPatch, endpoint, map[string]any{"status": status}, &resp)
	return resp, err
}

// EventsPage returns a page of events for a project, newest first. A zero
// cursor starts at the latest event.
func (c *Client) EventsPage(ctx context.Context, projectID string, limit int, cursor int64) (PaginatedEvents, error) {
	q := url.Values{}
	if projectID != "" {
		q.Set("project_id", projectID)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor > 0 {
		q.Set("cursor", strconv.FormatInt(cursor, 10))
	}
	endpoint := "v0/events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) projectPath(projectID, p string) string {
	base := fmt.Sprintf("v0/projects/%s", url.PathEscape(projectID))
	if p == "" {
		return base
	}
	return base + "/" + strings.TrimLeft(p, "/")
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
