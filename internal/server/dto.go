package server

import (
	"encoding/json"
	"time"

	"agencyline/internal/domain"
	"agencyline/internal/engine"
)

// Request payloads

type CreateProjectRequest struct {
	ID             string                `json:"id,omitempty"`
	Name           string                `json:"name" minLength:"1"`
	Client         string                `json:"client" minLength:"1"`
	Type           string                `json:"type,omitempty" enum:"web,mobile,desktop,ecommerce,crm,api,other"`
	Priority       string                `json:"priority,omitempty" enum:"low,medium,high,critical"`
	Description    string                `json:"description,omitempty"`
	DueDate        *time.Time            `json:"due_date,omitempty"`
	StartDate      *time.Time            `json:"start_date,omitempty"`
	Team           []domain.TeamMember   `json:"team,omitempty"`
	TotalAmount    float64               `json:"total_amount,omitempty" minimum:"0"`
	AdvancePercent *float64              `json:"advance_percent,omitempty" minimum:"0" maximum:"100"`
	Milestones     int                   `json:"milestones,omitempty" minimum:"0" maximum:"12"`
	ClientDetails  *domain.ClientDetails `json:"client_details,omitempty"`
}

func (r CreateProjectRequest) options() engine.ProjectCreateOptions {
	return engine.ProjectCreateOptions{
		ID:             r.ID,
		Name:           r.Name,
		Client:         r.Client,
		Type:           r.Type,
		Priority:       r.Priority,
		Description:    r.Description,
		DueDate:        r.DueDate,
		StartDate:      r.StartDate,
		Team:           r.Team,
		TotalAmount:    r.TotalAmount,
		AdvancePercent: r.AdvancePercent,
		Milestones:     r.Milestones,
		ClientDetails:  r.ClientDetails,
	}
}

type UpdateProjectRequest struct {
	Name          *string               `json:"name,omitempty"`
	Client        *string               `json:"client,omitempty"`
	Type          *string               `json:"type,omitempty" enum:"web,mobile,desktop,ecommerce,crm,api,other"`
	Priority      *string               `json:"priority,omitempty" enum:"low,medium,high,critical"`
	Status        *string               `json:"status,omitempty" enum:"success,warning,danger,info"`
	Mode          *string               `json:"mode,omitempty" enum:"active,paused,maintenance,completed"`
	Description   *string               `json:"description,omitempty"`
	DueDate       *time.Time            `json:"due_date,omitempty"`
	StartDate     *time.Time            `json:"start_date,omitempty"`
	Team          []domain.TeamMember   `json:"team,omitempty"`
	ClientDetails *domain.ClientDetails `json:"client_details,omitempty"`
}

func (r UpdateProjectRequest) options() engine.ProjectUpdateOptions {
	return engine.ProjectUpdateOptions{
		Name:          r.Name,
		Client:        r.Client,
		Type:          r.Type,
		Priority:      r.Priority,
		Status:        r.Status,
		Mode:          r.Mode,
		Description:   r.Description,
		DueDate:       r.DueDate,
		StartDate:     r.StartDate,
		Team:          r.Team,
		ClientDetails: r.ClientDetails,
	}
}

type MaintenanceRequest struct {
	Notes string `json:"notes,omitempty"`
}

type UpdateStageRequest struct {
	Status                 *string    `json:"status,omitempty" enum:"pending,in-progress,completed,blocked,waiting-client"`
	Health                 *string    `json:"health,omitempty" enum:"success,warning,danger,pending"`
	Approved               *bool      `json:"approved,omitempty"`
	RepoURL                *string    `json:"repo_url,omitempty"`
	LiveURL                *string    `json:"live_url,omitempty"`
	HostingProvider        *string    `json:"hosting_provider,omitempty"`
	DomainURL              *string    `json:"domain_url,omitempty"`
	SSLStatus              *string    `json:"ssl_status,omitempty" enum:"active,expired,pending"`
	Summary                *string    `json:"summary,omitempty"`
	Deadline               *time.Time `json:"deadline,omitempty"`
	ClientVisible          *bool      `json:"client_visible,omitempty"`
	LinkedPaymentMilestone *string    `json:"linked_payment_milestone,omitempty"`
}

func (r UpdateStageRequest) options() engine.StageUpdateOptions {
	return engine.StageUpdateOptions{
		Status:                 r.Status,
		Health:                 r.Health,
		Approved:               r.Approved,
		RepoURL:                r.RepoURL,
		LiveURL:                r.LiveURL,
		HostingProvider:        r.HostingProvider,
		DomainURL:              r.DomainURL,
		SSLStatus:              r.SSLStatus,
		Summary:                r.Summary,
		Deadline:               r.Deadline,
		ClientVisible:          r.ClientVisible,
		LinkedPaymentMilestone: r.LinkedPaymentMilestone,
	}
}

type StageItemRequest struct {
	Done bool `json:"done"`
}

type VisibilityRequest struct {
	Visible *bool `json:"visible,omitempty"`
}

type PaymentLinkRequest struct {
	Milestone string `json:"milestone"`
}

type ReviewRequest struct {
	Decision string `json:"decision,omitempty" enum:"approved,rejected"`
	Comment  string `json:"comment,omitempty"`
}

type CreateAssetRequest struct {
	Label string `json:"label" minLength:"1"`
	Type  string `json:"type,omitempty" enum:"logo,content,brand-guide,api-keys,approval,other"`
	Note  string `json:"note,omitempty"`
}

type UpdateAssetRequest struct {
	Status   *string `json:"status,omitempty" enum:"pending,received,rejected"`
	FileName *string `json:"file_name,omitempty"`
	FileURL  *string `json:"file_url,omitempty"`
	Note     *string `json:"note,omitempty"`
}

type RecordPaymentRequest struct {
	Label  string     `json:"label" minLength:"1"`
	Amount float64    `json:"amount" minimum:"0"`
	Date   *time.Time `json:"date,omitempty"`
	Status string     `json:"status,omitempty" enum:"pending,received,cancelled"`
	Note   string     `json:"note,omitempty"`
}

type PaymentStatusRequest struct {
	Status string     `json:"status" enum:"pending,received,cancelled"`
	Date   *time.Time `json:"date,omitempty"`
}

type RemarkRequest struct {
	Text string `json:"text" minLength:"1"`
}

type ActivityRequest struct {
	Action string `json:"action" minLength:"1"`
	Icon   string `json:"icon,omitempty"`
	Type   string `json:"type,omitempty"`
}

type CreateAPIKeyRequest struct {
	ActorID   string `json:"actor_id" minLength:"1"`
	ActorName string `json:"actor_name,omitempty"`
	Role      string `json:"role" enum:"admin,subadmin,developer,client"`
	Name      string `json:"name,omitempty"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
	Name    string `json:"name,omitempty"`
	Role    string `json:"role" enum:"admin,subadmin,developer,client"`
}

// Responses

type DevLoginResponse struct {
	Token string `json:"token"`
}

type WhoAmIResponse struct {
	ActorID     string   `json:"actor_id"`
	Name        string   `json:"name,omitempty"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
	Source      string   `json:"source"`
}

type CheckAllResponse struct {
	Paused []string `json:"paused"`
}

type OverdueResponse struct {
	Paused bool `json:"paused"`
}

type EventResponse struct {
	ID         int64           `json:"id"`
	TS         string          `json:"ts" format:"date-time"`
	Type       string          `json:"type"`
	ProjectID  string          `json:"project_id,omitempty"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	Payload    json.RawMessage `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor int64           `json:"next_cursor,omitempty"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	ActorName string `json:"actor_name,omitempty"`
	Role      string `json:"role"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type CreatedAPIKeyResponse struct {
	APIKeyResponse
	Key string `json:"key"`
}

func eventResponse(e domain.Event) EventResponse {
	payload := json.RawMessage("{}")
	if e.Payload != "" && json.Valid([]byte(e.Payload)) {
		payload = json.RawMessage(e.Payload)
	}
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		ProjectID:  e.ProjectID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    payload,
	}
}

func apiKeyResponse(k domain.APIKey) APIKeyResponse {
	return APIKeyResponse{
		ID:        k.ID,
		ActorID:   k.ActorID,
		ActorName: k.ActorName,
		Role:      k.Role,
		Name:      k.Name,
		CreatedAt: k.CreatedAt,
	}
}

func mapAPIKeys(items []domain.APIKey) []APIKeyResponse {
	res := make([]APIKeyResponse, 0, len(items))
	for _, k := range items {
		res = append(res, apiKeyResponse(k))
	}
	return res
}
