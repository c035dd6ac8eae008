package domain

import "time"

type Project struct {
	ID                   string         `json:"id"`
	Name                 string         `json:"name"`
	Client               string         `json:"client"`
	Type                 string         `json:"type" enum:"web,mobile,desktop,ecommerce,crm,api,other"`
	Priority             string         `json:"priority" enum:"low,medium,high,critical"`
	Status               string         `json:"status" enum:"success,warning,danger,info"`
	Mode                 string         `json:"mode" enum:"active,paused,maintenance,completed"`
	CurrentStage         string         `json:"current_stage"`
	Progress             int            `json:"progress"`
	DueDate              *time.Time     `json:"due_date,omitempty"`
	StartDate            *time.Time     `json:"start_date,omitempty"`
	Team                 []TeamMember   `json:"team"`
	Stages               []Stage        `json:"stages"`
	TotalAmount          float64        `json:"total_amount"`
	AdvancePercent       float64        `json:"advance_percent"`
	Milestones           int            `json:"milestones"`
	Health               Health         `json:"health"`
	MaintenanceStartedAt *time.Time     `json:"maintenance_started_at,omitempty"`
	MaintenanceNotes     string         `json:"maintenance_notes,omitempty"`
	Description          string         `json:"description,omitempty"`
	ClientDetails        *ClientDetails `json:"client_details,omitempty"`
	Version              int64          `json:"version"`
	CreatedAt            string         `json:"created_at" format:"date-time"`
	UpdatedAt            string         `json:"updated_at" format:"date-time"`
}

type ClientDetails struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Company string `json:"company,omitempty"`
}

type TeamMember struct {
	Role    string `json:"role" enum:"Project Manager,Designer,Frontend Dev,Backend Dev,QA Engineer,DevOps"`
	ActorID string `json:"actor_id,omitempty"`
	Name    string `json:"name"`
}

type Stage struct {
	ID                     string           `json:"id"`
	LegacyID               string           `json:"legacy_id,omitempty"`
	Name                   string           `json:"name"`
	Status                 string           `json:"status"`
	StatusBeforeBlock      string           `json:"status_before_block,omitempty"`
	Type                   string           `json:"type"`
	Order                  int              `json:"order"`
	Approved               bool             `json:"approved"`
	Icon                   string           `json:"icon,omitempty"`
	Deadline               *time.Time       `json:"deadline,omitempty"`
	Summary                string           `json:"summary,omitempty"`
	Health                 string           `json:"health,omitempty" enum:"success,warning,danger,pending"`
	RepoURL                string           `json:"repo_url,omitempty"`
	LiveURL                string           `json:"live_url,omitempty"`
	HostingProvider        string           `json:"hosting_provider,omitempty"`
	DomainURL              string           `json:"domain_url,omitempty"`
	SSLStatus              string           `json:"ssl_status,omitempty" enum:"active,expired,pending"`
	Items                  []ChecklistItem  `json:"items,omitempty"`
	AssetRequests          []AssetRequest   `json:"asset_requests,omitempty"`
	BlockerReasons         []BlockerReason  `json:"blocker_reasons"`
	ApprovalWorkflow       ApprovalWorkflow `json:"approval_workflow"`
	LinkedPaymentMilestone string           `json:"linked_payment_milestone,omitempty"`
	ClientVisible          bool             `json:"client_visible"`
}

type ChecklistItem struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	Done bool   `json:"done"`
}

type AssetRequest struct {
	ID          string     `json:"id"`
	Label       string     `json:"label"`
	Type        string     `json:"type" enum:"logo,content,brand-guide,api-keys,approval,other"`
	Status      string     `json:"status" enum:"pending,received,rejected"`
	FileName    string     `json:"file_name,omitempty"`
	FileURL     string     `json:"file_url,omitempty"`
	Note        string     `json:"note,omitempty"`
	RequestedAt time.Time  `json:"requested_at"`
	ReceivedAt  *time.Time `json:"received_at,omitempty"`
}

// ApprovalWorkflow is the submit -> sub-admin review -> admin approval record of a stage.
type ApprovalWorkflow struct {
	SubmittedAt     *time.Time     `json:"submitted_at,omitempty"`
	SubmittedBy     string         `json:"submitted_by,omitempty"`
	SubmittedByName string         `json:"submitted_by_name,omitempty"`
	SubadminReview  ReviewDecision `json:"subadmin_review"`
	AdminApproval   ReviewDecision `json:"admin_approval"`
}

type ReviewDecision struct {
	Status    string     `json:"status" enum:"pending,approved,rejected"`
	ActorID   string     `json:"actor_id,omitempty"`
	ActorName string     `json:"actor_name,omitempty"`
	At        *time.Time `json:"at,omitempty"`
	Comment   string     `json:"comment,omitempty"`
}

type BlockerReason struct {
	Type     string `json:"type" enum:"payment-pending,client-approval,assets-missing,repo-empty"`
	Label    string `json:"label"`
	Severity string `json:"severity" enum:"blocked,waiting,info"`
}

type Health struct {
	Payment             string `json:"payment" enum:"healthy,warning,danger,pending"`
	ClientPending       int    `json:"client_pending"`
	DeveloperAssignment string `json:"developer_assignment" enum:"full,partial,none"`
	QAStatus            string `json:"qa_status" enum:"passed,in-progress,not-started,failed"`
	DeadlineRisk        string `json:"deadline_risk" enum:"on-track,at-risk,overdue"`
	OverallScore        int    `json:"overall_score"`
}

// Payment is owned by the payment subsystem; stages refer to it by label only.
type Payment struct {
	ID        string     `json:"id"`
	ProjectID string     `json:"project_id"`
	Label     string     `json:"label"`
	Amount    float64    `json:"amount"`
	Date      *time.Time `json:"date,omitempty"`
	Status    string     `json:"status" enum:"pending,received,cancelled"`
	Note      string     `json:"note,omitempty"`
	CreatedAt string     `json:"created_at" format:"date-time"`
}

type Document struct {
	ID              string `json:"id"`
	ProjectID       string `json:"project_id"`
	Type            string `json:"type"`
	Title           string `json:"title"`
	Stage           string `json:"stage,omitempty"`
	Status          string `json:"status" enum:"draft,final,approved,sent"`
	Content         string `json:"content"`
	GeneratedBy     string `json:"generated_by"`
	GeneratedByName string `json:"generated_by_name,omitempty"`
	GeneratedAt     string `json:"generated_at" format:"date-time"`
}

// Actor is the already-authenticated caller of an operation.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role" enum:"admin,subadmin,developer,client"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// Remark is a free-text note left on a project.
type Remark struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	ActorID   string `json:"actor_id"`
	ActorName string `json:"actor_name,omitempty"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Activity is a manually logged entry on the project timeline.
type Activity struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	ActorID   string `json:"actor_id"`
	ActorName string `json:"actor_name,omitempty"`
	Action    string `json:"action"`
	Icon      string `json:"icon,omitempty"`
	Type      string `json:"type"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	ActorName string `json:"actor_name,omitempty"`
	Role      string `json:"role"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
