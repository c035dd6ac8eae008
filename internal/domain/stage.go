package domain

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	StagePending       = "pending"
	StageInProgress    = "in-progress"
	StageCompleted     = "completed"
	StageBlocked       = "blocked"
	StageWaitingClient = "waiting-client"

	// legacy synonyms still present in older records
	stageLegacyActive   = "active"
	stageLegacyApproved = "approved"
)

const (
	StageTypeChecklist   = "checklist"
	StageTypeDevelopment = "development"
	StageTypeHosting     = "hosting"
	StageTypeDelivery    = "delivery"
	StageTypeMaintenance = "maintenance"
)

const (
	StageRequirement = "Requirement"
	StageDesign      = "Design"
	StageFrontend    = "Frontend"
	StageBackend     = "Backend"
	StageQA          = "QA Testing"
	StageHosting     = "Hosting & Deployment"
	StageDelivery    = "Delivery"
	StageMaintenance = "Maintenance"
)

const (
	ModeActive      = "active"
	ModePaused      = "paused"
	ModeMaintenance = "maintenance"
	ModeCompleted   = "completed"
)

const (
	DecisionPending  = "pending"
	DecisionApproved = "approved"
	DecisionRejected = "rejected"
)

const (
	AssetPending  = "pending"
	AssetReceived = "received"
	AssetRejected = "rejected"
)

const (
	PaymentPending   = "pending"
	PaymentReceived  = "received"
	PaymentCancelled = "cancelled"
)

const (
	RoleAdmin     = "admin"
	RoleSubadmin  = "subadmin"
	RoleDeveloper = "developer"
	RoleClient    = "client"
)

var (
	stageNames     = []string{StageRequirement, StageDesign, StageFrontend, StageBackend, StageQA, StageHosting, StageDelivery, StageMaintenance}
	stageStatuses  = []string{StagePending, StageInProgress, StageCompleted, StageBlocked, StageWaitingClient, stageLegacyActive, stageLegacyApproved}
	stageTypes     = []string{StageTypeChecklist, StageTypeDevelopment, StageTypeHosting, StageTypeDelivery, StageTypeMaintenance}
	projectModes   = []string{ModeActive, ModePaused, ModeMaintenance, ModeCompleted}
	projectTypes   = []string{"web", "mobile", "desktop", "ecommerce", "crm", "api", "other"}
	priorities     = []string{"low", "medium", "high", "critical"}
	projectStatus  = []string{"success", "warning", "danger", "info"}
	assetStatuses  = []string{AssetPending, AssetReceived, AssetRejected}
	assetTypes     = []string{"logo", "content", "brand-guide", "api-keys", "approval", "other"}
	paymentStatus  = []string{PaymentPending, PaymentReceived, PaymentCancelled}
	sslStatuses    = []string{"active", "expired", "pending"}
	stageHealths   = []string{"success", "warning", "danger", "pending"}
	teamRoles      = []string{"Project Manager", "Designer", "Frontend Dev", "Backend Dev", "QA Engineer", "DevOps"}
	actorRoles     = []string{RoleAdmin, RoleSubadmin, RoleDeveloper, RoleClient}
	reviewStatuses = []string{DecisionPending, DecisionApproved, DecisionRejected}
)

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func ValidStageStatus(v string) bool { return contains(stageStatuses, v) }
func ValidStageName(v string) bool { return contains(stageNames, v) }
func ValidMode(v string) bool { return contains(projectModes, v) }
func ValidProjectType(v string) bool { return contains(projectTypes, v) }
func ValidPriority(v string) bool { return contains(priorities, v) }
func ValidAssetStatus(v string) bool { return contains(assetStatuses, v) }
func ValidAssetType(v string) bool { return contains(assetTypes, v) }
func ValidPaymentStatus(v string) bool { return contains(paymentStatus, v) }
func ValidSSLStatus(v string) bool { return contains(sslStatuses, v) }
func ValidStageHealth(v string) bool { return contains(stageHealths, v) }
func ValidTeamRole(v string) bool { return contains(teamRoles, v) }
func ValidActorRole(v string) bool { return contains(actorRoles, v) }

// NormalizedStatus folds legacy synonyms onto the current status set.
func (s Stage) NormalizedStatus() string {
	switch s.Status {
	case stageLegacyActive:
		return StageInProgress
	case stageLegacyApproved:
		return StageCompleted
	default:
		return s.Status
	}
}

func (s Stage) IsCompleted() bool { return s.NormalizedStatus() == StageCompleted }

type stageSeed struct {
	name  string
	typ   string
	icon  string
	items []string
}

var stageTemplate = []stageSeed{
	{StageRequirement, StageTypeChecklist, "📋", []string{"Gather client requirements", "Create requirement document", "Get client approval", "Define technical specifications"}},
	{StageDesign, StageTypeChecklist, "🎨", []string{"Create wireframes", "Design UI mockups", "Create design system", "Get design approval"}},
	{StageFrontend, StageTypeDevelopment, "💻", nil},
	{StageBackend, StageTypeDevelopment, "⚙️", nil},
	{StageQA, StageTypeChecklist, "🔍", []string{"Create test cases", "Functional testing", "Performance testing", "Security testing", "UAT with client"}},
	{StageHosting, StageTypeHosting, "☁️", nil},
	{StageDelivery, StageTypeDelivery, "🚀", nil},
}

// DefaultStages returns the intake template. The first stage starts in progress.
func DefaultStages() []Stage {
	stages := make([]Stage, 0, len(stageTemplate))
	for i, seed := range stageTemplate {
		st := Stage{
			ID:             uuid.NewString(),
			Name:           seed.name,
			Status:         StagePending,
			Type:           seed.typ,
			Order:          i + 1,
			Icon:           seed.icon,
			Health:         "pending",
			BlockerReasons: []BlockerReason{},
			ApprovalWorkflow: ApprovalWorkflow{
				SubadminReview: ReviewDecision{Status: DecisionPending},
				AdminApproval:  ReviewDecision{Status: DecisionPending},
			},
			ClientVisible: true,
		}
		for _, text := range seed.items {
			st.Items = append(st.Items, ChecklistItem{ID: uuid.NewString(), Text: text})
		}
		if i == 0 {
			st.Status = StageInProgress
		}
		stages = append(stages, st)
	}
	return stages
}

// MaintenanceStage builds the stage appended when a project enters maintenance.
func MaintenanceStage(order int) Stage {
	return Stage{
		ID:             uuid.NewString(),
		Name:           StageMaintenance,
		Status:         StageInProgress,
		Type:           StageTypeMaintenance,
		Order:          order,
		Icon:           "🔧",
		Health:         "pending",
		BlockerReasons: []BlockerReason{},
		ApprovalWorkflow: ApprovalWorkflow{
			SubadminReview: ReviewDecision{Status: DecisionPending},
			AdminApproval:  ReviewDecision{Status: DecisionPending},
		},
		ClientVisible: true,
	}
}

// FindStage resolves ref against the native id first, then the legacy id.
func FindStage(p *Project, ref string) (int, *Stage, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return -1, nil, ErrStageNotFound
	}
	for i := range p.Stages {
		if p.Stages[i].ID == ref {
			return i, &p.Stages[i], nil
		}
	}
	for i := range p.Stages {
		if p.Stages[i].LegacyID != "" && p.Stages[i].LegacyID == ref {
			return i, &p.Stages[i], nil
		}
	}
	return -1, nil, fmt.Errorf("%w: %s", ErrStageNotFound, ref)
}

func FindStageByName(p *Project, name string) (*Stage, bool) {
	for i := range p.Stages {
		if p.Stages[i].Name == name {
			return &p.Stages[i], true
		}
	}
	return nil, false
}

func FindStageByOrder(p *Project, order int) (*Stage, bool) {
	for i := range p.Stages {
		if p.Stages[i].Order == order {
			return &p.Stages[i], true
		}
	}
	return nil, false
}

func FindAsset(st *Stage, id string) (int, error) {
	for i := range st.AssetRequests {
		if st.AssetRequests[i].ID == id {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %s", ErrAssetNotFound, id)
}

func FindItem(st *Stage, id string) (int, error) {
	for i := range st.Items {
		if st.Items[i].ID == id {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %s", ErrItemNotFound, id)
}

// Normalize fills defaults on a decoded aggregate. Stages stored with only a
// legacy id get it promoted to the native id.
func (p *Project) Normalize() {
	if p.Mode == "" {
		p.Mode = ModeActive
	}
	if p.Team == nil {
		p.Team = []TeamMember{}
	}
	for i := range p.Stages {
		st := &p.Stages[i]
		if st.ID == "" {
			if st.LegacyID != "" {
				st.ID = st.LegacyID
			} else {
				st.ID = uuid.NewString()
			}
		}
		if st.BlockerReasons == nil {
			st.BlockerReasons = []BlockerReason{}
		}
		if st.ApprovalWorkflow.SubadminReview.Status == "" {
			st.ApprovalWorkflow.SubadminReview.Status = DecisionPending
		}
		if st.ApprovalWorkflow.AdminApproval.Status == "" {
			st.ApprovalWorkflow.AdminApproval.Status = DecisionPending
		}
	}
}

// RecomputeProgress sets progress to the rounded share of completed stages.
func (p *Project) RecomputeProgress() {
	if len(p.Stages) == 0 {
		p.Progress = 0
		return
	}
	done := 0
	for _, st := range p.Stages {
		if st.IsCompleted() {
			done++
		}
	}
	p.Progress = int(math.Round(100 * float64(done) / float64(len(p.Stages))))
}

// Validate checks the shape invariants of the aggregate.
func (p *Project) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return Invalid("name", "is required")
	}
	if strings.TrimSpace(p.Client) == "" {
		return Invalid("client", "is required")
	}
	if p.Type != "" && !ValidProjectType(p.Type) {
		return Invalid("type", "must be one of "+strings.Join(projectTypes, ", "))
	}
	if p.Priority != "" && !ValidPriority(p.Priority) {
		return Invalid("priority", "must be one of "+strings.Join(priorities, ", "))
	}
	if p.Status != "" && !contains(projectStatus, p.Status) {
		return Invalid("status", "must be one of "+strings.Join(projectStatus, ", "))
	}
	if !ValidMode(p.Mode) {
		return Invalid("mode", "must be one of "+strings.Join(projectModes, ", "))
	}
	for _, m := range p.Team {
		if !ValidTeamRole(m.Role) {
			return Invalid("team.role", fmt.Sprintf("%q is not a known role", m.Role))
		}
	}
	orders := map[int]string{}
	for _, st := range p.Stages {
		if !ValidStageName(st.Name) {
			return Invalid("stage.name", fmt.Sprintf("%q is not a lifecycle stage", st.Name))
		}
		if !ValidStageStatus(st.Status) {
			return Invalid("stage.status", fmt.Sprintf("%q on stage %s", st.Status, st.Name))
		}
		if !contains(stageTypes, st.Type) {
			return Invalid("stage.type", fmt.Sprintf("%q on stage %s", st.Type, st.Name))
		}
		if prev, ok := orders[st.Order]; ok {
			return Invalid("stage.order", fmt.Sprintf("%d used by both %s and %s", st.Order, prev, st.Name))
		}
		orders[st.Order] = st.Name
		if len(st.Items) > 0 && st.Type != StageTypeChecklist {
			return Invalid("stage.items", fmt.Sprintf("stage %s is not a checklist stage", st.Name))
		}
		if st.SSLStatus != "" && !ValidSSLStatus(st.SSLStatus) {
			return Invalid("stage.ssl_status", st.SSLStatus)
		}
		if st.Health != "" && !ValidStageHealth(st.Health) {
			return Invalid("stage.health", st.Health)
		}
		for _, a := range st.AssetRequests {
			if !ValidAssetStatus(a.Status) {
				return Invalid("asset.status", a.Status)
			}
		}
		for _, rs := range []string{st.ApprovalWorkflow.SubadminReview.Status, st.ApprovalWorkflow.AdminApproval.Status} {
			if !contains(reviewStatuses, rs) {
				return Invalid("approval.status", rs)
			}
		}
	}
	return nil
}

// Clone returns a deep copy so callers can hand the aggregate to hooks safely.
func (p Project) Clone() Project {
	out := p
	out.Team = append([]TeamMember(nil), p.Team...)
	out.Stages = make([]Stage, len(p.Stages))
	for i, st := range p.Stages {
		cp := st
		cp.Items = append([]ChecklistItem(nil), st.Items...)
		cp.AssetRequests = append([]AssetRequest(nil), st.AssetRequests...)
		cp.BlockerReasons = append([]BlockerReason{}, st.BlockerReasons...)
		out.Stages[i] = cp
	}
	if p.ClientDetails != nil {
		cd := *p.ClientDetails
		out.ClientDetails = &cd
	}
	return out
}

func TimePtr(t time.Time) *time.Time { return &t }
