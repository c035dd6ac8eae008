package auth

import (
	"fmt"

	"agencyline/internal/config"
	"agencyline/internal/domain"
)

// Permission identifiers checked by the engine.
const (
	PermProjectCreate      = "project.create"
	PermProjectRead        = "project.read"
	PermProjectUpdate      = "project.update"
	PermProjectMaintenance = "project.maintenance"
	PermStageUpdate        = "stage.update"
	PermStageSubmit        = "stage.submit"
	PermStageReview        = "stage.review"
	PermStageApprove       = "stage.approve"
	PermStageVisibility    = "stage.visibility"
	PermAssetWrite         = "asset.write"
	PermPaymentWrite       = "payment.write"
	PermPaymentLink        = "payment.link"
	PermBlockersCompute    = "blockers.compute"
	PermHealthRead         = "health.read"
	PermOverdueCheck       = "overdue.check"
	PermClientViewRead     = "client_view.read"
	PermReportRead         = "report.read"
	PermEventsRead         = "events.read"
	PermRemarkWrite        = "remark.write"
	PermActivityWrite      = "activity.write"
	PermAPIKeyManage       = "apikey.manage"
)

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
	Role       string
}

func (e ForbiddenError) Error() string {
	if e.Role == "" {
		return fmt.Sprintf("permission %s required", e.Permission)
	}
	return fmt.Sprintf("permission %s required (role %s)", e.Permission, e.Role)
}

// Service resolves role permissions from the agency config.
type Service struct {
	Config *config.Config
}

// Permissions lists what the actor's role grants.
func (s Service) Permissions(actor domain.Actor) []string {
	return s.Config.RolePermissions(actor.Role)
}

func (s Service) Allowed(actor domain.Actor, perm string) bool {
	for _, p := range s.Permissions(actor) {
		if p == perm || p == "*" {
			return true
		}
	}
	return false
}

// Require returns a ForbiddenError when the actor lacks perm. A nil config
// disables checks, which is how the local CLI runs.
func (s Service) Require(actor domain.Actor, perm string) error {
	if s.Config == nil {
		return nil
	}
	if s.Allowed(actor, perm) {
		return nil
	}
	return ForbiddenError{Permission: perm, Role: actor.Role}
}
