package engine

import (
	"context"
	"database/sql"

	"agencyline/internal/domain"
	"agencyline/internal/engine/auth"
	"agencyline/internal/events"
)

// EnterMaintenanceMode switches a delivered project to maintenance. The
// Delivery stage must be approved. A Maintenance stage is appended after the
// last stage unless the project already has one.
func (e Engine) EnterMaintenanceMode(ctx context.Context, projectID string, actor domain.Actor, notes string) (domain.Project, error) {
	if err := e.authorize(actor, auth.PermProjectMaintenance); err != nil {
		return domain.Project{}, err
	}
	now := e.now().UTC()
	return e.mutate(ctx, projectID, actor, func(_ *sql.Tx, p *domain.Project) ([]change, error) {
		delivery, ok := domain.FindStageByName(p, domain.StageDelivery)
		if !ok {
			return nil, domain.InvalidState("enter_maintenance", "project has no Delivery stage")
		}
		if !delivery.Approved {
			return nil, domain.InvalidState("enter_maintenance", "Delivery stage is not approved")
		}
		if p.Mode != domain.ModeMaintenance || p.MaintenanceStartedAt == nil {
			p.MaintenanceStartedAt = &now
		}
		p.Mode = domain.ModeMaintenance
		p.MaintenanceNotes = notes
		p.CurrentStage = domain.StageMaintenance
		appended := false
		if _, exists := domain.FindStageByName(p, domain.StageMaintenance); !exists {
			last := 0
			for _, st := range p.Stages {
				if st.Order > last {
					last = st.Order
				}
			}
			p.Stages = append(p.Stages, domain.MaintenanceStage(last+1))
			appended = true
		}
		return []change{projectChange(events.ProjectMaintenance, p.ID, events.EventPayload{"notes": notes, "stage_appended": appended})}, nil
	})
}
