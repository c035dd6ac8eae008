package engine

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"agencyline/internal/domain"
	"agencyline/internal/engine/auth"
	"agencyline/internal/engine/rules"
	"agencyline/internal/events"
)

type AssetCreateOptions struct {
	Label string
	Type  string
	Note  string
}

// AddAssetRequest asks the client for an asset on a stage.
func (e Engine) AddAssetRequest(ctx context.Context, projectID, stageID string, opts AssetCreateOptions, actor domain.Actor) (domain.Project, error) {
	if err := e.authorize(actor, auth.PermAssetWrite); err != nil {
		return domain.Project{}, err
	}
	label := strings.TrimSpace(opts.Label)
	if label == "" {
		return domain.Project{}, domain.Invalid("label", "is required")
	}
	if opts.Type == "" {
		opts.Type = "other"
	}
	if !domain.ValidAssetType(opts.Type) {
		return domain.Project{}, domain.Invalid("type", "unknown asset type "+opts.Type)
	}
	now := e.now().UTC()
	return e.mutate(ctx, projectID, actor, func(_ *sql.Tx, p *domain.Project) ([]change, error) {
		_, st, err := domain.FindStage(p, stageID)
		if err != nil {
			return nil, err
		}
		a := domain.AssetRequest{
			ID:          uuid.NewString(),
			Label:       label,
			Type:        opts.Type,
			Status:      domain.AssetPending,
			Note:        opts.Note,
			RequestedAt: now,
		}
		st.AssetRequests = append(st.AssetRequests, a)
		return []change{{Type: events.AssetRequested, EntityKind: "asset", EntityID: a.ID, Payload: events.EventPayload{"stage": st.Name, "label": a.Label, "type": a.Type}}}, nil
	})
}

type AssetUpdateOptions struct {
	Status   *string
	FileName *string
	FileURL  *string
	Note     *string
}

// UpdateAssetRequest edits an asset request. Marking it received stamps the
// receipt time and closes the first open checklist item of the stage that the
// asset label satisfies.
func (e Engine) UpdateAssetRequest(ctx context.Context, projectID, stageID, assetID string, opts AssetUpdateOptions, actor domain.Actor) (domain.Project, error) {
	if err := e.authorize(actor, auth.PermAssetWrite); err != nil {
		return domain.Project{}, err
	}
	if opts.Status != nil && !domain.ValidAssetStatus(*opts.Status) {
		return domain.Project{}, domain.Invalid("status", "unknown asset status "+*opts.Status)
	}
	now := e.now().UTC()
	return e.mutate(ctx, projectID, actor, func(_ *sql.Tx, p *domain.Project) ([]change, error) {
		_, st, err := domain.FindStage(p, stageID)
		if err != nil {
			return nil, err
		}
		i, err := domain.FindAsset(st, assetID)
		if err != nil {
			return nil, err
		}
		a := &st.AssetRequests[i]
		payload := events.EventPayload{"stage": st.Name}
		if opts.FileName != nil {
			a.FileName = *opts.FileName
		}
		if opts.FileURL != nil {
			a.FileURL = *opts.FileURL
		}
		if opts.Note != nil {
			a.Note = *opts.Note
		}
		if opts.Status != nil {
			a.Status = *opts.Status
			payload["status"] = a.Status
			switch a.Status {
			case domain.AssetReceived:
				a.ReceivedAt = &now
				if j := rules.MatchChecklistItem(st.Items, a.Label); j >= 0 {
					st.Items[j].Done = true
					payload["checked_item_id"] = st.Items[j].ID
				}
			case domain.AssetPending:
				a.ReceivedAt = nil
			}
		}
		return []change{{Type: events.AssetUpdated, EntityKind: "asset", EntityID: a.ID, Payload: payload}}, nil
	})
}

func (e Engine) DeleteAssetRequest(ctx context.Context, projectID, stageID, assetID string, actor domain.Actor) (domain.Project, error) {
	if err := e.authorize(actor, auth.PermAssetWrite); err != nil {
		return domain.Project{}, err
	}
	return e.mutate(ctx, projectID, actor, func(_ *sql.Tx, p *domain.Project) ([]change, error) {
		_, st, err := domain.FindStage(p, stageID)
		if err != nil {
			return nil, err
		}
		i, err := domain.FindAsset(st, assetID)
		if err != nil {
			return nil, err
		}
		label := st.AssetRequests[i].Label
		st.AssetRequests = append(st.AssetRequests[:i], st.AssetRequests[i+1:]...)
		return []change{{Type: events.AssetDeleted, EntityKind: "asset", EntityID: assetID, Payload: events.EventPayload{"stage": st.Name, "label": label}}}, nil
	})
}
