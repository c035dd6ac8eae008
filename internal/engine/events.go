package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"

	"agencyline/internal/config"
	"agencyline/internal/domain"
	"agencyline/internal/engine/auth"
	"agencyline/internal/events"
	"agencyline/internal/repo"
)

func (e Engine) ListEvents(ctx context.Context, f repo.EventFilters, actor domain.Actor) ([]domain.Event, error) {
	if err := e.authorize(actor, auth.PermEventsRead); err != nil {
		return nil, err
	}
	return e.Repo.LatestEvents(ctx, f)
}

func (e Engine) ListDocuments(ctx context.Context, projectID, docType string, actor domain.Actor) ([]domain.Document, error) {
	if err := e.authorize(actor, auth.PermReportRead); err != nil {
		return nil, err
	}
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	return e.Repo.ListDocuments(ctx, projectID, docType)
}

// ImportAgencyConfig validates and stores cfg as the agency configuration.
// It runs from the local CLI only and is not exposed over HTTP.
func (e Engine) ImportAgencyConfig(ctx context.Context, cfg *config.Config, actor domain.Actor) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertAgencyConfig(ctx, tx, cfg); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.AgencyConfigImported, "", "agency", cfg.Agency.ID, actor.ID, events.EventPayload{"roles": len(cfg.RBAC.Roles), "webhooks": len(cfg.Webhooks)}); err != nil {
		return err
	}
	return tx.Commit()
}

// CreateAPIKey issues a key for an actor. The plain key is returned once;
// only its hash is stored.
func (e Engine) CreateAPIKey(ctx context.Context, holder domain.Actor, name string, actor domain.Actor) (domain.APIKey, string, error) {
	if err := e.authorize(actor, auth.PermAPIKeyManage); err != nil {
		return domain.APIKey{}, "", err
	}
	if strings.TrimSpace(holder.ID) == "" {
		return domain.APIKey{}, "", domain.Invalid("actor_id", "is required")
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return domain.APIKey{}, "", err
	}
	plain := "agl_" + hex.EncodeToString(buf)
	key := domain.APIKey{
		ID:        uuid.NewString(),
		ActorID:   holder.ID,
		ActorName: holder.Name,
		Role:      holder.Role,
		Name:      name,
		KeyHash:   repo.HashAPIKey(plain),
		CreatedAt: timestamp(e.now()),
	}
	if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, plain, nil
}

func (e Engine) ListAPIKeys(ctx context.Context, actorID string, actor domain.Actor) ([]domain.APIKey, error) {
	if err := e.authorize(actor, auth.PermAPIKeyManage); err != nil {
		return nil, err
	}
	return e.Repo.ListAPIKeys(ctx, actorID)
}

func (e Engine) RevokeAPIKey(ctx context.Context, id string, actor domain.Actor) error {
	if err := e.authorize(actor, auth.PermAPIKeyManage); err != nil {
		return err
	}
	return e.Repo.DeleteAPIKey(ctx, id)
}
