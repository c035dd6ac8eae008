package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"agencyline/internal/domain"
	"agencyline/internal/engine"
)

type healthOutput struct {
	Body struct {
		Status string `json:"status" example:"ok"`
	}
}

type whoAmIOutput struct {
	Body WhoAmIResponse
}

type devLoginInput struct {
	Body DevLoginRequest
}

type devLoginOutput struct {
	Body DevLoginResponse
}

const devTokenTTL = time.Hour

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Liveness probe",
		Tags:        []string{"system"},
	}, func(ctx context.Context, _ *struct{}) (*healthOutput, error) {
		out := &healthOutput{}
		out.Body.Status = "ok"
		return out, nil
	})
}

func registerMe(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Identity and permissions of the caller",
		Tags:        []string{"system"},
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*whoAmIOutput, error) {
		p, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return &whoAmIOutput{Body: WhoAmIResponse{
			ActorID:     p.Actor.ID,
			Name:        p.Actor.Name,
			Role:        p.Actor.Role,
			Permissions: nonNilSlice(e.Auth.Permissions(p.Actor)),
			Source:      p.Source,
		}}, nil
	})
}

// registerDevAuth exposes token minting for local development. It is only
// mounted when the server runs with dev login enabled.
func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "Mint a short-lived JWT (development only)",
		Tags:        []string{"system"},
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, in *devLoginInput) (*devLoginOutput, error) {
		actor := domain.Actor{
			ID:   strings.TrimSpace(in.Body.ActorID),
			Name: strings.TrimSpace(in.Body.Name),
			Role: in.Body.Role,
		}
		if actor.ID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", map[string]any{"field": "actor_id"})
		}
		token, err := signDevToken(authCfg.JWTSecret, actor, devTokenTTL)
		if err != nil {
			return nil, handleError(err)
		}
		return &devLoginOutput{Body: DevLoginResponse{Token: token}}, nil
	})
}
