package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"agencyline/internal/domain"
	"agencyline/internal/engine"
	"agencyline/internal/engine/rules"
	"agencyline/internal/repo"
)

type projectPath struct {
	ProjectID string `path:"project_id"`
}

type projectOutput struct {
	Body domain.Project `json:"body"`
}

var writeErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusInternalServerError,
}

var readErrors = []int{
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
}

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project with stage template and payment schedule",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*projectOutput, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.CreateProject(ctx, input.Body.options(), actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &projectOutput{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
		Errors:      readErrors,
	}, func(ctx context.Context, input *struct {
		Mode   string `query:"mode" enum:"active,paused,maintenance,completed"`
		Status string `query:"status" enum:"success,warning,danger,info"`
		Client string `query:"client"`
		Limit  int    `query:"limit" default:"50"`
	}) (*struct {
		Body []domain.Project `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListProjects(ctx, repo.ProjectFilters{
			Mode:   input.Mode,
			Status: input.Status,
			Client: input.Client,
			Limit:  normalizeLimit(input.Limit),
		}, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Project `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "project-stats",
		Method:      http.MethodGet,
		Path:        "/projects/stats",
		Summary:     "Count projects by status flag",
		Errors:      readErrors,
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body engine.ProjectStats `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		stats, err := e.ProjectStats(ctx, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.ProjectStats `json:"body"`
		}{Body: stats}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
		Errors:      readErrors,
	}, func(ctx context.Context, input *projectPath) (*projectOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.GetProject(ctx, input.ProjectID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &projectOutput{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}",
		Summary:     "Update project",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string               `path:"project_id"`
		Body      UpdateProjectRequest `json:"body"`
	}) (*projectOutput, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.UpdateProject(ctx, input.ProjectID, input.Body.options(), actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &projectOutput{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "enter-maintenance",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/maintenance",
		Summary:     "Switch project to maintenance mode",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string             `path:"project_id"`
		Body      MaintenanceRequest `json:"body" required:"false"`
	}) (*projectOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.EnterMaintenanceMode(ctx, input.ProjectID, actor, input.Body.Notes)
		if err != nil {
			return nil, handleError(err)
		}
		return &projectOutput{Body: p}, nil
	})
}

func registerInsights(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "compute-blockers",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/blockers",
		Summary:     "Recompute stage blockers",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body []rules.StageBlockers `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.ComputeBlockers(ctx, input.ProjectID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []rules.StageBlockers `json:"body"`
		}{Body: nonNilSlice(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "project-health",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/health",
		Summary:     "Score project health",
		Description: "Persists the computed health and pauses an active project with an overdue payment.",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body rules.HealthReport `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		report, err := e.GetProjectHealth(ctx, input.ProjectID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body rules.HealthReport `json:"body"`
		}{Body: report}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "client-view",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/client-view",
		Summary:     "Client-facing projection",
		Errors:      readErrors,
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body rules.ClientView `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		view, err := e.GetClientView(ctx, input.ProjectID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body rules.ClientView `json:"body"`
		}{Body: view}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "check-overdue",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/overdue-check",
		Summary:     "Pause the project when a payment is overdue",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body OverdueResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		paused, err := e.CheckPaymentOverdue(ctx, input.ProjectID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OverdueResponse `json:"body"`
		}{Body: OverdueResponse{Paused: paused}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "run-checks",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/checks",
		Summary:     "Run the overdue check and recompute blockers",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body engine.CheckResult `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.RunChecks(ctx, input.ProjectID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		res.Blockers = nonNilSlice(res.Blockers)
		return &struct {
			Body engine.CheckResult `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "check-all-overdue",
		Method:      http.MethodPost,
		Path:        "/checks/overdue",
		Summary:     "Run the overdue check across every project",
		Errors:      writeErrors,
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body CheckAllResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		paused, err := e.CheckAllOverdue(ctx, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CheckAllResponse `json:"body"`
		}{Body: CheckAllResponse{Paused: nonNilSlice(paused)}}, nil
	})
}

func registerPayments(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "record-payment",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/payments",
		Summary:       "Record a payment",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string               `path:"project_id"`
		Body      RecordPaymentRequest `json:"body"`
	}) (*struct {
		Body domain.Payment `json:"body"`
	}, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		pay, err := e.RecordPayment(ctx, input.ProjectID, engine.PaymentCreateOptions{
			Label:  input.Body.Label,
			Amount: input.Body.Amount,
			Date:   input.Body.Date,
			Status: input.Body.Status,
			Note:   input.Body.Note,
		}, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Payment `json:"body"`
		}{Body: pay}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-payments",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/payments",
		Summary:     "List project payments",
		Errors:      readErrors,
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body []domain.Payment `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListPayments(ctx, input.ProjectID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Payment `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-payment-status",
		Method:      http.MethodPatch,
		Path:        "/payments/{payment_id}",
		Summary:     "Change a payment status",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		PaymentID string               `path:"payment_id"`
		Body      PaymentStatusRequest `json:"body"`
	}) (*struct {
		Body domain.Payment `json:"body"`
	}, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		pay, err := e.SetPaymentStatus(ctx, input.PaymentID, input.Body.Status, input.Body.Date, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Payment `json:"body"`
		}{Body: pay}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Errors:      readErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID  string `query:"project_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     int64  `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		items, err := e.ListEvents(ctx, repo.EventFilters{
			ProjectID:  input.ProjectID,
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Before:     input.Cursor,
			Limit:      limit + 1,
		}, actor)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			items = items[:limit]
			resp.NextCursor = items[limit-1].ID
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-documents",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/documents",
		Summary:     "List generated documents",
		Errors:      readErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Type      string `query:"type"`
	}) (*struct {
		Body []domain.Document `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		docs, err := e.ListDocuments(ctx, input.ProjectID, input.Type, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Document `json:"body"`
		}{Body: nonNilSlice(docs)}, nil
	})
}

func registerAPIKeys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/api-keys",
		Summary:       "Issue an API key",
		Description:   "The plain key is only returned by this call.",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body CreatedAPIKeyResponse `json:"body"`
	}, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		holder := domain.Actor{ID: input.Body.ActorID, Name: input.Body.ActorName, Role: input.Body.Role}
		key, plain, err := e.CreateAPIKey(ctx, holder, input.Body.Name, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CreatedAPIKeyResponse `json:"body"`
		}{Body: CreatedAPIKeyResponse{APIKeyResponse: apiKeyResponse(key), Key: plain}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/api-keys",
		Summary:     "List API keys",
		Errors:      readErrors,
	}, func(ctx context.Context, input *struct {
		ActorID string `query:"actor_id"`
	}) (*struct {
		Body []APIKeyResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		keys, err := e.ListAPIKeys(ctx, input.ActorID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []APIKeyResponse `json:"body"`
		}{Body: mapAPIKeys(keys)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "revoke-api-key",
		Method:        http.MethodDelete,
		Path:          "/api-keys/{key_id}",
		Summary:       "Revoke an API key",
		DefaultStatus: http.StatusNoContent,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		KeyID string `path:"key_id"`
	}) (*struct{}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RevokeAPIKey(ctx, input.KeyID, actor); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerRemarks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-remark",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/remarks",
		Summary:       "Leave a remark on a project",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string        `path:"project_id"`
		Body      RemarkRequest `json:"body"`
	}) (*struct {
		Body domain.Remark `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		r, err := e.AddRemark(ctx, input.ProjectID, input.Body.Text, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Remark `json:"body"`
		}{Body: r}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-remarks",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/remarks",
		Summary:     "List project remarks, newest first",
		Errors:      readErrors,
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body []domain.Remark `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListRemarks(ctx, input.ProjectID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Remark `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-activity",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/activities",
		Summary:       "Log a manual activity on the project timeline",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string          `path:"project_id"`
		Body      ActivityRequest `json:"body"`
	}) (*struct {
		Body domain.Activity `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.AddActivity(ctx, input.ProjectID, engine.ActivityOptions{
			Action: input.Body.Action,
			Icon:   input.Body.Icon,
			Type:   input.Body.Type,
		}, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Activity `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-activities",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/activities",
		Summary:     "List the latest manual activities",
		Errors:      readErrors,
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body []domain.Activity `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListActivities(ctx, input.ProjectID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Activity `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})
}
