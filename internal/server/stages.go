package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"agencyline/internal/engine"
	"agencyline/internal/engine/rules"
)

type stagePath struct {
	ProjectID string `path:"project_id"`
	StageID   string `path:"stage_id" doc:"Stage id, or the legacy numeric id of older records"`
}

func registerStages(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "update-stage",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}/stages/{stage_id}",
		Summary:     "Update stage fields",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		stagePath
		Body UpdateStageRequest `json:"body"`
	}) (*projectOutput, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.UpdateStage(ctx, input.ProjectID, input.StageID, input.Body.options(), actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &projectOutput{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-stage-item",
		Method:      http.MethodPut,
		Path:        "/projects/{project_id}/stages/{stage_id}/items/{item_id}",
		Summary:     "Check or uncheck a checklist item",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		stagePath
		ItemID string           `path:"item_id"`
		Body   StageItemRequest `json:"body"`
	}) (*projectOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.UpdateStageItem(ctx, input.ProjectID, input.StageID, input.ItemID, input.Body.Done, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &projectOutput{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stage-visibility",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/stages/{stage_id}/visibility",
		Summary:     "Set or toggle client visibility",
		Description: "Without a visible value the current visibility is flipped.",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		stagePath
		Body VisibilityRequest `json:"body" required:"false"`
	}) (*projectOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.ToggleStageVisibility(ctx, input.ProjectID, input.StageID, input.Body.Visible, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &projectOutput{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "link-stage-payment",
		Method:      http.MethodPut,
		Path:        "/projects/{project_id}/stages/{stage_id}/payment-link",
		Summary:     "Gate a stage on a payment milestone",
		Description: "An empty milestone removes the link.",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		stagePath
		Body PaymentLinkRequest `json:"body"`
	}) (*projectOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.LinkPaymentToStage(ctx, input.ProjectID, input.StageID, input.Body.Milestone, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &projectOutput{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stage-report",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/stages/{stage_id}/report",
		Summary:     "Stage report data",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		stagePath
		Type string `query:"type" enum:"technical,client,handover" default:"technical"`
	}) (*struct {
		Body rules.StageReport `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		report, err := e.StageReport(ctx, input.ProjectID, input.StageID, input.Type, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body rules.StageReport `json:"body"`
		}{Body: report}, nil
	})
}

func registerApprovals(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "submit-stage",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/stages/{stage_id}/submit",
		Summary:     "Submit a stage for approval",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *stagePath) (*projectOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.SubmitStageForApproval(ctx, input.ProjectID, input.StageID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &projectOutput{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "subadmin-review",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/stages/{stage_id}/subadmin-review",
		Summary:     "Record the sub-admin review",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		stagePath
		Body ReviewRequest `json:"body" required:"false"`
	}) (*projectOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.SubadminReviewStage(ctx, input.ProjectID, input.StageID, actor, input.Body.Decision, input.Body.Comment)
		if err != nil {
			return nil, handleError(err)
		}
		return &projectOutput{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "admin-approval",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/stages/{stage_id}/admin-approval",
		Summary:     "Record the admin decision",
		Description: "Approval completes the stage, advances the next pending stage and runs the approval automation.",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		stagePath
		Body ReviewRequest `json:"body" required:"false"`
	}) (*projectOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.AdminApproveStage(ctx, input.ProjectID, input.StageID, actor, input.Body.Decision, input.Body.Comment)
		if err != nil {
			return nil, handleError(err)
		}
		return &projectOutput{Body: p}, nil
	})
}

func registerAssets(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-asset-request",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/stages/{stage_id}/assets",
		Summary:       "Request an asset from the client",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		stagePath
		Body CreateAssetRequest `json:"body"`
	}) (*projectOutput, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.AddAssetRequest(ctx, input.ProjectID, input.StageID, engine.AssetCreateOptions{
			Label: input.Body.Label,
			Type:  input.Body.Type,
			Note:  input.Body.Note,
		}, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &projectOutput{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-asset-request",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}/stages/{stage_id}/assets/{asset_id}",
		Summary:     "Update an asset request",
		Description: "Marking an asset received checks the matching checklist item.",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		stagePath
		AssetID string             `path:"asset_id"`
		Body    UpdateAssetRequest `json:"body"`
	}) (*projectOutput, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.UpdateAssetRequest(ctx, input.ProjectID, input.StageID, input.AssetID, engine.AssetUpdateOptions{
			Status:   input.Body.Status,
			FileName: input.Body.FileName,
			FileURL:  input.Body.FileURL,
			Note:     input.Body.Note,
		}, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &projectOutput{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-asset-request",
		Method:      http.MethodDelete,
		Path:        "/projects/{project_id}/stages/{stage_id}/assets/{asset_id}",
		Summary:     "Delete an asset request",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		stagePath
		AssetID string `path:"asset_id"`
	}) (*projectOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.DeleteAssetRequest(ctx, input.ProjectID, input.StageID, input.AssetID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &projectOutput{Body: p}, nil
	})
}
