package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"agencyline/internal/domain"
)

const (
	HookStageSummary         = "stage-summary"
	HookHandoverKit          = "handover-kit"
	HookMaintenanceAgreement = "maintenance-agreement"
	HookFeedbackRequest      = "feedback-request"
	HookAudit                = "audit"
)

// IsFinalDelivery matches approvals of the stage named exactly Delivery.
func IsFinalDelivery(evt StageApproved) bool {
	return evt.StageName == domain.StageDelivery
}

// DefaultHooks returns the standard post-approval hooks in run order.
func DefaultHooks(gen DocumentGenerator, store DocumentStore, now func() time.Time) []Hook {
	if now == nil {
		now = time.Now
	}
	return []Hook{
		{
			Name: HookStageSummary,
			Run: func(ctx context.Context, evt StageApproved) error {
				_, err := gen.GenerateStageSummary(ctx, evt.Project, evt.StageID, evt.Actor)
				return err
			},
		},
		{
			Name: HookHandoverKit,
			When: IsFinalDelivery,
			Run: func(ctx context.Context, evt StageApproved) error {
				_, err := gen.GenerateHandoverKit(ctx, evt.Project, evt.Actor)
				return err
			},
		},
		{
			Name: HookMaintenanceAgreement,
			When: IsFinalDelivery,
			Run: func(ctx context.Context, evt StageApproved) error {
				_, err := gen.GenerateMaintenanceAgreement(ctx, evt.Project, evt.Actor)
				return err
			},
		},
		{
			Name: HookFeedbackRequest,
			When: IsFinalDelivery,
			Run: func(ctx context.Context, evt StageApproved) error {
				doc, err := FeedbackRequest(evt.Project, evt.Actor, now())
				if err != nil {
					return err
				}
				return store.SaveDocument(ctx, doc)
			},
		},
	}
}

// Enabled keeps the hooks whose name passes keep.
func Enabled(hooks []Hook, keep func(name string) bool) []Hook {
	out := make([]Hook, 0, len(hooks))
	for _, h := range hooks {
		if keep(h.Name) {
			out = append(out, h)
		}
	}
	return out
}

type ratingCategory struct {
	Category    string `json:"category"`
	Description string `json:"description"`
}

type feedbackContent struct {
	Title         string `json:"title"`
	GeneratedDate string `json:"generated_date"`
	Sections      struct {
		Message          string           `json:"message"`
		RatingCategories []ratingCategory `json:"rating_categories"`
		ProjectName      string           `json:"project_name"`
		CompletionDate   string           `json:"completion_date"`
	} `json:"sections"`
}

// FeedbackRequest synthesizes the draft feedback request sent after final delivery.
func FeedbackRequest(p domain.Project, actor domain.Actor, now time.Time) (domain.Document, error) {
	recipient := p.Client
	if p.ClientDetails != nil && p.ClientDetails.Name != "" {
		recipient = p.ClientDetails.Name
	}
	var c feedbackContent
	c.Title = fmt.Sprintf("Feedback Request - %s", p.Name)
	c.GeneratedDate = now.UTC().Format(time.RFC3339)
	c.Sections.Message = fmt.Sprintf("Dear %s, we have completed the delivery of %s. We would love to hear your feedback.", recipient, p.Name)
	c.Sections.RatingCategories = []ratingCategory{
		{"Overall Satisfaction", "How satisfied are you with the project delivery?"},
		{"Communication", "How was the communication throughout the project?"},
		{"Quality", "How do you rate the quality of the deliverables?"},
		{"Timeliness", "Was the project delivered on time?"},
	}
	c.Sections.ProjectName = p.Name
	c.Sections.CompletionDate = c.GeneratedDate
	body, err := json.Marshal(c)
	if err != nil {
		return domain.Document{}, err
	}
	return domain.Document{
		ID:              uuid.NewString(),
		ProjectID:       p.ID,
		Type:            "feedback-request",
		Title:           c.Title,
		Stage:           domain.StageDelivery,
		Status:          "draft",
		Content:         string(body),
		GeneratedBy:     actor.ID,
		GeneratedByName: actor.Name,
		GeneratedAt:     c.GeneratedDate,
	}, nil
}
