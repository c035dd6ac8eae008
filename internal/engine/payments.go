package engine

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"agencyline/internal/domain"
	"agencyline/internal/engine/auth"
	"agencyline/internal/events"
)

type PaymentCreateOptions struct {
	Label  string
	Amount float64
	Date   *time.Time
	Status string
	Note   string
}

// RecordPayment adds a payment row for a project. Stages refer to it by label.
func (e Engine) RecordPayment(ctx context.Context, projectID string, opts PaymentCreateOptions, actor domain.Actor) (domain.Payment, error) {
	if err := e.authorize(actor, auth.PermPaymentWrite); err != nil {
		return domain.Payment{}, err
	}
	opts.Label = strings.TrimSpace(opts.Label)
	if opts.Label == "" {
		return domain.Payment{}, domain.Invalid("label", "is required")
	}
	if opts.Amount < 0 {
		return domain.Payment{}, domain.Invalid("amount", "must not be negative")
	}
	if opts.Status == "" {
		opts.Status = domain.PaymentPending
	}
	if !domain.ValidPaymentStatus(opts.Status) {
		return domain.Payment{}, domain.Invalid("status", "unknown payment status "+opts.Status)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Payment{}, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetProjectTx(ctx, tx, projectID); err != nil {
		return domain.Payment{}, err
	}
	pay := domain.Payment{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Label:     opts.Label,
		Amount:    opts.Amount,
		Date:      opts.Date,
		Status:    opts.Status,
		Note:      opts.Note,
		CreatedAt: timestamp(e.now()),
	}
	if err := e.Repo.InsertPayment(ctx, tx, pay); err != nil {
		return domain.Payment{}, err
	}
	if err := e.Events.Append(ctx, tx, events.PaymentRecorded, projectID, "payment", pay.ID, actor.ID, events.EventPayload{"label": pay.Label, "amount": pay.Amount, "status": pay.Status}); err != nil {
		return domain.Payment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Payment{}, err
	}
	return pay, nil
}

// SetPaymentStatus moves a payment to status. A non-nil date replaces the
// payment date.
func (e Engine) SetPaymentStatus(ctx context.Context, paymentID, status string, date *time.Time, actor domain.Actor) (domain.Payment, error) {
	if err := e.authorize(actor, auth.PermPaymentWrite); err != nil {
		return domain.Payment{}, err
	}
	if !domain.ValidPaymentStatus(status) {
		return domain.Payment{}, domain.Invalid("status", "unknown payment status "+status)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Payment{}, err
	}
	defer tx.Rollback()

	old, err := e.Repo.GetPayment(ctx, tx, paymentID)
	if err != nil {
		return domain.Payment{}, err
	}
	if err := e.Repo.UpdatePaymentStatus(ctx, tx, paymentID, status, date); err != nil {
		return domain.Payment{}, err
	}
	pay, err := e.Repo.GetPayment(ctx, tx, paymentID)
	if err != nil {
		return domain.Payment{}, err
	}
	if err := e.Events.Append(ctx, tx, events.PaymentStatusChanged, pay.ProjectID, "payment", pay.ID, actor.ID, events.EventPayload{"label": pay.Label, "from": old.Status, "to": pay.Status}); err != nil {
		return domain.Payment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Payment{}, err
	}
	return pay, nil
}

func (e Engine) ListPayments(ctx context.Context, projectID string, actor domain.Actor) ([]domain.Payment, error) {
	if err := e.authorize(actor, auth.PermProjectRead); err != nil {
		return nil, err
	}
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	return e.Repo.ListPayments(ctx, nil, projectID)
}
