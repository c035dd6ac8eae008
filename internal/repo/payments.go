package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"agencyline/internal/domain"
)

var ErrPaymentNotFound = fmt.Errorf("payment %w", domain.ErrNotFound)

const paymentColumns = `id,project_id,label,amount,date,status,COALESCE(note,''),created_at`

func scanPayment(row interface{ Scan(...any) error }) (domain.Payment, error) {
	var (
		p    domain.Payment
		date sql.NullString
	)
	if err := row.Scan(&p.ID, &p.ProjectID, &p.Label, &p.Amount, &date, &p.Status, &p.Note, &p.CreatedAt); err != nil {
		return p, err
	}
	t, err := parseNullTime(date)
	if err != nil {
		return p, err
	}
	p.Date = t
	return p, nil
}

func (r Repo) InsertPayment(ctx context.Context, tx *sql.Tx, p domain.Payment) error {
	if p.CreatedAt == "" {
		p.CreatedAt = nowString()
	}
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO payments(id,project_id,label,amount,date,status,note,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		p.ID, p.ProjectID, p.Label, p.Amount, nullableTime(p.Date), p.Status, nullable(p.Note), p.CreatedAt)
	return err
}

func (r Repo) GetPayment(ctx context.Context, tx *sql.Tx, id string) (domain.Payment, error) {
	p, err := scanPayment(r.q(tx).QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return p, fmt.Errorf("%w: %s", ErrPaymentNotFound, id)
	}
	return p, err
}

// ListPayments returns the payments of a project in creation order.
func (r Repo) ListPayments(ctx context.Context, tx *sql.Tx, projectID string) ([]domain.Payment, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE project_id=? ORDER BY created_at, rowid`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) UpdatePaymentStatus(ctx context.Context, tx *sql.Tx, id, status string, date *time.Time) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE payments SET status=?, date=COALESCE(?, date) WHERE id=?`, status, nullableTime(date), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrPaymentNotFound, id)
	}
	return nil
}

// ProjectsWithOverduePayments lists active projects holding a pending payment dated before now.
func (r Repo) ProjectsWithOverduePayments(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT DISTINCT p.project_id FROM payments p
JOIN projects pr ON pr.id=p.project_id
WHERE p.status='pending' AND p.date IS NOT NULL AND p.date < ? AND pr.mode=?
ORDER BY p.project_id`, now.UTC().Format(time.RFC3339), domain.ModeActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
