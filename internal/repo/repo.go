package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"agencyline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

// ErrNotFound aliases the domain sentinel so callers can match either.
var ErrNotFound = domain.ErrNotFound

// ErrConflict is returned when a project was written by someone else since it was read.
var ErrConflict = errors.New("conflict: project was modified concurrently")

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r Repo) q(tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return r.DB
}

func nowString() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func parseNullTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v.String)
	if err != nil {
		return nil, fmt.Errorf("parse time %q: %w", v.String, err)
	}
	return &t, nil
}

func scanProject(row interface{ Scan(...any) error }) (domain.Project, error) {
	var (
		payload string
		version int64
	)
	if err := row.Scan(&payload, &version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Project{}, domain.ErrProjectNotFound
		}
		return domain.Project{}, err
	}
	var p domain.Project
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return domain.Project{}, fmt.Errorf("decode project aggregate: %w", err)
	}
	p.Version = version
	p.Normalize()
	return p, nil
}

// InsertProject stores a new aggregate at version 1.
func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p *domain.Project) error {
	now := nowString()
	if p.CreatedAt == "" {
		p.CreatedAt = now
	}
	p.UpdatedAt = p.CreatedAt
	p.Version = 1
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode project aggregate: %w", err)
	}
	_, err = r.q(tx).ExecContext(ctx, `INSERT INTO projects(id,name,client,mode,status,aggregate_json,version,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		p.ID, p.Name, p.Client, p.Mode, p.Status, string(data), p.Version, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	return r.GetProjectTx(ctx, nil, id)
}

func (r Repo) GetProjectTx(ctx context.Context, tx *sql.Tx, id string) (domain.Project, error) {
	p, err := scanProject(r.q(tx).QueryRowContext(ctx, `SELECT aggregate_json, version FROM projects WHERE id=?`, id))
	if errors.Is(err, domain.ErrNotFound) {
		return p, fmt.Errorf("%w: %s", domain.ErrProjectNotFound, id)
	}
	return p, err
}

// SaveProject writes the whole aggregate if its version still matches the
// stored one, then bumps the version on p.
func (r Repo) SaveProject(ctx context.Context, tx *sql.Tx, p *domain.Project) error {
	expected := p.Version
	p.Version = expected + 1
	p.UpdatedAt = nowString()
	data, err := json.Marshal(p)
	if err != nil {
		p.Version = expected
		return fmt.Errorf("encode project aggregate: %w", err)
	}
	res, err := r.q(tx).ExecContext(ctx, `UPDATE projects SET name=?, client=?, mode=?, status=?, aggregate_json=?, version=?, updated_at=? WHERE id=? AND version=?`,
		p.Name, p.Client, p.Mode, p.Status, string(data), p.Version, p.UpdatedAt, p.ID, expected)
	if err != nil {
		p.Version = expected
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		p.Version = expected
		var exists int
		err := r.q(tx).QueryRowContext(ctx, `SELECT 1 FROM projects WHERE id=?`, p.ID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", domain.ErrProjectNotFound, p.ID)
		}
		return fmt.Errorf("%w (id %s, version %d)", ErrConflict, p.ID, expected)
	}
	return nil
}

type ProjectFilters struct {
	Mode   string
	Status string
	Client string
	Limit  int
}

func (r Repo) ListProjects(ctx context.Context, f ProjectFilters) ([]domain.Project, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.Mode != "" {
		clauses = append(clauses, "mode=?")
		args = append(args, f.Mode)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Client != "" {
		clauses = append(clauses, "client=?")
		args = append(args, f.Client)
	}
	query := `SELECT aggregate_json, version FROM projects WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// CountProjectsByStatus groups projects by their status flag.
func (r Repo) CountProjectsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM projects GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
