package repo

import (
	"context"
	"database/sql"

	"agencyline/internal/domain"
)

func (r Repo) InsertDocument(ctx context.Context, tx *sql.Tx, d domain.Document) error {
	if d.GeneratedAt == "" {
		d.GeneratedAt = nowString()
	}
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO documents(id,project_id,type,title,stage,status,content_json,generated_by,generated_by_name,generated_at) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		d.ID, d.ProjectID, d.Type, d.Title, nullable(d.Stage), d.Status, d.Content, d.GeneratedBy, nullable(d.GeneratedByName), d.GeneratedAt)
	return err
}

// ListDocuments returns a project's documents, newest first, optionally filtered by type.
func (r Repo) ListDocuments(ctx context.Context, projectID, docType string) ([]domain.Document, error) {
	query := `SELECT id,project_id,type,title,COALESCE(stage,''),status,content_json,generated_by,COALESCE(generated_by_name,''),generated_at FROM documents WHERE project_id=?`
	args := []any{projectID}
	if docType != "" {
		query += ` AND type=?`
		args = append(args, docType)
	}
	query += ` ORDER BY generated_at DESC, rowid DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Document{}
	for rows.Next() {
		var d domain.Document
		if err := rows.Scan(&d.ID, &d.ProjectID, &d.Type, &d.Title, &d.Stage, &d.Status, &d.Content, &d.GeneratedBy, &d.GeneratedByName, &d.GeneratedAt); err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}
