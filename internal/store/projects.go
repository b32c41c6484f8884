package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"upliftd/internal/domain"
)

func scanProjectRow(scan func(dest ...any) error) (domain.Project, error) {
	var (
		p         domain.Project
		doc       string
		isDeleted int
	)
	if err := scan(&p.ID, &p.UserID, &isDeleted, &p.Version, &doc, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return p, ErrNotFound
		}
		return p, err
	}
	id, userID, version, createdAt, updatedAt := p.ID, p.UserID, p.Version, p.CreatedAt, p.UpdatedAt
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return p, fmt.Errorf("decode project %s: %w", id, err)
	}
	// column values win over whatever the document carries
	p.ID, p.UserID, p.Version = id, userID, version
	p.CreatedAt, p.UpdatedAt = createdAt, updatedAt
	p.IsDeleted = isDeleted == 1
	return p, nil
}

const projectColumns = `id,user_id,is_deleted,version,doc_json,created_at,updated_at`

func (s Store) GetProject(ctx context.Context, id string) (domain.Project, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id)
	return scanProjectRow(row.Scan)
}

// GetUserProject returns the project only when it is owned by userID and
// not soft-deleted.
func (s Store) GetUserProject(ctx context.Context, id, userID string) (domain.Project, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id=? AND user_id=? AND is_deleted=0`, id, userID)
	return scanProjectRow(row.Scan)
}

func (s Store) ListUserProjects(ctx context.Context, userID string) ([]domain.Project, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE user_id=? AND is_deleted=0 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProjectRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (s Store) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode project: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO projects(id,user_id,is_deleted,version,doc_json,created_at,updated_at) VALUES (?,?,?,1,?,?,?)`,
		p.ID, p.UserID, boolToInt(p.IsDeleted), string(doc), p.CreatedAt, p.UpdatedAt)
	return err
}

// UpdateProject replaces the stored document only when the row still holds
// expectedVersion; a stale snapshot yields ErrConflict so concurrent syncs
// cannot silently overwrite each other.
func (s Store) UpdateProject(ctx context.Context, tx *sql.Tx, p domain.Project, expectedVersion int64) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode project: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE projects SET is_deleted=?, version=version+1, doc_json=?, updated_at=? WHERE id=? AND version=?`,
		boolToInt(p.IsDeleted), string(doc), p.UpdatedAt, p.ID, expectedVersion)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM projects WHERE id=?`, p.ID).Scan(&exists); err == sql.ErrNoRows {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}
