package store

import (
	"context"
	"strings"

	"upliftd/internal/domain"
)

// CategoryRecord is a full catalog row; domain.Category is the embedded
// projection of it.
type CategoryRecord struct {
	ID         string
	ExternalID string
	Name       string
	Icon       string
	Status     string
	UpdatedAt  string
}

const categoryStatusActive = "active"

// CategoriesByExternalIDs batch-resolves catalog entries. Missing keys are
// simply absent from the result; resolution order is the caller's concern.
func (s Store) CategoriesByExternalIDs(ctx context.Context, externalIDs []string) ([]domain.Category, error) {
	if len(externalIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(externalIDs)-1) + "?"
	args := make([]any, len(externalIDs))
	for i, id := range externalIDs {
		args[i] = id
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id,external_id,name FROM project_categories WHERE external_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.ExternalID, &c.Name); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (s Store) ActiveCategories(ctx context.Context) ([]CategoryRecord, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id,external_id,name,icon,status,updated_at FROM project_categories WHERE status=? ORDER BY name`, categoryStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []CategoryRecord
	for rows.Next() {
		var c CategoryRecord
		if err := rows.Scan(&c.ID, &c.ExternalID, &c.Name, &c.Icon, &c.Status, &c.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (s Store) InsertCategory(ctx context.Context, c CategoryRecord) error {
	if c.Status == "" {
		c.Status = categoryStatusActive
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO project_categories(id,external_id,name,icon,status,created_at,updated_at) VALUES (?,?,?,?,?,?,?)`,
		c.ID, c.ExternalID, c.Name, c.Icon, c.Status, c.UpdatedAt, c.UpdatedAt)
	return err
}
