package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"upliftd/internal/domain"
)

const templateTaskColumns = `id,external_id,project_template_id,COALESCE(parent_id,''),name,COALESCE(description,''),type,has_sub_tasks,is_deleteable,children_json,COALESCE(visible_if_json,''),COALESCE(created_by,''),COALESCE(updated_by,''),created_at,updated_at`

func scanTemplateTask(scan func(dest ...any) error) (domain.TemplateTask, error) {
	var (
		t           domain.TemplateTask
		hasSubTasks int
		deleteable  int
		children    string
		visibleIf   string
	)
	err := scan(&t.ID, &t.ExternalID, &t.ProjectTemplateID, &t.ParentID, &t.Name, &t.Description, &t.Type,
		&hasSubTasks, &deleteable, &children, &visibleIf, &t.CreatedBy, &t.UpdatedBy, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.HasSubTasks = hasSubTasks == 1
	t.IsDeleteable = deleteable == 1
	if err := json.Unmarshal([]byte(children), &t.Children); err != nil {
		return t, fmt.Errorf("decode template task %s children: %w", t.ID, err)
	}
	if visibleIf != "" {
		if err := json.Unmarshal([]byte(visibleIf), &t.VisibleIf); err != nil {
			return t, fmt.Errorf("decode template task %s visibleIf: %w", t.ID, err)
		}
	}
	return t, nil
}

func (s Store) GetTemplateTask(ctx context.Context, id string) (domain.TemplateTask, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+templateTaskColumns+` FROM project_template_tasks WHERE id=?`, id)
	return scanTemplateTask(row.Scan)
}

func (s Store) queryTemplateTasks(ctx context.Context, query string, args ...any) ([]domain.TemplateTask, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TemplateTask
	for rows.Next() {
		t, err := scanTemplateTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (s Store) TemplateTasksByIDs(ctx context.Context, ids []string) ([]domain.TemplateTask, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(ids)-1) + "?"
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return s.queryTemplateTasks(ctx, `SELECT `+templateTaskColumns+` FROM project_template_tasks WHERE id IN (`+placeholders+`)`, args...)
}

func (s Store) TemplateTasksByExternalIDs(ctx context.Context, externalIDs []string) ([]domain.TemplateTask, error) {
	if len(externalIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(externalIDs)-1) + "?"
	args := make([]any, len(externalIDs))
	for i, id := range externalIDs {
		args[i] = id
	}
	return s.queryTemplateTasks(ctx, `SELECT `+templateTaskColumns+` FROM project_template_tasks WHERE external_id IN (`+placeholders+`)`, args...)
}

func templateTaskArgs(t domain.TemplateTask) ([]any, error) {
	children, err := marshalJSON(t.Children)
	if err != nil {
		return nil, err
	}
	visibleIf := "[]"
	if len(t.VisibleIf) > 0 {
		enc, err := json.Marshal(t.VisibleIf)
		if err != nil {
			return nil, err
		}
		visibleIf = string(enc)
	}
	return []any{
		t.ExternalID, t.ProjectTemplateID, nullable(t.ParentID), t.Name, nullable(t.Description), t.Type,
		boolToInt(t.HasSubTasks), boolToInt(t.IsDeleteable), children, visibleIf,
		nullable(t.CreatedBy), nullable(t.UpdatedBy),
	}, nil
}

func (s Store) InsertTemplateTask(ctx context.Context, tx *sql.Tx, t domain.TemplateTask) error {
	args, err := templateTaskArgs(t)
	if err != nil {
		return err
	}
	args = append([]any{t.ID}, args...)
	args = append(args, t.CreatedAt, t.UpdatedAt)
	_, err = tx.ExecContext(ctx, `INSERT INTO project_template_tasks(id,external_id,project_template_id,parent_id,name,description,type,has_sub_tasks,is_deleteable,children_json,visible_if_json,created_by,updated_by,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`, args...)
	return err
}

func (s Store) UpdateTemplateTask(ctx context.Context, tx *sql.Tx, t domain.TemplateTask) error {
	args, err := templateTaskArgs(t)
	if err != nil {
		return err
	}
	args = append(args, t.UpdatedAt, t.ID)
	res, err := tx.ExecContext(ctx, `UPDATE project_template_tasks SET external_id=?, project_template_id=?, parent_id=?, name=?, description=?, type=?, has_sub_tasks=?, is_deleteable=?, children_json=?, visible_if_json=?, created_by=?, updated_by=?, updated_at=? WHERE id=?`, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddTemplateTaskChild links childID under parentID, flipping the parent's
// has_sub_tasks flag. Already-linked children are left alone.
func (s Store) AddTemplateTaskChild(ctx context.Context, tx *sql.Tx, parentID, childID, updatedAt string) error {
	children, err := templateTaskChildren(ctx, tx, parentID)
	if err != nil {
		return err
	}
	for _, id := range children {
		if id == childID {
			return nil
		}
	}
	children = append(children, childID)
	return setTemplateTaskChildren(ctx, tx, parentID, children, updatedAt)
}

// RemoveTemplateTaskChild unlinks childID from parentID, for reparenting.
func (s Store) RemoveTemplateTaskChild(ctx context.Context, tx *sql.Tx, parentID, childID, updatedAt string) error {
	children, err := templateTaskChildren(ctx, tx, parentID)
	if err != nil {
		return err
	}
	kept := children[:0]
	for _, id := range children {
		if id != childID {
			kept = append(kept, id)
		}
	}
	return setTemplateTaskChildren(ctx, tx, parentID, kept, updatedAt)
}

func templateTaskChildren(ctx context.Context, tx *sql.Tx, id string) ([]string, error) {
	var childrenJSON string
	err := tx.QueryRowContext(ctx, `SELECT children_json FROM project_template_tasks WHERE id=?`, id).Scan(&childrenJSON)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var children []string
	if err := json.Unmarshal([]byte(childrenJSON), &children); err != nil {
		return nil, fmt.Errorf("decode template task %s children: %w", id, err)
	}
	return children, nil
}

func setTemplateTaskChildren(ctx context.Context, tx *sql.Tx, id string, children []string, updatedAt string) error {
	enc, err := marshalJSON(children)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE project_template_tasks SET children_json=?, has_sub_tasks=?, updated_at=? WHERE id=?`,
		enc, boolToInt(len(children) > 0), updatedAt, id)
	return err
}

// TemplateTaskTree loads the given tasks and recursively expands ChildTasks
// from their children id lists. Cycles are broken by skipping ids already
// seen on the path.
func (s Store) TemplateTaskTree(ctx context.Context, ids []string) ([]domain.TemplateTask, error) {
	return s.expandTemplateTasks(ctx, ids, map[string]bool{})
}

func (s Store) expandTemplateTasks(ctx context.Context, ids []string, seen map[string]bool) ([]domain.TemplateTask, error) {
	var fresh []string
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			fresh = append(fresh, id)
		}
	}
	tasks, err := s.TemplateTasksByIDs(ctx, fresh)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.TemplateTask, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}
	var res []domain.TemplateTask
	for _, id := range fresh {
		t, ok := byID[id]
		if !ok {
			continue
		}
		if len(t.Children) > 0 {
			t.ChildTasks, err = s.expandTemplateTasks(ctx, t.Children, seen)
			if err != nil {
				return nil, err
			}
		}
		res = append(res, t)
	}
	return res, nil
}
