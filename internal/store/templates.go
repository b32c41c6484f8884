package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"upliftd/internal/domain"
)

const templateColumns = `id,external_id,name,COALESCE(description,''),categories_json,tasks_json,is_reusable,average_rating,no_of_ratings,
COALESCE(solution_id,''),COALESCE(solution_external_id,''),COALESCE(program_id,''),COALESCE(program_external_id,''),status,created_at,updated_at`

func scanTemplate(scan func(dest ...any) error) (domain.ProjectTemplate, error) {
	var (
		t          domain.ProjectTemplate
		categories string
		tasks      string
		reusable   int
	)
	err := scan(&t.ID, &t.ExternalID, &t.Name, &t.Description, &categories, &tasks, &reusable, &t.AverageRating, &t.NoOfRatings,
		&t.SolutionID, &t.SolutionExternalID, &t.ProgramID, &t.ProgramExternalID, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.IsReusable = reusable == 1
	if err := json.Unmarshal([]byte(categories), &t.Categories); err != nil {
		return t, fmt.Errorf("decode template %s categories: %w", t.ID, err)
	}
	if err := json.Unmarshal([]byte(tasks), &t.Tasks); err != nil {
		return t, fmt.Errorf("decode template %s tasks: %w", t.ID, err)
	}
	return t, nil
}

func (s Store) GetTemplate(ctx context.Context, id string) (domain.ProjectTemplate, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM project_templates WHERE id=?`, id)
	return scanTemplate(row.Scan)
}

func (s Store) GetTemplateByExternalID(ctx context.Context, externalID string) (domain.ProjectTemplate, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM project_templates WHERE external_id=?`, externalID)
	return scanTemplate(row.Scan)
}

// TemplatesByExternalIDs batch-loads non-reusable templates for bulk
// project creation.
func (s Store) TemplatesByExternalIDs(ctx context.Context, externalIDs []string, reusable bool) ([]domain.ProjectTemplate, error) {
	if len(externalIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(externalIDs)-1) + "?"
	args := []any{boolToInt(reusable)}
	for _, id := range externalIDs {
		args = append(args, id)
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+templateColumns+` FROM project_templates WHERE is_reusable=? AND external_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ProjectTemplate
	for rows.Next() {
		t, err := scanTemplate(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (s Store) InsertTemplate(ctx context.Context, t domain.ProjectTemplate) error {
	categories, err := marshalJSON(t.Categories)
	if err != nil {
		return err
	}
	tasks, err := marshalJSON(t.Tasks)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx, `INSERT INTO project_templates(id,external_id,name,description,categories_json,tasks_json,is_reusable,average_rating,no_of_ratings,solution_id,solution_external_id,program_id,program_external_id,status,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.ExternalID, t.Name, nullable(t.Description), categories, tasks, boolToInt(t.IsReusable), t.AverageRating, t.NoOfRatings,
		nullable(t.SolutionID), nullable(t.SolutionExternalID), nullable(t.ProgramID), nullable(t.ProgramExternalID), t.Status, t.CreatedAt, t.UpdatedAt)
	return err
}

// AppendTemplateTask adds a task id to the template's top-level task list,
// ignoring ids already present.
func (s Store) AppendTemplateTask(ctx context.Context, tx *sql.Tx, templateID, taskID string) error {
	var tasksJSON string
	err := tx.QueryRowContext(ctx, `SELECT tasks_json FROM project_templates WHERE id=?`, templateID).Scan(&tasksJSON)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	var tasks []string
	if err := json.Unmarshal([]byte(tasksJSON), &tasks); err != nil {
		return fmt.Errorf("decode template %s tasks: %w", templateID, err)
	}
	for _, id := range tasks {
		if id == taskID {
			return nil
		}
	}
	tasks = append(tasks, taskID)
	updated, err := marshalJSON(tasks)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `UPDATE project_templates SET tasks_json=? WHERE id=?`, updated, templateID)
	return err
}

// RecordTemplateRating folds one rating into the template's aggregates.
func (s Store) RecordTemplateRating(ctx context.Context, id string, rating float64) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE project_templates SET average_rating=(average_rating*no_of_ratings+?)/(no_of_ratings+1), no_of_ratings=no_of_ratings+1 WHERE id=?`,
		rating, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// LibraryFilters selects reusable templates for the catalog listing.
type LibraryFilters struct {
	CategoryExternalID string
	Search             string
	SortByRatings      bool
	PageSize           int
	PageNo             int
}

// LibraryProjects returns one page of reusable templates tagged with the
// category plus the total match count computed in the same query pass.
func (s Store) LibraryProjects(ctx context.Context, f LibraryFilters) ([]domain.TemplateSummary, int, error) {
	clauses := []string{
		"is_reusable=1",
		`EXISTS (SELECT 1 FROM json_each(categories_json) WHERE json_extract(value,'$.externalId')=?)`,
	}
	args := []any{f.CategoryExternalID}
	if f.Search != "" {
		clauses = append(clauses, `(name LIKE ? OR COALESCE(description,'') LIKE ?)`)
		pattern := "%" + f.Search + "%"
		args = append(args, pattern, pattern)
	}
	order := "created_at DESC, id DESC"
	if f.SortByRatings {
		order = "no_of_ratings DESC, id DESC"
	}
	pageSize := f.PageSize
	if pageSize <= 0 {
		pageSize = 10
	}
	pageNo := f.PageNo
	if pageNo <= 0 {
		pageNo = 1
	}
	query := `SELECT id,external_id,name,COALESCE(description,''),average_rating,no_of_ratings,created_at,COUNT(*) OVER() AS total
FROM project_templates WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY ` + order + ` LIMIT ? OFFSET ?`
	args = append(args, pageSize, pageSize*(pageNo-1))
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var (
		res   []domain.TemplateSummary
		total int
	)
	for rows.Next() {
		var t domain.TemplateSummary
		if err := rows.Scan(&t.ID, &t.ExternalID, &t.Name, &t.Description, &t.AverageRating, &t.NoOfRatings, &t.CreatedAt, &total); err != nil {
			return nil, 0, err
		}
		res = append(res, t)
	}
	return res, total, rows.Err()
}
