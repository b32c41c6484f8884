// Package templatetasks maintains template task definitions in bulk.
// Administrators upload CSV sheets describing tasks and their hierarchy;
// each row is processed independently and reported with a status column.
package templatetasks

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"upliftd/internal/domain"
	"upliftd/internal/store"
)

// Row statuses reported back per CSV line.
const (
	StatusSuccess          = "Success"
	StatusTaskExists       = "PROJECT_TEMPLATE_TASK_EXISTS"
	StatusTaskNotFound     = "PROJECT_TEMPLATE_TASK_NOT_FOUND"
	StatusTemplateNotFound = "PROJECT_TEMPLATE_NOT_FOUND"
	StatusParentNotFound   = "PARENT_TASK_NOT_FOUND"
)

const hasParentYes = "YES"

// visibleIfOperators maps sheet operator names onto stored operators.
var visibleIfOperators = map[string]string{
	"EQUALS":     "===",
	"NOT_EQUALS": "!==",
}

// Row is one parsed CSV line.
type Row struct {
	ExternalID           string
	TemplateExternalID   string
	Name                 string
	Description          string
	Type                 string
	IsDeleteable         string
	HasAParentTask       string
	ParentTaskExternalID string
	VisibleIfOperator    string
	VisibleIfValue       string
	VisibleIfTaskID      string
}

// RowResult is one row echoed back with its outcome.
type RowResult struct {
	Row    Row    `json:"row"`
	TaskID string `json:"taskId,omitempty"`
	Status string `json:"status"`
}

// Service runs bulk template task maintenance.
type Service struct {
	DB    *sql.DB
	Store store.Store
	Now   func() time.Time
}

func New(db *sql.DB) Service {
	return Service{DB: db, Store: store.Store{DB: db}, Now: time.Now}
}

func (s Service) now() string {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return now().UTC().Format(time.RFC3339)
}

// BulkCreate creates one template task per row. Rows whose external id is
// already taken are rejected with StatusTaskExists. Parent linking runs as
// a second pass so a child row may precede its parent in the sheet.
func (s Service) BulkCreate(ctx context.Context, userID string, rows []Row) ([]RowResult, error) {
	templates, err := s.templatesFor(ctx, rows)
	if err != nil {
		return nil, err
	}
	existing, err := s.tasksByExternalID(ctx, rowExternalIDs(rows))
	if err != nil {
		return nil, err
	}

	now := s.now()
	results := make([]RowResult, len(rows))
	created := map[string]domain.TemplateTask{}
	type pendingLink struct {
		resultIdx int
		task      domain.TemplateTask
		parentExt string
	}
	var pending []pendingLink

	for i, row := range rows {
		results[i] = RowResult{Row: row}
		if _, ok := existing[row.ExternalID]; ok {
			results[i].Status = StatusTaskExists
			continue
		}
		if _, ok := created[row.ExternalID]; ok {
			results[i].Status = StatusTaskExists
			continue
		}
		template, ok := templates[row.TemplateExternalID]
		if !ok {
			results[i].Status = StatusTemplateNotFound
			continue
		}
		task := domain.TemplateTask{
			ID:                uuid.NewString(),
			ExternalID:        row.ExternalID,
			ProjectTemplateID: template.ID,
			Name:              row.Name,
			Description:       row.Description,
			Type:              row.Type,
			IsDeleteable:      row.IsDeleteable == "TRUE" || row.IsDeleteable == "true",
			Children:          []string{},
			VisibleIf:         visibleIfFromRow(row),
			CreatedBy:         userID,
			UpdatedBy:         userID,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if task.Type == "" {
			task.Type = domain.TaskTypeSingle
		}
		if err := s.insertTask(ctx, task, template.ID, row.HasAParentTask != hasParentYes); err != nil {
			results[i].Status = err.Error()
			continue
		}
		created[task.ExternalID] = task
		results[i].TaskID = task.ID
		results[i].Status = StatusSuccess
		if row.HasAParentTask == hasParentYes {
			pending = append(pending, pendingLink{resultIdx: i, task: task, parentExt: row.ParentTaskExternalID})
		}
	}

	parents, err := s.tasksByExternalID(ctx, pendingParentIDs(pending, func(p pendingLink) string { return p.parentExt }))
	if err != nil {
		return nil, err
	}
	for _, link := range pending {
		parent, ok := parents[link.parentExt]
		if !ok {
			parent, ok = created[link.parentExt]
		}
		if !ok {
			results[link.resultIdx].Status = StatusParentNotFound
			continue
		}
		if err := s.linkChild(ctx, parent.ID, link.task, now); err != nil {
			results[link.resultIdx].Status = err.Error()
		}
	}
	return results, nil
}

// BulkUpdate updates template tasks in place, reparenting where the sheet
// moves a task under a different parent.
func (s Service) BulkUpdate(ctx context.Context, userID string, rows []Row) ([]RowResult, error) {
	existing, err := s.tasksByExternalID(ctx, rowExternalIDs(rows))
	if err != nil {
		return nil, err
	}
	now := s.now()
	results := make([]RowResult, len(rows))
	for i, row := range rows {
		results[i] = RowResult{Row: row}
		task, ok := existing[row.ExternalID]
		if !ok {
			results[i].Status = StatusTaskNotFound
			continue
		}
		if row.Name != "" {
			task.Name = row.Name
		}
		if row.Description != "" {
			task.Description = row.Description
		}
		if row.Type != "" {
			task.Type = row.Type
		}
		if rules := visibleIfFromRow(row); rules != nil {
			task.VisibleIf = rules
		}
		task.UpdatedBy = userID
		task.UpdatedAt = now

		newParentExt := ""
		if row.HasAParentTask == hasParentYes {
			newParentExt = row.ParentTaskExternalID
		}
		if err := s.updateTask(ctx, task, newParentExt, now); err != nil {
			results[i].Status = err.Error()
			continue
		}
		results[i].TaskID = task.ID
		results[i].Status = StatusSuccess
	}
	return results, nil
}

func (s Service) insertTask(ctx context.Context, task domain.TemplateTask, templateID string, topLevel bool) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := s.Store.InsertTemplateTask(ctx, tx, task); err != nil {
		return fmt.Errorf("insert template task: %w", err)
	}
	if topLevel {
		if err := s.Store.AppendTemplateTask(ctx, tx, templateID, task.ID); err != nil {
			return fmt.Errorf("link task to template: %w", err)
		}
	}
	return tx.Commit()
}

func (s Service) linkChild(ctx context.Context, parentID string, child domain.TemplateTask, now string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := s.Store.AddTemplateTaskChild(ctx, tx, parentID, child.ID, now); err != nil {
		return fmt.Errorf("link child task: %w", err)
	}
	child.ParentID = parentID
	child.UpdatedAt = now
	if err := s.Store.UpdateTemplateTask(ctx, tx, child); err != nil {
		return fmt.Errorf("set task parent: %w", err)
	}
	return tx.Commit()
}

func (s Service) updateTask(ctx context.Context, task domain.TemplateTask, newParentExt, now string) error {
	var newParent domain.TemplateTask
	if newParentExt != "" {
		parents, err := s.tasksByExternalID(ctx, []string{newParentExt})
		if err != nil {
			return err
		}
		parent, ok := parents[newParentExt]
		if !ok {
			return fmt.Errorf("%s", StatusParentNotFound)
		}
		newParent = parent
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	oldParentID := task.ParentID
	switch {
	case newParentExt == "" && oldParentID != "":
		if err := s.Store.RemoveTemplateTaskChild(ctx, tx, oldParentID, task.ID, now); err != nil {
			return err
		}
		task.ParentID = ""
		if err := s.Store.AppendTemplateTask(ctx, tx, task.ProjectTemplateID, task.ID); err != nil {
			return err
		}
	case newParentExt != "" && newParent.ID != oldParentID:
		if oldParentID != "" {
			if err := s.Store.RemoveTemplateTaskChild(ctx, tx, oldParentID, task.ID, now); err != nil {
				return err
			}
		}
		if err := s.Store.AddTemplateTaskChild(ctx, tx, newParent.ID, task.ID, now); err != nil {
			return err
		}
		task.ParentID = newParent.ID
	}
	if err := s.Store.UpdateTemplateTask(ctx, tx, task); err != nil {
		return fmt.Errorf("update template task: %w", err)
	}
	return tx.Commit()
}

func (s Service) templatesFor(ctx context.Context, rows []Row) (map[string]domain.ProjectTemplate, error) {
	seen := map[string]bool{}
	res := map[string]domain.ProjectTemplate{}
	for _, row := range rows {
		if row.TemplateExternalID == "" || seen[row.TemplateExternalID] {
			continue
		}
		seen[row.TemplateExternalID] = true
		t, err := s.Store.GetTemplateByExternalID(ctx, row.TemplateExternalID)
		if err == store.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		res[t.ExternalID] = t
	}
	return res, nil
}

func (s Service) tasksByExternalID(ctx context.Context, externalIDs []string) (map[string]domain.TemplateTask, error) {
	tasks, err := s.Store.TemplateTasksByExternalIDs(ctx, externalIDs)
	if err != nil {
		return nil, err
	}
	res := make(map[string]domain.TemplateTask, len(tasks))
	for _, t := range tasks {
		res[t.ExternalID] = t
	}
	return res, nil
}

func rowExternalIDs(rows []Row) []string {
	seen := map[string]bool{}
	var ids []string
	for _, row := range rows {
		if row.ExternalID != "" && !seen[row.ExternalID] {
			seen[row.ExternalID] = true
			ids = append(ids, row.ExternalID)
		}
	}
	return ids
}

func pendingParentIDs[T any](items []T, key func(T) string) []string {
	seen := map[string]bool{}
	var ids []string
	for _, item := range items {
		id := key(item)
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

func visibleIfFromRow(row Row) []domain.VisibleIf {
	if row.VisibleIfOperator == "" {
		return nil
	}
	op, ok := visibleIfOperators[row.VisibleIfOperator]
	if !ok {
		op = row.VisibleIfOperator
	}
	return []domain.VisibleIf{{
		Operator: op,
		TaskID:   row.VisibleIfTaskID,
		Value:    row.VisibleIfValue,
	}}
}
