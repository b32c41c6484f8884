package engine

import (
	"context"
	"fmt"

	"upliftd/internal/domain"
	"upliftd/internal/events"
)

// BulkRow is one line of a bulk creation request: give this user a project
// built from this template, scoped to this entity.
type BulkRow struct {
	UserID             string `json:"userId"`
	TemplateExternalID string `json:"templateExternalId"`
	EntityID           string `json:"entityId,omitempty"`
}

// BulkRowResult reports the outcome of one row. Status is either
// BulkStatusSuccess or a failure message; rows fail independently.
type BulkRowResult struct {
	Row       BulkRow `json:"row"`
	ProjectID string  `json:"projectId,omitempty"`
	Status    string  `json:"status"`
}

const (
	BulkStatusSuccess          = "Success"
	BulkStatusTemplateNotFound = "Project template not found"
)

// bulkResultBuffer bounds how far processing runs ahead of the consumer.
const bulkResultBuffer = 16

// BulkCreate creates one project per row, streaming results as rows finish.
// Templates and entities are prefetched in batches; a row whose template or
// entity lookup fails is reported and skipped without affecting the rest.
// The returned channel is closed after the last row.
func (e Engine) BulkCreate(ctx context.Context, token string, rows []BulkRow) <-chan BulkRowResult {
	results := make(chan BulkRowResult, bulkResultBuffer)
	go func() {
		defer close(results)

		templates := e.prefetchTemplates(ctx, rows)
		entities := e.prefetchEntities(ctx, token, rows)

		for _, row := range rows {
			res := BulkRowResult{Row: row}
			template, ok := templates[row.TemplateExternalID]
			if !ok {
				res.Status = BulkStatusTemplateNotFound
			} else {
				p, err := e.createFromTemplate(ctx, row, template, entities[row.EntityID])
				if err != nil {
					res.Status = err.Error()
				} else {
					res.ProjectID = p.ID
					res.Status = BulkStatusSuccess
				}
			}
			select {
			case results <- res:
			case <-ctx.Done():
				return
			}
		}
	}()
	return results
}

func (e Engine) prefetchTemplates(ctx context.Context, rows []BulkRow) map[string]domain.ProjectTemplate {
	seen := map[string]bool{}
	var ids []string
	for _, row := range rows {
		if row.TemplateExternalID != "" && !seen[row.TemplateExternalID] {
			seen[row.TemplateExternalID] = true
			ids = append(ids, row.TemplateExternalID)
		}
	}
	res := map[string]domain.ProjectTemplate{}
	templates, err := e.Store.TemplatesByExternalIDs(ctx, ids, false)
	if err != nil {
		return res
	}
	for _, t := range templates {
		res[t.ExternalID] = t
	}
	return res
}

func (e Engine) prefetchEntities(ctx context.Context, token string, rows []BulkRow) map[string]domain.EntityInformation {
	res := map[string]domain.EntityInformation{}
	if e.Entities == nil {
		return res
	}
	seen := map[string]bool{}
	var ids []string
	for _, row := range rows {
		if row.EntityID != "" && !seen[row.EntityID] {
			seen[row.EntityID] = true
			ids = append(ids, row.EntityID)
		}
	}
	entities, err := e.Entities.Entities(ctx, token, ids)
	if err != nil {
		return res
	}
	for _, info := range entities {
		res[info.ID] = info
	}
	return res
}

func (e Engine) createFromTemplate(ctx context.Context, row BulkRow, template domain.ProjectTemplate, entity domain.EntityInformation) (domain.Project, error) {
	tree, err := e.Store.TemplateTaskTree(ctx, template.Tasks)
	if err != nil {
		return domain.Project{}, fmt.Errorf("load template tasks: %w", err)
	}
	now := e.nowRFC3339()
	idMap := map[string]string{}
	tasks := importTasks(tree, template.ID, idMap)
	rewriteTaskRefs(tasks, idMap)
	tasks = e.normalizeTasks(tasks, row.UserID, now)

	p := domain.Project{
		ID:                        newID(),
		UserID:                    row.UserID,
		Title:                     template.Name,
		Description:               template.Description,
		Status:                    domain.StatusNotStarted,
		Categories:                template.Categories,
		Tasks:                     tasks,
		ProjectTemplateID:         template.ID,
		ProjectTemplateExternalID: template.ExternalID,
		CreatedBy:                 row.UserID,
		UpdatedBy:                 row.UserID,
		CreatedAt:                 now,
		UpdatedAt:                 now,
	}
	if p.Categories == nil {
		p.Categories = []domain.Category{}
	}
	if entity.ID != "" {
		info := entity
		p.EntityInformation = &info
	}
	if template.ProgramID != "" {
		p.ProgramInformation = &domain.ProgramSummary{ID: template.ProgramID, ExternalID: template.ProgramExternalID}
	}
	if template.SolutionID != "" {
		p.SolutionInformation = &domain.SolutionSummary{ID: template.SolutionID, ExternalID: template.SolutionExternalID}
	}
	p.TaskReport = buildTaskReport(p.Tasks)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()
	if err := e.Store.InsertProject(ctx, tx, p); err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.Record{
		Type:      events.TypeProjectCreated,
		ProjectID: p.ID,
		ActorID:   row.UserID,
		Payload: events.EventPayload{
			"templateId": template.ID,
			"bulk":       true,
		},
	}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	p.Version = 1
	return p, nil
}
