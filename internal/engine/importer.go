package engine

import (
	"context"
	"errors"
	"fmt"

	"upliftd/internal/domain"
	"upliftd/internal/events"
)

// ImportRequest asks for a new project instantiated from a library template.
type ImportRequest struct {
	TemplateID string
	UserID     string
	UserToken  string
	Entities   []string
	Title      string
	Rating     float64
}

// ImportFromLibrary copies a reusable template's task tree into a fresh
// project owned by the user. Every task gets a new id; parent and
// visibility references are rewritten to the new ids in a second pass, and
// visibility rules pointing outside the imported tree are dropped.
func (e Engine) ImportFromLibrary(ctx context.Context, req ImportRequest) (domain.Project, error) {
	if req.UserID == "" {
		return domain.Project{}, errors.New("user is required")
	}
	template, err := e.Store.GetTemplate(ctx, req.TemplateID)
	if err != nil {
		return domain.Project{}, err
	}
	if !template.IsReusable {
		return domain.Project{}, errors.New("template is not reusable")
	}

	tree, err := e.Store.TemplateTaskTree(ctx, template.Tasks)
	if err != nil {
		return domain.Project{}, fmt.Errorf("load template tasks: %w", err)
	}

	now := e.nowRFC3339()
	idMap := map[string]string{}
	tasks := importTasks(tree, template.ID, idMap)
	rewriteTaskRefs(tasks, idMap)
	tasks = e.normalizeTasks(tasks, req.UserID, now)

	entityInfo, err := e.resolveEntity(ctx, req.UserToken, req.Entities)
	if err != nil {
		return domain.Project{}, fmt.Errorf("resolve entity: %w", err)
	}

	title := req.Title
	if title == "" {
		title = template.Name
	}
	p := domain.Project{
		ID:                        newID(),
		UserID:                    req.UserID,
		Title:                     title,
		Description:               template.Description,
		Status:                    domain.StatusNotStarted,
		Categories:                template.Categories,
		Tasks:                     tasks,
		EntityInformation:         entityInfo,
		ProjectTemplateID:         template.ID,
		ProjectTemplateExternalID: template.ExternalID,
		CreatedBy:                 req.UserID,
		UpdatedBy:                 req.UserID,
		CreatedAt:                 now,
		UpdatedAt:                 now,
		SyncedAt:                  now,
	}
	if p.Categories == nil {
		p.Categories = []domain.Category{}
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
		Type:      events.TypeProjectImported,
		ProjectID: p.ID,
		ActorID:   req.UserID,
		Payload: events.EventPayload{
			"templateId": template.ID,
			"tasks":      len(p.Tasks),
		},
	}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	p.Version = 1

	if req.Rating > 0 {
		e.recordRating(ctx, req.UserToken, template.ID, req.Rating)
	}
	return p, nil
}

// recordRating updates the local aggregate and forwards the rating to the
// core service. Both are best effort; a failed rating never fails the
// import that triggered it.
func (e Engine) recordRating(ctx context.Context, token, templateID string, rating float64) {
	if err := e.Store.RecordTemplateRating(ctx, templateID, rating); err != nil {
		return
	}
	if e.Core != nil {
		_ = e.Core.SubmitTemplateRating(ctx, token, templateID, rating)
	}
}

// importTasks converts an expanded template tree into project tasks with
// fresh ids, recording old-to-new mappings for the reference rewrite pass.
func importTasks(tree []domain.TemplateTask, templateID string, idMap map[string]string) []domain.Task {
	res := make([]domain.Task, 0, len(tree))
	for _, tt := range tree {
		id := newID()
		idMap[tt.ID] = id
		task := domain.Task{
			ID:                    id,
			Name:                  tt.Name,
			ExternalID:            tt.ExternalID,
			Description:           tt.Description,
			Type:                  tt.Type,
			IsDeleteable:          tt.IsDeleteable,
			IsImportedFromLibrary: true,
			ProjectTemplateID:     templateID,
			ParentID:              tt.ParentID,
			VisibleIf:             append([]domain.VisibleIf(nil), tt.VisibleIf...),
			Children:              importTasks(tt.ChildTasks, templateID, idMap),
		}
		res = append(res, task)
	}
	return res
}

// rewriteTaskRefs maps parent and visibility references onto the freshly
// minted ids. Rules whose referenced task was not part of the import are
// removed rather than left dangling.
func rewriteTaskRefs(tasks []domain.Task, idMap map[string]string) {
	for i := range tasks {
		t := &tasks[i]
		if t.ParentID != "" {
			if id, ok := idMap[t.ParentID]; ok {
				t.ParentID = id
			} else {
				t.ParentID = ""
			}
		}
		if len(t.VisibleIf) > 0 {
			kept := t.VisibleIf[:0]
			for _, rule := range t.VisibleIf {
				if id, ok := idMap[rule.TaskID]; ok {
					rule.TaskID = id
					kept = append(kept, rule)
				}
			}
			t.VisibleIf = kept
			if len(t.VisibleIf) == 0 {
				t.VisibleIf = nil
			}
		}
		rewriteTaskRefs(t.Children, idMap)
	}
}
