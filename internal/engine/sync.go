package engine

import (
	"context"
	"errors"
	"fmt"

	"upliftd/internal/domain"
	"upliftd/internal/events"
)

// SyncRequest carries one client submission into Sync.
type SyncRequest struct {
	ProjectID string
	UserID    string
	UserToken string
	Payload   ProjectPayload
}

// Sync creates or updates a user's project from an offline submission.
// Resolution runs in a fixed order: categories against the catalog, then
// entity details, then program and solution scaffolding, then the task
// forest. Updates merge task by task and are guarded by the project
// version; a stale snapshot returns store.ErrConflict.
func (e Engine) Sync(ctx context.Context, req SyncRequest) (domain.Project, error) {
	if req.UserID == "" {
		return domain.Project{}, errors.New("user is required")
	}
	now := e.nowRFC3339()

	var (
		existing domain.Project
		creating = req.ProjectID == ""
	)
	if !creating {
		var err error
		existing, err = e.Store.GetUserProject(ctx, req.ProjectID, req.UserID)
		if err != nil {
			return domain.Project{}, err
		}
	}

	categories, err := e.resolveCategories(ctx, req.Payload.Categories)
	if err != nil {
		return domain.Project{}, fmt.Errorf("resolve categories: %w", err)
	}

	entityInfo, err := e.resolveEntity(ctx, req.UserToken, req.Payload.Entities)
	if err != nil {
		return domain.Project{}, fmt.Errorf("resolve entity: %w", err)
	}

	p := existing
	if creating {
		p = domain.Project{
			ID:        req.Payload.ID,
			UserID:    req.UserID,
			Status:    domain.StatusNotStarted,
			CreatedBy: req.UserID,
			CreatedAt: now,
		}
		if !isServerID(p.ID) {
			p.ID = newID()
		}
	}

	applyPayloadScalars(&p, req.Payload)
	if len(categories) > 0 || creating {
		p.Categories = categories
	}
	if entityInfo != nil {
		p.EntityInformation = entityInfo
	}
	if err := e.resolveProgramAndSolution(ctx, &p, req.Payload, req.UserToken); err != nil {
		return domain.Project{}, fmt.Errorf("resolve program and solution: %w", err)
	}

	incoming := e.normalizeTasks(tasksFromPayload(req.Payload.Tasks), req.UserID, now)
	if creating {
		p.Tasks = incoming
	} else {
		p.Tasks = mergeTasks(p.Tasks, incoming)
	}
	if p.Tasks == nil {
		p.Tasks = []domain.Task{}
	}

	if extra := coercePayloadFields(req.Payload.Extra); extra != nil {
		if p.Extras == nil {
			p.Extras = extra
		} else {
			for k, v := range extra {
				p.Extras[k] = v
			}
		}
	}

	p.TaskReport = buildTaskReport(p.Tasks)
	p.UpdatedBy = req.UserID
	p.UpdatedAt = now
	p.SyncedAt = now

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	if creating {
		if err := e.Store.InsertProject(ctx, tx, p); err != nil {
			return domain.Project{}, fmt.Errorf("insert project: %w", err)
		}
		p.Version = 1
	} else {
		if err := e.Store.UpdateProject(ctx, tx, p, existing.Version); err != nil {
			return domain.Project{}, err
		}
		p.Version = existing.Version + 1
	}
	eventType := events.TypeProjectSynced
	if creating {
		eventType = events.TypeProjectCreated
	}
	if err := e.Events.Append(ctx, tx, events.Record{
		Type:      eventType,
		ProjectID: p.ID,
		ActorID:   req.UserID,
		Payload: events.EventPayload{
			"status": p.Status,
			"tasks":  len(p.Tasks),
		},
	}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	// The payload sub-object is an acknowledgement token for the client:
	// echoed back verbatim on the response, never stored.
	p.Payload = req.Payload.Payload
	return p, nil
}

func applyPayloadScalars(p *domain.Project, payload ProjectPayload) {
	if payload.Title != "" {
		p.Title = payload.Title
	}
	if payload.Description != "" {
		p.Description = payload.Description
	}
	if payload.Status != "" {
		p.Status = payload.Status
	}
	if payload.StartDate != "" {
		p.StartDate = payload.StartDate
	}
	if payload.EndDate != "" {
		p.EndDate = payload.EndDate
	}
	if payload.LastDownloadedAt != "" {
		p.LastDownloadedAt = payload.LastDownloadedAt
	}
	if payload.IsDeleted {
		p.IsDeleted = true
	}
	if payload.IsAPrivateProgram {
		p.IsAPrivateProgram = true
	}
}

func (e Engine) resolveEntity(ctx context.Context, token string, ids []string) (*domain.EntityInformation, error) {
	if len(ids) == 0 || e.Entities == nil {
		return nil, nil
	}
	entities, err := e.Entities.Entities(ctx, token, ids)
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, nil
	}
	info := entities[0]
	return &info, nil
}

// resolveProgramAndSolution attaches program and solution context. Naming
// a program by id or by name both go through the core service: it fetches
// the existing pair for an id and mints a private pair for a bare name, so
// the embedded summaries are always the service's denormalized records.
func (e Engine) resolveProgramAndSolution(ctx context.Context, p *domain.Project, payload ProjectPayload, token string) error {
	if payload.SolutionID != "" {
		p.SolutionInformation = &domain.SolutionSummary{ID: payload.SolutionID}
	}
	if payload.ProgramID == "" && payload.ProgramName == "" {
		return nil
	}
	if e.Core == nil {
		if p.ProgramInformation == nil {
			p.ProgramInformation = &domain.ProgramSummary{ID: payload.ProgramID, Name: payload.ProgramName}
		}
		return nil
	}
	if payload.ProgramID == "" && p.ProgramInformation != nil {
		// A retried sync with a blank programId must not mint a second
		// program for the project.
		return nil
	}
	var entities []string
	if p.EntityInformation != nil && p.EntityInformation.ID != "" {
		entities = []string{p.EntityInformation.ID}
	}
	ps, err := e.Core.CreateUserProgramAndSolution(ctx, token, map[string]any{
		"programName": payload.ProgramName,
		"programId":   payload.ProgramID,
		"entities":    entities,
	})
	if err != nil {
		return err
	}
	p.ProgramInformation = &ps.Program
	p.SolutionInformation = &ps.Solution
	p.CreatedFor = ps.Program.CreatedFor
	p.RootOrganisations = ps.Program.RootOrganisations
	if payload.ProgramID == "" {
		p.IsAPrivateProgram = true
	}
	return nil
}

// mergeTasks folds the incoming forest into the stored one: matching ids
// are replaced in place keeping their creation stamps, new tasks are
// appended in submission order.
func mergeTasks(existing, incoming []domain.Task) []domain.Task {
	index := make(map[string]int, len(existing))
	for i, t := range existing {
		index[t.ID] = i
	}
	res := append([]domain.Task(nil), existing...)
	for _, t := range incoming {
		if i, ok := index[t.ID]; ok {
			if res[i].CreatedAt != "" {
				t.CreatedAt = res[i].CreatedAt
			}
			if res[i].CreatedBy != "" {
				t.CreatedBy = res[i].CreatedBy
			}
			t.Children = mergeTasks(res[i].Children, t.Children)
			res[i] = t
			continue
		}
		res = append(res, t)
		index[t.ID] = len(res) - 1
	}
	return res
}

// buildTaskReport counts non-deleted tasks per status across the whole
// forest; "total" covers every counted task.
func buildTaskReport(tasks []domain.Task) domain.TaskReport {
	report := domain.TaskReport{"total": 0}
	countTasks(tasks, report)
	return report
}

func countTasks(tasks []domain.Task, report domain.TaskReport) {
	for _, t := range tasks {
		if t.IsDeleted {
			continue
		}
		report["total"]++
		if t.Status != "" {
			report[t.Status]++
		}
		countTasks(t.Children, report)
	}
}

// GetUserProject returns one of the user's projects with its report kept
// current.
func (e Engine) GetUserProject(ctx context.Context, projectID, userID string) (domain.Project, error) {
	p, err := e.Store.GetUserProject(ctx, projectID, userID)
	if err != nil {
		return domain.Project{}, err
	}
	p.TaskReport = buildTaskReport(p.Tasks)
	return p, nil
}

// ListUserProjects returns the user's non-deleted projects, newest first.
func (e Engine) ListUserProjects(ctx context.Context, userID string) ([]domain.Project, error) {
	projects, err := e.Store.ListUserProjects(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range projects {
		projects[i].TaskReport = buildTaskReport(projects[i].Tasks)
	}
	return projects, nil
}

// PrivatePrograms lists the programs the core service has minted for the
// caller's projects.
func (e Engine) PrivatePrograms(ctx context.Context, token string) ([]domain.ProgramSummary, error) {
	if e.Core == nil {
		return []domain.ProgramSummary{}, nil
	}
	programs, err := e.Core.UserPrivatePrograms(ctx, token)
	if err != nil {
		return nil, err
	}
	if programs == nil {
		programs = []domain.ProgramSummary{}
	}
	return programs, nil
}
