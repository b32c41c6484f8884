package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"upliftd/internal/config"
	"upliftd/internal/db"
	"upliftd/internal/domain"
	"upliftd/internal/engine"
	"upliftd/internal/events"
	"upliftd/internal/migrate"
	"upliftd/internal/services"
	"upliftd/internal/store"
)

type fakeEntityService struct {
	entities map[string]domain.EntityInformation
}

func (f *fakeEntityService) Entities(_ context.Context, _ string, ids []string) ([]domain.EntityInformation, error) {
	var res []domain.EntityInformation
	for _, id := range ids {
		if info, ok := f.entities[id]; ok {
			res = append(res, info)
		}
	}
	return res, nil
}

type fakeCoreService struct {
	program         domain.ProgramSummary
	solution        domain.SolutionSummary
	ratings         map[string]float64
	programRequests []map[string]any
}

func (f *fakeCoreService) CreateUserProgramAndSolution(_ context.Context, _ string, req map[string]any) (services.ProgramAndSolution, error) {
	f.programRequests = append(f.programRequests, req)
	return services.ProgramAndSolution{Program: f.program, Solution: f.solution}, nil
}

func (f *fakeCoreService) UserPrivatePrograms(_ context.Context, _ string) ([]domain.ProgramSummary, error) {
	return []domain.ProgramSummary{f.program}, nil
}

func (f *fakeCoreService) SubmitTemplateRating(_ context.Context, _ string, templateID string, rating float64) error {
	if f.ratings == nil {
		f.ratings = map[string]float64{}
	}
	f.ratings[templateID] = rating
	return nil
}

type testEnv struct {
	Engine engine.Engine
	Core   *fakeCoreService
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	entities := &fakeEntityService{entities: map[string]domain.EntityInformation{
		"ent-1": {ID: "ent-1", ExternalID: "E1", Name: "North District", EntityType: "district"},
	}}
	core := &fakeCoreService{
		program:  domain.ProgramSummary{ID: "prog-1", Name: "My Program", CreatedFor: []string{"org-1"}, RootOrganisations: []string{"org-1"}},
		solution: domain.SolutionSummary{ID: "sol-1", Name: "My Solution"},
	}
	eng := engine.New(conn, config.Default(), entities, core)
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Core: core, Ctx: context.Background()}
}

func seedCategory(t *testing.T, env testEnv, id, externalID, name string) {
	t.Helper()
	err := env.Engine.Store.InsertCategory(env.Ctx, store.CategoryRecord{
		ID:         id,
		ExternalID: externalID,
		Name:       name,
		UpdatedAt:  "2024-01-01T00:00:00Z",
	})
	if err != nil {
		t.Fatalf("seed category: %v", err)
	}
}

func seedTemplate(t *testing.T, env testEnv, template domain.ProjectTemplate, tasks []domain.TemplateTask) {
	t.Helper()
	if template.CreatedAt == "" {
		template.CreatedAt = "2024-01-01T00:00:00Z"
		template.UpdatedAt = template.CreatedAt
	}
	if err := env.Engine.Store.InsertTemplate(env.Ctx, template); err != nil {
		t.Fatalf("seed template: %v", err)
	}
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, task := range tasks {
		if task.CreatedAt == "" {
			task.CreatedAt = "2024-01-01T00:00:00Z"
			task.UpdatedAt = task.CreatedAt
		}
		if task.Children == nil {
			task.Children = []string{}
		}
		if err := env.Engine.Store.InsertTemplateTask(env.Ctx, tx, task); err != nil {
			t.Fatalf("seed template task %s: %v", task.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
}

func TestSyncCreateNormalizesTasks(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.Engine.Sync(env.Ctx, engine.SyncRequest{
		UserID: "user-1",
		Payload: engine.ProjectPayload{
			Title: "Improve library",
			Tasks: []engine.TaskPayload{
				{ID: "local-1", Name: "Task 1"},
			},
		},
	})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if _, err := uuid.Parse(p.ID); err != nil {
		t.Fatalf("project id %q is not canonical: %v", p.ID, err)
	}
	if len(p.Tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(p.Tasks))
	}
	task := p.Tasks[0]
	if _, err := uuid.Parse(task.ID); err != nil {
		t.Fatalf("task id %q was not replaced: %v", task.ID, err)
	}
	if task.ExternalID != "task 1" {
		t.Fatalf("externalId = %q, want %q", task.ExternalID, "task 1")
	}
	if task.Type != domain.TaskTypeSingle || task.Status != domain.StatusNotStarted {
		t.Fatalf("defaults not applied: type=%q status=%q", task.Type, task.Status)
	}
	if task.Children == nil {
		t.Fatal("children should be an empty slice, not nil")
	}
	if p.TaskReport["total"] != 1 || p.TaskReport[domain.StatusNotStarted] != 1 {
		t.Fatalf("unexpected task report: %v", p.TaskReport)
	}
}

func TestSyncKeepsCanonicalTaskIDs(t *testing.T) {
	env := newTestEnv(t)
	id := uuid.NewString()
	p, err := env.Engine.Sync(env.Ctx, engine.SyncRequest{
		UserID: "user-1",
		Payload: engine.ProjectPayload{
			Title: "Keep ids",
			Tasks: []engine.TaskPayload{{ID: id, Name: "Keep"}},
		},
	})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if p.Tasks[0].ID != id {
		t.Fatalf("canonical id was replaced: got %q want %q", p.Tasks[0].ID, id)
	}
}

// Resubmitting an already-normalized forest must not reassign ids or
// creation stamps.
func TestSyncResubmitKeepsTaskIdentity(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.Engine.Sync(env.Ctx, engine.SyncRequest{
		UserID: "user-1",
		Payload: engine.ProjectPayload{
			Title: "Round trip",
			Tasks: []engine.TaskPayload{
				{Name: "Parent", Children: []engine.TaskPayload{{Name: "Child"}}},
				{Name: "Sibling"},
			},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Send the server's own forest back, the way an offline client does.
	data, err := json.Marshal(p.Tasks)
	if err != nil {
		t.Fatalf("marshal tasks: %v", err)
	}
	var resent []engine.TaskPayload
	if err := json.Unmarshal(data, &resent); err != nil {
		t.Fatalf("unmarshal tasks: %v", err)
	}
	updated, err := env.Engine.Sync(env.Ctx, engine.SyncRequest{
		ProjectID: p.ID,
		UserID:    "user-1",
		Payload:   engine.ProjectPayload{Tasks: resent},
	})
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	assertSameTaskIdentity(t, p.Tasks, updated.Tasks)
}

func assertSameTaskIdentity(t *testing.T, before, after []domain.Task) {
	t.Helper()
	if len(before) != len(after) {
		t.Fatalf("forest size changed: %d -> %d", len(before), len(after))
	}
	for i := range before {
		if after[i].ID != before[i].ID {
			t.Fatalf("task %d id changed: %q -> %q", i, before[i].ID, after[i].ID)
		}
		if after[i].CreatedAt != before[i].CreatedAt {
			t.Fatalf("task %s createdAt changed: %q -> %q", before[i].ID, before[i].CreatedAt, after[i].CreatedAt)
		}
		if after[i].CreatedBy != before[i].CreatedBy {
			t.Fatalf("task %s createdBy changed: %q -> %q", before[i].ID, before[i].CreatedBy, after[i].CreatedBy)
		}
		assertSameTaskIdentity(t, before[i].Children, after[i].Children)
	}
}

func TestSyncUpdateMergesTasks(t *testing.T) {
	env := newTestEnv(t)
	idA, idB, idC := uuid.NewString(), uuid.NewString(), uuid.NewString()
	p, err := env.Engine.Sync(env.Ctx, engine.SyncRequest{
		UserID: "user-1",
		Payload: engine.ProjectPayload{
			Title: "Merge test",
			Tasks: []engine.TaskPayload{
				{ID: idA, Name: "A"},
				{ID: idB, Name: "B"},
			},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := env.Engine.Sync(env.Ctx, engine.SyncRequest{
		ProjectID: p.ID,
		UserID:    "user-1",
		Payload: engine.ProjectPayload{
			Tasks: []engine.TaskPayload{
				{ID: idB, Name: "B updated", Status: domain.StatusCompleted},
				{ID: idC, Name: "C"},
			},
		},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(updated.Tasks) != 3 {
		t.Fatalf("expected 3 tasks after merge, got %d", len(updated.Tasks))
	}
	if updated.Tasks[0].ID != idA || updated.Tasks[1].ID != idB || updated.Tasks[2].ID != idC {
		t.Fatalf("merge order wrong: %s %s %s", updated.Tasks[0].ID, updated.Tasks[1].ID, updated.Tasks[2].ID)
	}
	if updated.Tasks[1].Name != "B updated" || updated.Tasks[1].Status != domain.StatusCompleted {
		t.Fatalf("task B was not replaced: %+v", updated.Tasks[1])
	}
	if updated.Tasks[1].CreatedAt != p.Tasks[1].CreatedAt {
		t.Fatal("replacement must keep the original creation stamp")
	}
	if updated.TaskReport["total"] != 3 || updated.TaskReport[domain.StatusCompleted] != 1 {
		t.Fatalf("unexpected report after merge: %v", updated.TaskReport)
	}
}

func TestSyncResolvesCategories(t *testing.T) {
	env := newTestEnv(t)
	seedCategory(t, env, "cat-1", "communityProjects", "Community Projects")

	p, err := env.Engine.Sync(env.Ctx, engine.SyncRequest{
		UserID: "user-1",
		Payload: engine.ProjectPayload{
			Title: "Categories",
			Categories: []domain.Category{
				{ExternalID: "communityProjects"},
				{ExternalID: "unknownCat"},
			},
		},
	})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(p.Categories) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(p.Categories))
	}
	if p.Categories[0].ID != "cat-1" || p.Categories[0].Name != "Community Projects" {
		t.Fatalf("catalog category not resolved: %+v", p.Categories[0])
	}
	placeholder := p.Categories[1]
	if placeholder.ID != "" || placeholder.ExternalID != "unknownCat" || placeholder.Name != "Unknown Cat" {
		t.Fatalf("unexpected placeholder: %+v", placeholder)
	}
}

func TestSyncResolvesEntityAndProgram(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.Engine.Sync(env.Ctx, engine.SyncRequest{
		UserID: "user-1",
		Payload: engine.ProjectPayload{
			Title:       "With entity",
			Entities:    []string{"ent-1"},
			ProgramName: "My Program",
		},
	})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if p.EntityInformation == nil || p.EntityInformation.Name != "North District" {
		t.Fatalf("entity not resolved: %+v", p.EntityInformation)
	}
	if p.ProgramInformation == nil || p.ProgramInformation.ID != "prog-1" {
		t.Fatalf("program not minted: %+v", p.ProgramInformation)
	}
	if p.SolutionInformation == nil || p.SolutionInformation.ID != "sol-1" {
		t.Fatalf("solution not minted: %+v", p.SolutionInformation)
	}
	if len(p.CreatedFor) != 1 || p.CreatedFor[0] != "org-1" {
		t.Fatalf("createdFor not carried over: %v", p.CreatedFor)
	}
	if !p.IsAPrivateProgram {
		t.Fatal("minted program should mark the project private")
	}
}

func TestSyncResolvesProgramByID(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.Engine.Sync(env.Ctx, engine.SyncRequest{
		UserID: "user-1",
		Payload: engine.ProjectPayload{
			Title:     "Existing program",
			Entities:  []string{"ent-1"},
			ProgramID: "prog-1",
		},
	})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(env.Core.programRequests) != 1 {
		t.Fatalf("expected 1 program lookup, got %d", len(env.Core.programRequests))
	}
	req := env.Core.programRequests[0]
	if req["programId"] != "prog-1" {
		t.Fatalf("programId not forwarded: %#v", req)
	}
	ids, _ := req["entities"].([]string)
	if len(ids) != 1 || ids[0] != "ent-1" {
		t.Fatalf("resolved entity not forwarded: %#v", req["entities"])
	}
	if p.ProgramInformation == nil || p.ProgramInformation.Name != "My Program" {
		t.Fatalf("program summary not denormalized: %+v", p.ProgramInformation)
	}
	if p.SolutionInformation == nil || p.SolutionInformation.ID != "sol-1" {
		t.Fatalf("solution missing for programId path: %+v", p.SolutionInformation)
	}
	if len(p.CreatedFor) != 1 || len(p.RootOrganisations) != 1 {
		t.Fatalf("program ownership not copied: createdFor=%v rootOrgs=%v", p.CreatedFor, p.RootOrganisations)
	}
	if p.IsAPrivateProgram {
		t.Fatal("an existing program must not mark the project private")
	}
}

func TestSyncVersionConflict(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.Engine.Sync(env.Ctx, engine.SyncRequest{
		UserID:  "user-1",
		Payload: engine.ProjectPayload{Title: "CAS"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := env.Engine.Sync(env.Ctx, engine.SyncRequest{
		ProjectID: p.ID,
		UserID:    "user-1",
		Payload:   engine.ProjectPayload{Description: "first writer"},
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	// A stale snapshot must not overwrite the first writer's update.
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	stale := p
	stale.Description = "stale writer"
	err = env.Engine.Store.UpdateProject(env.Ctx, tx, stale, p.Version)
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestSyncCoercesExtraFields(t *testing.T) {
	env := newTestEnv(t)
	var payload engine.ProjectPayload
	raw := `{"title":"Extras","hasAcceptedTAndC":"TRUE","rating":"4.5","customNote":"keep me"}`
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	p, err := env.Engine.Sync(env.Ctx, engine.SyncRequest{UserID: "user-1", Payload: payload})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if v, ok := p.Extras["hasAcceptedTAndC"].(bool); !ok || !v {
		t.Fatalf("hasAcceptedTAndC not coerced: %#v", p.Extras["hasAcceptedTAndC"])
	}
	if v, ok := p.Extras["rating"].(float64); !ok || v != 4.5 {
		t.Fatalf("rating not coerced: %#v", p.Extras["rating"])
	}
	if p.Extras["customNote"] != "keep me" {
		t.Fatalf("unlisted field mangled: %#v", p.Extras["customNote"])
	}

	// The coerced remainder survives a storage round trip.
	stored, err := env.Engine.GetUserProject(env.Ctx, p.ID, "user-1")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if v, ok := stored.Extras["hasAcceptedTAndC"].(bool); !ok || !v {
		t.Fatalf("remainder not persisted: %#v", stored.Extras)
	}
}

func TestSyncEchoesPayloadToken(t *testing.T) {
	env := newTestEnv(t)
	var payload engine.ProjectPayload
	raw := `{"title":"Echo","payload":{"_id":"client-token-1"},"hasAcceptedTAndC":"yes"}`
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	p, err := env.Engine.Sync(env.Ctx, engine.SyncRequest{UserID: "user-1", Payload: payload})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(p.Payload) != 1 || p.Payload["_id"] != "client-token-1" {
		t.Fatalf("payload token not echoed verbatim: %#v", p.Payload)
	}
	if _, ok := p.Extras["payload"]; ok {
		t.Fatalf("payload token leaked into the remainder: %#v", p.Extras)
	}

	// The token is an acknowledgement for this call only, never stored.
	stored, err := env.Engine.GetUserProject(env.Ctx, p.ID, "user-1")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.Payload != nil {
		t.Fatalf("payload token was persisted: %#v", stored.Payload)
	}
}

func TestSyncUnknownProject(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.Sync(env.Ctx, engine.SyncRequest{
		ProjectID: uuid.NewString(),
		UserID:    "user-1",
		Payload:   engine.ProjectPayload{Title: "nope"},
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestImportFromLibrary(t *testing.T) {
	env := newTestEnv(t)
	t1 := domain.TemplateTask{
		ID:                "tt-1",
		ExternalID:        "t1",
		ProjectTemplateID: "tpl-1",
		Name:              "Survey the ground",
		Type:              domain.TaskTypeSingle,
		HasSubTasks:       true,
		Children:          []string{"tt-2"},
	}
	t1a := domain.TemplateTask{
		ID:                "tt-2",
		ExternalID:        "t1a",
		ProjectTemplateID: "tpl-1",
		ParentID:          "tt-1",
		Name:              "Record findings",
		Type:              domain.TaskTypeSingle,
		VisibleIf: []domain.VisibleIf{
			{Operator: "===", TaskID: "tt-1", Value: "yes"},
			{Operator: "===", TaskID: "tt-gone", Value: "no"},
		},
	}
	seedTemplate(t, env, domain.ProjectTemplate{
		ID:         "tpl-1",
		ExternalID: "IMP-TPL-1",
		Name:       "Ground improvement",
		Categories: []domain.Category{{ID: "cat-1", Name: "Infrastructure", ExternalID: "infrastructure"}},
		Tasks:      []string{"tt-1"},
		IsReusable: true,
		Status:     "published",
	}, []domain.TemplateTask{t1, t1a})

	p, err := env.Engine.ImportFromLibrary(env.Ctx, engine.ImportRequest{
		TemplateID: "tpl-1",
		UserID:     "user-1",
		Rating:     4,
	})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if p.ProjectTemplateID != "tpl-1" || p.ProjectTemplateExternalID != "IMP-TPL-1" {
		t.Fatalf("template provenance missing: %+v", p)
	}
	if p.Title != "Ground improvement" {
		t.Fatalf("title = %q", p.Title)
	}
	if len(p.Tasks) != 1 {
		t.Fatalf("expected 1 root task, got %d", len(p.Tasks))
	}
	root := p.Tasks[0]
	if root.ID == "tt-1" {
		t.Fatal("root task kept the template id")
	}
	if !root.IsImportedFromLibrary || root.ProjectTemplateID != "tpl-1" {
		t.Fatalf("import provenance missing on root: %+v", root)
	}
	if len(root.Children) != 1 {
		t.Fatalf("expected 1 child, got %d", len(root.Children))
	}
	child := root.Children[0]
	if child.ParentID != root.ID {
		t.Fatalf("child parent not rewritten: %q vs %q", child.ParentID, root.ID)
	}
	if len(child.VisibleIf) != 1 {
		t.Fatalf("dangling visibility rule kept: %+v", child.VisibleIf)
	}
	if child.VisibleIf[0].TaskID != root.ID {
		t.Fatalf("visibility reference not rewritten: %q", child.VisibleIf[0].TaskID)
	}

	// Rating is folded locally and forwarded upstream.
	if env.Core.ratings["tpl-1"] != 4 {
		t.Fatalf("rating not forwarded: %v", env.Core.ratings)
	}
	tpl, err := env.Engine.Store.GetTemplate(env.Ctx, "tpl-1")
	if err != nil {
		t.Fatal(err)
	}
	if tpl.NoOfRatings != 1 || tpl.AverageRating != 4 {
		t.Fatalf("local aggregate wrong: avg=%v n=%d", tpl.AverageRating, tpl.NoOfRatings)
	}
}

func TestImportRejectsNonReusable(t *testing.T) {
	env := newTestEnv(t)
	seedTemplate(t, env, domain.ProjectTemplate{
		ID:         "tpl-private",
		ExternalID: "PRIV-1",
		Name:       "Private",
		Tasks:      []string{},
		IsReusable: false,
		Status:     "published",
	}, nil)
	_, err := env.Engine.ImportFromLibrary(env.Ctx, engine.ImportRequest{TemplateID: "tpl-private", UserID: "user-1"})
	if err == nil {
		t.Fatal("expected error for non-reusable template")
	}
}

func TestBulkCreate(t *testing.T) {
	env := newTestEnv(t)
	seedTemplate(t, env, domain.ProjectTemplate{
		ID:         "tpl-a",
		ExternalID: "TPL-A",
		Name:       "Template A",
		Tasks:      []string{"tt-a"},
		IsReusable: false,
		Status:     "published",
	}, []domain.TemplateTask{{
		ID:                "tt-a",
		ExternalID:        "a1",
		ProjectTemplateID: "tpl-a",
		Name:              "First",
		Type:              domain.TaskTypeSingle,
	}})

	rows := []engine.BulkRow{
		{UserID: "user-1", TemplateExternalID: "TPL-A", EntityID: "ent-1"},
		{UserID: "user-2", TemplateExternalID: "TPL-MISSING"},
		{UserID: "user-3", TemplateExternalID: "TPL-A"},
	}
	var results []engine.BulkRowResult
	for res := range env.Engine.BulkCreate(env.Ctx, "", rows) {
		results = append(results, res)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Status != engine.BulkStatusSuccess || results[0].ProjectID == "" {
		t.Fatalf("row 1 failed: %+v", results[0])
	}
	if results[1].Status != engine.BulkStatusTemplateNotFound {
		t.Fatalf("row 2 status = %q", results[1].Status)
	}
	if results[2].Status != engine.BulkStatusSuccess {
		t.Fatalf("row 3 failed: %+v", results[2])
	}

	p, err := env.Engine.GetUserProject(env.Ctx, results[0].ProjectID, "user-1")
	if err != nil {
		t.Fatalf("load created project: %v", err)
	}
	if p.EntityInformation == nil || p.EntityInformation.ID != "ent-1" {
		t.Fatalf("entity not attached: %+v", p.EntityInformation)
	}
	if len(p.Tasks) != 1 || !p.Tasks[0].IsImportedFromLibrary {
		t.Fatalf("template tasks not copied: %+v", p.Tasks)
	}
}

func TestListUserProjectsScopesByOwner(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.Sync(env.Ctx, engine.SyncRequest{UserID: "user-1", Payload: engine.ProjectPayload{Title: "mine"}}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Sync(env.Ctx, engine.SyncRequest{UserID: "user-2", Payload: engine.ProjectPayload{Title: "theirs"}}); err != nil {
		t.Fatal(err)
	}
	mine, err := env.Engine.ListUserProjects(env.Ctx, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 1 || mine[0].Title != "mine" {
		t.Fatalf("unexpected listing: %+v", mine)
	}
}

func TestSyncWritesEventLog(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.Engine.Sync(env.Ctx, engine.SyncRequest{UserID: "user-1", Payload: engine.ProjectPayload{Title: "Logged"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := env.Engine.Sync(env.Ctx, engine.SyncRequest{
		ProjectID: p.ID,
		UserID:    "user-1",
		Payload:   engine.ProjectPayload{Description: "revised"},
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	rows, err := env.Engine.DB.QueryContext(env.Ctx, `SELECT type FROM events WHERE project_id=? ORDER BY id`, p.ID)
	if err != nil {
		t.Fatalf("query events: %v", err)
	}
	defer rows.Close()
	var types []string
	for rows.Next() {
		var evtType string
		if err := rows.Scan(&evtType); err != nil {
			t.Fatal(err)
		}
		types = append(types, evtType)
	}
	if len(types) != 2 || types[0] != events.TypeProjectCreated || types[1] != events.TypeProjectSynced {
		t.Fatalf("unexpected event trail: %v", types)
	}
}

func TestPrivatePrograms(t *testing.T) {
	env := newTestEnv(t)
	programs, err := env.Engine.PrivatePrograms(env.Ctx, "token")
	if err != nil {
		t.Fatalf("list programs: %v", err)
	}
	if len(programs) != 1 || programs[0].ID != "prog-1" {
		t.Fatalf("unexpected programs: %+v", programs)
	}

	bare := env.Engine
	bare.Core = nil
	programs, err = bare.PrivatePrograms(env.Ctx, "token")
	if err != nil {
		t.Fatalf("list without core: %v", err)
	}
	if programs == nil || len(programs) != 0 {
		t.Fatalf("expected an empty list without a core service, got %+v", programs)
	}
}
