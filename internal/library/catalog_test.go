package library_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"upliftd/internal/cache"
	"upliftd/internal/db"
	"upliftd/internal/domain"
	"upliftd/internal/library"
	"upliftd/internal/migrate"
	"upliftd/internal/store"
)

type fakeArtwork struct {
	calls int
}

func (f *fakeArtwork) DownloadableURLs(_ context.Context, _ string, filePaths []string) (map[string]string, error) {
	f.calls++
	res := map[string]string{}
	for _, p := range filePaths {
		res[p] = "https://files.example.com/" + p
	}
	return res, nil
}

func newCatalog(t *testing.T) (library.Catalog, *fakeArtwork, *sql.DB) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	art := &fakeArtwork{}
	c := library.Catalog{
		Store:           store.Store{DB: conn},
		Cache:           cache.New(),
		Core:            art,
		DefaultPageSize: 2,
	}
	return c, art, conn
}

func seedCategories(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()
	records := []store.CategoryRecord{
		{ID: "cat-2", ExternalID: "waterProjects", Name: "Water Projects", Icon: "icons/water.png", UpdatedAt: "2024-01-01T00:00:00Z"},
		{ID: "cat-1", ExternalID: "communityProjects", Name: "Community Projects", Icon: "icons/community.png", UpdatedAt: "2024-01-01T00:00:00Z"},
		{ID: "cat-3", ExternalID: "retired", Name: "Retired", Status: "inactive", UpdatedAt: "2024-01-01T00:00:00Z"},
	}
	for _, r := range records {
		if err := s.InsertCategory(ctx, r); err != nil {
			t.Fatalf("seed category %s: %v", r.ID, err)
		}
	}
}

func TestCategoriesResolveIconsAndSort(t *testing.T) {
	c, _, _ := newCatalog(t)
	seedCategories(t, c.Store)

	views, err := c.Categories(context.Background(), "token")
	if err != nil {
		t.Fatalf("categories: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("inactive category leaked: %+v", views)
	}
	if views[0].Name != "Community Projects" || views[1].Name != "Water Projects" {
		t.Fatalf("not sorted by name: %+v", views)
	}
	if views[0].IconURL != "https://files.example.com/icons/community.png" {
		t.Fatalf("icon not resolved: %q", views[0].IconURL)
	}
}

func TestCategoriesAreCached(t *testing.T) {
	c, art, _ := newCatalog(t)
	seedCategories(t, c.Store)
	ctx := context.Background()

	if _, err := c.Categories(ctx, "token"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Categories(ctx, "token"); err != nil {
		t.Fatal(err)
	}
	if art.calls != 1 {
		t.Fatalf("expected one artwork lookup, got %d", art.calls)
	}

	c.InvalidateCategories()
	if _, err := c.Categories(ctx, "token"); err != nil {
		t.Fatal(err)
	}
	if art.calls != 2 {
		t.Fatalf("cache not invalidated, calls=%d", art.calls)
	}
}

func seedTemplates(t *testing.T, s store.Store, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		tpl := domain.ProjectTemplate{
			ID:            fmt.Sprintf("tpl-%d", i),
			ExternalID:    fmt.Sprintf("TPL-%d", i),
			Name:          fmt.Sprintf("Template %d", i),
			Categories:    []domain.Category{{ID: "cat-1", Name: "Community Projects", ExternalID: "communityProjects"}},
			Tasks:         []string{},
			IsReusable:    true,
			NoOfRatings:   i,
			AverageRating: float64(i),
			Status:        "published",
			CreatedAt:     fmt.Sprintf("2024-01-0%dT00:00:00Z", i+1),
			UpdatedAt:     fmt.Sprintf("2024-01-0%dT00:00:00Z", i+1),
		}
		if err := s.InsertTemplate(ctx, tpl); err != nil {
			t.Fatalf("seed template %d: %v", i, err)
		}
	}
}

func TestProjectsPagination(t *testing.T) {
	c, _, _ := newCatalog(t)
	seedTemplates(t, c.Store, 5)
	ctx := context.Background()

	page, err := c.Projects(ctx, library.ProjectsQuery{CategoryExternalID: "communityProjects", PageNo: 1})
	if err != nil {
		t.Fatalf("projects: %v", err)
	}
	if page.Count != 5 {
		t.Fatalf("count = %d, want 5", page.Count)
	}
	if len(page.Items) != 2 {
		t.Fatalf("default page size not applied: %d items", len(page.Items))
	}

	page3, err := c.Projects(ctx, library.ProjectsQuery{CategoryExternalID: "communityProjects", PageNo: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(page3.Items) != 1 {
		t.Fatalf("last page should have 1 item, got %d", len(page3.Items))
	}

	missing, err := c.Projects(ctx, library.ProjectsQuery{CategoryExternalID: "noSuchCategory"})
	if err != nil {
		t.Fatal(err)
	}
	if missing.Count != 0 || len(missing.Items) != 0 {
		t.Fatalf("unexpected matches: %+v", missing)
	}
}

func TestProjectsImportantSort(t *testing.T) {
	c, _, _ := newCatalog(t)
	seedTemplates(t, c.Store, 3)

	page, err := c.Projects(context.Background(), library.ProjectsQuery{
		CategoryExternalID: "communityProjects",
		Sort:               "importantProject",
		PageSize:           3,
	})
	if err != nil {
		t.Fatal(err)
	}
	if page.Items[0].NoOfRatings < page.Items[1].NoOfRatings {
		t.Fatalf("not sorted by rating count: %+v", page.Items)
	}
}

func TestProjectsSearch(t *testing.T) {
	c, _, _ := newCatalog(t)
	seedTemplates(t, c.Store, 3)

	page, err := c.Projects(context.Background(), library.ProjectsQuery{
		CategoryExternalID: "communityProjects",
		Search:             "Template 1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if page.Count != 1 || page.Items[0].Name != "Template 1" {
		t.Fatalf("search mismatch: %+v", page)
	}
}

func TestDetailsExpandsTaskTree(t *testing.T) {
	c, _, conn := newCatalog(t)
	ctx := context.Background()
	if err := c.Store.InsertTemplate(ctx, domain.ProjectTemplate{
		ID:         "tpl-1",
		ExternalID: "TPL-1",
		Name:       "With tree",
		Categories: []domain.Category{},
		Tasks:      []string{"tt-1"},
		IsReusable: true,
		Status:     "published",
		CreatedAt:  "2024-01-01T00:00:00Z",
		UpdatedAt:  "2024-01-01T00:00:00Z",
	}); err != nil {
		t.Fatal(err)
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	tasks := []domain.TemplateTask{
		{ID: "tt-1", ExternalID: "t1", ProjectTemplateID: "tpl-1", Name: "Parent", Type: "single", HasSubTasks: true, Children: []string{"tt-2"}, CreatedAt: "2024-01-01T00:00:00Z", UpdatedAt: "2024-01-01T00:00:00Z"},
		{ID: "tt-2", ExternalID: "t1a", ProjectTemplateID: "tpl-1", ParentID: "tt-1", Name: "Child", Type: "single", Children: []string{}, CreatedAt: "2024-01-01T00:00:00Z", UpdatedAt: "2024-01-01T00:00:00Z"},
	}
	for _, task := range tasks {
		if err := c.Store.InsertTemplateTask(ctx, tx, task); err != nil {
			t.Fatal(err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	details, err := c.Details(ctx, "tpl-1")
	if err != nil {
		t.Fatalf("details: %v", err)
	}
	if len(details.TasksAndSubTasks) != 1 {
		t.Fatalf("expected 1 root task, got %d", len(details.TasksAndSubTasks))
	}
	root := details.TasksAndSubTasks[0]
	if len(root.ChildTasks) != 1 || root.ChildTasks[0].ID != "tt-2" {
		t.Fatalf("child not expanded: %+v", root.ChildTasks)
	}
}
