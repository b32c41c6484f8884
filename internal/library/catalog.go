// Package library serves the read side of the template library: the
// category catalog and the browsable template listings.
package library

import (
	"context"
	"fmt"
	"sort"

	"upliftd/internal/cache"
	"upliftd/internal/domain"
	"upliftd/internal/store"
)

// cacheKeyCategories is the cache slot for the resolved category list.
const cacheKeyCategories = "libraryCategories"

// ArtworkService swaps stored icon paths for downloadable URLs.
type ArtworkService interface {
	DownloadableURLs(ctx context.Context, token string, filePaths []string) (map[string]string, error)
}

// CategoryView is a catalog entry as shown to library browsers.
type CategoryView struct {
	ID         string `json:"_id"`
	Name       string `json:"name"`
	ExternalID string `json:"externalId"`
	IconURL    string `json:"url,omitempty"`
}

// Catalog reads the library. The category list is cached per process and
// refreshed explicitly; template listings always hit the store.
type Catalog struct {
	Store           store.Store
	Cache           *cache.Cache
	Core            ArtworkService
	DefaultPageSize int
}

// Categories returns the catalog, serving from cache when warm.
func (c Catalog) Categories(ctx context.Context, token string) ([]CategoryView, error) {
	if c.Cache != nil {
		if v, ok := c.Cache.Get(cacheKeyCategories); ok {
			if views, ok := v.([]CategoryView); ok {
				return views, nil
			}
		}
	}
	return c.RefreshCategories(ctx, token)
}

// RefreshCategories rebuilds the cached catalog from the store, resolving
// icon artwork to downloadable URLs. Artwork resolution is best effort; a
// failed lookup leaves icons empty rather than failing the listing.
func (c Catalog) RefreshCategories(ctx context.Context, token string) ([]CategoryView, error) {
	records, err := c.Store.ActiveCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	var paths []string
	for _, r := range records {
		if r.Icon != "" {
			paths = append(paths, r.Icon)
		}
	}
	urls := map[string]string{}
	if c.Core != nil && len(paths) > 0 {
		if resolved, err := c.Core.DownloadableURLs(ctx, token, paths); err == nil {
			urls = resolved
		}
	}
	views := make([]CategoryView, 0, len(records))
	for _, r := range records {
		views = append(views, CategoryView{
			ID:         r.ID,
			Name:       r.Name,
			ExternalID: r.ExternalID,
			IconURL:    urls[r.Icon],
		})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Name < views[j].Name })
	if c.Cache != nil {
		c.Cache.Set(cacheKeyCategories, views)
	}
	return views, nil
}

// InvalidateCategories drops the cached catalog so the next read rebuilds it.
func (c Catalog) InvalidateCategories() {
	if c.Cache != nil {
		c.Cache.Invalidate(cacheKeyCategories)
	}
}

// ProjectsQuery selects one page of a category's templates.
type ProjectsQuery struct {
	CategoryExternalID string
	Search             string
	Sort               string
	PageSize           int
	PageNo             int
}

// sortImportant ranks templates by how often they have been rated.
const sortImportant = "importantProject"

// ProjectsPage is one page of library templates with the total match count.
type ProjectsPage struct {
	Items []domain.TemplateSummary `json:"data"`
	Count int                      `json:"count"`
}

// Projects lists the reusable templates under a category, paginated.
func (c Catalog) Projects(ctx context.Context, q ProjectsQuery) (ProjectsPage, error) {
	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = c.DefaultPageSize
	}
	items, count, err := c.Store.LibraryProjects(ctx, store.LibraryFilters{
		CategoryExternalID: q.CategoryExternalID,
		Search:             q.Search,
		SortByRatings:      q.Sort == sortImportant,
		PageSize:           pageSize,
		PageNo:             q.PageNo,
	})
	if err != nil {
		return ProjectsPage{}, fmt.Errorf("list library projects: %w", err)
	}
	if items == nil {
		items = []domain.TemplateSummary{}
	}
	return ProjectsPage{Items: items, Count: count}, nil
}

// ProjectDetails is a template with its task tree fully expanded.
type ProjectDetails struct {
	domain.ProjectTemplate
	TasksAndSubTasks []domain.TemplateTask `json:"tasksAndSubTasks"`
}

// Details returns one template with every task and subtask expanded.
func (c Catalog) Details(ctx context.Context, templateID string) (ProjectDetails, error) {
	template, err := c.Store.GetTemplate(ctx, templateID)
	if err != nil {
		return ProjectDetails{}, err
	}
	tree, err := c.Store.TemplateTaskTree(ctx, template.Tasks)
	if err != nil {
		return ProjectDetails{}, fmt.Errorf("load template tasks: %w", err)
	}
	if tree == nil {
		tree = []domain.TemplateTask{}
	}
	return ProjectDetails{ProjectTemplate: template, TasksAndSubTasks: tree}, nil
}
