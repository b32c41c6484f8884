package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"upliftd/internal/engine"
	"upliftd/internal/library"
	"upliftd/internal/templatetasks"
)

func registerUserProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-user-projects",
		Method:      http.MethodGet,
		Path:        "/userProjects",
		Summary:     "List the caller's projects",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ProjectListResponse `json:"body"`
	}, error) {
		principal, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListUserProjects(ctx, principal.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectListResponse `json:"body"`
		}{Body: ProjectListResponse{Message: "Projects fetched successfully", Result: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-user-project",
		Method:      http.MethodGet,
		Path:        "/userProjects/{project_id}",
		Summary:     "Project details",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		principal, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.GetUserProject(ctx, input.ProjectID, principal.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: ProjectResponse{Message: "Project details fetched successfully", Result: p}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-private-programs",
		Method:      http.MethodGet,
		Path:        "/userProjects/programs",
		Summary:     "Programs minted for the caller's projects",
		Errors:      []int{http.StatusBadGateway},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ProgramListResponse `json:"body"`
	}, error) {
		principal, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		programs, err := e.PrivatePrograms(ctx, principal.Token)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProgramListResponse `json:"body"`
		}{Body: ProgramListResponse{Message: "Programs fetched successfully", Result: programs}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "sync-user-project",
		Method:        http.MethodPost,
		Path:          "/userProjects/sync",
		Summary:       "Create or update a project from a client submission",
		DefaultStatus: http.StatusOK,
		// The body is hand-decoded below; without this huma validates
		// the JSON document against the raw-body string schema.
		SkipValidateBody: true,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string `query:"projectId"`
		// Submissions carry arbitrary client fields, so the body is
		// decoded by hand instead of schema-validated.
		RawBody []byte `contentType:"application/json"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		principal, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if len(input.RawBody) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		var payload engine.ProjectPayload
		if err := json.Unmarshal(input.RawBody, &payload); err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid payload: "+err.Error(), nil)
		}
		p, err := e.Sync(ctx, engine.SyncRequest{
			ProjectID: input.ProjectID,
			UserID:    principal.UserID,
			UserToken: principal.Token,
			Payload:   payload,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: ProjectResponse{Message: "Project synced successfully", Result: p}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "import-from-library",
		Method:        http.MethodPost,
		Path:          "/userProjects/importFromLibrary/{template_id}",
		Summary:       "Create a project from a library template",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		TemplateID string                   `path:"template_id"`
		Body       ImportFromLibraryRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		principal, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.ImportFromLibrary(ctx, engine.ImportRequest{
			TemplateID: input.TemplateID,
			UserID:     principal.UserID,
			UserToken:  principal.Token,
			Entities:   input.Body.Entities,
			Title:      input.Body.Title,
			Rating:     input.Body.Rating,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: ProjectResponse{Message: "Project imported successfully", Result: p}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "bulk-create-user-projects",
		Method:      http.MethodPost,
		Path:        "/userProjects/bulkCreate",
		Summary:     "Create projects in bulk from a CSV sheet",
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		RawBody []byte `contentType:"text/csv"`
	}) (*struct {
		Body BulkCreateResponse `json:"body"`
	}, error) {
		principal, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rows, err := ParseBulkRows(input.RawBody)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		var results []engine.BulkRowResult
		for res := range e.BulkCreate(ctx, principal.Token, rows) {
			results = append(results, res)
		}
		return &struct {
			Body BulkCreateResponse `json:"body"`
		}{Body: BulkCreateResponse{Message: "Bulk creation processed", Result: results}}, nil
	})
}

func registerLibrary(api huma.API, c library.Catalog) {
	huma.Register(api, huma.Operation{
		OperationID: "library-categories",
		Method:      http.MethodGet,
		Path:        "/library/categories",
		Summary:     "List library categories",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body LibraryCategoriesResponse `json:"body"`
	}, error) {
		principal, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		views, err := c.Categories(ctx, principal.Token)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LibraryCategoriesResponse `json:"body"`
		}{Body: LibraryCategoriesResponse{Message: "Library categories fetched successfully", Result: views}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "library-projects",
		Method:      http.MethodGet,
		Path:        "/library/categories/{category_external_id}/projects",
		Summary:     "List library templates under a category",
	}, func(ctx context.Context, input *struct {
		CategoryExternalID string `path:"category_external_id"`
		Search             string `query:"search"`
		Sort               string `query:"sort"`
		PageSize           int    `query:"pageSize" minimum:"0"`
		PageNo             int    `query:"pageNo" minimum:"0"`
	}) (*struct {
		Body LibraryProjectsResponse `json:"body"`
	}, error) {
		if _, authErr := userFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		page, err := c.Projects(ctx, library.ProjectsQuery{
			CategoryExternalID: input.CategoryExternalID,
			Search:             input.Search,
			Sort:               input.Sort,
			PageSize:           input.PageSize,
			PageNo:             input.PageNo,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LibraryProjectsResponse `json:"body"`
		}{Body: LibraryProjectsResponse{Message: "Library projects fetched successfully", Result: page}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "library-project-details",
		Method:      http.MethodGet,
		Path:        "/library/projects/{template_id}/details",
		Summary:     "Library template with its task tree",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TemplateID string `path:"template_id"`
	}) (*struct {
		Body LibraryProjectDetailsResponse `json:"body"`
	}, error) {
		if _, authErr := userFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		details, err := c.Details(ctx, input.TemplateID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LibraryProjectDetailsResponse `json:"body"`
		}{Body: LibraryProjectDetailsResponse{Message: "Library project details fetched successfully", Result: details}}, nil
	})
}

func registerTemplateTasks(api huma.API, s templatetasks.Service) {
	register := func(opID, path, summary string, run func(ctx context.Context, userID string, rows []templatetasks.Row) ([]templatetasks.RowResult, error)) {
		huma.Register(api, huma.Operation{
			OperationID: opID,
			Method:      http.MethodPost,
			Path:        path,
			Summary:     summary,
			Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
		}, func(ctx context.Context, input *struct {
			RawBody []byte `contentType:"text/csv"`
		}) (*struct {
			Body TemplateTaskBulkResponse `json:"body"`
		}, error) {
			principal, authErr := userFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			rows, err := templatetasks.ParseRows(bytesReader(input.RawBody))
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
			}
			results, err := run(ctx, principal.UserID, rows)
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body TemplateTaskBulkResponse `json:"body"`
			}{Body: TemplateTaskBulkResponse{Message: "Template tasks processed", Result: results}}, nil
		})
	}
	register("bulk-create-template-tasks", "/templateTasks/bulkCreate", "Create template tasks from a CSV sheet", s.BulkCreate)
	register("bulk-update-template-tasks", "/templateTasks/bulkUpdate", "Update template tasks from a CSV sheet", s.BulkUpdate)
}
