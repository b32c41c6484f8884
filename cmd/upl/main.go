package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"upliftd/internal/cache"
	"upliftd/internal/config"
	"upliftd/internal/db"
	"upliftd/internal/engine"
	"upliftd/internal/library"
	"upliftd/internal/migrate"
	"upliftd/internal/server"
	"upliftd/internal/services"
	"upliftd/internal/store"
	"upliftd/internal/templatetasks"
)

var rootCmd = &cobra.Command{
	Use:   "upl",
	Short: "Upliftd CLI",
	Long: `Upliftd manages improvement projects: user projects synced from offline
clients, a library of reusable templates, and the category catalog behind it.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("UPLIFTD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("user-id", "local-user", "user identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("user-id", rootCmd.PersistentFlags().Lookup("user-id"))
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(libraryCmd())
	rootCmd.AddCommand(templateTaskCmd())
	rootCmd.AddCommand(serveCmd())
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage user projects"}
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectSyncCmd())
	prj.AddCommand(projectImportCmd())
	prj.AddCommand(projectBulkCreateCmd())
	return prj
}

func projectListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the user's projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListUserProjects(ctx, viper.GetString("user-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Tasks", "Updated"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Title, p.Status, p.TaskReport["total"], p.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func projectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show one project with its task report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.GetUserProject(ctx, args[0], viper.GetString("user-id"))
				if err != nil {
					return err
				}
				return printJSON(p)
			})
		},
	}
	return cmd
}

func projectSyncCmd() *cobra.Command {
	var file, projectID string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Create or update a project from a JSON payload file",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var payload engine.ProjectPayload
			if err := json.Unmarshal(data, &payload); err != nil {
				return fmt.Errorf("invalid payload: %w", err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.Sync(ctx, engine.SyncRequest{
					ProjectID: projectID,
					UserID:    viper.GetString("user-id"),
					Payload:   payload,
				})
				if err != nil {
					return err
				}
				return printJSON(p)
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "payload JSON file")
	cmd.Flags().StringVar(&projectID, "project", "", "existing project id (omit to create)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func projectImportCmd() *cobra.Command {
	var title string
	var rating float64
	cmd := &cobra.Command{
		Use:   "import <template-id>",
		Short: "Create a project from a library template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.ImportFromLibrary(ctx, engine.ImportRequest{
					TemplateID: args[0],
					UserID:     viper.GetString("user-id"),
					Title:      title,
					Rating:     rating,
				})
				if err != nil {
					return err
				}
				return printJSON(p)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "project title (defaults to the template name)")
	cmd.Flags().Float64Var(&rating, "rating", 0, "rate the template while importing")
	return cmd
}

func projectBulkCreateCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "bulk-create",
		Short: "Create projects in bulk from a CSV sheet",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			rows, err := parseBulkSheet(data)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"User", "Template", "Project", "Status"})
				for res := range e.BulkCreate(ctx, "", rows) {
					tw.AppendRow(table.Row{res.Row.UserID, res.Row.TemplateExternalID, res.ProjectID, res.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "CSV sheet with userId,templateExternalId[,entityId]")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func libraryCmd() *cobra.Command {
	lib := &cobra.Command{Use: "library", Short: "Browse and maintain the template library"}
	lib.AddCommand(libraryCategoriesCmd())
	lib.AddCommand(libraryProjectsCmd())
	lib.AddCommand(libraryDetailsCmd())
	lib.AddCommand(libraryCategoryAddCmd())
	return lib
}

func libraryCategoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "List library categories",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(cmd.Context(), func(ctx context.Context, c library.Catalog) error {
				views, err := c.Categories(ctx, "")
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(views)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "External ID"})
				for _, v := range views {
					tw.AppendRow(table.Row{v.ID, v.Name, v.ExternalID})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func libraryProjectsCmd() *cobra.Command {
	var search, sortBy string
	var pageSize, pageNo int
	cmd := &cobra.Command{
		Use:   "projects <category-external-id>",
		Short: "List library templates under a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(cmd.Context(), func(ctx context.Context, c library.Catalog) error {
				page, err := c.Projects(ctx, library.ProjectsQuery{
					CategoryExternalID: args[0],
					Search:             search,
					Sort:               sortBy,
					PageSize:           pageSize,
					PageNo:             pageNo,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(page)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Rating", "Ratings"})
				for _, t := range page.Items {
					tw.AppendRow(table.Row{t.ID, t.Name, t.AverageRating, t.NoOfRatings})
				}
				tw.Render()
				fmt.Printf("total: %d\n", page.Count)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&search, "search", "", "search by name or description")
	cmd.Flags().StringVar(&sortBy, "sort", "", "sort order (importantProject ranks by rating count)")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "page size")
	cmd.Flags().IntVar(&pageNo, "page", 1, "page number")
	return cmd
}

func libraryDetailsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "details <template-id>",
		Short: "Show a template with its task tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(cmd.Context(), func(ctx context.Context, c library.Catalog) error {
				details, err := c.Details(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(details)
			})
		},
	}
	return cmd
}

func libraryCategoryAddCmd() *cobra.Command {
	var name, externalID, icon string
	cmd := &cobra.Command{
		Use:   "category-add",
		Short: "Add a category to the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" || externalID == "" {
				return errors.New("name and external-id are required")
			}
			return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
				now := time.Now().UTC().Format(time.RFC3339)
				rec := store.CategoryRecord{
					ID:         uuid.NewString(),
					ExternalID: externalID,
					Name:       name,
					Icon:       icon,
					UpdatedAt:  now,
				}
				if err := s.InsertCategory(ctx, rec); err != nil {
					return err
				}
				fmt.Println(rec.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&externalID, "external-id", "", "stable external id")
	cmd.Flags().StringVar(&icon, "icon", "", "icon file path")
	return cmd
}

func templateTaskCmd() *cobra.Command {
	tt := &cobra.Command{Use: "template-task", Short: "Maintain template tasks in bulk"}
	tt.AddCommand(templateTaskBulkCmd("bulk-create", "Create template tasks from a CSV sheet",
		func(s templatetasks.Service) func(context.Context, string, []templatetasks.Row) ([]templatetasks.RowResult, error) {
			return s.BulkCreate
		}))
	tt.AddCommand(templateTaskBulkCmd("bulk-update", "Update template tasks from a CSV sheet",
		func(s templatetasks.Service) func(context.Context, string, []templatetasks.Row) ([]templatetasks.RowResult, error) {
			return s.BulkUpdate
		}))
	return tt
}

func templateTaskBulkCmd(use, short string, pick func(templatetasks.Service) func(context.Context, string, []templatetasks.Row) ([]templatetasks.RowResult, error)) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()
			rows, err := templatetasks.ParseRows(f)
			if err != nil {
				return err
			}
			return withDB(cmd.Context(), func(ctx context.Context, svc templatetasks.Service) error {
				results, err := pick(svc)(ctx, viper.GetString("user-id"), rows)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(results)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"External ID", "Task", "Status"})
				for _, r := range results {
					tw.AppendRow(table.Row{r.Row.ExternalID, r.TaskID, r.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "CSV sheet")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}
			secret := os.Getenv("UPLIFTD_JWT_SECRET")
			if secret == "" {
				secret = cfg.Auth.JWTSecret
			}
			if secret == "" {
				return fmt.Errorf("UPLIFTD_JWT_SECRET is required for bearer auth")
			}
			_, core := buildClients(cfg)
			e := newEngine(conn, cfg)
			catalog := library.Catalog{
				Store:           store.Store{DB: conn},
				Cache:           cache.New(),
				DefaultPageSize: cfg.Library.DefaultPageSize,
			}
			if core != nil {
				catalog.Core = core
			}
			handler, err := server.New(server.Config{
				Engine:        e,
				Catalog:       catalog,
				TemplateTasks: templatetasks.New(conn),
				BasePath:      basePath,
				Auth:          server.AuthConfig{JWTSecret: secret},
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Upliftd API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to config)")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

func buildClients(cfg *config.Config) (engine.EntityService, *services.CoreClient) {
	var entities engine.EntityService
	var core *services.CoreClient
	if cfg.Services.Entity.BaseURL != "" {
		entities = services.NewEntityClient(cfg.Services.Entity.BaseURL, cfg.Services.Entity.Timeout())
	}
	if cfg.Services.Core.BaseURL != "" {
		core = services.NewCoreClient(cfg.Services.Core.BaseURL, cfg.Services.Core.Timeout())
	}
	return entities, core
}

func newEngine(conn *sql.DB, cfg *config.Config) engine.Engine {
	entities, core := buildClients(cfg)
	var coreSvc engine.CoreService
	if core != nil {
		coreSvc = core
	}
	return engine.New(conn, cfg, entities, coreSvc)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, newEngine(conn, cfg))
}

func withCatalog(ctx context.Context, fn func(context.Context, library.Catalog) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	catalog := library.Catalog{
		Store:           store.Store{DB: conn},
		Cache:           cache.New(),
		DefaultPageSize: cfg.Library.DefaultPageSize,
	}
	if cfg.Services.Core.BaseURL != "" {
		catalog.Core = services.NewCoreClient(cfg.Services.Core.BaseURL, cfg.Services.Core.Timeout())
	}
	return fn(ctx, catalog)
}

func withStore(ctx context.Context, fn func(context.Context, store.Store) error) error {
	conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, store.Store{DB: conn})
}

func withDB(ctx context.Context, fn func(context.Context, templatetasks.Service) error) error {
	conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, templatetasks.New(conn))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseBulkSheet(data []byte) ([]engine.BulkRow, error) {
	return server.ParseBulkRows(data)
}
