package engine

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"upliftd/internal/config"
	"upliftd/internal/domain"
	"upliftd/internal/events"
	"upliftd/internal/services"
	"upliftd/internal/store"
)

// EntityService resolves entity ids against the entity registry.
type EntityService interface {
	Entities(ctx context.Context, token string, ids []string) ([]domain.EntityInformation, error)
}

// CoreService covers the core catalog operations the engine depends on.
type CoreService interface {
	CreateUserProgramAndSolution(ctx context.Context, token string, req map[string]any) (services.ProgramAndSolution, error)
	SubmitTemplateRating(ctx context.Context, token, templateID string, rating float64) error
	UserPrivatePrograms(ctx context.Context, token string) ([]domain.ProgramSummary, error)
}

type Engine struct {
	DB       *sql.DB
	Store    store.Store
	Events   events.Writer
	Entities EntityService
	Core     CoreService
	Config   *config.Config
	Now      func() time.Time
}

func New(db *sql.DB, cfg *config.Config, entities EntityService, core CoreService) Engine {
	return Engine{
		DB:       db,
		Store:    store.Store{DB: db},
		Events:   events.Writer{DB: db},
		Entities: entities,
		Core:     core,
		Config:   cfg,
		Now:      time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowRFC3339() string {
	return e.now().UTC().Format(time.RFC3339)
}

func newID() string {
	return uuid.NewString()
}

// isServerID reports whether an id was minted by this service rather than
// carried in from an offline client.
func isServerID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
