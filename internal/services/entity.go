package services

import (
	"context"
	"net/http"
	"time"

	"upliftd/internal/domain"
)

// EntityClient talks to the entity registry service.
type EntityClient struct {
	client
}

// NewEntityClient creates a client with sane defaults.
func NewEntityClient(baseURL string, timeout time.Duration) *EntityClient {
	return &EntityClient{client{BaseURL: baseURL, Timeout: timeout}}
}

// Entities resolves entity ids to their denormalized summaries. The
// registry drops unknown ids; order follows the registry's response.
func (c *EntityClient) Entities(ctx context.Context, token string, ids []string) ([]domain.EntityInformation, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	body := map[string]any{"entities": ids}
	var resp struct {
		Result []domain.EntityInformation `json:"result"`
	}
	if err := c.do(ctx, http.MethodPost, "v1/entities/details", token, body, &resp); err != nil {
		return nil, err
	}
	return resp.Result, nil
}
