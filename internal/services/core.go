package services

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"upliftd/internal/domain"
)

// CoreClient talks to the core catalog service that owns programs,
// solutions, template ratings, and category artwork.
type CoreClient struct {
	client
}

// NewCoreClient creates a client with sane defaults.
func NewCoreClient(baseURL string, timeout time.Duration) *CoreClient {
	return &CoreClient{client{BaseURL: baseURL, Timeout: timeout}}
}

// ProgramAndSolution is the pair minted by the core service when a user
// project needs its own program/solution scaffolding.
type ProgramAndSolution struct {
	Program  domain.ProgramSummary  `json:"program"`
	Solution domain.SolutionSummary `json:"solution"`
}

// CreateUserProgramAndSolution asks the core service to mint a private
// program and solution pair for the user's project.
func (c *CoreClient) CreateUserProgramAndSolution(ctx context.Context, token string, req map[string]any) (ProgramAndSolution, error) {
	var resp struct {
		Result ProgramAndSolution `json:"result"`
	}
	err := c.do(ctx, http.MethodPost, "v1/userProjects/createProgramAndSolution", token, req, &resp)
	return resp.Result, err
}

// UserPrivatePrograms lists the programs minted privately for the user.
func (c *CoreClient) UserPrivatePrograms(ctx context.Context, token string) ([]domain.ProgramSummary, error) {
	var resp struct {
		Result []domain.ProgramSummary `json:"result"`
	}
	if err := c.do(ctx, http.MethodGet, "v1/users/privatePrograms", token, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// SubmitTemplateRating forwards a library template rating to the core
// service, which owns the canonical aggregate.
func (c *CoreClient) SubmitTemplateRating(ctx context.Context, token, templateID string, rating float64) error {
	body := map[string]any{"rating": rating}
	endpoint := "v1/solutions/updateSolutions/" + url.PathEscape(templateID)
	return c.do(ctx, http.MethodPost, endpoint, token, body, nil)
}

// DownloadableURLs swaps stored artwork file paths for signed URLs.
func (c *CoreClient) DownloadableURLs(ctx context.Context, token string, filePaths []string) (map[string]string, error) {
	if len(filePaths) == 0 {
		return map[string]string{}, nil
	}
	body := map[string]any{"filePaths": filePaths}
	var resp struct {
		Result []struct {
			FilePath string `json:"filePath"`
			URL      string `json:"url"`
		} `json:"result"`
	}
	if err := c.do(ctx, http.MethodPost, "v1/cloud-services/files/getDownloadableUrl", token, body, &resp); err != nil {
		return nil, err
	}
	urls := make(map[string]string, len(resp.Result))
	for _, r := range resp.Result {
		urls[r.FilePath] = r.URL
	}
	return urls, nil
}
