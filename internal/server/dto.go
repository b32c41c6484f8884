package server

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"upliftd/internal/domain"
	"upliftd/internal/engine"
	"upliftd/internal/library"
	"upliftd/internal/templatetasks"
)

// Response envelopes. Every success response carries a message and the
// operation result.

type ProjectResponse struct {
	Message string         `json:"message"`
	Result  domain.Project `json:"result"`
}

type ProjectListResponse struct {
	Message string           `json:"message"`
	Result  []domain.Project `json:"result"`
}

type ProgramListResponse struct {
	Message string                  `json:"message"`
	Result  []domain.ProgramSummary `json:"result"`
}

type LibraryCategoriesResponse struct {
	Message string                 `json:"message"`
	Result  []library.CategoryView `json:"result"`
}

type LibraryProjectsResponse struct {
	Message string               `json:"message"`
	Result  library.ProjectsPage `json:"result"`
}

type LibraryProjectDetailsResponse struct {
	Message string                 `json:"message"`
	Result  library.ProjectDetails `json:"result"`
}

type BulkCreateResponse struct {
	Message string                 `json:"message"`
	Result  []engine.BulkRowResult `json:"result"`
}

type TemplateTaskBulkResponse struct {
	Message string                    `json:"message"`
	Result  []templatetasks.RowResult `json:"result"`
}

// ImportFromLibraryRequest carries the optional import parameters.
type ImportFromLibraryRequest struct {
	Title    string   `json:"title,omitempty"`
	Entities []string `json:"entities,omitempty"`
	Rating   float64  `json:"rating,omitempty" minimum:"0" maximum:"5"`
}

func bytesReader(data []byte) io.Reader {
	return bytes.NewReader(data)
}

// ParseBulkRows reads the bulk creation sheet: one project per line,
// columns userId, templateExternalId and optionally entityId.
func ParseBulkRows(data []byte) ([]engine.BulkRow, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty sheet")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	index := map[string]int{}
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	userIdx, ok := index["userid"]
	if !ok {
		return nil, fmt.Errorf("sheet is missing the userId column")
	}
	templateIdx, ok := index["templateexternalid"]
	if !ok {
		return nil, fmt.Errorf("sheet is missing the templateExternalId column")
	}
	entityIdx, hasEntity := index["entityid"]

	var rows []engine.BulkRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(rows)+2, err)
		}
		row := engine.BulkRow{}
		if userIdx < len(record) {
			row.UserID = strings.TrimSpace(record[userIdx])
		}
		if templateIdx < len(record) {
			row.TemplateExternalID = strings.TrimSpace(record[templateIdx])
		}
		if hasEntity && entityIdx < len(record) {
			row.EntityID = strings.TrimSpace(record[entityIdx])
		}
		rows = append(rows, row)
	}
	return rows, nil
}
