package templatetasks

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// Sheet column headers. Matching is case-insensitive and ignores spaces so
// hand-edited sheets survive.
const (
	colExternalID         = "externalid"
	colTemplateExternalID = "templateexternalid"
	colName               = "name"
	colDescription        = "description"
	colType               = "type"
	colIsDeleteable       = "isdeleteable"
	colHasAParentTask     = "hasaparenttask"
	colParentTask         = "parenttaskid"
	colVisibleIfOperator  = "visibleifoperator"
	colVisibleIfValue     = "visibleifvalue"
	colVisibleIfTask      = "visibleiftaskid"
)

// ParseRows reads a task maintenance sheet. The first record is the
// header; unknown columns are ignored, missing ones read as empty.
func ParseRows(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
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
		index[normalizeHeader(h)] = i
	}
	if _, ok := index[colExternalID]; !ok {
		return nil, fmt.Errorf("sheet is missing the externalId column")
	}

	var rows []Row
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(rows)+2, err)
		}
		field := func(name string) string {
			i, ok := index[name]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}
		rows = append(rows, Row{
			ExternalID:           field(colExternalID),
			TemplateExternalID:   field(colTemplateExternalID),
			Name:                 field(colName),
			Description:          field(colDescription),
			Type:                 field(colType),
			IsDeleteable:         field(colIsDeleteable),
			HasAParentTask:       strings.ToUpper(field(colHasAParentTask)),
			ParentTaskExternalID: field(colParentTask),
			VisibleIfOperator:    strings.ToUpper(field(colVisibleIfOperator)),
			VisibleIfValue:       field(colVisibleIfValue),
			VisibleIfTaskID:      field(colVisibleIfTask),
		})
	}
	return rows, nil
}

func normalizeHeader(h string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(h), " ", ""))
}
