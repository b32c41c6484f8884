package engine

import (
	"encoding/json"
	"strconv"
	"strings"

	"upliftd/internal/domain"
)

// ProjectPayload is the wire shape a client submits when syncing a project.
// Known fields are typed; everything else lands in Extra and is carried on
// the stored project after coercion.
type ProjectPayload struct {
	ID                string            `json:"_id,omitempty"`
	Title             string            `json:"title,omitempty"`
	Description       string            `json:"description,omitempty"`
	Status            string            `json:"status,omitempty"`
	StartDate         string            `json:"startDate,omitempty"`
	EndDate           string            `json:"endDate,omitempty"`
	LastDownloadedAt  string            `json:"lastDownloadedAt,omitempty"`
	IsDeleted         flexBool          `json:"isDeleted,omitempty"`
	IsAPrivateProgram flexBool          `json:"isAPrivateProgram,omitempty"`
	Categories        []domain.Category `json:"categories,omitempty"`
	Entities          []string          `json:"entities,omitempty"`
	ProgramID         string            `json:"programId,omitempty"`
	ProgramName       string            `json:"programName,omitempty"`
	SolutionID        string            `json:"solutionId,omitempty"`
	Tasks             []TaskPayload     `json:"tasks,omitempty"`
	Payload           map[string]any    `json:"payload,omitempty"`
	Extra             map[string]any    `json:"-"`
}

// TaskPayload is the wire shape of one submitted task node. Booleans accept
// either JSON booleans or the string renderings offline exports produce.
type TaskPayload struct {
	ID           string              `json:"_id,omitempty"`
	Name         string              `json:"name"`
	ExternalID   string              `json:"externalId,omitempty"`
	Description  string              `json:"description,omitempty"`
	Type         string              `json:"type,omitempty"`
	Status       string              `json:"status,omitempty"`
	IsDeleted    flexBool            `json:"isDeleted,omitempty"`
	IsDeleteable flexBool            `json:"isDeleteable,omitempty"`
	ParentID     string              `json:"parentId,omitempty"`
	Assignee     string              `json:"assignee,omitempty"`
	Remarks      string              `json:"remarks,omitempty"`
	StartDate    string              `json:"startDate,omitempty"`
	EndDate      string              `json:"endDate,omitempty"`
	Attachments  []domain.Attachment `json:"attachments,omitempty"`
	VisibleIf    []domain.VisibleIf  `json:"visibleIf,omitempty"`
	CreatedBy    string              `json:"createdBy,omitempty"`
	CreatedAt    string              `json:"createdAt,omitempty"`
	Children     []TaskPayload       `json:"children,omitempty"`
}

func (t TaskPayload) toTask() domain.Task {
	task := domain.Task{
		ID:           t.ID,
		Name:         t.Name,
		ExternalID:   t.ExternalID,
		Description:  t.Description,
		Type:         t.Type,
		Status:       t.Status,
		IsDeleted:    bool(t.IsDeleted),
		IsDeleteable: bool(t.IsDeleteable),
		ParentID:     t.ParentID,
		Assignee:     t.Assignee,
		Remarks:      t.Remarks,
		StartDate:    t.StartDate,
		EndDate:      t.EndDate,
		Attachments:  t.Attachments,
		VisibleIf:    t.VisibleIf,
		CreatedBy:    t.CreatedBy,
		CreatedAt:    t.CreatedAt,
	}
	for _, c := range t.Children {
		task.Children = append(task.Children, c.toTask())
	}
	return task
}

func tasksFromPayload(tasks []TaskPayload) []domain.Task {
	res := make([]domain.Task, 0, len(tasks))
	for _, t := range tasks {
		res = append(res, t.toTask())
	}
	return res
}

// flexBool accepts true, "true", "TRUE", "yes" and their negations.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*b = flexBool(convertStringToBoolean(v))
	return nil
}

func convertStringToBoolean(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "yes":
			return true
		}
	}
	return false
}

type fieldKind int

const (
	fieldBool fieldKind = iota
	fieldNumber
	fieldString
)

// payloadFieldKinds is the coercion table for remainder fields: a client
// may render these as strings, the stored project always carries the
// canonical type. Unlisted fields pass through unchanged.
var payloadFieldKinds = map[string]fieldKind{
	"hasAcceptedTAndC":     fieldBool,
	"isAPrivateProgram":    fieldBool,
	"referenceFrom":        fieldString,
	"rating":               fieldNumber,
	"recommendedFor":       fieldString,
	"updatedVersionNumber": fieldNumber,
}

func coercePayloadFields(extra map[string]any) map[string]any {
	if len(extra) == 0 {
		return nil
	}
	res := make(map[string]any, len(extra))
	for k, v := range extra {
		kind, ok := payloadFieldKinds[k]
		if !ok {
			res[k] = v
			continue
		}
		switch kind {
		case fieldBool:
			res[k] = convertStringToBoolean(v)
		case fieldNumber:
			res[k] = coerceNumber(v)
		case fieldString:
			res[k] = coerceString(v)
		}
	}
	return res
}

func coerceNumber(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err == nil {
			return n
		}
	}
	return 0
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	}
	return ""
}

// payloadKnownFields are the top-level keys UnmarshalJSON binds to typed
// fields; everything else is remainder.
var payloadKnownFields = map[string]bool{
	"_id": true, "title": true, "description": true, "status": true,
	"startDate": true, "endDate": true, "lastDownloadedAt": true,
	"isDeleted": true, "isAPrivateProgram": true, "categories": true,
	"entities": true, "programId": true, "programName": true,
	"solutionId": true, "tasks": true, "payload": true,
}

func (p *ProjectPayload) UnmarshalJSON(data []byte) error {
	type alias ProjectPayload
	var known alias
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = ProjectPayload(known)
	for k, v := range raw {
		if payloadKnownFields[k] {
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return err
		}
		if p.Extra == nil {
			p.Extra = map[string]any{}
		}
		p.Extra[k] = val
	}
	return nil
}
