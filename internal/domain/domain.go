package domain

import "encoding/json"

// Category is a denormalized copy of a catalog entry embedded in projects
// and templates. ExternalID is the stable matching key; ID is empty for
// ad hoc categories that never existed in the catalog.
type Category struct {
	ID         string `json:"_id"`
	Name       string `json:"name"`
	ExternalID string `json:"externalId"`
}

// EntityInformation is the denormalized entity summary embedded in a project.
type EntityInformation struct {
	ID           string `json:"_id,omitempty"`
	ExternalID   string `json:"externalId"`
	Name         string `json:"name"`
	EntityType   string `json:"entityType,omitempty"`
	EntityTypeID string `json:"entityTypeId,omitempty"`
}

// ProgramSummary is the denormalized program record returned by the core
// service and embedded in a project.
type ProgramSummary struct {
	ID                string   `json:"_id,omitempty"`
	ExternalID        string   `json:"externalId"`
	Name              string   `json:"name"`
	Description       string   `json:"description,omitempty"`
	CreatedFor        []string `json:"createdFor,omitempty"`
	RootOrganisations []string `json:"rootOrganisations,omitempty"`
}

// SolutionSummary is the denormalized solution record embedded in a project.
type SolutionSummary struct {
	ID          string `json:"_id,omitempty"`
	ExternalID  string `json:"externalId"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// VisibleIf is a conditional-display rule on a task: the task is shown when
// the referenced task's value satisfies the operator.
type VisibleIf struct {
	Operator string `json:"operator"`
	TaskID   string `json:"_id"`
	Value    string `json:"value"`
}

// Attachment is a file reference carried on a task.
type Attachment struct {
	Name       string `json:"name"`
	SourcePath string `json:"sourcePath"`
	Type       string `json:"type"`
}

// Task is one node in a project's task forest. Children embed the same
// shape recursively; the forest is owned exclusively by its project.
type Task struct {
	ID                    string       `json:"_id"`
	Name                  string       `json:"name"`
	ExternalID            string       `json:"externalId"`
	Description           string       `json:"description,omitempty"`
	Type                  string       `json:"type"`
	Status                string       `json:"status"`
	IsDeleted             bool         `json:"isDeleted"`
	IsDeleteable          bool         `json:"isDeleteable"`
	IsImportedFromLibrary bool         `json:"isImportedFromLibrary,omitempty"`
	ProjectTemplateID     string       `json:"projectTemplateId,omitempty"`
	ParentID              string       `json:"parentId,omitempty"`
	Assignee              string       `json:"assignee,omitempty"`
	Remarks               string       `json:"remarks,omitempty"`
	StartDate             string       `json:"startDate,omitempty"`
	EndDate               string       `json:"endDate,omitempty"`
	Attachments           []Attachment `json:"attachments,omitempty"`
	VisibleIf             []VisibleIf  `json:"visibleIf,omitempty"`
	CreatedBy             string       `json:"createdBy"`
	UpdatedBy             string       `json:"updatedBy"`
	CreatedAt             string       `json:"createdAt" format:"date-time"`
	UpdatedAt             string       `json:"updatedAt" format:"date-time"`
	Children              []Task       `json:"children"`
}

// Task types.
const (
	TaskTypeSingle   = "single"
	TaskTypeMultiple = "multiple"
)

// Task and project statuses.
const (
	StatusNotStarted = "notStarted"
	StatusInProgress = "inProgress"
	StatusCompleted  = "completed"
	StatusDraft      = "draft"
)

// TaskReport aggregates task completion per status; the "total" key counts
// all non-deleted tasks. Consumed by the reporting service.
type TaskReport map[string]int

// Project is one user's instance of an improvement initiative. It owns its
// embedded task forest outright; template linkage fields record provenance
// only.
type Project struct {
	ID                        string             `json:"_id"`
	UserID                    string             `json:"userId"`
	Title                     string             `json:"title,omitempty"`
	Description               string             `json:"description,omitempty"`
	Status                    string             `json:"status"`
	StartDate                 string             `json:"startDate,omitempty"`
	EndDate                   string             `json:"endDate,omitempty"`
	LastDownloadedAt          string             `json:"lastDownloadedAt,omitempty"`
	SyncedAt                  string             `json:"syncedAt,omitempty"`
	IsDeleted                 bool               `json:"isDeleted"`
	IsAPrivateProgram         bool               `json:"isAPrivateProgram,omitempty"`
	Categories                []Category         `json:"categories"`
	Tasks                     []Task             `json:"tasks"`
	TaskReport                TaskReport         `json:"taskReport,omitempty"`
	EntityInformation         *EntityInformation `json:"entityInformation,omitempty"`
	SolutionInformation       *SolutionSummary   `json:"solutionInformation,omitempty"`
	ProgramInformation        *ProgramSummary    `json:"programInformation,omitempty"`
	CreatedFor                []string           `json:"createdFor,omitempty"`
	RootOrganisations         []string           `json:"rootOrganisations,omitempty"`
	ProjectTemplateID         string             `json:"projectTemplateId,omitempty"`
	ProjectTemplateExternalID string             `json:"projectTemplateExternalId,omitempty"`
	CreatedBy                 string             `json:"createdBy"`
	UpdatedBy                 string             `json:"updatedBy"`
	CreatedAt                 string             `json:"createdAt" format:"date-time"`
	UpdatedAt                 string             `json:"updatedAt" format:"date-time"`
	Version                   int64              `json:"-"`
	Payload                   map[string]any     `json:"payload,omitempty"`
	Extras                    map[string]any     `json:"-"`
}

// projectFields are the declared json keys of Project; any other key in a
// stored document round-trips through Extras at the top level.
var projectFields = map[string]bool{
	"_id": true, "userId": true, "title": true, "description": true,
	"status": true, "startDate": true, "endDate": true,
	"lastDownloadedAt": true, "syncedAt": true, "isDeleted": true,
	"isAPrivateProgram": true, "categories": true, "tasks": true,
	"taskReport": true, "entityInformation": true, "solutionInformation": true,
	"programInformation": true, "createdFor": true, "rootOrganisations": true,
	"projectTemplateId": true, "projectTemplateExternalId": true,
	"createdBy": true, "updatedBy": true, "createdAt": true, "updatedAt": true,
	"payload": true,
}

// MarshalJSON inlines Extras alongside the declared fields, so client
// supplied remainder fields live at the top level of the document the way
// they arrived. Declared fields always win on a key clash.
func (p Project) MarshalJSON() ([]byte, error) {
	type alias Project
	data, err := json.Marshal(alias(p))
	if err != nil || len(p.Extras) == 0 {
		return data, err
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	for k, v := range p.Extras {
		if _, ok := doc[k]; !ok {
			doc[k] = v
		}
	}
	return json.Marshal(doc)
}

// UnmarshalJSON collects undeclared top-level keys back into Extras.
func (p *Project) UnmarshalJSON(data []byte) error {
	type alias Project
	var known alias
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	*p = Project(known)
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for k, v := range raw {
		if projectFields[k] {
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return err
		}
		if p.Extras == nil {
			p.Extras = map[string]any{}
		}
		p.Extras[k] = val
	}
	return nil
}

// ProjectTemplate is a reusable task-tree definition owned by the library.
// Tasks holds identifiers into the template task store; templates share
// task records, they do not copy them.
type ProjectTemplate struct {
	ID                 string     `json:"_id"`
	ExternalID         string     `json:"externalId"`
	Name               string     `json:"name"`
	Description        string     `json:"description,omitempty"`
	Categories         []Category `json:"categories"`
	Tasks              []string   `json:"tasks"`
	IsReusable         bool       `json:"isReusable"`
	AverageRating      float64    `json:"averageRating"`
	NoOfRatings        int        `json:"noOfRatings"`
	SolutionID         string     `json:"solutionId,omitempty"`
	SolutionExternalID string     `json:"solutionExternalId,omitempty"`
	ProgramID          string     `json:"programId,omitempty"`
	ProgramExternalID  string     `json:"programExternalId,omitempty"`
	Status             string     `json:"status"`
	CreatedAt          string     `json:"createdAt" format:"date-time"`
	UpdatedAt          string     `json:"updatedAt" format:"date-time"`
}

// TemplateSummary is the projection returned by library catalog listings.
type TemplateSummary struct {
	ID            string  `json:"_id"`
	ExternalID    string  `json:"externalId"`
	Name          string  `json:"name"`
	Description   string  `json:"description,omitempty"`
	AverageRating float64 `json:"averageRating"`
	NoOfRatings   int     `json:"noOfRatings"`
	CreatedAt     string  `json:"createdAt" format:"date-time"`
}

// TemplateTask is a stored task definition. Unlike a project Task, children
// are kept as a list of ids with ParentID back-references; ChildTasks is
// populated only by tree expansion and never persisted.
type TemplateTask struct {
	ID                string         `json:"_id"`
	ExternalID        string         `json:"externalId"`
	ProjectTemplateID string         `json:"projectTemplateId"`
	ParentID          string         `json:"parentId,omitempty"`
	Name              string         `json:"name"`
	Description       string         `json:"description,omitempty"`
	Type              string         `json:"type"`
	HasSubTasks       bool           `json:"hasSubTasks"`
	IsDeleteable      bool           `json:"isDeleteable"`
	Children          []string       `json:"children"`
	VisibleIf         []VisibleIf    `json:"visibleIf,omitempty"`
	CreatedBy         string         `json:"createdBy,omitempty"`
	UpdatedBy         string         `json:"updatedBy,omitempty"`
	CreatedAt         string         `json:"createdAt" format:"date-time"`
	UpdatedAt         string         `json:"updatedAt" format:"date-time"`
	ChildTasks        []TemplateTask `json:"-"`
}
