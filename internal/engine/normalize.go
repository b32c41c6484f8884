package engine

import (
	"strings"

	"upliftd/internal/domain"
)

// normalizeTasks brings a client-submitted task forest into canonical form.
// Offline clients send partial tasks with locally minted ids; every field a
// later stage relies on gets a defined value here, depth first.
func (e Engine) normalizeTasks(tasks []domain.Task, userID, now string) []domain.Task {
	res := make([]domain.Task, 0, len(tasks))
	for _, t := range tasks {
		res = append(res, e.normalizeTask(t, userID, now))
	}
	return res
}

func (e Engine) normalizeTask(t domain.Task, userID, now string) domain.Task {
	if !isServerID(t.ID) {
		t.ID = newID()
	}
	if t.ExternalID == "" {
		t.ExternalID = strings.ToLower(t.Name)
	}
	if t.Type == "" {
		t.Type = domain.TaskTypeSingle
	}
	if t.Status == "" {
		t.Status = domain.StatusNotStarted
	}
	if t.CreatedBy == "" {
		t.CreatedBy = userID
	}
	t.UpdatedBy = userID
	if t.CreatedAt == "" {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	if t.Children == nil {
		t.Children = []domain.Task{}
	} else {
		t.Children = e.normalizeTasks(t.Children, userID, now)
	}
	return t
}

// camelCaseToTitleCase renders an external key as a display name, so
// "infrastructureProjects" reads "Infrastructure Projects".
func camelCaseToTitleCase(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i, r := range s {
		if i == 0 {
			b.WriteRune(toUpper(r))
			continue
		}
		if r >= 'A' && r <= 'Z' {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func toUpper(r rune) rune {
	if r >= 'a' && r <= 'z' {
		return r - ('a' - 'A')
	}
	return r
}
