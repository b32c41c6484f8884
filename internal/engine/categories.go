package engine

import (
	"context"

	"upliftd/internal/domain"
)

// resolveCategories replaces client-submitted category stubs with catalog
// entries, matched by externalId in one batch query. Keys absent from the
// catalog stay in the result as ad hoc categories with an empty id and a
// title-cased name; order and cardinality of the input are preserved.
func (e Engine) resolveCategories(ctx context.Context, submitted []domain.Category) ([]domain.Category, error) {
	if len(submitted) == 0 {
		return []domain.Category{}, nil
	}
	keys := make([]string, 0, len(submitted))
	for _, c := range submitted {
		key := c.ExternalID
		if key == "" {
			key = c.Name
		}
		keys = append(keys, key)
	}
	known, err := e.Store.CategoriesByExternalIDs(ctx, keys)
	if err != nil {
		return nil, err
	}
	byExternalID := make(map[string]domain.Category, len(known))
	for _, c := range known {
		byExternalID[c.ExternalID] = c
	}
	res := make([]domain.Category, 0, len(keys))
	for _, key := range keys {
		if c, ok := byExternalID[key]; ok {
			res = append(res, c)
			continue
		}
		res = append(res, domain.Category{
			ID:         "",
			Name:       camelCaseToTitleCase(key),
			ExternalID: key,
		})
	}
	return res, nil
}
