package patterns

import (
	"context"
	"sort"
)

// CategorySource exposes the distinct category vocabulary held by a Store.
// The AI parsing level uses it to constrain model output to categories the
// user has actually seen.
type CategorySource struct {
	store Store
}

// NewCategorySource wraps a pattern store as a category vocabulary.
func NewCategorySource(store Store) *CategorySource {
	return &CategorySource{store: store}
}

// ListCategoryNames returns the sorted, de-duplicated category names of all
// active patterns.
func (c *CategorySource) ListCategoryNames(ctx context.Context) ([]string, error) {
	all, err := c.store.List(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var names []string
	for _, p := range all {
		if !p.IsActive || p.CategoryName == "" || seen[p.CategoryName] {
			continue
		}
		seen[p.CategoryName] = true
		names = append(names, p.CategoryName)
	}
	sort.Strings(names)
	return names, nil
}
