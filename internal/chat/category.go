package chat

import "github.com/hpungsan/banter/internal/errors"

// Category is a fixed conversational topic bucket with its own history.
type Category struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// DefaultCategoryID is the category active at startup and the one seeded with the greeting.
const DefaultCategoryID = "general"

// categories is the static set, in display order.
var categories = []Category{
	{ID: "general", Label: "General"},
	{ID: "code", Label: "Code Help"},
	{ID: "life", Label: "Life Advice"},
	{ID: "jokes", Label: "Jokes"},
}

// Categories returns the defined categories in display order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// CategoryIDs returns the defined category ids in display order.
func CategoryIDs() []string {
	ids := make([]string, len(categories))
	for i, c := range categories {
		ids[i] = c.ID
	}
	return ids
}

// IsCategory reports whether id (already normalized) names a defined category.
func IsCategory(id string) bool {
	for _, c := range categories {
		if c.ID == id {
			return true
		}
	}
	return false
}

// LookupCategory normalizes id and returns the matching category.
func LookupCategory(id string) (Category, error) {
	norm := Normalize(id)
	for _, c := range categories {
		if c.ID == norm {
			return c, nil
		}
	}
	return Category{}, errors.NewUnknownCategory(id)
}

// NextCategory returns the category after id in display order, wrapping around.
// A negative step moves backwards.
func NextCategory(id string, step int) string {
	idx := 0
	for i, c := range categories {
		if c.ID == id {
			idx = i
			break
		}
	}
	n := len(categories)
	return categories[((idx+step)%n+n)%n].ID
}
