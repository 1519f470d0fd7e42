package core

import "strings"

type Category struct {
	ID   int64           `json:"id"`
	Name string          `json:"name"`
	Type TransactionType `json:"type"`
}

func (c Category) EntityID() int64 { return c.ID }

// ResolveTransferCategory picks the category used for system-generated
// savings transfer transactions of type t. Preference order: a name
// mentioning "savings" or "transfer", then "other"/"others", then any
// category of the type.
func ResolveTransferCategory(categories []Category, t TransactionType) (Category, bool) {
	var other, first *Category
	for i := range categories {
		c := &categories[i]
		if c.Type != t {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if strings.Contains(name, "savings") || strings.Contains(name, "transfer") {
			return *c, true
		}
		if other == nil && (name == "other" || name == "others") {
			other = c
		}
		if first == nil {
			first = c
		}
	}
	if other != nil {
		return *other, true
	}
	if first != nil {
		return *first, true
	}
	return Category{}, false
}
