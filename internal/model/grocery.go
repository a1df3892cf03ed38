package model

import "sort"

// GroceryItem is a single entry on the shared list as served by the backend.
// The category is the bucket key in GroceryList, not a field on the item.
type GroceryItem struct {
	ID   string `json:"id"`
	Item string `json:"item"`
}

// GroceryList maps a category name to its items. Every successful fetch
// replaces the whole snapshot; there is no incremental merge.
type GroceryList map[string][]GroceryItem

// Categories returns the category names that have at least one item, sorted.
// Empty categories are never displayed.
func (l GroceryList) Categories() []string {
	names := make([]string, 0, len(l))
	for name, items := range l {
		if len(items) == 0 {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len reports the total number of items across all categories.
func (l GroceryList) Len() int {
	n := 0
	for _, items := range l {
		n += len(items)
	}
	return n
}

// ItemKey identifies a list item for client-local selection state.
type ItemKey struct {
	Category string
	ItemID   string
}
