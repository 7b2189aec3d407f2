package flow

import (
	"fmt"
	"sort"
)

// Category maps an integer class id to a display name.
type Category struct {
	ID   int32  `json:"id"`
	Name string `json:"name"`
}

// CategoryTable is a fixed, injective mapping from category id to a dense
// index. The table is built once at construction and must stay stable for
// the lifetime of a run, since accumulator tensors are indexed by it.
type CategoryTable struct {
	categories []Category
	idToIndex  map[int32]int
	background map[int32]bool
}

// NewCategoryTable builds a table from the given categories, ordered by id
// for a stable index assignment. backgroundIDs marks the static
// ("non-mover") categories used by the report split.
func NewCategoryTable(categories []Category, backgroundIDs []int32) (*CategoryTable, error) {
	if len(categories) == 0 {
		return nil, fmt.Errorf("category table must not be empty")
	}

	cp := make([]Category, len(categories))
	copy(cp, categories)
	sort.Slice(cp, func(i, j int) bool { return cp[i].ID < cp[j].ID })

	idToIndex := make(map[int32]int, len(cp))
	for i, c := range cp {
		if _, dup := idToIndex[c.ID]; dup {
			return nil, fmt.Errorf("duplicate category id %d", c.ID)
		}
		idToIndex[c.ID] = i
	}

	background := make(map[int32]bool, len(backgroundIDs))
	for _, id := range backgroundIDs {
		if _, ok := idToIndex[id]; !ok {
			return nil, fmt.Errorf("background category id %d not in table", id)
		}
		background[id] = true
	}

	return &CategoryTable{categories: cp, idToIndex: idToIndex, background: background}, nil
}

// Len returns the number of categories.
func (t *CategoryTable) Len() int {
	return len(t.categories)
}

// Index resolves a category id to its dense index.
func (t *CategoryTable) Index(id int32) (int, error) {
	idx, ok := t.idToIndex[id]
	if !ok {
		return 0, fmt.Errorf("category id %d: %w", id, ErrUnknownCategory)
	}
	return idx, nil
}

// At returns the category at the given dense index.
func (t *CategoryTable) At(index int) Category {
	return t.categories[index]
}

// Categories returns a copy of the table in index order.
func (t *CategoryTable) Categories() []Category {
	cp := make([]Category, len(t.categories))
	copy(cp, t.categories)
	return cp
}

// IsBackground reports whether the id belongs to a static category.
func (t *CategoryTable) IsBackground(id int32) bool {
	return t.background[id]
}

// IsBackgroundIndex reports whether the dense index belongs to a static
// category.
func (t *CategoryTable) IsBackgroundIndex(index int) bool {
	return t.background[t.categories[index].ID]
}

// BackgroundIDs returns the configured static category ids, sorted.
func (t *CategoryTable) BackgroundIDs() []int32 {
	ids := make([]int32, 0, len(t.background))
	for id := range t.background {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// DefaultBackgroundID is the conventional class id for background/static
// points in autonomous-driving scene-flow labels.
const DefaultBackgroundID int32 = -1

// DefaultCategoryTable returns the category table used by the
// autonomous-driving datasets this harness was built for.
func DefaultCategoryTable() *CategoryTable {
	t, err := NewCategoryTable([]Category{
		{ID: -1, Name: "BACKGROUND"},
		{ID: 0, Name: "ANIMAL"},
		{ID: 1, Name: "ARTICULATED_BUS"},
		{ID: 2, Name: "BICYCLE"},
		{ID: 3, Name: "BICYCLIST"},
		{ID: 4, Name: "BUS"},
		{ID: 5, Name: "BOX_TRUCK"},
		{ID: 6, Name: "LARGE_VEHICLE"},
		{ID: 7, Name: "MOTORCYCLE"},
		{ID: 8, Name: "MOTORCYCLIST"},
		{ID: 9, Name: "PEDESTRIAN"},
		{ID: 10, Name: "REGULAR_VEHICLE"},
		{ID: 11, Name: "SCHOOL_BUS"},
		{ID: 12, Name: "STROLLER"},
		{ID: 13, Name: "TRUCK"},
		{ID: 14, Name: "TRUCK_CAB"},
		{ID: 15, Name: "VEHICULAR_TRAILER"},
		{ID: 16, Name: "WHEELCHAIR"},
		{ID: 17, Name: "WHEELED_DEVICE"},
		{ID: 18, Name: "WHEELED_RIDER"},
	}, []int32{DefaultBackgroundID})
	if err != nil {
		panic(err) // static table, cannot fail
	}
	return t
}
