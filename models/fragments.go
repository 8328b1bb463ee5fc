package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// FragmentSet is an ordered list of fragment ids with set semantics.
// Insertion order is kept so clients can show fragments in the order they were found.
type FragmentSet []int

func (f FragmentSet) Has(id int) bool {
	for _, v := range f {
		if v == id {
			return true
		}
	}
	return false
}

func (f FragmentSet) HasAll(ids []int) bool {
	for _, id := range ids {
		if !f.Has(id) {
			return false
		}
	}
	return true
}

// Add returns a copy with id appended; a no-op when id is already present.
func (f FragmentSet) Add(id int) FragmentSet {
	if f.Has(id) {
		return f
	}
	out := make(FragmentSet, len(f), len(f)+1)
	copy(out, f)
	return append(out, id)
}

// CountOutside counts owned fragments that are not in ids.
func (f FragmentSet) CountOutside(ids []int) int {
	n := 0
	for _, v := range f {
		found := false
		for _, id := range ids {
			if v == id {
				found = true
				break
			}
		}
		if !found {
			n++
		}
	}
	return n
}

// Missing returns the ids from pool not yet owned, in pool order.
func (f FragmentSet) Missing(pool []int) []int {
	var out []int
	for _, id := range pool {
		if !f.Has(id) {
			out = append(out, id)
		}
	}
	return out
}

func (f FragmentSet) Value() (driver.Value, error) {
	if f == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]int(f))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (f *FragmentSet) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*f = FragmentSet{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("fragment set: unsupported source type %T", src)
	}
	var ids []int
	if err := json.Unmarshal(raw, &ids); err != nil {
		return fmt.Errorf("fragment set: %w", err)
	}
	seen := make(map[int]bool, len(ids))
	out := make(FragmentSet, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	*f = out
	return nil
}

func (FragmentSet) GormDataType() string {
	return "json"
}

func (FragmentSet) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	return jsonColumnType(db)
}

func jsonColumnType(db *gorm.DB) string {
	switch db.Dialector.Name() {
	case "postgres":
		return "JSONB"
	case "mysql":
		return "JSON"
	default:
		return "TEXT"
	}
}
