package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

type OutcomeKind string

const (
	OutcomeFragment OutcomeKind = "fragment"
	OutcomeCurse    OutcomeKind = "curse"
	OutcomeEmpty    OutcomeKind = "empty"
	OutcomeFailure  OutcomeKind = "failure"
)

// Outcome is the resolution result stored on an invoice.
// The zero value (empty Kind) means "not resolved yet" and is persisted as NULL.
type Outcome struct {
	Kind         OutcomeKind `json:"kind"`
	NewFragment  *int        `json:"new_fragment"`
	Cursed       bool        `json:"cursed"`
	CurseExpires *time.Time  `json:"curse_expires,omitempty"`
	PityCounter  int         `json:"pity_counter"`
}

func (o Outcome) IsZero() bool {
	return o.Kind == ""
}

func FragmentOutcome(id int) Outcome {
	return Outcome{Kind: OutcomeFragment, NewFragment: &id}
}

func CurseOutcome(pity int, expires time.Time) Outcome {
	return Outcome{Kind: OutcomeCurse, Cursed: true, PityCounter: pity, CurseExpires: &expires}
}

func EmptyOutcome(pity int) Outcome {
	return Outcome{Kind: OutcomeEmpty, PityCounter: pity}
}

func FailureOutcome(pity int) Outcome {
	return Outcome{Kind: OutcomeFailure, PityCounter: pity}
}

func (o Outcome) Value() (driver.Value, error) {
	if o.IsZero() {
		return nil, nil
	}
	b, err := json.Marshal(o)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (o *Outcome) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*o = Outcome{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("outcome: unsupported source type %T", src)
	}
	var out Outcome
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("outcome: %w", err)
	}
	*o = out
	return nil
}

func (Outcome) GormDataType() string {
	return "json"
}

func (Outcome) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	return jsonColumnType(db)
}
