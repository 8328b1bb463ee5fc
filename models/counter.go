package models

// GlobalCounter is a named running total (invoices created, curses cast, ...).
type GlobalCounter struct {
	Key   string `gorm:"primaryKey;size:64" json:"key"`
	Value int64  `gorm:"not null;default:0" json:"value"`
}

// All lists every model migrated at startup.
func All() []interface{} {
	return []interface{}{
		&Player{},
		&Invoice{},
		&Referral{},
		&GlobalCounter{},
	}
}
