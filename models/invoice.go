package models

import (
	"time"

	"gorm.io/datatypes"
)

type InvoiceStatus string

const (
	InvoicePending   InvoiceStatus = "pending"
	InvoicePaid      InvoiceStatus = "paid"
	InvoiceProcessed InvoiceStatus = "processed"
)

type Tier string

const (
	TierCommon    Tier = "common"
	TierUncommon  Tier = "uncommon"
	TierRare      Tier = "rare"
	TierLegendary Tier = "legendary"
)

// Tiers lists rarity tiers in weight order.
var Tiers = [4]Tier{TierCommon, TierUncommon, TierRare, TierLegendary}

// Challenge is the riddle a player answers before a burn resolves.
type Challenge struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Answer   int      `json:"answer"`
	Tier     Tier     `json:"tier"`
}

// Invoice is a single payment request and, once resolved, its outcome.
type Invoice struct {
	ID          string                        `gorm:"primaryKey;type:uuid" json:"id"`
	PlayerID    int64                         `gorm:"index;not null" json:"player_id"`
	AmountNano  int64                         `gorm:"not null" json:"amount_nano"`
	Comment     string                        `gorm:"uniqueIndex;not null" json:"comment"`
	Status      InvoiceStatus                 `gorm:"index;not null;default:'pending'" json:"status"`
	Processed   bool                          `gorm:"index;default:false" json:"processed"`
	Tier        Tier                          `gorm:"not null" json:"tier"`
	Challenge   datatypes.JSONType[Challenge] `json:"challenge"`
	Result      Outcome                       `json:"result"`
	TxHash      *string                       `gorm:"index" json:"tx_hash,omitempty"`
	PaidAt      *time.Time                    `json:"paid_at,omitempty"`
	ProcessedAt *time.Time                    `json:"processed_at,omitempty"`

	Timestamps
}
