package models

import "time"

// Referral links a referred player to the player whose code they used.
// It is confirmed once the referred player's first invoice is paid.
type Referral struct {
	ID         string `gorm:"primaryKey;type:uuid" json:"id"`
	ReferrerID int64  `gorm:"index;not null" json:"referrer_id"`
	ReferredID int64  `gorm:"uniqueIndex;not null" json:"referred_id"`

	ReferralCodeUsed string     `gorm:"not null" json:"referral_code_used"`
	FirstInvoiceID   *string    `gorm:"index" json:"first_invoice_id,omitempty"`
	FirstPaymentNano int64      `json:"first_payment_nano,omitempty"`
	Confirmed        bool       `gorm:"index;default:false" json:"confirmed"`
	ConfirmedAt      *time.Time `json:"confirmed_at,omitempty"`

	Timestamps
}
