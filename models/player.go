package models

import (
	"time"

	"gorm.io/gorm"
)

type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// Player is keyed by the Telegram user id.
type Player struct {
	ID                   int64       `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Name                 string      `json:"name"`
	Fragments            FragmentSet `gorm:"not null" json:"fragments"`
	IsCursed             bool        `gorm:"default:false" json:"is_cursed"`
	CurseExpires         *time.Time  `json:"curse_expires,omitempty"`
	CursesCount          int         `gorm:"default:0" json:"curses_count"`
	PityCounter          int         `gorm:"default:0" json:"pity_counter"`
	ReferralCode         string      `gorm:"uniqueIndex;not null" json:"referral_code"`
	ReferredBy           *int64      `gorm:"index" json:"referred_by,omitempty"`
	ReferralRewardIssued bool        `gorm:"default:false" json:"referral_reward_issued"`
	LastBurn             *time.Time  `json:"last_burn,omitempty"`

	Timestamps
}

// CurseActive reports whether the curse still holds at now; expired curses count as lifted.
func (p *Player) CurseActive(now time.Time) bool {
	if !p.IsCursed {
		return false
	}
	return p.CurseExpires == nil || p.CurseExpires.After(now)
}
