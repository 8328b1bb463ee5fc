package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"order-of-ash/config"
	"order-of-ash/models"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const referralStemMax = 16

// LoginInput is the verified identity presented at login.
type LoginInput struct {
	PlayerID   int64
	Name       string
	StartParam string
}

// PlayerView is the player's own state as shown to the client.
type PlayerView struct {
	ID                   int64              `json:"id"`
	Name                 string             `json:"name"`
	Fragments            models.FragmentSet `json:"fragments"`
	IsCursed             bool               `json:"is_cursed"`
	CurseExpires         *time.Time         `json:"curse_expires,omitempty"`
	CursesCount          int                `json:"curses_count"`
	PityCounter          int                `json:"pity_counter"`
	ReferralCode         string             `json:"referral_code"`
	ConfirmedReferrals   int64              `json:"confirmed_referrals"`
	ReferralRewardIssued bool               `json:"referral_reward_issued"`
	InFlightInvoiceID    *string            `json:"in_flight_invoice_id,omitempty"`
	CanBurn              bool               `json:"can_burn"`
	FinalUnlocked        bool               `json:"final_unlocked"`
	NextFreeBurnAt       *time.Time         `json:"next_free_burn_at,omitempty"`
	RegisteredAt         time.Time          `json:"registered_at"`
}

// FreeBurnResult reports the fragment granted by a free burn.
type FreeBurnResult struct {
	Fragment       int                `json:"fragment"`
	Fragments      models.FragmentSet `json:"fragments"`
	NextFreeBurnAt time.Time          `json:"next_free_burn_at"`
}

type PlayerService struct {
	DB     *gorm.DB
	Rules  config.GameRules
	Logger *zap.Logger
	Now    func() time.Time
}

func NewPlayerService(db *gorm.DB, rules config.GameRules, logger *zap.Logger) *PlayerService {
	return &PlayerService{DB: db, Rules: rules, Logger: logger, Now: time.Now}
}

// NewReferralCode builds a readable code from the display name plus a random suffix.
func NewReferralCode(name string) string {
	stem := slug.Make(name)
	if len(stem) > referralStemMax {
		stem = strings.Trim(stem[:referralStemMax], "-")
	}
	if stem == "" {
		stem = "ash"
	}
	return stem + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
}

func referralCodeFromStartParam(p string) string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(p), "ref_"))
}

// Login registers the player on first sight (EnsurePlayer) and refreshes the display name afterwards.
// A referral is recorded only for a newly registered player whose start parameter names another player's code.
func (s *PlayerService) Login(ctx context.Context, in LoginInput) (*models.Player, bool, error) {
	if in.PlayerID <= 0 {
		return nil, false, fmt.Errorf("player id %d: %w", in.PlayerID, ErrValidation)
	}
	var (
		player  models.Player
		created bool
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := lockByID(tx).Where("id = ?", in.PlayerID).First(&player).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			player = models.Player{
				ID:           in.PlayerID,
				Name:         in.Name,
				Fragments:    models.FragmentSet{},
				ReferralCode: NewReferralCode(in.Name),
			}
			if err := tx.Create(&player).Error; err != nil {
				return err
			}
			created = true
		case err != nil:
			return err
		default:
			if in.Name != "" && in.Name != player.Name {
				if err := tx.Model(&models.Player{}).Where("id = ?", player.ID).Update("name", in.Name).Error; err != nil {
					return err
				}
				player.Name = in.Name
			}
		}

		if created && in.StartParam != "" {
			return s.recordReferral(tx, &player, referralCodeFromStartParam(in.StartParam))
		}
		return nil
	})
	if err != nil {
		return nil, false, classify(s.Logger, "login", err)
	}
	if created {
		s.Logger.Info("player registered", zap.Int64("player_id", player.ID), zap.String("referral_code", player.ReferralCode))
	}
	return &player, created, nil
}

func (s *PlayerService) recordReferral(tx *gorm.DB, player *models.Player, code string) error {
	if code == "" || player.ReferredBy != nil {
		return nil
	}
	var referrer models.Player
	if err := tx.Where("referral_code = ?", code).First(&referrer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.Logger.Debug("unknown referral code", zap.String("code", code))
			return nil
		}
		return err
	}
	if referrer.ID == player.ID {
		return nil
	}

	ref := models.Referral{
		ID:               uuid.NewString(),
		ReferrerID:       referrer.ID,
		ReferredID:       player.ID,
		ReferralCodeUsed: code,
	}
	res := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "referred_id"}}, DoNothing: true}).Create(&ref)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return nil
	}
	if err := tx.Model(&models.Player{}).Where("id = ?", player.ID).Update("referred_by", referrer.ID).Error; err != nil {
		return err
	}
	player.ReferredBy = &referrer.ID
	s.Logger.Info("referral recorded", zap.Int64("referrer_id", referrer.ID), zap.Int64("referred_id", player.ID))
	return nil
}

// Get returns the player's current state; expired curses are reported as lifted.
func (s *PlayerService) Get(ctx context.Context, playerID int64) (*PlayerView, error) {
	db := s.DB.WithContext(ctx)
	var p models.Player
	if err := db.Where("id = ?", playerID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("player %d: %w", playerID, ErrNotFound)
		}
		return nil, classify(s.Logger, "read player", err)
	}

	var confirmed int64
	if err := db.Model(&models.Referral{}).
		Where("referrer_id = ? AND confirmed = ?", playerID, true).
		Count(&confirmed).Error; err != nil {
		return nil, classify(s.Logger, "count referrals", err)
	}

	var inFlight models.Invoice
	var inFlightID *string
	err := db.Select("id").Where("player_id = ? AND processed = ?", playerID, false).
		Order("created_at desc").First(&inFlight).Error
	switch {
	case err == nil:
		inFlightID = &inFlight.ID
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, classify(s.Logger, "read in-flight invoice", err)
	}

	now := s.Now().UTC()
	cursed := p.CurseActive(now)
	v := &PlayerView{
		ID:                   p.ID,
		Name:                 p.Name,
		Fragments:            p.Fragments,
		IsCursed:             cursed,
		CursesCount:          p.CursesCount,
		PityCounter:          p.PityCounter,
		ReferralCode:         p.ReferralCode,
		ConfirmedReferrals:   confirmed,
		ReferralRewardIssued: p.ReferralRewardIssued,
		InFlightInvoiceID:    inFlightID,
		CanBurn:              !cursed && p.Fragments.HasAll(s.Rules.MandatoryFragments),
		FinalUnlocked:        p.Fragments.HasAll(s.Rules.AllFragments()),
		RegisteredAt:         p.CreatedAt.UTC(),
	}
	if cursed {
		v.CurseExpires = p.CurseExpires
	}
	if p.LastBurn != nil {
		next := p.LastBurn.Add(s.Rules.FreeBurnCooldown)
		if next.After(now) {
			v.NextFreeBurnAt = &next
		}
	}
	return v, nil
}

// FreeBurn grants the lowest missing mandatory fragment, at most once per cooldown.
func (s *PlayerService) FreeBurn(ctx context.Context, playerID int64) (*FreeBurnResult, error) {
	var res FreeBurnResult
	now := s.Now().UTC()

	mandatory := append([]int(nil), s.Rules.MandatoryFragments...)
	sort.Ints(mandatory)

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.Player
		if err := lockByID(tx).Where("id = ?", playerID).First(&p).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("player %d: %w", playerID, ErrNotFound)
			}
			return err
		}
		if p.CurseActive(now) {
			return fmt.Errorf("player %d: %w", playerID, ErrCurseActive)
		}
		if p.LastBurn != nil && now.Sub(*p.LastBurn) < s.Rules.FreeBurnCooldown {
			return fmt.Errorf("next free burn at %s: %w",
				p.LastBurn.Add(s.Rules.FreeBurnCooldown).Format(time.RFC3339), ErrCooldownActive)
		}
		missing := p.Fragments.Missing(mandatory)
		if len(missing) == 0 {
			return fmt.Errorf("player %d: %w", playerID, ErrNothingToGrant)
		}

		granted := missing[0]
		p.Fragments = p.Fragments.Add(granted)
		if err := tx.Model(&models.Player{}).Where("id = ?", p.ID).Updates(map[string]interface{}{
			"fragments": p.Fragments,
			"last_burn": now,
		}).Error; err != nil {
			return err
		}
		if err := incrementCounter(tx, CounterFragmentsGranted, 1); err != nil {
			return err
		}
		res = FreeBurnResult{
			Fragment:       granted,
			Fragments:      p.Fragments,
			NextFreeBurnAt: now.Add(s.Rules.FreeBurnCooldown),
		}
		return nil
	})
	if err != nil {
		return nil, classify(s.Logger, "free burn", err)
	}
	s.Logger.Info("free burn", zap.Int64("player_id", playerID), zap.Int("fragment", res.Fragment))
	return &res, nil
}

// SweepExpiredCurses clears curses whose expiry has passed and returns how many were lifted.
func (s *PlayerService) SweepExpiredCurses(ctx context.Context) (int64, error) {
	now := s.Now().UTC()
	res := s.DB.WithContext(ctx).Model(&models.Player{}).
		Where("is_cursed = ? AND curse_expires IS NOT NULL AND curse_expires <= ?", true, now).
		Updates(map[string]interface{}{
			"is_cursed":     false,
			"curse_expires": nil,
		})
	if res.Error != nil {
		return 0, classify(s.Logger, "sweep curses", res.Error)
	}
	if res.RowsAffected > 0 {
		s.Logger.Info("expired curses lifted", zap.Int64("count", res.RowsAffected))
	}
	return res.RowsAffected, nil
}
