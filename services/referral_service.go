package services

import (
	"context"
	"errors"
	"fmt"

	"order-of-ash/config"
	"order-of-ash/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ClaimResult reports a referral reward claim. Granted is false when the bonus fragment was already owned.
type ClaimResult struct {
	Granted            bool               `json:"granted"`
	Fragment           int                `json:"fragment"`
	ConfirmedReferrals int64              `json:"confirmed_referrals"`
	Fragments          models.FragmentSet `json:"fragments"`
}

type ReferralService struct {
	DB     *gorm.DB
	Rules  config.GameRules
	Logger *zap.Logger
}

func NewReferralService(db *gorm.DB, rules config.GameRules, logger *zap.Logger) *ReferralService {
	return &ReferralService{DB: db, Rules: rules, Logger: logger}
}

// Claim grants the referral bonus fragment once the player has enough confirmed referrals.
// The reward flag is set in the same transaction, so the bonus is issued at most once.
func (s *ReferralService) Claim(ctx context.Context, playerID int64) (*ClaimResult, error) {
	var res ClaimResult
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.Player
		if err := lockByID(tx).Where("id = ?", playerID).First(&p).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("player %d: %w", playerID, ErrNotFound)
			}
			return err
		}
		if p.ReferralRewardIssued {
			return fmt.Errorf("player %d: %w", playerID, ErrAlreadyClaimed)
		}

		var confirmed int64
		if err := tx.Model(&models.Referral{}).
			Where("referrer_id = ? AND confirmed = ?", playerID, true).
			Count(&confirmed).Error; err != nil {
			return err
		}
		if confirmed < int64(s.Rules.ReferralThreshold) {
			return fmt.Errorf("%d of %d confirmed referrals: %w", confirmed, s.Rules.ReferralThreshold, ErrNotEnoughReferrals)
		}

		bonus := s.Rules.ReferralBonusFragment
		granted := !p.Fragments.Has(bonus)
		p.Fragments = p.Fragments.Add(bonus)
		if err := tx.Model(&models.Player{}).Where("id = ?", p.ID).Updates(map[string]interface{}{
			"fragments":              p.Fragments,
			"referral_reward_issued": true,
		}).Error; err != nil {
			return err
		}
		if granted {
			if err := incrementCounter(tx, CounterFragmentsGranted, 1); err != nil {
				return err
			}
		}
		res = ClaimResult{
			Granted:            granted,
			Fragment:           bonus,
			ConfirmedReferrals: confirmed,
			Fragments:          p.Fragments,
		}
		return nil
	})
	if err != nil {
		return nil, classify(s.Logger, "claim referral reward", err)
	}
	referralClaims.Inc()
	s.Logger.Info("referral reward claimed",
		zap.Int64("player_id", playerID),
		zap.Bool("granted", res.Granted),
		zap.Int64("confirmed_referrals", res.ConfirmedReferrals))
	return &res, nil
}

// Referrals lists the referrals a player has brought in, newest first.
func (s *ReferralService) Referrals(ctx context.Context, playerID int64) ([]models.Referral, error) {
	var refs []models.Referral
	if err := s.DB.WithContext(ctx).
		Where("referrer_id = ?", playerID).
		Order("created_at desc").
		Find(&refs).Error; err != nil {
		return nil, classify(s.Logger, "list referrals", err)
	}
	return refs, nil
}
