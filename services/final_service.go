package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"order-of-ash/config"
	"order-of-ash/models"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"gorm.io/gorm"
)

type FinalResult struct {
	Accepted bool `json:"accepted"`
}

type FinalService struct {
	DB     *gorm.DB
	Rules  config.GameRules
	Logger *zap.Logger
	Now    func() time.Time
}

func NewFinalService(db *gorm.DB, rules config.GameRules, logger *zap.Logger) *FinalService {
	return &FinalService{DB: db, Rules: rules, Logger: logger, Now: time.Now}
}

// normalizePhrase trims, collapses inner whitespace and applies Unicode case folding.
func normalizePhrase(s string) string {
	return cases.Fold().String(strings.Join(strings.Fields(s), " "))
}

// InWindow reports whether now falls in the same UTC hour and minute as registeredAt.
func InWindow(registeredAt, now time.Time) bool {
	r, n := registeredAt.UTC(), now.UTC()
	return r.Hour() == n.Hour() && r.Minute() == n.Minute()
}

// Submit checks the final phrase. It never mutates player state.
func (s *FinalService) Submit(ctx context.Context, playerID int64, phrase string) (*FinalResult, error) {
	if strings.TrimSpace(phrase) == "" {
		return nil, fmt.Errorf("empty phrase: %w", ErrValidation)
	}
	var p models.Player
	if err := s.DB.WithContext(ctx).Where("id = ?", playerID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("player %d: %w", playerID, ErrNotFound)
		}
		return nil, classify(s.Logger, "read player", err)
	}
	if !p.Fragments.HasAll(s.Rules.AllFragments()) {
		return nil, fmt.Errorf("player %d has %d fragments: %w", playerID, len(p.Fragments), ErrPrerequisitesNotMet)
	}
	if !InWindow(p.CreatedAt, s.Now()) {
		return nil, fmt.Errorf("player %d: %w", playerID, ErrFinalWindowClosed)
	}

	accepted := normalizePhrase(phrase) == normalizePhrase(s.Rules.FinalPhraseTemplate+p.Name)
	s.Logger.Info("final phrase submitted", zap.Int64("player_id", playerID), zap.Bool("accepted", accepted))
	return &FinalResult{Accepted: accepted}, nil
}
