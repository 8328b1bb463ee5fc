package services

import (
	"context"

	"order-of-ash/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	CounterInvoicesCreated  = "invoices_created"
	CounterInvoicesPaid     = "invoices_paid"
	CounterFragmentsGranted = "fragments_granted"
	CounterCursesCast       = "curses_cast"
	CounterChallengesFailed = "challenges_failed"
)

var counterKeys = []string{
	CounterInvoicesCreated,
	CounterInvoicesPaid,
	CounterFragmentsGranted,
	CounterCursesCast,
	CounterChallengesFailed,
}

// incrementCounter upserts key inside the caller's transaction.
func incrementCounter(tx *gorm.DB, key string, delta int64) error {
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"value": gorm.Expr("global_counters.value + ?", delta),
		}),
	}).Create(&models.GlobalCounter{Key: key, Value: delta}).Error
}

type StatsService struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

func NewStatsService(db *gorm.DB, logger *zap.Logger) *StatsService {
	return &StatsService{DB: db, Logger: logger}
}

// Counters returns every known counter, zero when never incremented.
func (s *StatsService) Counters(ctx context.Context) (map[string]int64, error) {
	var rows []models.GlobalCounter
	if err := s.DB.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, classify(s.Logger, "read counters", err)
	}
	out := make(map[string]int64, len(counterKeys))
	for _, k := range counterKeys {
		out[k] = 0
	}
	for _, r := range rows {
		out[r.Key] = r.Value
	}
	return out, nil
}
