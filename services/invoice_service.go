package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"order-of-ash/config"
	"order-of-ash/models"
	"order-of-ash/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tonkeeper/tongo"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PaymentTarget is where and how much a player pays for one burn.
type PaymentTarget struct {
	Wallet     tongo.AccountID
	AmountNano int64
	Testnet    bool
}

// CreatedInvoice is what a player needs to pay and play one burn.
type CreatedInvoice struct {
	InvoiceID      string               `json:"invoice_id"`
	Status         models.InvoiceStatus `json:"status"`
	PaymentAddress string               `json:"payment_address"`
	PaymentAmount  decimal.Decimal      `json:"payment_amount"`
	AmountNano     int64                `json:"amount_nano"`
	MatchToken     string               `json:"match_token"`
	Challenge      models.Challenge     `json:"challenge"`
	PaymentLinks   utils.PaymentLinks   `json:"payment_links"`
	Reused         bool                 `json:"reused"`
}

// InvoiceView is the owner-facing status of an invoice.
type InvoiceView struct {
	InvoiceID string               `json:"invoice_id"`
	Status    models.InvoiceStatus `json:"status"`
	Processed bool                 `json:"processed"`
	Challenge models.Challenge     `json:"challenge"`
	Result    *models.Outcome      `json:"result,omitempty"`

	owner int64
}

// ResolveResult carries the outcome and whether it was computed by this call.
type ResolveResult struct {
	Outcome          models.Outcome `json:"result"`
	AlreadyProcessed bool           `json:"already_processed"`
}

type InvoiceService struct {
	DB      *gorm.DB
	Rules   config.GameRules
	Payment PaymentTarget
	Logger  *zap.Logger
	Rand    Random
	Now     func() time.Time

	views *utils.LRU[string, InvoiceView]
}

func NewInvoiceService(db *gorm.DB, rules config.GameRules, payment PaymentTarget, logger *zap.Logger) *InvoiceService {
	return &InvoiceService{
		DB:      db,
		Rules:   rules,
		Payment: payment,
		Logger:  logger,
		Rand:    DefaultRandom,
		Now:     time.Now,
		views:   utils.NewLRU[string, InvoiceView](4096, "processed_invoices"),
	}
}

func newMatchToken() string {
	return "ash-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// knownInvoiceID rejects ids that cannot name an invoice before they reach a uuid column.
func knownInvoiceID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invoice %q: %w", id, ErrNotFound)
	}
	return nil
}

func lockByID(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// Create issues a payment request for the player's next burn.
// A player has at most one unprocessed invoice; an existing one is returned unchanged.
func (s *InvoiceService) Create(ctx context.Context, playerID int64) (*CreatedInvoice, error) {
	var (
		inv    models.Invoice
		reused bool
	)
	now := s.Now().UTC()

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var player models.Player
		if err := lockByID(tx).Where("id = ?", playerID).First(&player).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("player %d: %w", playerID, ErrNotFound)
			}
			return err
		}
		if !player.Fragments.HasAll(s.Rules.MandatoryFragments) {
			return fmt.Errorf("player %d lacks mandatory fragments: %w", playerID, ErrPrerequisitesNotMet)
		}
		if player.CurseActive(now) {
			return fmt.Errorf("player %d: %w", playerID, ErrCurseActive)
		}

		err := tx.Where("player_id = ? AND processed = ?", playerID, false).
			Order("created_at desc").
			First(&inv).Error
		if err == nil {
			reused = true
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		weights := TierWeights(s.Rules.RarityWeights, player.PityCounter, s.Rules.PityBoostStep, s.Rules.PityBoostCap)
		tier := RollTier(weights, s.Rand)
		inv = models.Invoice{
			ID:         uuid.NewString(),
			PlayerID:   playerID,
			AmountNano: s.Payment.AmountNano,
			Comment:    newMatchToken(),
			Status:     models.InvoicePending,
			Tier:       tier,
			Challenge:  datatypes.NewJSONType(PickChallenge(tier, s.Rand)),
		}
		if err := tx.Create(&inv).Error; err != nil {
			return err
		}
		return incrementCounter(tx, CounterInvoicesCreated, 1)
	})
	if err != nil {
		return nil, classify(s.Logger, "create invoice", err)
	}

	if reused {
		s.Logger.Debug("returning in-flight invoice", zap.Int64("player_id", playerID), zap.String("invoice_id", inv.ID))
	} else {
		invoicesCreated.Inc()
		s.Logger.Info("invoice created",
			zap.Int64("player_id", playerID),
			zap.String("invoice_id", inv.ID),
			zap.String("tier", string(inv.Tier)))
	}

	return &CreatedInvoice{
		InvoiceID:      inv.ID,
		Status:         inv.Status,
		PaymentAddress: utils.FriendlyAddress(s.Payment.Wallet, s.Payment.Testnet),
		PaymentAmount:  config.NanoToTON(inv.AmountNano),
		AmountNano:     inv.AmountNano,
		MatchToken:     inv.Comment,
		Challenge:      inv.Challenge.Data(),
		PaymentLinks:   utils.BuildPaymentLinks(s.Payment.Wallet, inv.AmountNano, inv.Comment, s.Payment.Testnet),
		Reused:         reused,
	}, nil
}

// MarkPaid flips a pending invoice to paid exactly once. Unknown ids and invoices that are
// no longer pending are no-ops reported as changed=false.
// The owner's referral is confirmed in the same transaction when this is their first paid invoice.
func (s *InvoiceService) MarkPaid(ctx context.Context, invoiceID, txHash string) (bool, error) {
	if knownInvoiceID(invoiceID) != nil {
		return false, nil
	}
	changed := false
	now := s.Now().UTC()

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var inv models.Invoice
		if err := lockByID(tx).Where("id = ?", invoiceID).First(&inv).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if inv.Status != models.InvoicePending {
			return nil
		}

		updates := map[string]interface{}{
			"status":  models.InvoicePaid,
			"paid_at": now,
		}
		if txHash != "" {
			updates["tx_hash"] = txHash
		}
		if err := tx.Model(&models.Invoice{}).Where("id = ?", inv.ID).Updates(updates).Error; err != nil {
			return err
		}
		if err := incrementCounter(tx, CounterInvoicesPaid, 1); err != nil {
			return err
		}

		var paidBefore int64
		if err := tx.Model(&models.Invoice{}).
			Where("player_id = ? AND id <> ? AND status IN ?", inv.PlayerID, inv.ID,
				[]models.InvoiceStatus{models.InvoicePaid, models.InvoiceProcessed}).
			Count(&paidBefore).Error; err != nil {
			return err
		}
		if paidBefore == 0 {
			res := tx.Model(&models.Referral{}).
				Where("referred_id = ? AND confirmed = ?", inv.PlayerID, false).
				Updates(map[string]interface{}{
					"confirmed":          true,
					"confirmed_at":       now,
					"first_invoice_id":   inv.ID,
					"first_payment_nano": inv.AmountNano,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				s.Logger.Info("referral confirmed", zap.Int64("referred_id", inv.PlayerID), zap.String("invoice_id", inv.ID))
			}
		}
		changed = true
		return nil
	})
	if err != nil {
		return false, classify(s.Logger, "mark invoice paid", err)
	}
	if changed {
		invoicesMarkedPaid.Inc()
		s.Logger.Info("invoice paid", zap.String("invoice_id", invoiceID), zap.String("tx_hash", txHash))
	}
	return changed, nil
}

// Status returns the owner's view of an invoice. Processed views never change and are cached.
func (s *InvoiceService) Status(ctx context.Context, playerID int64, invoiceID string) (*InvoiceView, error) {
	if err := knownInvoiceID(invoiceID); err != nil {
		return nil, err
	}
	if v, ok := s.views.Get(invoiceID); ok {
		return ownedView(v, playerID, invoiceID)
	}

	var inv models.Invoice
	if err := s.DB.WithContext(ctx).Where("id = ?", invoiceID).First(&inv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("invoice %s: %w", invoiceID, ErrNotFound)
		}
		return nil, classify(s.Logger, "read invoice", err)
	}
	if inv.PlayerID != playerID {
		return nil, fmt.Errorf("invoice %s: %w", invoiceID, ErrForbidden)
	}

	v := viewOf(&inv)
	if inv.Processed {
		s.views.Set(inv.ID, *v)
	}
	return v, nil
}

func ownedView(v InvoiceView, playerID int64, invoiceID string) (*InvoiceView, error) {
	if v.owner != playerID {
		return nil, fmt.Errorf("invoice %s: %w", invoiceID, ErrForbidden)
	}
	return &v, nil
}

func viewOf(inv *models.Invoice) *InvoiceView {
	v := &InvoiceView{
		InvoiceID: inv.ID,
		Status:    inv.Status,
		Processed: inv.Processed,
		Challenge: inv.Challenge.Data(),
		owner:     inv.PlayerID,
	}
	if !inv.Result.IsZero() {
		r := inv.Result
		v.Result = &r
	}
	return v
}

// Resolve applies the reward for a paid invoice exactly once.
// The invoice row is locked before the player row; any failure rolls back and leaves the invoice retryable.
func (s *InvoiceService) Resolve(ctx context.Context, playerID int64, invoiceID string, challengeSucceeded bool) (*ResolveResult, error) {
	if err := knownInvoiceID(invoiceID); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.Rules.ResolveTimeout)
	defer cancel()

	start := time.Now()
	defer func() { resolveDuration.Observe(time.Since(start).Seconds()) }()

	var res ResolveResult
	var resolved models.Invoice

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var inv models.Invoice
		if err := lockByID(tx).Where("id = ?", invoiceID).First(&inv).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("invoice %s: %w", invoiceID, ErrNotFound)
			}
			return err
		}
		if inv.PlayerID != playerID {
			return fmt.Errorf("invoice %s: %w", invoiceID, ErrForbidden)
		}
		if inv.Processed {
			res = ResolveResult{Outcome: inv.Result, AlreadyProcessed: true}
			resolved = inv
			return nil
		}
		if inv.Status != models.InvoicePaid {
			return fmt.Errorf("invoice %s is %s: %w", invoiceID, inv.Status, ErrNotPayableYet)
		}

		var player models.Player
		if err := lockByID(tx).Where("id = ?", playerID).First(&player).Error; err != nil {
			return err
		}

		now := s.Now().UTC()
		outcome := s.decide(&player, challengeSucceeded, now)

		if err := tx.Model(&models.Player{}).Where("id = ?", player.ID).Updates(map[string]interface{}{
			"fragments":     player.Fragments,
			"pity_counter":  player.PityCounter,
			"is_cursed":     player.IsCursed,
			"curse_expires": player.CurseExpires,
			"curses_count":  player.CursesCount,
		}).Error; err != nil {
			return err
		}

		inv.Status = models.InvoiceProcessed
		inv.Processed = true
		inv.Result = outcome
		inv.ProcessedAt = &now
		if err := tx.Model(&models.Invoice{}).Where("id = ?", inv.ID).Updates(map[string]interface{}{
			"status":       inv.Status,
			"processed":    true,
			"result":       outcome,
			"processed_at": now,
		}).Error; err != nil {
			return err
		}

		if key := counterFor(outcome.Kind); key != "" {
			if err := incrementCounter(tx, key, 1); err != nil {
				return err
			}
		}
		res = ResolveResult{Outcome: outcome}
		resolved = inv
		return nil
	})
	if err != nil {
		return nil, classify(s.Logger, "resolve invoice", err)
	}

	s.views.Set(resolved.ID, *viewOf(&resolved))
	if !res.AlreadyProcessed {
		resolutions.WithLabelValues(string(res.Outcome.Kind)).Inc()
		s.Logger.Info("invoice resolved",
			zap.Int64("player_id", playerID),
			zap.String("invoice_id", invoiceID),
			zap.String("outcome", string(res.Outcome.Kind)),
			zap.Int("pity_counter", res.Outcome.PityCounter))
	}
	return &res, nil
}

// decide mutates player according to the burn rules and returns the outcome.
func (s *InvoiceService) decide(p *models.Player, challengeSucceeded bool, now time.Time) models.Outcome {
	if !challengeSucceeded {
		p.PityCounter++
		return models.FailureOutcome(p.PityCounter)
	}

	hasMandatory := p.Fragments.HasAll(s.Rules.MandatoryFragments)
	guaranteed := hasMandatory && p.Fragments.CountOutside(s.Rules.MandatoryFragments) < s.Rules.GuaranteeThreshold

	if hasMandatory && !guaranteed && p.CursesCount < s.Rules.MaxCurses && s.Rand.Float64() < s.Rules.CurseProbability {
		expires := now.Add(s.Rules.CurseDuration)
		p.CursesCount++
		p.IsCursed = true
		p.CurseExpires = &expires
		p.PityCounter++
		return models.CurseOutcome(p.PityCounter, expires)
	}

	remaining := p.Fragments.Missing(s.Rules.PaidFragments)
	if len(remaining) == 0 {
		p.PityCounter++
		return models.EmptyOutcome(p.PityCounter)
	}
	pick := remaining[s.Rand.IntN(len(remaining))]
	p.Fragments = p.Fragments.Add(pick)
	p.PityCounter = 0
	p.IsCursed = false
	p.CurseExpires = nil
	return models.FragmentOutcome(pick)
}

func counterFor(kind models.OutcomeKind) string {
	switch kind {
	case models.OutcomeFragment:
		return CounterFragmentsGranted
	case models.OutcomeCurse:
		return CounterCursesCast
	case models.OutcomeFailure:
		return CounterChallengesFailed
	}
	return ""
}

// PendingByComment maps match tokens of pending invoices to their ids and amounts, for the payment watcher.
func (s *InvoiceService) PendingByComment(ctx context.Context) (map[string]models.Invoice, error) {
	var invs []models.Invoice
	if err := s.DB.WithContext(ctx).
		Select("id", "player_id", "comment", "amount_nano", "status").
		Where("status = ?", models.InvoicePending).
		Find(&invs).Error; err != nil {
		return nil, classify(s.Logger, "list pending invoices", err)
	}
	out := make(map[string]models.Invoice, len(invs))
	for _, inv := range invs {
		out[inv.Comment] = inv
	}
	return out, nil
}
