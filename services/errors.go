package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	ErrValidation          = errors.New("validation_error")
	ErrPrerequisitesNotMet = errors.New("prerequisites_not_met")
	ErrNotPayableYet       = errors.New("not_payable_yet")
	ErrForbidden           = errors.New("forbidden")
	ErrNotFound            = errors.New("not_found")
	ErrNotEnoughReferrals  = errors.New("not_enough_referrals")
	ErrAlreadyClaimed      = errors.New("already_claimed")
	ErrCurseActive         = errors.New("curse_active")
	ErrCooldownActive      = errors.New("cooldown_active")
	ErrNothingToGrant      = errors.New("nothing_to_grant")
	ErrFinalWindowClosed   = errors.New("final_window_closed")
	ErrInternal            = errors.New("internal_error")
)

var domainErrors = []error{
	ErrValidation,
	ErrPrerequisitesNotMet,
	ErrNotPayableYet,
	ErrForbidden,
	ErrNotFound,
	ErrNotEnoughReferrals,
	ErrAlreadyClaimed,
	ErrCurseActive,
	ErrCooldownActive,
	ErrNothingToGrant,
	ErrFinalWindowClosed,
	ErrInternal,
}

// IsDomainError reports whether err carries one of the package sentinels.
func IsDomainError(err error) bool {
	for _, d := range domainErrors {
		if errors.Is(err, d) {
			return true
		}
	}
	return false
}

// classify passes domain errors through and turns anything else (store, timeout) into ErrInternal.
func classify(logger *zap.Logger, op string, err error) error {
	if err == nil || IsDomainError(err) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		logger.Warn(op+" timed out", zap.Error(err))
	} else {
		logger.Error(op+" failed", zap.Error(err))
	}
	return fmt.Errorf("%s: %v: %w", op, err, ErrInternal)
}
