package service

import (
	"errors"
	"fmt"

	"cryptopulse/internal/models"
	"cryptopulse/internal/recurrence"
	"cryptopulse/internal/repository"
)

var (
	ErrInvalidRecurrence = recurrence.ErrInvalidRecurrence
	ErrRuleNotFound      = errors.New("notification rule not found")
	ErrRuleAlreadyExists = errors.New("an active notification rule already exists for this coin")
	ErrCoinNotFound      = errors.New("coin not found")
	ErrPriceUnavailable  = errors.New("price unavailable")
	ErrDeliveryFailed    = errors.New("push delivery failed")
	ErrStorage           = errors.New("storage error")
	ErrLogNotFound       = errors.New("delivery log entry not found")
	ErrFavoriteNotFound  = errors.New("coin is not in favorites")
	ErrConflict          = repository.ErrVersionConflict
)

// RuleExistsError carries the active rule that blocked a create or activate.
type RuleExistsError struct {
	Existing *models.NotificationRule
}

func (e *RuleExistsError) Error() string { return ErrRuleAlreadyExists.Error() }

func (e *RuleExistsError) Is(target error) bool { return target == ErrRuleAlreadyExists }

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
}
