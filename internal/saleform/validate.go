package saleform

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"ventas/backend/internal/catalog"
	"ventas/backend/internal/store"
)

const DefaultTrialDays = 15

// Validator runs the ordered save checks. Only the trial check reads the store.
type Validator struct {
	users     store.UserReader
	now       func() time.Time
	trialDays int
}

func NewValidator(users store.UserReader, trialDays int, now func() time.Time) *Validator {
	if trialDays < 1 {
		trialDays = DefaultTrialDays
	}
	if now == nil {
		now = time.Now
	}
	return &Validator{users: users, now: now, trialDays: trialDays}
}

// Validate returns the first failing check as a *ValidationError, or nil.
func (v *Validator) Validate(ctx context.Context, draft Draft, cat *catalog.Catalog) error {
	remaining, limited, err := v.TrialDaysRemaining(ctx, draft.UserID)
	if err != nil {
		return err
	}
	if limited && remaining <= 0 {
		return blocked(ErrTrialEnded, "")
	}

	if draft.CustomerID == 0 || draft.UserID == 0 || draft.DocumentTypeID == 0 || draft.OpenBatchID == 0 {
		return blocked(ErrNoOpenBatch, "")
	}

	if !hasCommittablePayment(draft) {
		return blocked(ErrMissingPayment, "")
	}

	if draft.UsesRunningAccount() {
		if draft.CustomerID == cat.WalkInCustomerID() {
			return blocked(ErrRunningAccountCustomer, "")
		}
		customer, ok := cat.Customer(draft.CustomerID)
		total := draft.Total()
		if ok && customer.MaxRunningBalance.IsPositive() && total.GreaterThan(customer.MaxRunningBalance) {
			return blocked(ErrCreditLimitExceeded, fmt.Sprintf("limit %s, total %s", customer.MaxRunningBalance, total))
		}
	}

	return nil
}

// TrialDaysRemaining reloads the user. limited is false when the user is not
// in trial mode or cannot be found.
func (v *Validator) TrialDaysRemaining(ctx context.Context, userID int64) (remaining int, limited bool, err error) {
	if userID == 0 || v.users == nil {
		return 0, false, nil
	}
	user, err := v.users.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if !user.TrialMode {
		return 0, false, nil
	}
	elapsed := v.now().Sub(user.CreatedAt)
	days := int(math.Floor(elapsed.Hours() / 24))
	return v.trialDays - days, true, nil
}

func hasCommittablePayment(draft Draft) bool {
	for _, p := range draft.Payments {
		if p.committable() {
			return true
		}
	}
	return false
}

// SaveBlockers lists every condition that keeps the save action disabled.
func SaveBlockers(draft Draft) []error {
	var out []error

	positive, invalid := false, false
	for _, l := range draft.Lines {
		if l.Quantity > 0 {
			positive = true
		} else {
			invalid = true
		}
	}
	if !positive {
		out = append(out, ErrNoQuantity)
	}
	if invalid {
		out = append(out, ErrInvalidQuantity)
	}
	if !draft.PaymentGap().IsZero() {
		out = append(out, ErrPaymentMismatch)
	}
	if draft.HasDuplicateAccounts() {
		out = append(out, ErrDuplicateAccounts)
	}
	return out
}

func CanSave(draft Draft) bool {
	return len(SaveBlockers(draft)) == 0
}
