package discount

import (
	"context"

	"github.com/go-faster/errors"
)

// CompletedOrder carries the fields of a just-completed order that affect
// usage accounting.
type CompletedOrder struct {
	CouponCode string
	CustomerID int64
}

// Ledger updates discount usage counters when orders complete. It is not
// idempotent: completing the same order twice counts twice, deduplication is
// the caller's concern.
type Ledger struct {
	discounts Repository
	usage     UsageRepository
}

// NewLedger creates a Ledger over the discount and usage repositories.
func NewLedger(discounts Repository, usage UsageRepository) *Ledger {
	return &Ledger{discounts: discounts, usage: usage}
}

// OnOrderComplete records the coupon redemption of a completed order. Orders
// without a coupon code, or with a code no discount carries, are ignored.
// The aggregate counter moves only for discounts with a total use limit; the
// per-customer row only for discounts with a per-user limit and orders with
// a known customer. Both updates are single atomic statements; a failure in
// either is returned to the caller.
func (l *Ledger) OnOrderComplete(ctx context.Context, ord CompletedOrder) error {
	if ord.CouponCode == "" {
		return nil
	}

	d, err := l.discounts.FindAnyByCode(ctx, ord.CouponCode)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return errors.Wrap(err, "find discount by code")
	}

	if d.TotalUseLimit > 0 {
		if err := l.discounts.IncrementTotalUses(ctx, ord.CouponCode); err != nil {
			return errors.Wrap(err, "increment total uses")
		}
	}

	if d.PerUserLimit > 0 && ord.CustomerID != 0 {
		if err := l.usage.RecordUse(ctx, ord.CustomerID, d.ID); err != nil {
			return errors.Wrap(err, "record customer use")
		}
	}

	return nil
}

// ClearUsageHistory removes every per-customer usage row for the discount and
// resets its aggregate counter to zero.
func (l *Ledger) ClearUsageHistory(ctx context.Context, discountID int64) error {
	if err := l.discounts.ClearUsage(ctx, discountID); err != nil {
		return errors.Wrap(err, "clear usage history")
	}
	return nil
}
