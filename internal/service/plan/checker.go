// Package plan enforces the usage caps attached to a user's subscription.
package plan

import (
	"context"
	"fmt"
	"time"

	"github.com/zhouzirui/finchat/backend/internal/model/intake"
	"github.com/zhouzirui/finchat/backend/internal/model/ledger"
)

// Feature is a capped capability.
type Feature string

const (
	FeatureWhatsApp Feature = "whatsapp"
	FeatureShared   Feature = "shared"
)

// UsageCounter reports how much a user has already used.
type UsageCounter interface {
	CountRecentTransactions(ctx context.Context, userID, source string, since time.Time) (int, error)
	CountRecentSharedTransactions(ctx context.Context, userID string, since time.Time) (int, error)
}

// Limits holds the caps. A free WhatsApp quota of 0 disables the channel on
// the free plan; a negative quota or a shared cap of 0 means unlimited.
type Limits struct {
	FreeMonthlyWhatsApp int
	SharedCaps          map[ledger.Plan]int
	SharedWindow        time.Duration
}

// Checker answers whether a user may use a feature now.
type Checker struct {
	counter UsageCounter
	limits  Limits
	now     func() time.Time
}

// NewChecker creates a checker over counter.
func NewChecker(counter UsageCounter, limits Limits) *Checker {
	if limits.SharedWindow <= 0 {
		limits.SharedWindow = 30 * 24 * time.Hour
	}
	return &Checker{counter: counter, limits: limits, now: time.Now}
}

// Check returns a LimitReached error when user has exhausted feature.
func (c *Checker) Check(ctx context.Context, user ledger.User, feature Feature) error {
	switch feature {
	case FeatureWhatsApp:
		return c.checkWhatsApp(ctx, user)
	case FeatureShared:
		return c.checkShared(ctx, user)
	default:
		return fmt.Errorf("unknown feature %q", feature)
	}
}

func (c *Checker) checkWhatsApp(ctx context.Context, user ledger.User) error {
	if user.Plan != ledger.PlanFree && user.Plan != "" {
		return nil
	}
	quota := c.limits.FreeMonthlyWhatsApp
	if quota < 0 {
		return nil
	}
	if quota == 0 {
		return intake.NewError(intake.ErrLimitReached, intake.ReasonWhatsAppFree, nil)
	}

	now := c.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	used, err := c.counter.CountRecentTransactions(ctx, user.ID, ledger.SourceWhatsApp, monthStart)
	if err != nil {
		return fmt.Errorf("count whatsapp usage: %w", err)
	}
	if used >= quota {
		return intake.NewError(intake.ErrLimitReached, intake.ReasonWhatsAppFree, nil)
	}
	return nil
}

func (c *Checker) checkShared(ctx context.Context, user ledger.User) error {
	plan := user.Plan
	if plan == "" {
		plan = ledger.PlanFree
	}
	limit := c.limits.SharedCaps[plan]
	if limit <= 0 {
		return nil
	}

	used, err := c.counter.CountRecentSharedTransactions(ctx, user.ID, c.now().Add(-c.limits.SharedWindow))
	if err != nil {
		return fmt.Errorf("count shared usage: %w", err)
	}
	if used >= limit {
		return intake.NewError(intake.ErrLimitReached, intake.ReasonSharedTierCap, nil)
	}
	return nil
}
