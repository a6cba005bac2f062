// Package entitlement holds the pure quota and capability resolver.
// Everything here is evaluated at the moment of action against the
// current subscription and usage, never cached, so a plan upgrade takes
// effect on the very next call.
package entitlement

import (
	"fmt"
	"time"

	"github.com/karras2025-collab/it-freelance-exchange/internal/domain"
)

// ForbiddenError indicates a capability the current plan does not grant.
type ForbiddenError struct {
	Capability string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("capability %s not granted by current plan", e.Capability)
}

// WeekStart returns the Monday 00:00 UTC of the ISO week containing t.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	// Weekday() counts Sunday as 0; ISO weeks start on Monday.
	offset := (int(t.Weekday()) + 6) % 7
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, -offset)
}

// CanSubmitOffer reports whether another offer submission is within quota.
// A nil plan (no subscription) and a nil cap both mean unlimited.
func CanSubmitOffer(plan *domain.Plan, usage domain.WeeklyUsage) bool {
	if plan == nil || plan.WeeklyOfferCap == nil {
		return true
	}
	return usage.Count < *plan.WeeklyOfferCap
}

// RemainingOffers returns the submissions left this week, or nil for
// unlimited.
func RemainingOffers(plan *domain.Plan, usage domain.WeeklyUsage) *int {
	if plan == nil || plan.WeeklyOfferCap == nil {
		return nil
	}
	left := *plan.WeeklyOfferCap - usage.Count
	if left < 0 {
		left = 0
	}
	return &left
}

// HasMessaging reports whether the plan grants the chat capability.
// Without a subscription there is no grant.
func HasMessaging(plan *domain.Plan) bool {
	if plan == nil {
		return false
	}
	return plan.ChatEnabled
}
