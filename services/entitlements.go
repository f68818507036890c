package services

import (
	"time"

	"tribe-engagement-system/models"
)

// Entitlements is the capability set derived from a user's subscription state.
// Capabilities are never stored: they are recomputed from the user row on
// every gated request.
type Entitlements struct {
	CanAccessMatchingDirectory bool `json:"can_access_matching_directory"`
	CanJoinTribes              bool `json:"can_join_tribes"`
	CanCreateTribes            bool `json:"can_create_tribes"`
	CanMonetizeTribe           bool `json:"can_monetize_tribe"`

	IsInTrial       bool `json:"is_in_trial"`
	IsInGracePeriod bool `json:"is_in_grace_period"`

	// Days remaining are nil when the corresponding window does not apply.
	TrialDaysRemaining *int `json:"trial_days_remaining,omitempty"`
	GraceDaysRemaining *int `json:"grace_days_remaining,omitempty"`
}

// ResolveEntitlements maps subscription state to capabilities. Rules are
// evaluated in fixed priority order, first match wins:
//
//  1. CREATOR tier: full set, unconditionally.
//  2. ACTIVE subscription: full set.
//  3. inside the trial window: everything but monetization.
//  4. inside the grace window: directory stays readable, nothing else.
//  5. otherwise: empty set (effectively expired).
func ResolveEntitlements(user *models.User, now time.Time) Entitlements {
	if user.ProfileTier == models.TierCreator {
		return fullEntitlements()
	}
	if user.SubscriptionStatus == models.SubscriptionActive {
		return fullEntitlements()
	}
	if user.TrialEndsAt != nil && now.Before(*user.TrialEndsAt) {
		days := daysRemaining(*user.TrialEndsAt, now)
		return Entitlements{
			CanAccessMatchingDirectory: true,
			CanJoinTribes:              true,
			CanCreateTribes:            true,
			IsInTrial:                  true,
			TrialDaysRemaining:         &days,
		}
	}
	if user.GraceEndsAt != nil && now.Before(*user.GraceEndsAt) {
		days := daysRemaining(*user.GraceEndsAt, now)
		return Entitlements{
			CanAccessMatchingDirectory: true, // read-only: decisions are still gated
			IsInGracePeriod:            true,
			GraceDaysRemaining:         &days,
		}
	}
	ent := Entitlements{}
	if user.TrialEndsAt != nil {
		zero := 0
		ent.TrialDaysRemaining = &zero
	}
	if user.GraceEndsAt != nil {
		zero := 0
		ent.GraceDaysRemaining = &zero
	}
	return ent
}

func fullEntitlements() Entitlements {
	return Entitlements{
		CanAccessMatchingDirectory: true,
		CanJoinTribes:              true,
		CanCreateTribes:            true,
		CanMonetizeTribe:           true,
	}
}

// daysRemaining is ceil((end-now)/24h), floored at 0.
func daysRemaining(end, now time.Time) int {
	if !now.Before(end) {
		return 0
	}
	d := end.Sub(now)
	days := int(d / (24 * time.Hour))
	if d%(24*time.Hour) != 0 {
		days++
	}
	return days
}
