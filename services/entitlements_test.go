package services

import (
	"testing"
	"time"

	"tribe-engagement-system/models"
)

func TestResolveEntitlementsPriorityOrder(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	yesterday := now.Add(-24 * time.Hour)
	inTenDays := now.Add(10 * 24 * time.Hour)
	inThreeDays := now.Add(3 * 24 * time.Hour)

	tests := []struct {
		name string
		user models.User
		want Entitlements
	}{
		{
			name: "creator tier wins over everything",
			user: models.User{
				ProfileTier:        models.TierCreator,
				SubscriptionStatus: models.SubscriptionExpired,
			},
			want: Entitlements{
				CanAccessMatchingDirectory: true,
				CanJoinTribes:              true,
				CanCreateTribes:            true,
				CanMonetizeTribe:           true,
			},
		},
		{
			name: "active subscription gets the full set",
			user: models.User{
				ProfileTier:        models.TierStarter,
				SubscriptionStatus: models.SubscriptionActive,
			},
			want: Entitlements{
				CanAccessMatchingDirectory: true,
				CanJoinTribes:              true,
				CanCreateTribes:            true,
				CanMonetizeTribe:           true,
			},
		},
		{
			name: "trial gets everything but monetization",
			user: models.User{
				ProfileTier:        models.TierStarter,
				SubscriptionStatus: models.SubscriptionTrial,
				TrialEndsAt:        &inTenDays,
			},
			want: Entitlements{
				CanAccessMatchingDirectory: true,
				CanJoinTribes:              true,
				CanCreateTribes:            true,
				IsInTrial:                  true,
				TrialDaysRemaining:         intPtr(10),
			},
		},
		{
			name: "grace period keeps the directory readable only",
			user: models.User{
				ProfileTier:        models.TierStarter,
				SubscriptionStatus: models.SubscriptionGracePeriod,
				GraceEndsAt:        &inThreeDays,
			},
			want: Entitlements{
				CanAccessMatchingDirectory: true,
				IsInGracePeriod:            true,
				GraceDaysRemaining:         intPtr(3),
			},
		},
		{
			name: "expired trial with no grace resolves to nothing",
			user: models.User{
				ProfileTier:        models.TierStarter,
				SubscriptionStatus: models.SubscriptionExpired,
				TrialEndsAt:        &yesterday,
			},
			want: Entitlements{
				TrialDaysRemaining: intPtr(0),
			},
		},
		{
			name: "guest has no capabilities",
			user: models.User{
				ProfileTier:        models.TierStarter,
				SubscriptionStatus: models.SubscriptionGuest,
			},
			want: Entitlements{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveEntitlements(&tt.user, now)
			assertEntitlements(t, got, tt.want)
		})
	}
}

func TestDaysRemainingRoundsUp(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		end  time.Time
		want int
	}{
		{"one hour left counts as a day", now.Add(time.Hour), 1},
		{"exactly 24h is one day", now.Add(24 * time.Hour), 1},
		{"25h rounds up to two days", now.Add(25 * time.Hour), 2},
		{"already past is zero", now.Add(-time.Minute), 0},
		{"exactly now is zero", now, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := daysRemaining(tt.end, now); got != tt.want {
				t.Fatalf("daysRemaining = %d, want %d", got, tt.want)
			}
		})
	}
}

func assertEntitlements(t *testing.T, got, want Entitlements) {
	t.Helper()
	if got.CanAccessMatchingDirectory != want.CanAccessMatchingDirectory ||
		got.CanJoinTribes != want.CanJoinTribes ||
		got.CanCreateTribes != want.CanCreateTribes ||
		got.CanMonetizeTribe != want.CanMonetizeTribe {
		t.Fatalf("capabilities = %+v, want %+v", got, want)
	}
	if got.IsInTrial != want.IsInTrial || got.IsInGracePeriod != want.IsInGracePeriod {
		t.Fatalf("window flags = %+v, want %+v", got, want)
	}
	assertIntPtr(t, "trial days", got.TrialDaysRemaining, want.TrialDaysRemaining)
	assertIntPtr(t, "grace days", got.GraceDaysRemaining, want.GraceDaysRemaining)
}

func assertIntPtr(t *testing.T, label string, got, want *int) {
	t.Helper()
	if (got == nil) != (want == nil) {
		t.Fatalf("%s: got %v, want %v", label, fmtIntPtr(got), fmtIntPtr(want))
	}
	if got != nil && *got != *want {
		t.Fatalf("%s: got %d, want %d", label, *got, *want)
	}
}

func fmtIntPtr(p *int) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func intPtr(v int) *int { return &v }
