package services

import (
	"errors"
	"testing"

	"tribe-engagement-system/models"
)

func newTribeFixture(t *testing.T) (*TribeService, *LedgerService) {
	t.Helper()
	db := newTestDB(t)
	ledger := NewLedgerService(db)
	return NewTribeService(db, ledger), ledger
}

func TestCreateTribeSeatsCreatorAsAdmin(t *testing.T) {
	tribes, _ := newTribeFixture(t)
	seedUser(t, tribes.DB, "founder", nil)

	tribe, err := tribes.CreateTribe("founder", CreateTribeInput{Name: "Morning Crew"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if tribe.Slug != "morning-crew" {
		t.Fatalf("slug = %q", tribe.Slug)
	}

	var member models.TribeMember
	if err := tribes.DB.Where("tribe_id = ? AND external_user_id = ?", tribe.ID, "founder").
		First(&member).Error; err != nil {
		t.Fatalf("creator membership missing: %v", err)
	}
	if member.Role != models.RoleAdmin {
		t.Fatalf("creator role = %s, want ADMIN", member.Role)
	}

	// A second tribe with the same name gets a de-clashed slug.
	again, err := tribes.CreateTribe("founder", CreateTribeInput{Name: "Morning Crew"})
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if again.Slug == tribe.Slug {
		t.Fatalf("slug clash: %q", again.Slug)
	}
}

func TestCreateTribeRequiresEntitlement(t *testing.T) {
	tribes, _ := newTribeFixture(t)
	seedUser(t, tribes.DB, "lurker", func(u *models.User) {
		u.SubscriptionStatus = models.SubscriptionGuest
	})

	_, err := tribes.CreateTribe("lurker", CreateTribeInput{Name: "Nope"})
	if _, ok := IsForbidden(err); !ok {
		t.Fatalf("err = %v, want forbidden", err)
	}
}

func TestJoinDirectCapacityIsHard(t *testing.T) {
	tribes, _ := newTribeFixture(t)
	seedUser(t, tribes.DB, "founder", nil)
	tribe, err := tribes.CreateTribe("founder", CreateTribeInput{
		Name:       "Tiny",
		MaxMembers: 2,
		OpenJoin:   true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	seedUser(t, tribes.DB, "second", nil)
	if _, err := tribes.JoinDirect("second", tribe.ID); err != nil {
		t.Fatalf("second join: %v", err)
	}

	// Creator's seat plus one joiner fills the tribe.
	seedUser(t, tribes.DB, "third", nil)
	if _, err := tribes.JoinDirect("third", tribe.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("full-tribe join err = %v, want ErrConflict", err)
	}

	// Joining twice is a conflict, not a second seat.
	if _, err := tribes.JoinDirect("second", tribe.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("repeat join err = %v, want ErrConflict", err)
	}
}

func TestJoinDirectEnforcesThresholds(t *testing.T) {
	tribes, _ := newTribeFixture(t)
	seedUser(t, tribes.DB, "founder", nil)
	tribe, err := tribes.CreateTribe("founder", CreateTribeInput{
		Name:     "Elites",
		OpenJoin: true,
		MinLevel: 5,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	seedUser(t, tribes.DB, "rookie", nil)
	_, err = tribes.JoinDirect("rookie", tribe.ID)
	reason, ok := IsForbidden(err)
	if !ok {
		t.Fatalf("err = %v, want forbidden", err)
	}
	if reason == "" {
		t.Fatal("forbidden reason must name the shortfall")
	}

	seedUser(t, tribes.DB, "veteran", func(u *models.User) { u.Level = 7 })
	if _, err := tribes.JoinDirect("veteran", tribe.ID); err != nil {
		t.Fatalf("qualified join: %v", err)
	}
}

func TestJoinDirectRejectsApplicationOnlyTribes(t *testing.T) {
	tribes, _ := newTribeFixture(t)
	seedUser(t, tribes.DB, "founder", nil)
	tribe, err := tribes.CreateTribe("founder", CreateTribeInput{Name: "Gated"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	seedUser(t, tribes.DB, "walkin", nil)
	if _, err := tribes.JoinDirect("walkin", tribe.ID); err == nil {
		t.Fatal("direct join into application-only tribe must fail")
	}
}

func TestApplicationLifecycle(t *testing.T) {
	tribes, _ := newTribeFixture(t)
	seedUser(t, tribes.DB, "founder", nil)
	tribe, err := tribes.CreateTribe("founder", CreateTribeInput{Name: "Reviewed"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	seedUser(t, tribes.DB, "hopeful", nil)

	app, err := tribes.Apply("hopeful", tribe.ID, "let me in")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	// Only one pending application per (tribe, user).
	if _, err := tribes.Apply("hopeful", tribe.ID, "again"); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate apply err = %v, want ErrConflict", err)
	}

	decided, err := tribes.DecideApplication("founder", app.ID, true)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if decided.Status != models.ApplicationApproved {
		t.Fatalf("status = %s", decided.Status)
	}
	if decided.DecidedBy == nil || *decided.DecidedBy != "founder" {
		t.Fatalf("decided by = %v", decided.DecidedBy)
	}

	var member int64
	tribes.DB.Model(&models.TribeMember{}).
		Where("tribe_id = ? AND external_user_id = ?", tribe.ID, "hopeful").
		Count(&member)
	if member != 1 {
		t.Fatalf("member rows = %d, want 1", member)
	}

	// Approval seats and credits the applicant in the same transaction.
	var joined int64
	tribes.DB.Model(&models.LedgerEvent{}).
		Where("external_user_id = ? AND kind = ?", "hopeful", models.EventTribeJoined).
		Count(&joined)
	if joined != 1 {
		t.Fatalf("tribe-joined events = %d, want 1", joined)
	}

	// Resolving a resolved application is a conflict, never a second seat.
	if _, err := tribes.DecideApplication("founder", app.ID, true); !errors.Is(err, ErrConflict) {
		t.Fatalf("re-decide err = %v, want ErrConflict", err)
	}
	if _, err := tribes.DecideApplication("founder", app.ID, false); !errors.Is(err, ErrConflict) {
		t.Fatalf("flip decision err = %v, want ErrConflict", err)
	}
}

func TestDecideApplicationAuthorization(t *testing.T) {
	tribes, _ := newTribeFixture(t)
	seedUser(t, tribes.DB, "founder", nil)
	tribe, err := tribes.CreateTribe("founder", CreateTribeInput{Name: "Locked Down"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	seedUser(t, tribes.DB, "applicant", nil)
	app, err := tribes.Apply("applicant", tribe.ID, "")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	// A stranger cannot decide.
	seedUser(t, tribes.DB, "stranger", nil)
	if _, err := tribes.DecideApplication("stranger", app.ID, true); err == nil {
		t.Fatal("stranger decision must be forbidden")
	}

	// A plain member cannot decide either.
	seedUser(t, tribes.DB, "rank-and-file", nil)
	app2, err := tribes.Apply("rank-and-file", tribe.ID, "")
	if err != nil {
		t.Fatalf("member apply: %v", err)
	}
	if _, err := tribes.DecideApplication("founder", app2.ID, true); err != nil {
		t.Fatalf("seat member: %v", err)
	}
	if _, err := tribes.DecideApplication("rank-and-file", app.ID, true); err == nil {
		t.Fatal("plain member decision must be forbidden")
	}

	decided, err := tribes.DecideApplication("founder", app.ID, false)
	if err != nil {
		t.Fatalf("founder decline: %v", err)
	}
	if decided.Status != models.ApplicationDeclined {
		t.Fatalf("status = %s", decided.Status)
	}

	// Declined applications do not seat anyone.
	var member int64
	tribes.DB.Model(&models.TribeMember{}).
		Where("tribe_id = ? AND external_user_id = ?", tribe.ID, "applicant").
		Count(&member)
	if member != 0 {
		t.Fatalf("member rows = %d, want 0", member)
	}
}

func TestBannedAdminLosesManagementPowers(t *testing.T) {
	tribes, _ := newTribeFixture(t)
	seedUser(t, tribes.DB, "founder", nil)
	tribe, err := tribes.CreateTribe("founder", CreateTribeInput{Name: "Coup", OpenJoin: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	seedUser(t, tribes.DB, "deputy", nil)
	deputy, err := tribes.JoinDirect("deputy", tribe.ID)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := tribes.SetMemberRole("founder", deputy.ID, models.RoleAdmin); err != nil {
		t.Fatalf("promote: %v", err)
	}

	seedUser(t, tribes.DB, "victim", nil)
	victim, err := tribes.JoinDirect("victim", tribe.ID)
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	// Deputy can ban while in good standing.
	if _, err := tribes.BanMember("deputy", victim.ID, true); err != nil {
		t.Fatalf("deputy ban: %v", err)
	}

	// Once banned themselves, their admin role no longer grants anything.
	if _, err := tribes.BanMember("founder", deputy.ID, true); err != nil {
		t.Fatalf("founder ban: %v", err)
	}
	if _, err := tribes.BanMember("deputy", victim.ID, false); err == nil {
		t.Fatal("banned admin must not manage members")
	}
}

func TestCreatorIsUntouchable(t *testing.T) {
	tribes, _ := newTribeFixture(t)
	seedUser(t, tribes.DB, "founder", nil)
	tribe, err := tribes.CreateTribe("founder", CreateTribeInput{Name: "Anchored"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var creatorSeat models.TribeMember
	if err := tribes.DB.Where("tribe_id = ? AND external_user_id = ?", tribe.ID, "founder").
		First(&creatorSeat).Error; err != nil {
		t.Fatalf("creator seat: %v", err)
	}

	if _, err := tribes.SetMemberRole("founder", creatorSeat.ID, models.RolePlayer); err == nil {
		t.Fatal("creator demotion must be rejected")
	}
	if _, err := tribes.BanMember("founder", creatorSeat.ID, true); err == nil {
		t.Fatal("creator ban must be rejected")
	}
	if err := tribes.Leave("founder", tribe.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("creator leave err = %v, want ErrConflict", err)
	}
}

func TestLeaveAndBannedRowsRetained(t *testing.T) {
	tribes, _ := newTribeFixture(t)
	seedUser(t, tribes.DB, "founder", nil)
	tribe, err := tribes.CreateTribe("founder", CreateTribeInput{Name: "Revolving Door", OpenJoin: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	seedUser(t, tribes.DB, "drifter", nil)
	if _, err := tribes.JoinDirect("drifter", tribe.ID); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := tribes.Leave("drifter", tribe.ID); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if err := tribes.Leave("drifter", tribe.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second leave err = %v, want ErrNotFound", err)
	}

	seedUser(t, tribes.DB, "troublemaker", nil)
	tm, err := tribes.JoinDirect("troublemaker", tribe.ID)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := tribes.BanMember("founder", tm.ID, true); err != nil {
		t.Fatalf("ban: %v", err)
	}
	if err := tribes.Leave("troublemaker", tribe.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("banned leave err = %v, want ErrConflict", err)
	}
}

func TestJoinCreditsTribeJoinedOnce(t *testing.T) {
	tribes, _ := newTribeFixture(t)
	seedUser(t, tribes.DB, "founder", nil)
	tribe, err := tribes.CreateTribe("founder", CreateTribeInput{Name: "Credited", OpenJoin: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	seedUser(t, tribes.DB, "joiner", nil)
	if _, err := tribes.JoinDirect("joiner", tribe.ID); err != nil {
		t.Fatalf("join: %v", err)
	}

	var events int64
	tribes.DB.Model(&models.LedgerEvent{}).
		Where("external_user_id = ? AND kind = ?", "joiner", models.EventTribeJoined).
		Count(&events)
	if events != 1 {
		t.Fatalf("tribe-joined events = %d, want 1", events)
	}
	user := reloadUser(t, tribes.DB, "joiner")
	if user.CurrentXP != DefaultLedgerConfig.Deltas[models.EventTribeJoined] {
		t.Fatalf("xp = %d, want join delta", user.CurrentXP)
	}
}
