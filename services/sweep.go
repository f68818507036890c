package services

import (
	"log"
	"time"

	"tribe-engagement-system/models"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SweepReport aggregates one sweep run. Individual user failures are counted,
// never fatal to the batch.
type SweepReport struct {
	PeriodKey string `json:"period_key"`
	Processed int    `json:"processed"`
	Penalized int    `json:"penalized"`
	Skipped   int    `json:"skipped"`
	Errors    int    `json:"errors"`
}

type SweepService struct {
	DB     *gorm.DB
	Ledger *LedgerService
	Users  *UserService
	Now    func() time.Time
}

func NewSweepService(db *gorm.DB, ledger *LedgerService, users *UserService) *SweepService {
	return &SweepService{DB: db, Ledger: ledger, Users: users, Now: time.Now}
}

// RunSweep walks every ritual-eligible user once and penalizes the ones with
// no check-in for the period. Safe under at-least-once re-invocation: the
// missed sentinel and the ledger idempotency key make re-runs inert, and the
// sentinel shares the unique (user, period) slot with live check-ins so the
// sweep can never penalize a period the user completed.
func (s *SweepService) RunSweep(periodKey string) SweepReport {
	report := SweepReport{PeriodKey: periodKey}

	var userIDs []string
	err := s.DB.Model(&models.User{}).
		Where("subscription_status IN ?", []models.SubscriptionStatus{
			models.SubscriptionTrial,
			models.SubscriptionActive,
			models.SubscriptionGracePeriod,
		}).
		Pluck("external_user_id", &userIDs).Error
	if err != nil {
		log.Printf("❌ Sweep %s: eligible-user query failed: %v", periodKey, err)
		report.Errors++
		return report
	}

	for _, userID := range userIDs {
		report.Processed++
		penalized, err := s.sweepUser(userID, periodKey)
		switch {
		case err != nil:
			report.Errors++
			log.Printf("⚠️ Sweep %s: user %s failed: %v", periodKey, userID, err)
		case penalized:
			report.Penalized++
		default:
			report.Skipped++
		}
	}

	log.Printf("🧹 Sweep %s done: processed=%d penalized=%d skipped=%d errors=%d",
		periodKey, report.Processed, report.Penalized, report.Skipped, report.Errors)
	return report
}

// sweepUser handles one user in one transaction: the sentinel read/insert and
// the penalty land together or not at all.
func (s *SweepService) sweepUser(externalUserID, periodKey string) (bool, error) {
	penalized := false
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		user, err := lockUser(tx, externalUserID)
		if err != nil {
			return err
		}

		sentinel := models.CheckIn{
			ID:             uuid.NewString(),
			ExternalUserID: externalUserID,
			PeriodKey:      periodKey,
			Status:         models.CheckinMissed,
		}
		ins := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_user_id"}, {Name: "period_key"}},
			DoNothing: true,
		}).Create(&sentinel)
		if ins.Error != nil {
			return ins.Error
		}
		if ins.RowsAffected == 0 {
			// Period already resolved: either a real check-in or a prior
			// sweep run. Nothing to do.
			return nil
		}

		user.Streak = 0
		if _, err := s.Ledger.ApplyEventTx(tx, user, models.EventCheckinMissed, "checkin:"+periodKey); err != nil {
			return err
		}
		penalized = true
		return nil
	})
	return penalized, err
}

// StartScheduler wires the periodic jobs: the weekly missed-check-in sweep
// (end of the ISO week) and the daily subscription window expiry pass.
func (s *SweepService) StartScheduler() (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	// Sunday 23:30 UTC, sweeping the closing ISO week.
	_, err = sched.NewJob(
		gocron.CronJob("30 23 * * 0", false),
		gocron.NewTask(func() {
			s.RunSweep(ISOWeekKey(s.Now()))
		}),
	)
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(24*time.Hour),
		gocron.NewTask(func() {
			if _, err := s.Users.ExpireLapsedWindows(); err != nil {
				log.Printf("❌ Expiry pass failed: %v", err)
			}
		}),
	)
	if err != nil {
		return nil, err
	}

	sched.Start()
	log.Println("⏰ Scheduler started: weekly sweep + daily expiry pass")
	return sched, nil
}
