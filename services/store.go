package services

import (
	"errors"
	"fmt"
	"time"

	"tribe-engagement-system/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// withRowLock adds SELECT ... FOR UPDATE on dialects that support it. SQLite
// (used by the test suite) has no FOR UPDATE; its single-writer model already
// serializes these transactions.
func withRowLock(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// lockUser fetches a user row by external id under a row lock, inside tx.
func lockUser(tx *gorm.DB, externalUserID string) (*models.User, error) {
	var user models.User
	err := withRowLock(tx).Where("external_user_id = ?", externalUserID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("user %s: %w", externalUserID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ISOWeekKey returns the period key for weekly events, e.g. "2026-W35".
func ISOWeekKey(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}
