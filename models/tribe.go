package models

import "time"

// TribeRole is the closed set of member roles. Authorization is driven by the
// CanManageMembers capability below, not by string comparison at call sites.
type TribeRole string

const (
	RoleAdmin      TribeRole = "ADMIN"
	RoleModerator  TribeRole = "MODERATOR"
	RoleTimeKeeper TribeRole = "TIME_KEEPER"
	RolePlayer     TribeRole = "PLAYER"
)

// CanManageMembers reports whether the role may mutate another member's
// standing (decide applications, change roles, ban/unban).
func (r TribeRole) CanManageMembers() bool {
	return r == RoleAdmin
}

// Valid reports whether r is one of the known roles.
func (r TribeRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleModerator, RoleTimeKeeper, RolePlayer:
		return true
	}
	return false
}

// ApplicationStatus is the lifecycle of a tribe application. PENDING is the
// only non-terminal state; a resolved application is never flipped again.
type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "PENDING"
	ApplicationApproved ApplicationStatus = "APPROVED"
	ApplicationDeclined ApplicationStatus = "DECLINED"
)

// Tribe is a capacity-bounded group with admission thresholds.
type Tribe struct {
	ID          string `gorm:"primaryKey;type:uuid" json:"id"`
	Slug        string `gorm:"uniqueIndex;not null" json:"slug"`
	Name        string `gorm:"not null" json:"name"`
	Description string `gorm:"type:text" json:"description"`
	CreatorID   string `gorm:"index;not null" json:"creator_id"` // ExternalUserID of the creator
	CoverURL    string `gorm:"type:text" json:"cover_url,omitempty"`

	MaxMembers int  `gorm:"not null;default:20" json:"max_members"`
	IsPaid     bool `gorm:"not null;default:false" json:"is_paid"`
	OpenJoin   bool `gorm:"not null;default:false" json:"open_join"` // direct join without an application

	// Admission thresholds, checked against the applicant's ledger state.
	MinLevel      int     `gorm:"not null;default:0" json:"min_level"`
	MinReputation float64 `gorm:"not null;default:0" json:"min_reputation"`
	MinStreak     int     `gorm:"not null;default:0" json:"min_streak"`

	Timestamps
}

// TribeMember is a unique (tribe, user) membership. Banned members keep their
// row for audit but lose every role-gated capability.
type TribeMember struct {
	ID             string     `gorm:"primaryKey;type:uuid" json:"id"`
	TribeID        string     `gorm:"not null;uniqueIndex:ux_tribe_members_tribe_user,priority:1" json:"tribe_id"`
	ExternalUserID string     `gorm:"not null;uniqueIndex:ux_tribe_members_tribe_user,priority:2" json:"external_user_id"`
	Role           TribeRole  `gorm:"type:varchar(16);not null;default:'PLAYER'" json:"role"`
	IsBanned       bool       `gorm:"not null;default:false" json:"is_banned"`
	BannedAt       *time.Time `json:"banned_at,omitempty"`
	JoinedAt       time.Time  `gorm:"autoCreateTime" json:"joined_at"`
}

// TribeApplication is created by the applicant and terminated exactly once by
// a reviewer decision. The partial unique index allows re-applying after a
// decline while still closing the duplicate-PENDING race.
type TribeApplication struct {
	ID             string            `gorm:"primaryKey;type:uuid" json:"id"`
	TribeID        string            `gorm:"not null;uniqueIndex:ux_tribe_applications_pending,priority:1,where:status = 'PENDING'" json:"tribe_id"`
	ExternalUserID string            `gorm:"not null;uniqueIndex:ux_tribe_applications_pending,priority:2,where:status = 'PENDING'" json:"external_user_id"`
	Message        string            `gorm:"type:text" json:"message"`
	Status         ApplicationStatus `gorm:"type:varchar(16);not null;default:'PENDING';index" json:"status"`
	DecidedBy      *string           `json:"decided_by,omitempty"`
	DecidedAt      *time.Time        `json:"decided_at,omitempty"`
	CreatedAt      time.Time         `gorm:"autoCreateTime" json:"created_at"`
}
