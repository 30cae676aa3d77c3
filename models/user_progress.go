package models

import (
	"time"

	"gorm.io/gorm"
)

// UserProgress is the persisted progression state of one user.
// Level is a cache of CalculateLevel(XP) and is rewritten on every load.
type UserProgress struct {
	ID             string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ExternalUserID string `gorm:"uniqueIndex;not null" json:"external_user_id"` // links to profile service

	// Core progression
	Level int   `json:"level" gorm:"not null"`
	XP    int64 `json:"xp" gorm:"column:xp;not null;default:0;index"`
	Rank  int   `json:"rank" gorm:"not null;default:0"` // leaderboard position, 0 = unranked

	// Currencies
	Coins int64 `json:"coins" gorm:"not null;default:0"`
	Gems  int64 `json:"gems" gorm:"not null;default:0"`

	// Streak
	CurrentStreak int     `json:"current_streak" gorm:"not null;default:0"`
	LongestStreak int     `json:"longest_streak" gorm:"not null;default:0"`
	LastLoginDate *string `json:"last_login_date,omitempty" gorm:"type:varchar(10)"` // YYYY-MM-DD in the user's zone

	// Rolling accumulators, reset by the scheduler
	WeeklyXP  int64 `json:"weekly_xp" gorm:"column:weekly_xp;not null;default:0;index"`
	MonthlyXP int64 `json:"monthly_xp" gorm:"column:monthly_xp;not null;default:0;index"`

	// Activity counters
	LessonsCompleted     int64 `json:"lessons_completed" gorm:"not null;default:0"`
	QuizzesCompleted     int64 `json:"quizzes_completed" gorm:"not null;default:0"`
	AssignmentsCompleted int64 `json:"assignments_completed" gorm:"not null;default:0"`
	TournamentsCompleted int64 `json:"tournaments_completed" gorm:"not null;default:0"`

	// Preferences
	TimeZone string `json:"time_zone,omitempty" gorm:"type:varchar(64)"`
	Language string `json:"language,omitempty" gorm:"type:varchar(8)"`

	LastLevelUpAt *time.Time `json:"last_level_up_at,omitempty"`

	Badges       []UserBadge       `json:"unlocked_badges" gorm:"foreignKey:ExternalUserID;references:ExternalUserID"`
	Achievements []UserAchievement `json:"unlocked_achievements" gorm:"foreignKey:ExternalUserID;references:ExternalUserID"`

	Timestamps
}

// HasBadge reports whether badgeID is already in the unlocked set.
func (p *UserProgress) HasBadge(badgeID string) bool {
	for _, b := range p.Badges {
		if b.BadgeID == badgeID {
			return true
		}
	}
	return false
}

// HasAchievement reports whether achievementID is already in the unlocked set.
func (p *UserProgress) HasAchievement(achievementID string) bool {
	for _, a := range p.Achievements {
		if a.AchievementID == achievementID {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares nothing mutable with p.
func (p *UserProgress) Clone() *UserProgress {
	cp := *p
	if p.LastLoginDate != nil {
		d := *p.LastLoginDate
		cp.LastLoginDate = &d
	}
	if p.LastLevelUpAt != nil {
		t := *p.LastLevelUpAt
		cp.LastLevelUpAt = &t
	}
	cp.Badges = append([]UserBadge(nil), p.Badges...)
	cp.Achievements = append([]UserAchievement(nil), p.Achievements...)
	return &cp
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}
