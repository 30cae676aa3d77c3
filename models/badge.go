package models

import (
	"time"
)

// CriteriaKind selects which part of the progression state a criteria
// predicate is measured against.
type CriteriaKind string

const (
	CriteriaXP          CriteriaKind = "xp"
	CriteriaStreak      CriteriaKind = "streak"
	CriteriaAssignments CriteriaKind = "assignments"
	CriteriaLessons     CriteriaKind = "lessons"
	CriteriaTournaments CriteriaKind = "tournaments"
	CriteriaSocial      CriteriaKind = "social"
)

type Timeframe string

const (
	TimeframeDaily   Timeframe = "daily"
	TimeframeWeekly  Timeframe = "weekly"
	TimeframeMonthly Timeframe = "monthly"
	TimeframeTotal   Timeframe = "total"
)

type Criteria struct {
	Kind      CriteriaKind `yaml:"kind" json:"kind"`
	Target    int64        `yaml:"target" json:"target"`
	Timeframe Timeframe    `yaml:"timeframe,omitempty" json:"timeframe,omitempty"`
}

// BadgeDefinition: static catalog entry (loaded from YAML, never stored in DB)
type BadgeDefinition struct {
	ID          string   `yaml:"id" json:"id"` // e.g., "streak-7"
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description"`
	Icon        string   `yaml:"icon" json:"icon"`
	Color       string   `yaml:"color" json:"color"`
	Category    string   `yaml:"category" json:"category"` // achievement, milestone, streak, social, special
	Rarity      string   `yaml:"rarity" json:"rarity"`     // common, uncommon, rare, epic, legendary
	Criteria    Criteria `yaml:"criteria" json:"criteria"`
}

// AchievementDefinition is a one-time milestone; XPReward and CoinReward are
// granted exactly once, at unlock.
type AchievementDefinition struct {
	ID          string   `yaml:"id" json:"id"`
	Title       string   `yaml:"title" json:"title"`
	Description string   `yaml:"description" json:"description"`
	Icon        string   `yaml:"icon" json:"icon"`
	Category    string   `yaml:"category" json:"category"`
	Rarity      string   `yaml:"rarity" json:"rarity"` // bronze, silver, gold, platinum
	XPReward    int64    `yaml:"xp_reward" json:"xp_reward"`
	CoinReward  int64    `yaml:"coin_reward" json:"coin_reward"`
	Criteria    Criteria `yaml:"criteria" json:"criteria"`
}

// UserBadge: awarded instance (insert-only)
type UserBadge struct {
	ID             string    `gorm:"primaryKey;type:varchar(36)" json:"-"`
	ExternalUserID string    `gorm:"uniqueIndex:idx_user_badge;not null" json:"-"`
	BadgeID        string    `gorm:"uniqueIndex:idx_user_badge;not null" json:"badge_id"`
	EarnedAt       time.Time `gorm:"not null" json:"earned_at"`
	Progress       float64   `gorm:"not null;default:100" json:"progress"`
}

// UserAchievement: unlocked achievement instance (insert-only)
type UserAchievement struct {
	ID             string    `gorm:"primaryKey;type:varchar(36)" json:"-"`
	ExternalUserID string    `gorm:"uniqueIndex:idx_user_achievement;not null" json:"-"`
	AchievementID  string    `gorm:"uniqueIndex:idx_user_achievement;not null" json:"achievement_id"`
	UnlockedAt     time.Time `gorm:"not null" json:"unlocked_at"`
}
