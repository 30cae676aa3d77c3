package models

import (
	"time"

	"gorm.io/datatypes"
)

// ProgressEventType classifies something the presentation layer should
// announce to the user.
type ProgressEventType string

const (
	EventLevelUp             ProgressEventType = "level_up"
	EventBadgeUnlocked       ProgressEventType = "badge_unlocked"
	EventAchievementUnlocked ProgressEventType = "achievement_unlocked"
	EventStreakContinued     ProgressEventType = "streak_continued"
	EventDailyBonus          ProgressEventType = "daily_bonus"
	EventTournamentPrize     ProgressEventType = "tournament_prize"
)

// ProgressEvent is an append-only notification row written in the same
// transaction as the state change that produced it.
type ProgressEvent struct {
	ID             string            `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ExternalUserID string            `gorm:"index;not null" json:"user_id"`
	Type           ProgressEventType `gorm:"type:varchar(32);not null" json:"type"`
	RefID          string            `gorm:"type:varchar(128)" json:"ref_id,omitempty"` // badge/achievement/tournament id
	Level          int               `json:"level,omitempty"`
	XP             int64             `json:"xp,omitempty"`
	Coins          int64             `json:"coins,omitempty"`
	Gems           int64             `json:"gems,omitempty"`
	Message        string            `gorm:"type:text" json:"message"`
	Metadata       datatypes.JSONMap `json:"metadata,omitempty"`
	Seen           bool              `gorm:"not null;default:false" json:"seen"`
	CreatedAt      time.Time         `gorm:"index;not null" json:"created_at"`
}
