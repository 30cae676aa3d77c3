package models

import (
	"time"
)

type TournamentStatus string

const (
	TournamentUpcoming     TournamentStatus = "upcoming"
	TournamentRegistration TournamentStatus = "registration"
	TournamentActive       TournamentStatus = "active"
	TournamentCompleted    TournamentStatus = "completed"
	TournamentCancelled    TournamentStatus = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s TournamentStatus) Valid() bool {
	switch s {
	case TournamentUpcoming, TournamentRegistration, TournamentActive, TournamentCompleted, TournamentCancelled:
		return true
	}
	return false
}

// Tournament is a leaderboard-style competition students join with coins.
type Tournament struct {
	ID              string           `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name            string           `json:"name" gorm:"not null"`
	Description     string           `json:"description"`
	Subject         string           `json:"subject"`
	Grade           int              `json:"grade"`
	Type            string           `json:"type" gorm:"type:varchar(16);default:'quiz'"`       // quiz, assignment, project, speed-test
	Difficulty      string           `json:"difficulty" gorm:"type:varchar(8);default:'easy'"` // easy, medium, hard
	EntryFee        int64            `json:"entry_fee" gorm:"not null;default:0"`              // in coins
	MaxParticipants int              `json:"max_participants" gorm:"not null;default:0"`       // 0 = unlimited
	Status          TournamentStatus `json:"status" gorm:"type:varchar(16);not null;default:'upcoming';index"`
	StartDate       time.Time        `json:"start_date"`
	EndDate         time.Time        `json:"end_date"`
	CreatedByID     string           `json:"created_by_id"`
	FinalizedAt     *time.Time       `json:"finalized_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time        `json:"updated_at" gorm:"autoUpdateTime"`

	// Relationships
	Prizes []TournamentPrize `json:"prizes,omitempty" gorm:"foreignKey:TournamentID"`

	// Calculated fields (not stored in DB)
	CurrentParticipants int64 `json:"current_participants" gorm:"-"`
}

// TournamentPrize is granted to the participant finishing at Rank.
type TournamentPrize struct {
	ID           string `json:"id" gorm:"primaryKey;type:varchar(36)"`
	TournamentID string `json:"tournament_id" gorm:"not null;index"`
	Rank         int    `json:"rank" gorm:"not null"`
	Coins        int64  `json:"coins"`
	Gems         int64  `json:"gems"`
	BadgeID      string `json:"badge_id,omitempty"`
	Title        string `json:"title,omitempty"`
}

// LeaderboardEntry is a computed row; tournament and XP leaderboards share it.
type LeaderboardEntry struct {
	UserID      string     `json:"user_id"`
	Score       int64      `json:"score"`
	Rank        int        `json:"rank"`
	TimeTaken   int        `json:"time_taken,omitempty"` // seconds
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
