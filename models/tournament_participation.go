package models

import "time"

// TournamentParticipation = registration + result summary
type TournamentParticipation struct {
	ID             string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ExternalUserID string `gorm:"uniqueIndex:idx_tournament_user;not null" json:"external_user_id"`
	TournamentID   string `gorm:"uniqueIndex:idx_tournament_user;not null" json:"tournament_id"`

	// Entry fee actually paid, refunded on leave
	FeePaid int64 `json:"fee_paid" gorm:"default:0"`

	// Result
	Score        int64      `json:"score" gorm:"default:0"`
	TimeTakenSec int        `json:"time_taken_sec" gorm:"default:0"`
	Completed    bool       `json:"completed" gorm:"default:false"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	FinalRank    int        `json:"final_rank" gorm:"default:0"` // 0 = not ranked

	// XP & rewards
	XPEarned     int64  `json:"xp_earned" gorm:"default:0"`
	CoinsEarned  int64  `json:"coins_earned" gorm:"default:0"`
	GemsEarned   int64  `json:"gems_earned" gorm:"default:0"`
	BadgeAwarded string `json:"badge_awarded,omitempty"`

	RegisteredAt time.Time `json:"registered_at" gorm:"not null"`

	Timestamps
}
