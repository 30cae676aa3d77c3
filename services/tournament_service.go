package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"digidost/models"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrTournamentNotFound    = errors.New("tournament not found")
	ErrTournamentFull        = errors.New("tournament is full")
	ErrRegistrationClosed    = errors.New("tournament registration is closed")
	ErrTournamentNotActive   = errors.New("tournament is not active")
	ErrTournamentFinalized   = errors.New("tournament already finalized")
	ErrAlreadyJoined         = errors.New("already joined this tournament")
	ErrNotParticipant        = errors.New("not a participant of this tournament")
	ErrResultAlreadyRecorded = errors.New("result already submitted")
	ErrInsufficientCoins     = errors.New("insufficient coins")
	ErrInvalidTournament     = errors.New("invalid tournament")
)

// Participation XP: base for every finisher, tripled for the winner and
// doubled for the rest of the podium.
const TournamentBaseXP int64 = 100

func TournamentXPForRank(rank int) int64 {
	switch {
	case rank == 1:
		return TournamentBaseXP * 3
	case rank >= 2 && rank <= 3:
		return TournamentBaseXP * 2
	default:
		return TournamentBaseXP
	}
}

type TournamentService struct {
	DB          *gorm.DB
	Progression *ProgressionService
	Clock       clockwork.Clock
}

func NewTournamentService(db *gorm.DB, progression *ProgressionService) *TournamentService {
	return &TournamentService{DB: db, Progression: progression, Clock: progression.Clock}
}

// CreateTournament validates t and stores it together with its prizes.
func (s *TournamentService) CreateTournament(ctx context.Context, t *models.Tournament) error {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidTournament)
	}
	if t.EntryFee < 0 {
		return fmt.Errorf("%w: entry fee cannot be negative", ErrInvalidTournament)
	}
	if t.MaxParticipants < 0 {
		return fmt.Errorf("%w: max participants cannot be negative", ErrInvalidTournament)
	}
	if !t.StartDate.IsZero() && !t.EndDate.IsZero() && t.EndDate.Before(t.StartDate) {
		return fmt.Errorf("%w: end date is before start date", ErrInvalidTournament)
	}
	if t.Status == "" {
		t.Status = models.TournamentUpcoming
	}
	if t.Status != models.TournamentUpcoming && t.Status != models.TournamentRegistration {
		return fmt.Errorf("%w: new tournaments start as upcoming or registration", ErrInvalidTournament)
	}

	t.ID = uuid.NewString()
	seen := make(map[int]bool, len(t.Prizes))
	for i := range t.Prizes {
		p := &t.Prizes[i]
		if p.Rank < 1 || seen[p.Rank] {
			return fmt.Errorf("%w: prize ranks must be unique and start at 1", ErrInvalidTournament)
		}
		if p.Coins < 0 || p.Gems < 0 {
			return fmt.Errorf("%w: prize for rank %d is negative", ErrInvalidTournament, p.Rank)
		}
		if p.BadgeID != "" {
			if _, ok := s.Progression.Catalog.Badge(p.BadgeID); !ok {
				return fmt.Errorf("%w: prize badge %q is not in the catalog", ErrInvalidTournament, p.BadgeID)
			}
		}
		seen[p.Rank] = true
		p.ID = uuid.NewString()
		p.TournamentID = t.ID
	}

	if err := s.DB.WithContext(ctx).Create(t).Error; err != nil {
		return err
	}
	log.Printf("🏁 [TOURNAMENT] created %q (%s)", t.Name, t.ID)
	return nil
}

// ListTournaments returns tournaments, optionally filtered by status, with
// their participant counts.
func (s *TournamentService) ListTournaments(ctx context.Context, status models.TournamentStatus) ([]models.Tournament, error) {
	q := s.DB.WithContext(ctx).Preload("Prizes").Order("start_date ASC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var tournaments []models.Tournament
	if err := q.Find(&tournaments).Error; err != nil {
		return nil, err
	}
	if err := s.fillParticipantCounts(ctx, tournaments); err != nil {
		return nil, err
	}
	return tournaments, nil
}

func (s *TournamentService) GetTournament(ctx context.Context, id string) (*models.Tournament, error) {
	var t models.Tournament
	err := s.DB.WithContext(ctx).Preload("Prizes").First(&t, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTournamentNotFound
	}
	if err != nil {
		return nil, err
	}
	one := []models.Tournament{t}
	if err := s.fillParticipantCounts(ctx, one); err != nil {
		return nil, err
	}
	return &one[0], nil
}

func (s *TournamentService) fillParticipantCounts(ctx context.Context, tournaments []models.Tournament) error {
	if len(tournaments) == 0 {
		return nil
	}
	ids := make([]string, len(tournaments))
	for i, t := range tournaments {
		ids[i] = t.ID
	}
	var rows []struct {
		TournamentID string
		Count        int64
	}
	err := s.DB.WithContext(ctx).
		Model(&models.TournamentParticipation{}).
		Select("tournament_id, COUNT(*) AS count").
		Where("tournament_id IN ?", ids).
		Group("tournament_id").
		Scan(&rows).Error
	if err != nil {
		return err
	}
	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.TournamentID] = r.Count
	}
	for i := range tournaments {
		tournaments[i].CurrentParticipants = counts[tournaments[i].ID]
	}
	return nil
}

// UpdateStatus moves a tournament between the open states. Completing goes
// through FinalizeTournament; cancelling refunds every entry fee.
func (s *TournamentService) UpdateStatus(ctx context.Context, id string, status models.TournamentStatus) (*models.Tournament, error) {
	if !status.Valid() || status == models.TournamentCompleted {
		return nil, fmt.Errorf("%w: cannot set status %q", ErrInvalidTournament, status)
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := s.lockTournament(tx, id)
		if err != nil {
			return err
		}
		if t.Status == models.TournamentCompleted || t.Status == models.TournamentCancelled {
			return ErrTournamentFinalized
		}
		if status == models.TournamentCancelled {
			if err := s.refundAll(ctx, tx, t); err != nil {
				return err
			}
		}
		return tx.Model(t).Update("status", status).Error
	})
	if err != nil {
		return nil, err
	}
	log.Printf("🔄 [TOURNAMENT] %s → %s", id, status)
	return s.GetTournament(ctx, id)
}

func (s *TournamentService) refundAll(ctx context.Context, tx *gorm.DB, t *models.Tournament) error {
	var parts []models.TournamentParticipation
	if err := tx.Where("tournament_id = ? AND fee_paid > 0", t.ID).Find(&parts).Error; err != nil {
		return err
	}
	for _, p := range parts {
		fee := p.FeePaid
		if _, _, err := s.Progression.UpdateTx(ctx, tx, p.ExternalUserID, func(e *Engine) error {
			return e.AddCoins(ctx, fee)
		}); err != nil {
			return fmt.Errorf("refund %s: %w", p.ExternalUserID, err)
		}
		if err := tx.Model(&p).Update("fee_paid", 0).Error; err != nil {
			return err
		}
	}
	if len(parts) > 0 {
		log.Printf("💸 [TOURNAMENT] refunded %d entry fees for %s", len(parts), t.ID)
	}
	return nil
}

func (s *TournamentService) lockTournament(tx *gorm.DB, id string) (*models.Tournament, error) {
	var t models.Tournament
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&t, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTournamentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func registrationOpen(status models.TournamentStatus) bool {
	return status == models.TournamentUpcoming || status == models.TournamentRegistration
}

// JoinTournament registers the user and charges the entry fee in one
// transaction. Nothing changes when any check fails.
func (s *TournamentService) JoinTournament(ctx context.Context, id, userID string) (*models.TournamentParticipation, error) {
	var part *models.TournamentParticipation
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := s.lockTournament(tx, id)
		if err != nil {
			return err
		}
		if !registrationOpen(t.Status) {
			return ErrRegistrationClosed
		}

		var existing int64
		if err := tx.Model(&models.TournamentParticipation{}).
			Where("tournament_id = ? AND external_user_id = ?", id, userID).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrAlreadyJoined
		}

		if t.MaxParticipants > 0 {
			var count int64
			if err := tx.Model(&models.TournamentParticipation{}).
				Where("tournament_id = ?", id).
				Count(&count).Error; err != nil {
				return err
			}
			if count >= int64(t.MaxParticipants) {
				return ErrTournamentFull
			}
		}

		if t.EntryFee > 0 {
			var paid bool
			_, _, err := s.Progression.UpdateTx(ctx, tx, userID, func(e *Engine) error {
				var err error
				paid, err = e.SpendCoins(ctx, t.EntryFee)
				return err
			})
			if err != nil {
				return err
			}
			if !paid {
				return ErrInsufficientCoins
			}
		}

		part = &models.TournamentParticipation{
			ID:             uuid.NewString(),
			ExternalUserID: userID,
			TournamentID:   id,
			FeePaid:        t.EntryFee,
			RegisteredAt:   s.Clock.Now(),
		}
		return tx.Create(part).Error
	})
	if err != nil {
		return nil, err
	}
	log.Printf("🎟️ [TOURNAMENT] %s joined %s (fee %d)", userID, id, part.FeePaid)
	return part, nil
}

// LeaveTournament withdraws the user while registration is open and refunds
// the fee they paid.
func (s *TournamentService) LeaveTournament(ctx context.Context, id, userID string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := s.lockTournament(tx, id)
		if err != nil {
			return err
		}
		if !registrationOpen(t.Status) {
			return ErrRegistrationClosed
		}
		var part models.TournamentParticipation
		err = tx.Where("tournament_id = ? AND external_user_id = ?", id, userID).First(&part).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotParticipant
		}
		if err != nil {
			return err
		}
		// Hard delete so the unique (tournament, user) index allows rejoining.
		if err := tx.Unscoped().Delete(&part).Error; err != nil {
			return err
		}
		if part.FeePaid > 0 {
			if _, _, err := s.Progression.UpdateTx(ctx, tx, userID, func(e *Engine) error {
				return e.AddCoins(ctx, part.FeePaid)
			}); err != nil {
				return err
			}
		}
		log.Printf("👋 [TOURNAMENT] %s left %s (refund %d)", userID, id, part.FeePaid)
		return nil
	})
}

// SubmitResult records the user's score while the tournament is running.
// Each participant submits once.
func (s *TournamentService) SubmitResult(ctx context.Context, id, userID string, score int64, timeTakenSec int) (*models.TournamentParticipation, error) {
	if score < 0 || timeTakenSec < 0 {
		return nil, fmt.Errorf("%w: score and time must not be negative", ErrInvalidTournament)
	}
	var part models.TournamentParticipation
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := s.lockTournament(tx, id)
		if err != nil {
			return err
		}
		if t.Status != models.TournamentActive {
			return ErrTournamentNotActive
		}
		err = tx.Where("tournament_id = ? AND external_user_id = ?", id, userID).First(&part).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotParticipant
		}
		if err != nil {
			return err
		}
		if part.Completed {
			return ErrResultAlreadyRecorded
		}
		now := s.Clock.Now()
		part.Score = score
		part.TimeTakenSec = timeTakenSec
		part.Completed = true
		part.CompletedAt = &now
		return tx.Save(&part).Error
	})
	if err != nil {
		return nil, err
	}
	return &part, nil
}

func (s *TournamentService) completedParticipants(tx *gorm.DB, id string) ([]models.TournamentParticipation, error) {
	var parts []models.TournamentParticipation
	err := tx.Where("tournament_id = ? AND completed = ?", id, true).
		Order("score DESC").
		Order("time_taken_sec ASC").
		Order("completed_at ASC").
		Find(&parts).Error
	return parts, err
}

// FinalizeTournament ranks finishers by score, then by time, and credits
// each one's XP and prize. It runs once per tournament.
func (s *TournamentService) FinalizeTournament(ctx context.Context, id string) ([]models.TournamentParticipation, error) {
	var results []models.TournamentParticipation
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := s.lockTournament(tx, id)
		if err != nil {
			return err
		}
		switch t.Status {
		case models.TournamentCompleted, models.TournamentCancelled:
			return ErrTournamentFinalized
		case models.TournamentActive:
		default:
			return ErrTournamentNotActive
		}

		var prizes []models.TournamentPrize
		if err := tx.Where("tournament_id = ?", id).Find(&prizes).Error; err != nil {
			return err
		}
		prizeByRank := make(map[int]models.TournamentPrize, len(prizes))
		for _, p := range prizes {
			prizeByRank[p.Rank] = p
		}

		parts, err := s.completedParticipants(tx, id)
		if err != nil {
			return err
		}
		for i := range parts {
			p := &parts[i]
			rank := i + 1
			prize := prizeByRank[rank]
			xp := TournamentXPForRank(rank)

			if _, _, err := s.Progression.UpdateTx(ctx, tx, p.ExternalUserID, func(e *Engine) error {
				return e.CompleteTournament(ctx, id, rank, xp, prize.Coins, prize.Gems, prize.BadgeID)
			}); err != nil {
				return fmt.Errorf("credit %s: %w", p.ExternalUserID, err)
			}

			p.FinalRank = rank
			p.XPEarned = xp
			p.CoinsEarned = prize.Coins
			p.GemsEarned = prize.Gems
			p.BadgeAwarded = prize.BadgeID
			if err := tx.Save(p).Error; err != nil {
				return err
			}
		}

		now := s.Clock.Now()
		if err := tx.Model(t).Updates(map[string]interface{}{
			"status":       models.TournamentCompleted,
			"finalized_at": now,
		}).Error; err != nil {
			return err
		}
		results = parts
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("🏆 [TOURNAMENT] finalized %s with %d ranked participants", id, len(results))
	return results, nil
}

// Leaderboard lists finishers in ranking order. Before finalization ranks
// are provisional.
func (s *TournamentService) Leaderboard(ctx context.Context, id string) ([]models.LeaderboardEntry, error) {
	if _, err := s.GetTournament(ctx, id); err != nil {
		return nil, err
	}
	parts, err := s.completedParticipants(s.DB.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	entries := make([]models.LeaderboardEntry, len(parts))
	for i, p := range parts {
		rank := p.FinalRank
		if rank == 0 {
			rank = i + 1
		}
		entries[i] = models.LeaderboardEntry{
			UserID:      p.ExternalUserID,
			Score:       p.Score,
			Rank:        rank,
			TimeTaken:   p.TimeTakenSec,
			CompletedAt: p.CompletedAt,
		}
	}
	return entries, nil
}
