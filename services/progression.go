package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"digidost/models"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormProgressStore persists progression state with gorm. When DB is a
// transaction, Load locks the user's row until it commits.
type GormProgressStore struct {
	DB *gorm.DB
}

// Load returns the user's state, creating the starting record on first use.
func (s *GormProgressStore) Load(ctx context.Context, userID string) (*models.UserProgress, error) {
	prog, err := s.lockAndFetch(ctx, userID)
	if err == nil {
		return prog, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	fresh := NewUserProgress(userID)
	if err := s.DB.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(fresh).Error; err != nil {
		return nil, fmt.Errorf("create progress for %s: %w", userID, err)
	}
	log.Printf("🆕 [PROGRESSION] created progress record for %s", userID)
	// A concurrent request may have won the insert; read whichever row exists.
	return s.lockAndFetch(ctx, userID)
}

func (s *GormProgressStore) lockAndFetch(ctx context.Context, userID string) (*models.UserProgress, error) {
	var prog models.UserProgress
	err := s.DB.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Badges").
		Preload("Achievements").
		Where("external_user_id = ?", userID).
		First(&prog).Error
	if err != nil {
		return nil, err
	}
	return &prog, nil
}

// Save writes the scalar state and inserts any unlocks not yet stored.
// Unlock rows are never updated or removed.
func (s *GormProgressStore) Save(ctx context.Context, userID string, prog *models.UserProgress) error {
	db := s.DB.WithContext(ctx)
	if err := db.Omit(clause.Associations).Save(prog).Error; err != nil {
		return err
	}
	if len(prog.Badges) > 0 {
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&prog.Badges).Error; err != nil {
			return fmt.Errorf("store badges: %w", err)
		}
	}
	if len(prog.Achievements) > 0 {
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&prog.Achievements).Error; err != nil {
			return fmt.Errorf("store achievements: %w", err)
		}
	}
	return nil
}

// ProgressSnapshot is the read model returned to clients.
type ProgressSnapshot struct {
	*models.UserProgress
	XPForNextLevel      int64   `json:"xp_for_next_level"`
	ProgressToNextLevel float64 `json:"progress_to_next_level"`
}

func NewProgressSnapshot(p *models.UserProgress) ProgressSnapshot {
	return ProgressSnapshot{
		UserProgress:        p,
		XPForNextLevel:      XPForLevel(p.Level),
		ProgressToNextLevel: ProgressToNextLevel(p.Level, p.XP),
	}
}

type ProgressionService struct {
	DB       *gorm.DB
	Catalog  Catalog
	Clock    clockwork.Clock
	Location *time.Location
}

func NewProgressionService(db *gorm.DB, catalog Catalog, clock clockwork.Clock, loc *time.Location) *ProgressionService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &ProgressionService{DB: db, Catalog: catalog, Clock: clock, Location: loc}
}

// Update runs fn against the user's engine in one transaction. The row stays
// locked for the duration so concurrent requests for the same user serialize.
// Events emitted by fn are stored in the same transaction.
func (s *ProgressionService) Update(ctx context.Context, userID string, fn func(*Engine) error) (*models.UserProgress, []models.ProgressEvent, error) {
	var (
		state  *models.UserProgress
		events []models.ProgressEvent
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		state, events, err = s.UpdateTx(ctx, tx, userID, fn)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return state, events, nil
}

// UpdateTx is Update inside a caller-owned transaction.
func (s *ProgressionService) UpdateTx(ctx context.Context, tx *gorm.DB, userID string, fn func(*Engine) error) (*models.UserProgress, []models.ProgressEvent, error) {
	store := &GormProgressStore{DB: tx}
	prog, err := store.Load(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	var events []models.ProgressEvent
	eng := NewEngine(userID, prog, store, s.Catalog,
		WithClock(s.Clock),
		WithLocation(s.Location),
		WithEventHandler(func(ev models.ProgressEvent) {
			events = append(events, ev)
		}),
	)
	if err := fn(eng); err != nil {
		return nil, nil, err
	}

	if len(events) > 0 {
		for i := range events {
			events[i].ID = uuid.NewString()
		}
		if err := tx.WithContext(ctx).Create(&events).Error; err != nil {
			return nil, nil, fmt.Errorf("store progress events: %w", err)
		}
	}
	return eng.State(), events, nil
}

// Get returns the user's state, creating it on first access.
func (s *ProgressionService) Get(ctx context.Context, userID string) (*models.UserProgress, error) {
	state, _, err := s.Update(ctx, userID, func(*Engine) error { return nil })
	return state, err
}

// A quiz scored at PerfectQuizScore also unlocks this achievement.
const (
	PerfectQuizScore         = 100
	PerfectQuizAchievementID = "quiz-champion"
)

// ValidActivity reports whether kind is a known learning activity.
func ValidActivity(kind ActivityKind) bool {
	switch kind {
	case ActivityLesson, ActivityQuiz, ActivityAssignment:
		return true
	}
	return false
}

// RecordActivity credits a completed activity. score is only meaningful for
// quizzes.
func (s *ProgressionService) RecordActivity(ctx context.Context, userID string, kind ActivityKind, score int) (*models.UserProgress, []models.ProgressEvent, error) {
	return s.Update(ctx, userID, func(e *Engine) error {
		if err := e.RecordActivity(ctx, kind); err != nil {
			return err
		}
		if kind == ActivityQuiz && score >= PerfectQuizScore {
			return e.UnlockAchievement(ctx, PerfectQuizAchievementID)
		}
		return nil
	})
}

// LeaderboardPeriod selects which XP accumulator ranks users.
type LeaderboardPeriod string

const (
	PeriodAllTime LeaderboardPeriod = "all"
	PeriodWeekly  LeaderboardPeriod = "weekly"
	PeriodMonthly LeaderboardPeriod = "monthly"
)

func (p LeaderboardPeriod) Valid() bool {
	_, ok := p.column()
	return ok
}

func (p LeaderboardPeriod) column() (string, bool) {
	switch p {
	case PeriodAllTime, "":
		return "xp", true
	case PeriodWeekly:
		return "weekly_xp", true
	case PeriodMonthly:
		return "monthly_xp", true
	}
	return "", false
}

// Leaderboard returns the top users by XP for the period. Users with equal
// XP share a rank.
func (s *ProgressionService) Leaderboard(ctx context.Context, period LeaderboardPeriod, limit int) ([]models.LeaderboardEntry, error) {
	col, ok := period.column()
	if !ok {
		return nil, fmt.Errorf("unknown leaderboard period %q", period)
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var entries []models.LeaderboardEntry
	err := s.DB.WithContext(ctx).
		Model(&models.UserProgress{}).
		Select("external_user_id AS user_id, " + col + " AS score").
		Order(col + " DESC").
		Order("external_user_id ASC").
		Limit(limit).
		Scan(&entries).Error
	if err != nil {
		return nil, err
	}
	assignRanks(entries)
	return entries, nil
}

// assignRanks gives competition ranks (1, 2, 2, 4) to entries sorted by score.
func assignRanks(entries []models.LeaderboardEntry) {
	for i := range entries {
		if i > 0 && entries[i].Score == entries[i-1].Score {
			entries[i].Rank = entries[i-1].Rank
			continue
		}
		entries[i].Rank = i + 1
	}
}

// RefreshRanks recomputes every user's global rank from total XP.
func (s *ProgressionService) RefreshRanks(ctx context.Context) (int64, error) {
	res := s.DB.WithContext(ctx).Exec(`UPDATE user_progresses SET "rank" = (
		SELECT COUNT(*) + 1 FROM user_progresses p2
		WHERE p2.xp > user_progresses.xp AND p2.deleted_at IS NULL
	) WHERE deleted_at IS NULL`)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// ResetWeeklyXP zeroes every user's weekly accumulator.
func (s *ProgressionService) ResetWeeklyXP(ctx context.Context) (int64, error) {
	res := s.DB.WithContext(ctx).
		Model(&models.UserProgress{}).
		Where("weekly_xp <> 0").
		Update("weekly_xp", 0)
	return res.RowsAffected, res.Error
}

func (s *ProgressionService) ResetMonthlyXP(ctx context.Context) (int64, error) {
	res := s.DB.WithContext(ctx).
		Model(&models.UserProgress{}).
		Where("monthly_xp <> 0").
		Update("monthly_xp", 0)
	return res.RowsAffected, res.Error
}

// RecentEvents returns the user's newest events first.
func (s *ProgressionService) RecentEvents(ctx context.Context, userID string, limit int) ([]models.ProgressEvent, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var events []models.ProgressEvent
	err := s.DB.WithContext(ctx).
		Where("external_user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// EventsSince returns events created at or after since, oldest first.
func (s *ProgressionService) EventsSince(ctx context.Context, userID string, since time.Time) ([]models.ProgressEvent, error) {
	var events []models.ProgressEvent
	err := s.DB.WithContext(ctx).
		Where("external_user_id = ? AND created_at >= ?", userID, since).
		Order("created_at ASC").
		Find(&events).Error
	return events, err
}

// MarkEventSeen flags one of the user's events as shown.
func (s *ProgressionService) MarkEventSeen(ctx context.Context, userID, eventID string) error {
	res := s.DB.WithContext(ctx).
		Model(&models.ProgressEvent{}).
		Where("id = ? AND external_user_id = ?", eventID, userID).
		Update("seen", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
