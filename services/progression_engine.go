package services

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"digidost/models"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"gorm.io/datatypes"
)

// Leveling curve: XP to complete level L is floor(LevelXPBase * LevelXPMultiplier^(L-1)).
const (
	LevelXPBase       = 1000
	LevelXPMultiplier = 1.5
	MaxLevel          = 100
)

// Fixed rewards.
const (
	StreakBonusXP    int64 = 10
	StreakBonusCoins int64 = 2
	DailyLoginXP     int64 = 20
	DailyLoginCoins  int64 = 5

	XPPerLesson     int64 = 50
	XPPerQuiz       int64 = 25
	XPPerAssignment int64 = 100
	CoinsPerLesson  int64 = 5
	CoinsPerQuiz    int64 = 3

	StartingCoins int64 = 100
	StartingGems  int64 = 5
)

const dateLayout = "2006-01-02"

// ActivityKind is a learning activity that grants fixed rewards.
type ActivityKind string

const (
	ActivityLesson     ActivityKind = "lesson"
	ActivityQuiz       ActivityKind = "quiz"
	ActivityAssignment ActivityKind = "assignment"
)

// XPForLevel returns the XP required to advance from level to level+1.
// Requirements beyond the int64 range saturate at math.MaxInt64.
func XPForLevel(level int) int64 {
	if level < 1 {
		level = 1
	}
	req := math.Floor(LevelXPBase * math.Pow(LevelXPMultiplier, float64(level-1)))
	if req >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(req)
}

// CalculateLevel derives the level from total XP. It is the only way a level
// is ever produced.
func CalculateLevel(xp int64) int {
	level := 1
	var consumed int64
	for level < MaxLevel {
		req := XPForLevel(level)
		if xp-consumed < req {
			break
		}
		consumed += req
		level++
	}
	return level
}

// xpBeforeLevel is the total XP consumed by levels 1..level-1.
func xpBeforeLevel(level int) int64 {
	var total int64
	for i := 1; i < level; i++ {
		total = addSat(total, XPForLevel(i))
	}
	return total
}

// ProgressToNextLevel returns the percentage [0,100] of the current level
// already covered by xp.
func ProgressToNextLevel(level int, xp int64) float64 {
	if level < 1 {
		level = 1
	}
	current := xp - xpBeforeLevel(level)
	required := XPForLevel(level)
	pct := 100 * float64(current) / float64(required)
	return math.Max(0, math.Min(100, pct))
}

func addSat(a, b int64) int64 {
	if b > 0 && a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}

// ProgressStore loads and saves a user's progression state. Implementations
// own per-user serialization; the engine performs one Save per mutation.
type ProgressStore interface {
	Load(ctx context.Context, userID string) (*models.UserProgress, error)
	Save(ctx context.Context, userID string, prog *models.UserProgress) error
}

// Catalog supplies the badge and achievement definitions the engine evaluates.
type Catalog interface {
	Badge(id string) (models.BadgeDefinition, bool)
	Achievement(id string) (models.AchievementDefinition, bool)
	Badges() []models.BadgeDefinition
	Achievements() []models.AchievementDefinition
}

// NewUserProgress returns the state of a user seen for the first time.
func NewUserProgress(userID string) *models.UserProgress {
	return &models.UserProgress{
		ID:             uuid.NewString(),
		ExternalUserID: userID,
		Level:          1,
		Coins:          StartingCoins,
		Gems:           StartingGems,
	}
}

// Engine applies progression rules to one user's state. It assumes exclusive
// access to the state and does no locking of its own.
type Engine struct {
	userID  string
	state   *models.UserProgress
	store   ProgressStore
	catalog Catalog
	clock   clockwork.Clock
	loc     *time.Location
	onEvent func(models.ProgressEvent)

	pending []models.ProgressEvent
}

type EngineOption func(*Engine)

func WithClock(c clockwork.Clock) EngineOption {
	return func(e *Engine) { e.clock = c }
}

// WithLocation sets the calendar used when the user has no time zone of their own.
func WithLocation(loc *time.Location) EngineOption {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithEventHandler registers fn to receive events after each successful save.
func WithEventHandler(fn func(models.ProgressEvent)) EngineOption {
	return func(e *Engine) { e.onEvent = fn }
}

func NewEngine(userID string, state *models.UserProgress, store ProgressStore, catalog Catalog, opts ...EngineOption) *Engine {
	if state == nil {
		state = NewUserProgress(userID)
	}
	e := &Engine{
		userID:  userID,
		state:   state,
		store:   store,
		catalog: catalog,
		clock:   clockwork.NewRealClock(),
		loc:     time.UTC,
	}
	for _, opt := range opts {
		opt(e)
	}
	// Level is derived; repair any drift from a stored value.
	e.state.Level = CalculateLevel(e.state.XP)
	return e
}

// State returns a copy of the current state.
func (e *Engine) State() *models.UserProgress {
	return e.state.Clone()
}

func (e *Engine) XPForNextLevel() int64 {
	return XPForLevel(e.state.Level)
}

func (e *Engine) ProgressToNextLevel() float64 {
	return ProgressToNextLevel(e.state.Level, e.state.XP)
}

// AddXP credits amount and reports whether the user levelled up.
func (e *Engine) AddXP(ctx context.Context, amount int64) (bool, error) {
	if amount < 0 {
		log.Printf("⚠️  [PROGRESSION] rejected negative XP %d for %s", amount, e.userID)
		return false, nil
	}
	leveledUp := e.grantXP(amount)
	return leveledUp, e.persist(ctx)
}

func (e *Engine) AddCoins(ctx context.Context, amount int64) error {
	if amount < 0 {
		log.Printf("⚠️  [PROGRESSION] rejected negative coin grant %d for %s", amount, e.userID)
		return nil
	}
	e.state.Coins = addSat(e.state.Coins, amount)
	return e.persist(ctx)
}

func (e *Engine) AddGems(ctx context.Context, amount int64) error {
	if amount < 0 {
		log.Printf("⚠️  [PROGRESSION] rejected negative gem grant %d for %s", amount, e.userID)
		return nil
	}
	e.state.Gems = addSat(e.state.Gems, amount)
	return e.persist(ctx)
}

// SpendCoins deducts amount iff the balance covers it. Nothing changes when
// it returns false.
func (e *Engine) SpendCoins(ctx context.Context, amount int64) (bool, error) {
	return e.spend(ctx, &e.state.Coins, amount, "coins")
}

func (e *Engine) SpendGems(ctx context.Context, amount int64) (bool, error) {
	return e.spend(ctx, &e.state.Gems, amount, "gems")
}

func (e *Engine) spend(ctx context.Context, balance *int64, amount int64, currency string) (bool, error) {
	if amount < 0 {
		log.Printf("⚠️  [PROGRESSION] rejected negative %s spend %d for %s", currency, amount, e.userID)
		return false, nil
	}
	if *balance < amount {
		return false, nil
	}
	*balance -= amount
	if err := e.persist(ctx); err != nil {
		*balance += amount
		return false, err
	}
	return true, nil
}

// UpdateStreak records a login for today's calendar date. Calling it again
// on the same day changes nothing.
func (e *Engine) UpdateStreak(ctx context.Context) error {
	if !e.applyStreak() {
		return nil
	}
	return e.persist(ctx)
}

// CheckDailyLogin is the session-start entry point: it updates the streak and
// grants the daily bonus at most once per calendar day.
func (e *Engine) CheckDailyLogin(ctx context.Context) error {
	today, _ := e.calendarDays()
	if e.state.LastLoginDate != nil && *e.state.LastLoginDate == today {
		return nil
	}
	e.applyStreak()
	e.grantXP(DailyLoginXP)
	e.state.Coins = addSat(e.state.Coins, DailyLoginCoins)
	e.emit(models.ProgressEvent{
		Type:    models.EventDailyBonus,
		XP:      DailyLoginXP,
		Coins:   DailyLoginCoins,
		Message: localize(e.state.Language, msgDailyBonus, DailyLoginXP, DailyLoginCoins),
	})
	return e.persist(ctx)
}

func (e *Engine) UnlockBadge(ctx context.Context, badgeID string) error {
	if !e.unlockBadge(badgeID) {
		return nil
	}
	return e.persist(ctx)
}

func (e *Engine) UnlockAchievement(ctx context.Context, achievementID string) error {
	if !e.unlockAchievement(achievementID) {
		return nil
	}
	return e.persist(ctx)
}

// CheckBadgeProgress returns how far [0,100] the user is towards the badge.
// Unknown badges and unrecognized criteria yield 0.
func (e *Engine) CheckBadgeProgress(badgeID string) float64 {
	def, ok := e.catalog.Badge(badgeID)
	if !ok {
		return 0
	}
	return e.criteriaProgress(def.Criteria)
}

func (e *Engine) CheckAchievementProgress(achievementID string) float64 {
	def, ok := e.catalog.Achievement(achievementID)
	if !ok {
		return 0
	}
	return e.criteriaProgress(def.Criteria)
}

// RecordActivity credits a completed learning activity and unlocks whatever
// badges and achievements it completes.
func (e *Engine) RecordActivity(ctx context.Context, kind ActivityKind) error {
	switch kind {
	case ActivityLesson:
		e.state.LessonsCompleted++
		e.grantXP(XPPerLesson)
		e.state.Coins = addSat(e.state.Coins, CoinsPerLesson)
	case ActivityQuiz:
		e.state.QuizzesCompleted++
		e.grantXP(XPPerQuiz)
		e.state.Coins = addSat(e.state.Coins, CoinsPerQuiz)
	case ActivityAssignment:
		e.state.AssignmentsCompleted++
		e.grantXP(XPPerAssignment)
	default:
		log.Printf("⚠️  [PROGRESSION] unknown activity %q for %s", kind, e.userID)
		return nil
	}
	e.autoAward()
	return e.persist(ctx)
}

// EvaluateUnlocks unlocks every catalog entry whose criteria are met and
// returns the ids that were newly unlocked.
func (e *Engine) EvaluateUnlocks(ctx context.Context) ([]string, error) {
	unlocked := e.autoAward()
	if len(unlocked) == 0 {
		return nil, nil
	}
	return unlocked, e.persist(ctx)
}

// CompleteTournament credits a finished tournament: the participation XP, any
// prize and the tournaments counter, in one save.
func (e *Engine) CompleteTournament(ctx context.Context, tournamentID string, rank int, xp, coins, gems int64, badgeID string) error {
	e.state.TournamentsCompleted++
	if xp > 0 {
		e.grantXP(xp)
	}
	if coins > 0 {
		e.state.Coins = addSat(e.state.Coins, coins)
	}
	if gems > 0 {
		e.state.Gems = addSat(e.state.Gems, gems)
	}
	if coins > 0 || gems > 0 {
		e.emit(models.ProgressEvent{
			Type:     models.EventTournamentPrize,
			RefID:    tournamentID,
			Coins:    coins,
			Gems:     gems,
			Message:  localize(e.state.Language, msgTournamentPrize, rank, coins, gems),
			Metadata: datatypes.JSONMap{"rank": rank, "badge_id": badgeID},
		})
	}
	if badgeID != "" {
		e.unlockBadge(badgeID)
	}
	e.autoAward()
	return e.persist(ctx)
}

func (e *Engine) UpdateRank(ctx context.Context, rank int) error {
	if rank < 0 {
		return nil
	}
	e.state.Rank = rank
	return e.persist(ctx)
}

func (e *Engine) ResetWeeklyXP(ctx context.Context) error {
	e.state.WeeklyXP = 0
	return e.persist(ctx)
}

func (e *Engine) ResetMonthlyXP(ctx context.Context) error {
	e.state.MonthlyXP = 0
	return e.persist(ctx)
}

// SetPreferences stores the user's time zone and language. Invalid values
// are ignored.
func (e *Engine) SetPreferences(ctx context.Context, timeZone, lang string) error {
	if timeZone != "" {
		if _, err := time.LoadLocation(timeZone); err != nil {
			log.Printf("⚠️  [PROGRESSION] ignoring invalid time zone %q for %s", timeZone, e.userID)
		} else {
			e.state.TimeZone = timeZone
		}
	}
	if lang != "" {
		if tag, ok := SupportedLanguage(lang); ok {
			e.state.Language = tag
		} else {
			log.Printf("⚠️  [PROGRESSION] ignoring unsupported language %q for %s", lang, e.userID)
		}
	}
	return e.persist(ctx)
}

func (e *Engine) grantXP(amount int64) bool {
	oldLevel := e.state.Level
	e.state.XP = addSat(e.state.XP, amount)
	e.state.WeeklyXP = addSat(e.state.WeeklyXP, amount)
	e.state.MonthlyXP = addSat(e.state.MonthlyXP, amount)
	e.state.Level = CalculateLevel(e.state.XP)

	if e.state.Level <= oldLevel {
		return false
	}
	now := e.clock.Now()
	e.state.LastLevelUpAt = &now
	e.emit(models.ProgressEvent{
		Type:     models.EventLevelUp,
		Level:    e.state.Level,
		XP:       e.state.XP,
		Message:  localize(e.state.Language, msgLevelUp, e.state.Level),
		Metadata: datatypes.JSONMap{"from_level": oldLevel, "to_level": e.state.Level},
	})
	log.Printf("🎉 Level up: %s → Lvl=%d (XP=%d)", e.userID, e.state.Level, e.state.XP)
	return true
}

func (e *Engine) applyStreak() bool {
	today, yesterday := e.calendarDays()
	last := e.state.LastLoginDate

	switch {
	case last != nil && *last == yesterday:
		e.state.CurrentStreak++
		if e.state.CurrentStreak > e.state.LongestStreak {
			e.state.LongestStreak = e.state.CurrentStreak
		}
		e.state.LastLoginDate = &today
		e.grantXP(StreakBonusXP)
		e.state.Coins = addSat(e.state.Coins, StreakBonusCoins)
		e.emit(models.ProgressEvent{
			Type:    models.EventStreakContinued,
			XP:      StreakBonusXP,
			Coins:   StreakBonusCoins,
			Message: localize(e.state.Language, msgStreak, e.state.CurrentStreak, StreakBonusXP, StreakBonusCoins),
		})
		return true
	case last == nil || *last != today:
		e.state.CurrentStreak = 1
		if e.state.LongestStreak < 1 {
			e.state.LongestStreak = 1
		}
		e.state.LastLoginDate = &today
		return true
	default:
		return false
	}
}

// calendarDays returns today's and yesterday's dates in the user's calendar.
func (e *Engine) calendarDays() (today, yesterday string) {
	now := e.clock.Now().In(e.location())
	today = now.Format(dateLayout)
	yesterday = time.Date(now.Year(), now.Month(), now.Day()-1, 12, 0, 0, 0, now.Location()).Format(dateLayout)
	return today, yesterday
}

func (e *Engine) location() *time.Location {
	if e.state.TimeZone == "" {
		return e.loc
	}
	loc, err := time.LoadLocation(e.state.TimeZone)
	if err != nil {
		return e.loc
	}
	return loc
}

func (e *Engine) unlockBadge(badgeID string) bool {
	def, ok := e.catalog.Badge(badgeID)
	if !ok {
		log.Printf("⚠️  [PROGRESSION] unknown badge %q for %s", badgeID, e.userID)
		return false
	}
	if e.state.HasBadge(badgeID) {
		return false
	}
	e.state.Badges = append(e.state.Badges, models.UserBadge{
		ID:             uuid.NewString(),
		ExternalUserID: e.userID,
		BadgeID:        badgeID,
		EarnedAt:       e.clock.Now(),
		Progress:       100,
	})
	e.emit(models.ProgressEvent{
		Type:     models.EventBadgeUnlocked,
		RefID:    badgeID,
		Message:  localize(e.state.Language, msgBadgeUnlocked, def.Name),
		Metadata: datatypes.JSONMap{"name": def.Name, "rarity": def.Rarity},
	})
	log.Printf("🎖️ Badge unlocked: %s → %s", def.Name, e.userID)
	return true
}

func (e *Engine) unlockAchievement(achievementID string) bool {
	def, ok := e.catalog.Achievement(achievementID)
	if !ok {
		log.Printf("⚠️  [PROGRESSION] unknown achievement %q for %s", achievementID, e.userID)
		return false
	}
	if e.state.HasAchievement(achievementID) {
		return false
	}
	e.state.Achievements = append(e.state.Achievements, models.UserAchievement{
		ID:             uuid.NewString(),
		ExternalUserID: e.userID,
		AchievementID:  achievementID,
		UnlockedAt:     e.clock.Now(),
	})
	if def.XPReward > 0 {
		e.grantXP(def.XPReward)
	}
	if def.CoinReward > 0 {
		e.state.Coins = addSat(e.state.Coins, def.CoinReward)
	}
	e.emit(models.ProgressEvent{
		Type:     models.EventAchievementUnlocked,
		RefID:    achievementID,
		XP:       def.XPReward,
		Coins:    def.CoinReward,
		Message:  localize(e.state.Language, msgAchievementUnlocked, def.Title, def.XPReward, def.CoinReward),
		Metadata: datatypes.JSONMap{"title": def.Title, "rarity": def.Rarity},
	})
	log.Printf("🏆 Achievement unlocked: %s → %s", def.Title, e.userID)
	return true
}

// autoAward unlocks achievements first so that social badges counting
// achievements see them in the same pass.
func (e *Engine) autoAward() []string {
	var unlocked []string
	for _, a := range e.catalog.Achievements() {
		if e.state.HasAchievement(a.ID) || e.criteriaProgress(a.Criteria) < 100 {
			continue
		}
		if e.unlockAchievement(a.ID) {
			unlocked = append(unlocked, a.ID)
		}
	}
	for _, b := range e.catalog.Badges() {
		if e.state.HasBadge(b.ID) || e.criteriaProgress(b.Criteria) < 100 {
			continue
		}
		if e.unlockBadge(b.ID) {
			unlocked = append(unlocked, b.ID)
		}
	}
	return unlocked
}

func (e *Engine) criteriaProgress(c models.Criteria) float64 {
	if c.Target <= 0 {
		return 0
	}
	var value int64
	switch c.Kind {
	case models.CriteriaXP:
		switch c.Timeframe {
		case models.TimeframeWeekly:
			value = e.state.WeeklyXP
		case models.TimeframeMonthly:
			value = e.state.MonthlyXP
		default:
			value = e.state.XP
		}
	case models.CriteriaStreak:
		value = int64(e.state.CurrentStreak)
	case models.CriteriaSocial:
		value = int64(len(e.state.Achievements))
	case models.CriteriaLessons:
		value = e.state.LessonsCompleted
	case models.CriteriaAssignments:
		value = e.state.AssignmentsCompleted
	case models.CriteriaTournaments:
		value = e.state.TournamentsCompleted
	default:
		return 0
	}
	return math.Max(0, math.Min(100, 100*float64(value)/float64(c.Target)))
}

func (e *Engine) emit(ev models.ProgressEvent) {
	ev.ExternalUserID = e.userID
	ev.CreatedAt = e.clock.Now()
	e.pending = append(e.pending, ev)
}

func (e *Engine) persist(ctx context.Context) error {
	events := e.pending
	e.pending = nil
	if err := e.store.Save(ctx, e.userID, e.state); err != nil {
		return fmt.Errorf("save progress for %s: %w", e.userID, err)
	}
	if e.onEvent != nil {
		for _, ev := range events {
			e.onEvent(ev)
		}
	}
	return nil
}
