package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"digidost/models"

	"github.com/jonboulle/clockwork"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "progress.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatal(err)
	}
	// sqlite allows one writer; keep every query on the same connection.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(
		&models.UserProgress{},
		&models.UserBadge{},
		&models.UserAchievement{},
		&models.ProgressEvent{},
		&models.Tournament{},
		&models.TournamentPrize{},
		&models.TournamentParticipation{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestProgressionService(t *testing.T) (*ProgressionService, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(testNow)
	return NewProgressionService(newTestDB(t), DefaultCatalog(), clock, nil), clock
}

func TestGetCreatesStartingRecordOnce(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestProgressionService(t)

	prog, err := svc.Get(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if prog.Level != 1 || prog.XP != 0 || prog.Coins != StartingCoins || prog.Gems != StartingGems {
		t.Errorf("starting state = %+v", prog)
	}
	if _, err := svc.Get(ctx, "alice"); err != nil {
		t.Fatal(err)
	}

	var count int64
	svc.DB.Model(&models.UserProgress{}).Where("external_user_id = ?", "alice").Count(&count)
	if count != 1 {
		t.Errorf("rows = %d, want 1", count)
	}
}

func TestUpdatePersistsStateAndEvents(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestProgressionService(t)

	state, events, err := svc.Update(ctx, "alice", func(e *Engine) error {
		_, err := e.AddXP(ctx, 1000)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if state.Level != 2 || len(events) != 1 || events[0].Type != models.EventLevelUp {
		t.Fatalf("state level %d, events %+v", state.Level, events)
	}

	reloaded, err := svc.Get(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.XP != 1000 || reloaded.Level != 2 || reloaded.WeeklyXP != 1000 {
		t.Errorf("reloaded = xp %d level %d weekly %d", reloaded.XP, reloaded.Level, reloaded.WeeklyXP)
	}

	stored, err := svc.RecentEvents(ctx, "alice", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 1 || stored[0].Message != "Level up! You reached level 2" || stored[0].ID == "" {
		t.Fatalf("stored events = %+v", stored)
	}
	if meta := stored[0].Metadata; metaValue(meta, "from_level") != "1" || metaValue(meta, "to_level") != "2" {
		t.Errorf("level up metadata = %v", meta)
	}
}

// metaValue reads a key from stored event metadata; numbers come back as
// json.Number.
func metaValue(m datatypes.JSONMap, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	return fmt.Sprint(v)
}

func TestUpdateRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestProgressionService(t)
	boom := errors.New("boom")

	_, _, err := svc.Update(ctx, "alice", func(e *Engine) error {
		if _, err := e.SpendCoins(ctx, 30); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	prog, err := svc.Get(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if prog.Coins != StartingCoins {
		t.Errorf("coins = %d, want %d after rollback", prog.Coins, StartingCoins)
	}
}

func TestUnlocksAreStoredOnce(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestProgressionService(t)

	for i := 0; i < 2; i++ {
		if _, _, err := svc.Update(ctx, "alice", func(e *Engine) error {
			if err := e.UnlockBadge(ctx, "streak-7"); err != nil {
				return err
			}
			return e.UnlockAchievement(ctx, "first-assignment")
		}); err != nil {
			t.Fatal(err)
		}
	}

	var badges, achievements int64
	svc.DB.Model(&models.UserBadge{}).Where("external_user_id = ?", "alice").Count(&badges)
	svc.DB.Model(&models.UserAchievement{}).Where("external_user_id = ?", "alice").Count(&achievements)
	if badges != 1 || achievements != 1 {
		t.Errorf("rows = %d badges, %d achievements; want 1 each", badges, achievements)
	}

	prog, _ := svc.Get(ctx, "alice")
	if prog.XP != 50 || prog.Coins != StartingCoins+10 {
		t.Errorf("achievement reward applied %d XP / %d coins", prog.XP, prog.Coins-StartingCoins)
	}
	if !prog.HasBadge("streak-7") || !prog.HasAchievement("first-assignment") {
		t.Error("unlocks not loaded back")
	}
}

func TestRecordActivityPerfectQuiz(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestProgressionService(t)

	prog, _, err := svc.RecordActivity(ctx, "alice", ActivityQuiz, 80)
	if err != nil {
		t.Fatal(err)
	}
	if prog.HasAchievement(PerfectQuizAchievementID) {
		t.Error("non-perfect quiz unlocked the achievement")
	}

	prog, _, err = svc.RecordActivity(ctx, "alice", ActivityQuiz, 100)
	if err != nil {
		t.Fatal(err)
	}
	if !prog.HasAchievement(PerfectQuizAchievementID) {
		t.Fatal("perfect quiz did not unlock the achievement")
	}
	if prog.QuizzesCompleted != 2 || prog.XP != 2*XPPerQuiz+250 {
		t.Errorf("quizzes=%d xp=%d", prog.QuizzesCompleted, prog.XP)
	}
}

func seedXP(t *testing.T, svc *ProgressionService, userID string, xp int64) {
	t.Helper()
	ctx := context.Background()
	if _, _, err := svc.Update(ctx, userID, func(e *Engine) error {
		_, err := e.AddXP(ctx, xp)
		return err
	}); err != nil {
		t.Fatal(err)
	}
}

func TestLeaderboardAndRanks(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestProgressionService(t)
	seedXP(t, svc, "carol", 500)
	seedXP(t, svc, "bob", 1500)
	seedXP(t, svc, "alice", 1500)

	entries, err := svc.Leaderboard(ctx, PeriodAllTime, 10)
	if err != nil {
		t.Fatal(err)
	}
	want := []models.LeaderboardEntry{
		{UserID: "alice", Score: 1500, Rank: 1},
		{UserID: "bob", Score: 1500, Rank: 1},
		{UserID: "carol", Score: 500, Rank: 3},
	}
	if len(entries) != len(want) {
		t.Fatalf("entries = %+v", entries)
	}
	for i := range want {
		if entries[i].UserID != want[i].UserID || entries[i].Score != want[i].Score || entries[i].Rank != want[i].Rank {
			t.Errorf("entry %d = %+v, want %+v", i, entries[i], want[i])
		}
	}

	if n, err := svc.RefreshRanks(ctx); err != nil || n != 3 {
		t.Fatalf("RefreshRanks = %d, %v", n, err)
	}
	carol, _ := svc.Get(ctx, "carol")
	alice, _ := svc.Get(ctx, "alice")
	if carol.Rank != 3 || alice.Rank != 1 {
		t.Errorf("ranks: alice %d carol %d", alice.Rank, carol.Rank)
	}

	if _, err := svc.Leaderboard(ctx, "yearly", 10); err == nil {
		t.Error("expected error for unknown period")
	}
}

func TestBulkResets(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestProgressionService(t)
	seedXP(t, svc, "alice", 300)
	seedXP(t, svc, "bob", 700)

	if n, err := svc.ResetWeeklyXP(ctx); err != nil || n != 2 {
		t.Fatalf("ResetWeeklyXP = %d, %v", n, err)
	}
	weekly, _ := svc.Leaderboard(ctx, PeriodWeekly, 10)
	for _, e := range weekly {
		if e.Score != 0 {
			t.Errorf("weekly score for %s = %d after reset", e.UserID, e.Score)
		}
	}
	monthly, _ := svc.Leaderboard(ctx, PeriodMonthly, 10)
	if len(monthly) != 2 || monthly[0].UserID != "bob" || monthly[0].Score != 700 {
		t.Errorf("monthly = %+v", monthly)
	}

	if n, err := svc.ResetMonthlyXP(ctx); err != nil || n != 2 {
		t.Fatalf("ResetMonthlyXP = %d, %v", n, err)
	}
	alice, _ := svc.Get(ctx, "alice")
	if alice.XP != 300 || alice.MonthlyXP != 0 {
		t.Errorf("alice = xp %d monthly %d", alice.XP, alice.MonthlyXP)
	}
}

func TestEventsSinceAndMarkSeen(t *testing.T) {
	ctx := context.Background()
	svc, clock := newTestProgressionService(t)

	seedXP(t, svc, "alice", 1000)
	cursor := clock.Now().Add(time.Minute)
	clock.Advance(time.Hour)
	seedXP(t, svc, "alice", 1500)

	events, err := svc.EventsSince(ctx, "alice", cursor)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Level != 3 {
		t.Fatalf("events since cursor = %+v", events)
	}

	if err := svc.MarkEventSeen(ctx, "alice", events[0].ID); err != nil {
		t.Fatal(err)
	}
	if err := svc.MarkEventSeen(ctx, "bob", events[0].ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("marking someone else's event: %v", err)
	}
	recent, _ := svc.RecentEvents(ctx, "alice", 10)
	if len(recent) != 2 || !recent[0].Seen || recent[1].Seen {
		t.Errorf("recent = %+v", recent)
	}
}

func TestBadgeServiceOverview(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestProgressionService(t)
	badges := NewBadgeService(svc)

	if _, _, err := svc.RecordActivity(ctx, "alice", ActivityAssignment, 0); err != nil {
		t.Fatal(err)
	}

	list, achievements, err := badges.Overview(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 9 || len(achievements) != 4 {
		t.Fatalf("overview sizes %d/%d", len(list), len(achievements))
	}
	for _, b := range list {
		if b.ID == "homework-hero" && (b.Earned || b.Progress != 20) {
			t.Errorf("homework-hero = %+v, want 20%% and not earned", b)
		}
	}
	for _, a := range achievements {
		if a.ID == "first-assignment" && !a.Unlocked {
			t.Error("first-assignment should be unlocked")
		}
	}

	pct, ok, err := badges.BadgeProgress(ctx, "alice", "homework-hero")
	if err != nil || !ok || pct != 20 {
		t.Errorf("BadgeProgress = %v, %v, %v", pct, ok, err)
	}
	if _, ok, _ := badges.BadgeProgress(ctx, "alice", "nope"); ok {
		t.Error("unknown badge reported as found")
	}

	unlocked, err := badges.AutoAwardBadges(ctx, "alice")
	if err != nil || len(unlocked) != 0 {
		t.Errorf("AutoAwardBadges = %v, %v; nothing new expected", unlocked, err)
	}
}
