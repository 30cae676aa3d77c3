package services

import (
	"context"

	"digidost/models"
)

// BadgeStatus is one catalog badge as seen by a particular user.
type BadgeStatus struct {
	models.BadgeDefinition
	Earned   bool    `json:"earned"`
	Progress float64 `json:"progress"`
}

type AchievementStatus struct {
	models.AchievementDefinition
	Unlocked bool    `json:"unlocked"`
	Progress float64 `json:"progress"`
}

type BadgeService struct {
	Progression *ProgressionService
}

func NewBadgeService(p *ProgressionService) *BadgeService {
	return &BadgeService{Progression: p}
}

// AutoAwardBadges unlocks everything the user currently qualifies for and
// returns the newly unlocked ids.
func (s *BadgeService) AutoAwardBadges(ctx context.Context, userID string) ([]string, error) {
	var unlocked []string
	_, _, err := s.Progression.Update(ctx, userID, func(e *Engine) error {
		var err error
		unlocked, err = e.EvaluateUnlocks(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return unlocked, nil
}

// Overview lists every catalog badge and achievement with the user's progress.
func (s *BadgeService) Overview(ctx context.Context, userID string) ([]BadgeStatus, []AchievementStatus, error) {
	var (
		badges       []BadgeStatus
		achievements []AchievementStatus
	)
	_, _, err := s.Progression.Update(ctx, userID, func(e *Engine) error {
		for _, b := range s.Progression.Catalog.Badges() {
			st := BadgeStatus{BadgeDefinition: b, Earned: e.state.HasBadge(b.ID)}
			if st.Earned {
				st.Progress = 100
			} else {
				st.Progress = e.CheckBadgeProgress(b.ID)
			}
			badges = append(badges, st)
		}
		for _, a := range s.Progression.Catalog.Achievements() {
			st := AchievementStatus{AchievementDefinition: a, Unlocked: e.state.HasAchievement(a.ID)}
			if st.Unlocked {
				st.Progress = 100
			} else {
				st.Progress = e.CheckAchievementProgress(a.ID)
			}
			achievements = append(achievements, st)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return badges, achievements, nil
}

// BadgeProgress reports progress towards one badge; ok is false for ids
// missing from the catalog.
func (s *BadgeService) BadgeProgress(ctx context.Context, userID, badgeID string) (progress float64, ok bool, err error) {
	if _, ok := s.Progression.Catalog.Badge(badgeID); !ok {
		return 0, false, nil
	}
	_, _, err = s.Progression.Update(ctx, userID, func(e *Engine) error {
		progress = e.CheckBadgeProgress(badgeID)
		return nil
	})
	return progress, true, err
}

func (s *BadgeService) AchievementProgress(ctx context.Context, userID, achievementID string) (progress float64, ok bool, err error) {
	if _, ok := s.Progression.Catalog.Achievement(achievementID); !ok {
		return 0, false, nil
	}
	_, _, err = s.Progression.Update(ctx, userID, func(e *Engine) error {
		progress = e.CheckAchievementProgress(achievementID)
		return nil
	})
	return progress, true, err
}
