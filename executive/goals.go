package executive

import (
	"context"
	"errors"

	"bitbucket.org/mmdatafocus/ops_backend/config"
	"bitbucket.org/mmdatafocus/ops_backend/models"
	"bitbucket.org/mmdatafocus/ops_backend/scoring"
	"bitbucket.org/mmdatafocus/ops_backend/store"
	"bitbucket.org/mmdatafocus/ops_backend/utils"
)

type GoalService struct {
	Deps
}

func NewGoalService(d Deps) *GoalService {
	return &GoalService{Deps: d.withDefaults()}
}

// Refresh recomputes status and progress of every goal and returns how many changed.
func (s *GoalService) Refresh(ctx context.Context) (int, error) {
	now := s.Now()
	changed := 0
	err := s.Store.Transaction(ctx, store.ReadWrite, []string{models.CollectionStrategicGoals}, func(tx store.Tx) error {
		goals, err := store.Query[models.StrategicGoal](tx, models.CollectionStrategicGoals)
		if err != nil {
			return err
		}
		for _, g := range goals {
			status, progress := scoring.GoalStatus(g, now, s.Thresholds)
			if status == g.Status && progress == g.Progress {
				continue
			}
			if err := tx.Update(models.CollectionStrategicGoals, g.Id, map[string]any{
				"status":     status,
				"progress":   progress,
				"updated_at": now,
			}); err != nil {
				return err
			}
			changed++
		}
		return nil
	})
	if err != nil {
		config.LogError(s.Logger, "executive/goals.go", "Refresh", "update goals", nil, err)
		return 0, err
	}
	return changed, nil
}

// UpdateProgress records a new current value and re-derives the status.
func (s *GoalService) UpdateProgress(ctx context.Context, id string, current float64) (*models.StrategicGoal, error) {
	var out *models.StrategicGoal
	err := s.Store.Transaction(ctx, store.ReadWrite, []string{models.CollectionStrategicGoals}, func(tx store.Tx) error {
		g, err := store.Get[models.StrategicGoal](tx, models.CollectionStrategicGoals, id)
		if errors.Is(err, store.ErrNotFound) {
			return utils.NewNotFoundError(models.CollectionStrategicGoals, id)
		}
		if err != nil {
			return err
		}
		now := s.Now()
		g.CurrentValue = current
		g.Status, g.Progress = scoring.GoalStatus(*g, now, s.Thresholds)
		g.UpdatedAt = now
		out = g
		return tx.Put(models.CollectionStrategicGoals, g.Id, g)
	})
	if err != nil {
		config.LogError(s.Logger, "executive/goals.go", "UpdateProgress", "update goal", id, err)
		return nil, err
	}
	return out, nil
}

func (s *GoalService) List(ctx context.Context) ([]models.StrategicGoal, error) {
	var goals []models.StrategicGoal
	err := store.View(ctx, s.Store, []string{models.CollectionStrategicGoals}, func(tx store.Tx) error {
		var err error
		goals, err = store.Query[models.StrategicGoal](tx, models.CollectionStrategicGoals)
		return err
	})
	return goals, err
}
