package scheduler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/ops_backend/alerts"
	"bitbucket.org/mmdatafocus/ops_backend/config"
	"bitbucket.org/mmdatafocus/ops_backend/executive"
	"bitbucket.org/mmdatafocus/ops_backend/models"
	"bitbucket.org/mmdatafocus/ops_backend/workflow"
)

const (
	JobDetectors      = "detectors"
	JobSnoozeWake     = "snooze-wake"
	JobHealthSnapshot = "health-snapshot"
	JobGoalRefresh    = "goal-refresh"
	JobKPIRollup      = "kpi-rollup"
	JobOutboxDrain    = "outbox-drain"
)

// Services are the collaborators the standard jobs call into. Nil members
// leave their job unregistered.
type Services struct {
	Monitor    *alerts.Monitor
	Detectors  []alerts.Detector
	Health     *executive.HealthService
	KPI        *executive.KPIService
	Goals      *executive.GoalService
	Outbox     *workflow.OutboxDispatcher
	Logger     *logrus.Logger
	Now        func() time.Time
	Thresholds config.Thresholds
}

// RegisterDefaults wires the standard jobs on their configured schedules.
func (s *Scheduler) RegisterDefaults(svc Services, spec config.ScheduleSettings) error {
	if svc.Now == nil {
		svc.Now = func() time.Time { return time.Now().UTC() }
	}
	log := s.logger
	var jobs []Job

	if svc.Monitor != nil {
		detectors := svc.Detectors
		if detectors == nil {
			detectors = alerts.DefaultDetectors(svc.Thresholds)
		}
		jobs = append(jobs,
			Job{Name: JobDetectors, Spec: spec.Detectors, Run: func(ctx context.Context) error {
				sum := svc.Monitor.RunDetectors(ctx, detectors)
				log.WithFields(logrus.Fields{
					"job":          JobDetectors,
					"proposed":     sum.Proposed,
					"created":      sum.Created,
					"deduplicated": sum.Deduplicated,
				}).Info("detectors finished")
				return sum.Err()
			}},
			Job{Name: JobSnoozeWake, Spec: spec.SnoozeWake, Run: func(ctx context.Context) error {
				woken, superseded, err := svc.Monitor.WakeExpired(ctx)
				if woken+superseded > 0 {
					log.WithFields(logrus.Fields{"job": JobSnoozeWake, "woken": woken, "superseded": superseded}).Info("snoozed alerts woken")
				}
				return err
			}},
		)
	}
	if svc.Health != nil {
		jobs = append(jobs, Job{Name: JobHealthSnapshot, Spec: spec.HealthSnapshot, Run: func(ctx context.Context) error {
			score, err := svc.Health.Snapshot(ctx)
			if err != nil {
				return err
			}
			log.WithFields(logrus.Fields{"job": JobHealthSnapshot, "overall": score.Overall, "trend": score.Trend}).Info("health snapshot stored")
			return nil
		}})
	}
	if svc.Goals != nil {
		jobs = append(jobs, Job{Name: JobGoalRefresh, Spec: spec.GoalRefresh, Run: func(ctx context.Context) error {
			changed, err := svc.Goals.Refresh(ctx)
			if changed > 0 {
				log.WithFields(logrus.Fields{"job": JobGoalRefresh, "changed": changed}).Info("goals refreshed")
			}
			return err
		}})
	}
	if svc.KPI != nil {
		jobs = append(jobs, Job{Name: JobKPIRollup, Spec: spec.KPIRollup, Run: func(ctx context.Context) error {
			return KPIRollup(ctx, svc.KPI, svc.Now())
		}})
	}
	if svc.Outbox != nil {
		jobs = append(jobs, Job{Name: JobOutboxDrain, Spec: spec.OutboxDrain, Run: func(ctx context.Context) error {
			_, _, err := svc.Outbox.DispatchOnce(ctx)
			return err
		}})
	}

	for _, j := range jobs {
		if err := s.Register(j); err != nil {
			return err
		}
	}
	return nil
}

// KPIRollup closes yesterday's daily KPIs and refreshes the running week,
// month, quarter and year.
func KPIRollup(ctx context.Context, kpi *executive.KPIService, now time.Time) error {
	if _, err := kpi.Compute(ctx, models.PeriodDaily, now.AddDate(0, 0, -1)); err != nil {
		return err
	}
	for _, p := range []models.Period{models.PeriodWeekly, models.PeriodMonthly, models.PeriodQuarterly, models.PeriodYearly} {
		if _, err := kpi.Compute(ctx, p, now); err != nil {
			return err
		}
	}
	return nil
}
