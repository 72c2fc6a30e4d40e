package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitbucket.org/mmdatafocus/ops_backend/alerts"
	"bitbucket.org/mmdatafocus/ops_backend/config"
	"bitbucket.org/mmdatafocus/ops_backend/executive"
	"bitbucket.org/mmdatafocus/ops_backend/lock"
	"bitbucket.org/mmdatafocus/ops_backend/models"
	"bitbucket.org/mmdatafocus/ops_backend/store"
	"bitbucket.org/mmdatafocus/ops_backend/store/memstore"
)

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestRegisterRejectsBadSpecAndDuplicates(t *testing.T) {
	s := New(nil, quietLogger())
	noop := func(context.Context) error { return nil }

	require.NoError(t, s.Register(Job{Name: "a", Spec: "*/5 * * * *", Run: noop}))
	require.Error(t, s.Register(Job{Name: "a", Spec: "* * * * *", Run: noop}))
	require.Error(t, s.Register(Job{Name: "b", Spec: "every tuesday", Run: noop}))
	require.NoError(t, s.Register(Job{Name: "c", Run: noop}))

	names := s.Names()
	sort.Strings(names)
	assert.Equal(t, []string{"a", "c"}, names)
}

func TestRunNowReportsJobError(t *testing.T) {
	s := New(nil, quietLogger())
	boom := errors.New("boom")
	require.NoError(t, s.Register(Job{Name: "fails", Run: func(context.Context) error { return boom }}))

	err := s.RunNow(context.Background(), "fails")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	require.Error(t, s.RunNow(context.Background(), "missing"))
}

func TestRunNowSkipsWhenLockHeld(t *testing.T) {
	locker := lock.NewLocalLocker()
	s := New(locker, quietLogger())
	s.LockWait = 10 * time.Millisecond
	runs := 0
	require.NoError(t, s.Register(Job{Name: "once", Run: func(context.Context) error { runs++; return nil }}))

	held, err := locker.Obtain(context.Background(), "job:once", time.Minute)
	require.NoError(t, err)
	assert.ErrorIs(t, s.RunNow(context.Background(), "once"), ErrSkipped)
	assert.Zero(t, runs)

	require.NoError(t, held.Release(context.Background()))
	require.NoError(t, s.RunNow(context.Background(), "once"))
	assert.Equal(t, 1, runs)
}

func TestDefaultJobsRunAgainstStore(t *testing.T) {
	ms := memstore.New()
	ctx := context.Background()
	logger := quietLogger()
	now := func() time.Time { return testNow }

	monitor := alerts.NewMonitor(ms, logger)
	monitor.Now = now
	seq := 0
	deps := executive.Deps{
		Store:      ms,
		Thresholds: config.DefaultThresholds(),
		Logger:     logger,
		Now:        now,
		NewID: func() string {
			seq++
			return fmt.Sprintf("h-%d", seq)
		},
	}
	s := New(nil, logger)
	require.NoError(t, s.RegisterDefaults(Services{
		Monitor:    monitor,
		Health:     executive.NewHealthService(deps),
		KPI:        executive.NewKPIService(deps),
		Goals:      executive.NewGoalService(deps),
		Logger:     logger,
		Now:        now,
		Thresholds: config.DefaultThresholds(),
	}, config.ScheduleSettings{
		Detectors:      "*/15 * * * *",
		SnoozeWake:     "* * * * *",
		HealthSnapshot: "0 6 * * *",
		GoalRefresh:    "30 6 * * *",
		KPIRollup:      "15 0 * * *",
	}))

	names := s.Names()
	sort.Strings(names)
	assert.Equal(t, []string{JobDetectors, JobGoalRefresh, JobHealthSnapshot, JobKPIRollup, JobSnoozeWake}, names)

	for _, name := range names {
		require.NoError(t, s.RunNow(ctx, name), name)
	}
	assert.Equal(t, 1, ms.Len(models.CollectionHealthScores))
	// yesterday's daily plus the four running periods
	assert.Equal(t, 5, ms.Len(models.CollectionExecutiveKPIs))

	require.NoError(t, store.View(ctx, ms, []string{models.CollectionExecutiveKPIs}, func(tx store.Tx) error {
		_, err := store.Get[models.ExecutiveKPI](tx, models.CollectionExecutiveKPIs, "daily:2024-03-09")
		return err
	}))
}
