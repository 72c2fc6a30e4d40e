package main

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/ops_backend/alerts"
	"bitbucket.org/mmdatafocus/ops_backend/analytics"
	"bitbucket.org/mmdatafocus/ops_backend/config"
	"bitbucket.org/mmdatafocus/ops_backend/events"
	"bitbucket.org/mmdatafocus/ops_backend/executive"
	"bitbucket.org/mmdatafocus/ops_backend/lock"
	"bitbucket.org/mmdatafocus/ops_backend/notify"
	"bitbucket.org/mmdatafocus/ops_backend/scheduler"
	"bitbucket.org/mmdatafocus/ops_backend/store"
	"bitbucket.org/mmdatafocus/ops_backend/store/gormstore"
	"bitbucket.org/mmdatafocus/ops_backend/store/memstore"
	"bitbucket.org/mmdatafocus/ops_backend/workflow"
)

// app holds every long-lived collaborator built from Settings.
type app struct {
	settings *config.Settings
	logger   *logrus.Logger

	store  store.Store
	redis  *redis.Client
	pubsub *pubsub.Client
	locker lock.Locker
	cache  executive.Cache

	orchestrator *workflow.Orchestrator
	outbox       *workflow.OutboxDispatcher
	monitor      *alerts.Monitor
	health       *executive.HealthService
	kpi          *executive.KPIService
	goals        *executive.GoalService
	analytics    *analytics.Engine
	scheduler    *scheduler.Scheduler
}

func newApp(ctx context.Context, path string) (*app, error) {
	settings, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	config.SetLogLevel(settings.LogLevel)
	a := &app{settings: settings, logger: config.GetLogger()}

	if err := a.connectStore(ctx); err != nil {
		return nil, err
	}
	a.connectRedis(ctx)
	notifier, err := a.notifier(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	th := settings.Thresholds
	a.monitor = alerts.NewMonitor(a.store, a.logger)
	a.outbox = workflow.NewOutboxDispatcher(a.store, notifier, a.logger)
	a.orchestrator = workflow.New(workflow.Deps{
		Store:              a.store,
		Monitor:            a.monitor,
		Locker:             a.locker,
		Thresholds:         th,
		Logger:             a.logger,
		LockTTL:            settings.LockTTL,
		EnforceIdempotency: settings.EnforceIdempotency,
		OnCommitted:        []func(context.Context, events.Envelope){a.outbox.Wake},
	})

	deps := executive.Deps{
		Store:      a.store,
		Thresholds: th,
		Cache:      a.cache,
		Logger:     a.logger,
		CacheTTL:   settings.CacheTTL,
	}
	a.health = executive.NewHealthService(deps)
	a.kpi = executive.NewKPIService(deps)
	a.goals = executive.NewGoalService(deps)
	a.analytics = analytics.NewEngine(a.store, th, a.logger)

	a.scheduler = scheduler.New(a.locker, a.logger)
	err = a.scheduler.RegisterDefaults(scheduler.Services{
		Monitor:    a.monitor,
		Health:     a.health,
		KPI:        a.kpi,
		Goals:      a.goals,
		Outbox:     a.outbox,
		Logger:     a.logger,
		Thresholds: th,
	}, settings.Schedule)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) connectStore(ctx context.Context) error {
	if a.settings.StoreDriver != "mysql" {
		a.logger.Warn("using the in-memory store; nothing is persisted")
		a.store = memstore.New()
		return nil
	}
	db, err := config.ConnectDatabaseWithRetry(ctx, a.settings.Database)
	if err != nil {
		return err
	}
	gs := gormstore.New(db)
	if err := gs.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate document store: %w", err)
	}
	a.store = gs
	return nil
}

// connectRedis falls back to process-local cache and locks when no redis
// address is configured.
func (a *app) connectRedis(ctx context.Context) {
	if a.settings.RedisAddress == "" {
		a.cache = executive.NewMemoryCache()
		a.locker = lock.NewLocalLocker()
		return
	}
	rdb, locks, err := config.ConnectRedisWithRetry(ctx, a.settings.RedisAddress, a.settings.RedisPassword)
	if err != nil {
		a.logger.Warn("redis unavailable, using local cache and locks: " + err.Error())
		a.cache = executive.NewMemoryCache()
		a.locker = lock.NewLocalLocker()
		return
	}
	a.redis = rdb
	a.cache = executive.NewRedisCache(rdb)
	a.locker = lock.NewRedisLocker(locks)
}

// notifier publishes to the notification topic when Pub/Sub is configured and
// logs otherwise.
func (a *app) notifier(ctx context.Context) (notify.Notifier, error) {
	ps := a.settings.PubSub
	if ps.ProjectId == "" {
		return notify.LogNotifier{Logger: a.logger}, nil
	}
	client, err := a.pubsubClient(ctx)
	if err != nil {
		return nil, err
	}
	topic, err := config.CreateTopicIfNotExists(ctx, client, ps.NotificationTopic)
	if err != nil {
		return nil, err
	}
	return notify.PubSubNotifier{Publisher: notify.TopicPublisher{Topic: topic}}, nil
}

func (a *app) pubsubClient(ctx context.Context) (*pubsub.Client, error) {
	if a.pubsub != nil {
		return a.pubsub, nil
	}
	client, err := config.NewPubSubClient(ctx, a.settings.PubSub)
	if err != nil {
		return nil, err
	}
	a.pubsub = client
	return client, nil
}

func (a *app) Close() {
	if a.pubsub != nil {
		_ = a.pubsub.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}
