package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"bitbucket.org/mmdatafocus/ops_backend/config"
	"bitbucket.org/mmdatafocus/ops_backend/worker"
)

func workerCmd() *cobra.Command {
	var noScheduler bool
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume domain events, drain the outbox and run scheduled jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context(), application, !noScheduler)
		},
	}
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "do not run the periodic jobs in this process")
	return cmd
}

func runWorker(ctx context.Context, a *app, withScheduler bool) error {
	ps := a.settings.PubSub
	if ps.ProjectId == "" {
		return errors.New("worker needs pubsub.project_id")
	}
	client, err := a.pubsubClient(ctx)
	if err != nil {
		return err
	}
	topic, err := config.CreateTopicIfNotExists(ctx, client, ps.EventTopic)
	if err != nil {
		return err
	}
	sub, err := config.CreateSubscriptionIfNotExists(ctx, client, ps.EventSubscription, topic)
	if err != nil {
		return err
	}

	router := newRouter(opsServer{
		dispatcher: a.orchestrator,
		outbox:     a.outbox,
		health:     a.health,
		logger:     a.logger,
	})
	srv := &http.Server{Addr: a.settings.MetricsAddress, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.NewConsumer(a.orchestrator, a.logger).Run(gctx, sub, ps.MaxOutstandingMsgs)
	})
	g.Go(func() error {
		a.outbox.Run(gctx)
		return nil
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 10*time.Second)
		defer cancel()
		if withScheduler {
			a.scheduler.Stop(shutdownCtx)
		}
		return srv.Shutdown(shutdownCtx)
	})
	if withScheduler {
		a.scheduler.Start()
	}
	a.logger.WithField("metrics", a.settings.MetricsAddress).Info("worker started")
	return g.Wait()
}
