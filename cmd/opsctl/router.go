package main

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/ops_backend/config"
	"bitbucket.org/mmdatafocus/ops_backend/events"
	"bitbucket.org/mmdatafocus/ops_backend/models"
	"bitbucket.org/mmdatafocus/ops_backend/utils"
	"bitbucket.org/mmdatafocus/ops_backend/worker"
)

type outboxReplayer interface {
	Replay(ctx context.Context, id string) (*models.OutboxMessage, error)
}

type healthReader interface {
	Latest(ctx context.Context) (*models.HealthScore, error)
}

// opsServer is the worker's internal HTTP surface: health checks, metrics and a few
// operator endpoints. It is not meant to be exposed publicly.
type opsServer struct {
	dispatcher worker.Dispatcher
	outbox     outboxReplayer
	health     healthReader
	logger     *logrus.Logger
}

func newRouter(s opsServer) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Header("x-correlation-id", cid)
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	ops := r.Group("/internal/ops")
	ops.POST("/events", s.dispatchHandler())
	ops.POST("/outbox/:id/replay", s.outboxReplayHandler())
	ops.GET("/health/latest", s.latestHealthHandler())
	return r
}

// dispatchHandler runs one cascade synchronously, e.g. for a Pub/Sub push
// subscription or a manual replay.
func (s opsServer) dispatchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		env, err := events.Decode(body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := s.dispatcher.Dispatch(c.Request.Context(), env); err != nil {
			config.LogError(s.logger, "cmd/opsctl/router.go", "dispatchHandler", "dispatch", env.ID, err)
			c.JSON(statusFor(err), gin.H{"event_id": env.ID, "error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"event_id": env.ID, "kind": env.Kind})
	}
}

func (s opsServer) outboxReplayHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		m, err := s.outbox.Replay(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"id":              m.Id,
			"status":          m.Status,
			"next_attempt_at": m.NextAttemptAt,
		})
	}
}

func (s opsServer) latestHealthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		h, err := s.health.Latest(c.Request.Context())
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, h)
	}
}

func statusFor(err error) int {
	switch {
	case utils.IsNotFound(err):
		return http.StatusNotFound
	case utils.IsValidation(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
