// Package executive computes the dashboard aggregates: company health, period
// KPIs and strategic goal status. Every computation reads outside cascade
// transactions and persists its own snapshot.
package executive

import (
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"bitbucket.org/mmdatafocus/ops_backend/config"
	"bitbucket.org/mmdatafocus/ops_backend/store"
)

const defaultCacheTTL = 10 * time.Minute

type Deps struct {
	Store      store.Store
	Thresholds config.Thresholds
	Data       DataSource
	Cache      Cache
	Logger     *logrus.Logger
	Now        func() time.Time
	NewID      func() string
	CacheTTL   time.Duration
}

func (d Deps) withDefaults() Deps {
	if d.Data == nil {
		d.Data = DefaultDataSource()
	}
	if d.Cache == nil {
		d.Cache = NewMemoryCache()
	}
	if d.Logger == nil {
		d.Logger = config.GetLogger()
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	if d.CacheTTL <= 0 {
		d.CacheTTL = defaultCacheTTL
	}
	return d
}

func tracer() trace.Tracer {
	return otel.Tracer("bitbucket.org/mmdatafocus/ops_backend/executive")
}

// cacheWarn logs a cache failure; the store stays the source of truth.
func cacheWarn(logger *logrus.Logger, op, key string, err error) {
	if err == nil {
		return
	}
	logger.WithFields(logrus.Fields{
		"field": "executive cache",
		"op":    op,
		"key":   key,
	}).Warn(err.Error())
}
