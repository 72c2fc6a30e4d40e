package executive

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"bitbucket.org/mmdatafocus/ops_backend/models"
)

// Labels: component (overall, financial, operational, quality, hr, customer)
var healthScore = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "ops",
	Subsystem: "executive",
	Name:      "health_score",
	Help:      "Latest company health score and its sub-scores",
}, []string{"component"})

func observeHealth(s *models.HealthScore) {
	healthScore.WithLabelValues("overall").Set(s.Overall)
	healthScore.WithLabelValues("financial").Set(s.Breakdown.Financial)
	healthScore.WithLabelValues("operational").Set(s.Breakdown.Operational)
	healthScore.WithLabelValues("quality").Set(s.Breakdown.Quality)
	healthScore.WithLabelValues("hr").Set(s.Breakdown.HR)
	healthScore.WithLabelValues("customer").Set(s.Breakdown.Customer)
}
