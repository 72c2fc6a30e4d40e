package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Labels: kind, result (applied, rejected, retry, cancelled, malformed)
var messagesHandled = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ops",
	Subsystem: "worker",
	Name:      "messages_handled_total",
	Help:      "Pub/Sub messages handled by event kind and result",
}, []string{"kind", "result"})
