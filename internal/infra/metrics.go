package infra

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	compositionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "searchcluster",
			Name:      "compositions_total",
			Help:      "Total number of node group compositions by result",
		},
		[]string{"namespace", "node_group", "result"},
	)

	compositionErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "searchcluster",
			Name:      "composition_errors_total",
			Help:      "Total number of composition errors by reason",
		},
		[]string{"namespace", "node_group", "reason"},
	)

	composedVolumes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "searchcluster",
			Name:      "composed_volumes",
			Help:      "Number of volumes declared by the last successful composition",
		},
		[]string{"namespace", "node_group"},
	)
)

const (
	resultSuccess = "success"
	resultError   = "error"
)

func init() {
	metrics.Registry.MustRegister(
		compositionsTotal,
		compositionErrorsTotal,
		composedVolumes,
	)
}

// CompositionMetrics records composition metrics for one node group.
type CompositionMetrics struct {
	namespace string
	nodeGroup string
}

// NewCompositionMetrics creates a new CompositionMetrics instance.
func NewCompositionMetrics(namespace, nodeGroup string) *CompositionMetrics {
	return &CompositionMetrics{
		namespace: namespace,
		nodeGroup: nodeGroup,
	}
}

// RecordSuccess counts a successful composition and the volumes it declared.
func (m *CompositionMetrics) RecordSuccess(volumes int) {
	compositionsTotal.WithLabelValues(m.namespace, m.nodeGroup, resultSuccess).Inc()
	composedVolumes.WithLabelValues(m.namespace, m.nodeGroup).Set(float64(volumes))
}

// RecordError counts a failed composition. Reason values should be
// low-cardinality strings such as those returned by errors.Reason.
func (m *CompositionMetrics) RecordError(reason string) {
	compositionsTotal.WithLabelValues(m.namespace, m.nodeGroup, resultError).Inc()
	compositionErrorsTotal.WithLabelValues(m.namespace, m.nodeGroup, reason).Inc()
}
