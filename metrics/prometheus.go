package metrics

import "github.com/prometheus/client_golang/prometheus"

// PrometheusRecorder records session events as Prometheus counters.
type PrometheusRecorder struct {
	loginsTotal        *prometheus.CounterVec
	logoutsTotal       *prometheus.CounterVec
	invalidationsTotal *prometheus.CounterVec
	authFailuresTotal  prometheus.Counter
	jarRepairsTotal    prometheus.Counter
	storageErrorsTotal *prometheus.CounterVec
}

// NewPrometheusRecorderWithRegistry registers the session metrics with reg,
// typically prometheus.DefaultRegisterer.
func NewPrometheusRecorderWithRegistry(reg prometheus.Registerer) *PrometheusRecorder {
	loginsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "campus_session_logins_total",
		Help: "Total login attempts by result",
	}, []string{"result"})

	logoutsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "campus_session_logouts_total",
		Help: "Total logouts by server revocation result",
	}, []string{"revocation"})

	invalidationsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "campus_session_invalidations_total",
		Help: "Total effective session invalidations by reason",
	}, []string{"reason"})

	authFailuresTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "campus_session_auth_failures_total",
		Help: "Total authentication failure responses to authenticated requests",
	})

	jarRepairsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "campus_session_jar_repairs_total",
		Help: "Total credentials restored from the durable store into the jar",
	})

	storageErrorsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "campus_session_storage_errors_total",
		Help: "Total failed credential storage operations",
	}, []string{"op"})

	reg.MustRegister(
		loginsTotal,
		logoutsTotal,
		invalidationsTotal,
		authFailuresTotal,
		jarRepairsTotal,
		storageErrorsTotal,
	)

	return &PrometheusRecorder{
		loginsTotal:        loginsTotal,
		logoutsTotal:       logoutsTotal,
		invalidationsTotal: invalidationsTotal,
		authFailuresTotal:  authFailuresTotal,
		jarRepairsTotal:    jarRepairsTotal,
		storageErrorsTotal: storageErrorsTotal,
	}
}

func (p *PrometheusRecorder) RecordLogin(result string) {
	p.loginsTotal.WithLabelValues(result).Inc()
}

func (p *PrometheusRecorder) RecordLogout(revoked bool) {
	result := "failure"
	if revoked {
		result = "success"
	}
	p.logoutsTotal.WithLabelValues(result).Inc()
}

func (p *PrometheusRecorder) RecordInvalidation(reason string) {
	p.invalidationsTotal.WithLabelValues(reason).Inc()
}

func (p *PrometheusRecorder) RecordAuthFailure() {
	p.authFailuresTotal.Inc()
}

func (p *PrometheusRecorder) RecordJarRepair() {
	p.jarRepairsTotal.Inc()
}

func (p *PrometheusRecorder) RecordStorageError(op string) {
	p.storageErrorsTotal.WithLabelValues(op).Inc()
}

var _ Recorder = (*PrometheusRecorder)(nil)
