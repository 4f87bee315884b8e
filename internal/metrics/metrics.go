// Package metrics exposes the Prometheus counters shared by the editor
// session and the document backend.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Save targets.
const (
	TargetLocal  = "local"
	TargetRemote = "remote"
)

// Analysis outcomes.
const (
	AnalysisApplied = "applied"
	AnalysisStale   = "stale"
	AnalysisFailed  = "failed"
	AnalysisQuota   = "quota"
)

var (
	// Saves counts persistence attempts by target and outcome (ok, error).
	Saves = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contextpad_saves_total",
		Help: "Document saves by target and outcome",
	}, []string{"target", "outcome"})

	// Allocations counts remote id allocations for placeholder documents.
	Allocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contextpad_id_allocations_total",
		Help: "Remote id allocations by outcome",
	}, []string{"outcome"})

	// Analyses counts analysis passes by outcome.
	Analyses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contextpad_analyses_total",
		Help: "Analysis passes by outcome (applied, stale, failed, quota)",
	}, []string{"outcome"})

	// LinkOps counts user link curation by operation.
	LinkOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contextpad_link_ops_total",
		Help: "Pin, unpin, reject and attach operations",
	}, []string{"op"})

	// UpgradeSignals counts capacity refusals by required level.
	UpgradeSignals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contextpad_upgrade_signals_total",
		Help: "Document creations refused by the capacity policy",
	}, []string{"required_level"})

	// BackendDocuments counts backend document writes by operation.
	BackendDocuments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contextpad_backend_documents_total",
		Help: "Backend document writes by operation (create, update, status)",
	}, []string{"op"})
)

// RecordSave counts one save attempt.
func RecordSave(target string, err error) {
	Saves.WithLabelValues(target, outcome(err)).Inc()
}

// RecordAllocation counts one placeholder allocation.
func RecordAllocation(err error) {
	Allocations.WithLabelValues(outcome(err)).Inc()
}

// Handler returns the Prometheus HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
