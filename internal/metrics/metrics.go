package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// RunsTotal counts finished reconciliation runs by final status.
var RunsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "recon_runs_total",
		Help: "Total number of reconciliation runs by final status",
	},
	[]string{"status"},
)

// RunDuration records the wall-clock duration of runs.
var RunDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "recon_run_duration_seconds",
		Help:    "Duration of reconciliation runs in seconds",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
	},
)

// Matching engine metrics
var (
	CandidatesScored = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "recon_candidates_scored_total",
			Help: "Number of candidate pairs scored",
		},
	)

	CandidatesDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "recon_candidates_dropped_total",
			Help: "Candidate pairs dropped by the per-record bound",
		},
	)

	MatchedPairs = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "recon_matched_pairs_total",
			Help: "Number of accepted internal/external pairs",
		},
	)

	RejectedRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recon_rejected_records_total",
			Help: "Malformed trade records excluded from matching",
		},
		[]string{"source"},
	)
)

// Workflow metrics
var (
	BreaksCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recon_breaks_created_total",
			Help: "Breaks created by category and severity",
		},
		[]string{"category", "severity"},
	)

	Transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recon_break_transitions_total",
			Help: "Applied break workflow transitions by trigger",
		},
		[]string{"trigger"},
	)

	Conflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "recon_break_conflicts_total",
			Help: "Break transitions rejected by optimistic version check",
		},
	)

	Escalations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recon_break_escalations_total",
			Help: "SLA escalations by break severity",
		},
		[]string{"severity"},
	)

	AutoResolved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recon_breaks_auto_resolved_total",
			Help: "Breaks closed by resolution rules",
		},
		[]string{"rule"},
	)
)

func init() {
	prometheus.MustRegister(RunsTotal, RunDuration)
	prometheus.MustRegister(CandidatesScored, CandidatesDropped, MatchedPairs, RejectedRecords)
	prometheus.MustRegister(BreaksCreated, Transitions, Conflicts, Escalations, AutoResolved)
}
