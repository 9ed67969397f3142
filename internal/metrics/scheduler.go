// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics holds the Prometheus collectors of the recording scheduler.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rebuildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recsched_rebuilds_total",
		Help: "Recording list rebuilds by outcome",
	}, []string{"outcome"}) // outcome=success|failure

	rebuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "recsched_rebuild_duration_seconds",
		Help:    "Duration of recording list rebuilds",
		Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
	})

	pendingRecordings = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "recsched_pending_recordings",
		Help: "Recordings in the pending list after the last rebuild",
	})

	conflictedRecordings = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "recsched_conflicted_recordings",
		Help: "Recordings removed by conflict resolution in the last rebuild",
	})

	conflictClusters = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "recsched_conflict_clusters",
		Help: "Conflict clusters with more than one member in the last rebuild",
	})

	removalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recsched_removals_total",
		Help: "Candidates dropped during rebuilds by reason",
	}, []string{"reason"}) // reason=conflict|topology|malformed|history|suppressed

	resourceExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recsched_resource_exhausted_total",
		Help: "Conflict clusters that had more demand than free inputs",
	})

	consumedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recsched_recordings_consumed_total",
		Help: "Recordings handed to the execution subsystem",
	})

	completedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recsched_recordings_completed_total",
		Help: "Recordings reported finished and written to history",
	})

	listingsImportTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recsched_listings_imports_total",
		Help: "Listings imports by outcome",
	}, []string{"outcome"})

	listingsProgramsImported = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "recsched_listings_programs_imported",
		Help: "Programs written by the last successful listings import",
	})
)

// RecordRebuild records the outcome and duration of a rebuild.
func RecordRebuild(success bool, d time.Duration) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	rebuildsTotal.WithLabelValues(outcome).Inc()
	rebuildDuration.Observe(d.Seconds())
}

// SetScheduleState publishes the size of the resolved schedule.
func SetScheduleState(pending, conflicted, clusters int) {
	pendingRecordings.Set(float64(pending))
	conflictedRecordings.Set(float64(conflicted))
	conflictClusters.Set(float64(clusters))
}

// RecordRemovals counts n candidates dropped for reason.
func RecordRemovals(reason string, n int) {
	if n <= 0 {
		return
	}
	removalsTotal.WithLabelValues(reason).Add(float64(n))
}

func RecordResourceExhausted() { resourceExhaustedTotal.Inc() }

func RecordConsumed() { consumedTotal.Inc() }

func RecordCompleted() { completedTotal.Inc() }

// RecordListingsImport records an import attempt.
func RecordListingsImport(success bool, programs int) {
	if !success {
		listingsImportTotal.WithLabelValues("failure").Inc()
		return
	}
	listingsImportTotal.WithLabelValues("success").Inc()
	listingsProgramsImported.Set(float64(programs))
}
