// Package reconciler prunes stale label sets from Prometheus vectors after
// each inventory or metric loader pass (C6), so that a destroyed droplet or
// deleted app stops being exported and Prometheus's staleness semantics kick
// in for downstream alerts.
package reconciler

import (
	"github.com/cuemby/droxporter/pkg/log"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog"
)

var logger zerolog.Logger = log.WithComponent("reconciler")

// prunable is the subset of *GaugeVec/*CounterVec behavior needed to
// enumerate label tuples and delete them by primary-label value.
type prunable interface {
	prometheus.Collector
	DeletePartialMatch(prometheus.Labels) int
}

// Prune removes every label-tuple of vec whose primaryLabel value is not a
// member of valid. It is idempotent: running it twice with the same valid
// set leaves the vector unchanged the second time.
func Prune(vec prunable, primaryLabel string, valid map[string]struct{}) {
	ch := make(chan prometheus.Metric, 64)
	go func() {
		vec.Collect(ch)
		close(ch)
	}()

	// Stale series are deleted by primary-label value alone: the written
	// labels also carry the registry's constant labels, which an exact
	// Delete would reject.
	stale := make(map[string]struct{})
	for m := range ch {
		var dm dto.Metric
		if err := m.Write(&dm); err != nil {
			logger.Warn().Err(err).Msg("failed to introspect metric during reconciliation")
			continue
		}
		for _, lp := range dm.GetLabel() {
			if lp.GetName() == primaryLabel && !isValid(valid, lp.GetValue()) {
				stale[lp.GetValue()] = struct{}{}
			}
		}
	}

	for value := range stale {
		vec.DeletePartialMatch(prometheus.Labels{primaryLabel: value})
	}
}

func isValid(valid map[string]struct{}, value string) bool {
	_, ok := valid[value]
	return ok
}

// RemoveOldDroplets prunes a droplet-labeled GaugeVec against the live
// droplet name set.
func RemoveOldDroplets(vec *prometheus.GaugeVec, names map[string]struct{}) {
	Prune(vec, "droplet", names)
}

// RemoveOldAppsForGauge prunes an app-labeled GaugeVec against the live app
// name set.
func RemoveOldAppsForGauge(vec *prometheus.GaugeVec, names map[string]struct{}) {
	Prune(vec, "app", names)
}

// RemoveOldAppsForCounter prunes an app-labeled CounterVec against the live
// app name set.
func RemoveOldAppsForCounter(vec *prometheus.CounterVec, names map[string]struct{}) {
	Prune(vec, "app", names)
}
