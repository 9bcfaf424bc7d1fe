package loaders

import (
	"context"
	"strconv"
	"sync"

	"github.com/cuemby/droxporter/pkg/doclient"
	"github.com/cuemby/droxporter/pkg/inventory"
	"github.com/cuemby/droxporter/pkg/log"
	"github.com/cuemby/droxporter/pkg/metrics"
	"github.com/cuemby/droxporter/pkg/reconciler"
)

// appClient is the subset of doclient.Client the app loaders call.
type appClient interface {
	GetAppCPUPercentage(ctx context.Context, appID string, start, end int64) ([]doclient.Series, error)
	GetAppMemoryPercentage(ctx context.Context, appID string, start, end int64) ([]doclient.Series, error)
	GetAppRestartCount(ctx context.Context, appID string, start, end int64) ([]doclient.Series, error)
}

const (
	componentLabel = "app_component"
	instanceLabel  = "app_component_instance"
)

// AppLoaders bundles the three app metric-loader passes.
type AppLoaders struct {
	client  appClient
	store   *inventory.AppStore
	vectors *metrics.Vectors

	mu          sync.Mutex
	restartEnd  int64
	firstRestart bool
}

// NewAppLoaders builds an AppLoaders. The restart-count loader starts out
// uninitialized: its first pass uses the one-second window spec.md §4.5
// mandates, never the full lookback, to avoid double counting history
// already reflected elsewhere.
func NewAppLoaders(client appClient, store *inventory.AppStore, vectors *metrics.Vectors) *AppLoaders {
	return &AppLoaders{client: client, store: store, vectors: vectors, firstRestart: true}
}

// CPUPercentage runs one app CPU percentage loader pass.
func (l *AppLoaders) CPUPercentage(ctx context.Context, nowUnix int64) error {
	start, end := window(nowUnix)
	apps := l.store.List()
	logger := log.WithComponent("loader-app-cpu-percentage")
	for _, a := range apps {
		series, err := l.client.GetAppCPUPercentage(ctx, a.ID, start, end)
		if err != nil {
			logger.Error().Err(err).Str("app", a.Name).Msg("app cpu percentage request failed")
			return err
		}
		for _, s := range series {
			component := doclient.Label(s, componentLabel)
			instance := doclient.Label(s, instanceLabel)
			l.vectors.AppCPUPercentage.WithLabelValues(a.Name, component, instance).Set(lastPoint(s))
		}
	}
	reconciler.RemoveOldAppsForGauge(l.vectors.AppCPUPercentage, l.store.Names())
	return nil
}

// MemoryPercentage runs one app memory percentage loader pass.
func (l *AppLoaders) MemoryPercentage(ctx context.Context, nowUnix int64) error {
	start, end := window(nowUnix)
	apps := l.store.List()
	logger := log.WithComponent("loader-app-memory-percentage")
	for _, a := range apps {
		series, err := l.client.GetAppMemoryPercentage(ctx, a.ID, start, end)
		if err != nil {
			logger.Error().Err(err).Str("app", a.Name).Msg("app memory percentage request failed")
			return err
		}
		for _, s := range series {
			component := doclient.Label(s, componentLabel)
			instance := doclient.Label(s, instanceLabel)
			l.vectors.AppMemoryPercentage.WithLabelValues(a.Name, component, instance).Set(lastPoint(s))
		}
	}
	reconciler.RemoveOldAppsForGauge(l.vectors.AppMemoryPercentage, l.store.Names())
	return nil
}

// restartWindow advances the loader's non-overlapping cursor: the first pass
// reads [now-1, now-1], every subsequent pass reads [previous_end+1, now-1],
// so a given upstream sample is counted exactly once across passes
// (spec.md §4.5, scenario S5).
func (l *AppLoaders) restartWindow(nowUnix int64) (int64, int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	end := nowUnix - 1
	var start int64
	if l.firstRestart {
		start = end
		l.firstRestart = false
	} else {
		start = l.restartEnd + 1
		if start > end {
			start = end
		}
	}
	l.restartEnd = end
	return start, end
}

// RestartCount runs one restart-count loader pass, adding the sum of every
// point's value in the current window to the counter (a true counter, never
// reset between passes).
func (l *AppLoaders) RestartCount(ctx context.Context, nowUnix int64) error {
	start, end := l.restartWindow(nowUnix)
	apps := l.store.List()
	logger := log.WithComponent("loader-app-restart-count")
	for _, a := range apps {
		series, err := l.client.GetAppRestartCount(ctx, a.ID, start, end)
		if err != nil {
			logger.Error().Err(err).Str("app", a.Name).Msg("app restart count request failed")
			return err
		}
		for _, s := range series {
			component := doclient.Label(s, componentLabel)
			instance := doclient.Label(s, instanceLabel)
			sum := sumPoints(s)
			if sum > 0 {
				l.vectors.AppRestartCount.WithLabelValues(a.Name, component, instance).Add(sum)
			}
		}
	}
	reconciler.RemoveOldAppsForCounter(l.vectors.AppRestartCount, l.store.Names())
	return nil
}

// sumPoints adds every point's value in the series; a parse failure
// contributes 0 for that point.
func sumPoints(s doclient.Series) float64 {
	var total float64
	for _, p := range doclient.Points(s) {
		v, err := strconv.ParseFloat(p.Value, 64)
		if err != nil {
			continue
		}
		total += v
	}
	return total
}
