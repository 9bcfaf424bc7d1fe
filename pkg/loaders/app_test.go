package loaders

import (
	"context"
	"testing"

	"github.com/cuemby/droxporter/pkg/doclient"
	"github.com/cuemby/droxporter/pkg/inventory"
	"github.com/cuemby/droxporter/pkg/metrics"
	"github.com/cuemby/droxporter/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

type fakeAppClient struct {
	series [][]doclient.Series // one slice of requests handed out in order
	call   int
	err    error

	restartWindows [][2]int64 // [start, end] of every GetAppRestartCount call
}

func (f *fakeAppClient) next() []doclient.Series {
	if f.call >= len(f.series) {
		return nil
	}
	out := f.series[f.call]
	f.call++
	return out
}

func (f *fakeAppClient) GetAppCPUPercentage(ctx context.Context, appID string, start, end int64) ([]doclient.Series, error) {
	return f.next(), f.err
}
func (f *fakeAppClient) GetAppMemoryPercentage(ctx context.Context, appID string, start, end int64) ([]doclient.Series, error) {
	return f.next(), f.err
}
func (f *fakeAppClient) GetAppRestartCount(ctx context.Context, appID string, start, end int64) ([]doclient.Series, error) {
	f.restartWindows = append(f.restartWindows, [2]int64{start, end})
	return f.next(), f.err
}

type fakeAppLister struct {
	apps []types.AppInfo
}

func (f *fakeAppLister) ListApps(ctx context.Context) ([]types.AppInfo, error) {
	return f.apps, nil
}

func newAppStore(t *testing.T, vectors *metrics.Vectors, apps []types.AppInfo) *inventory.AppStore {
	store := inventory.NewAppStore(&fakeAppLister{apps: apps}, vectors, true)
	assert.NoError(t, store.Refresh(context.Background()))
	return store
}

func TestCPUPercentageLabelsByComponentAndInstance(t *testing.T) {
	vectors := metrics.NewVectors(metrics.NewRegistry("", nil))
	store := newAppStore(t, vectors, []types.AppInfo{{ID: "app-1", Name: "web"}})

	series := doclient.NewSeries(map[string]string{"app_component": "api", "app_component_instance": "api-0"},
		types.MetricPoint{Timestamp: 1, Value: "12.5"})
	client := &fakeAppClient{series: [][]doclient.Series{{series}}}
	loaders := NewAppLoaders(client, store, vectors)
	assert.NoError(t, loaders.CPUPercentage(context.Background(), 1000))

	assert.Equal(t, 12.5, testutil.ToFloat64(vectors.AppCPUPercentage.WithLabelValues("web", "api", "api-0")))
}

func TestRestartCountFirstPassUsesOneSecondWindow(t *testing.T) {
	vectors := metrics.NewVectors(metrics.NewRegistry("", nil))
	store := newAppStore(t, vectors, []types.AppInfo{{ID: "app-1", Name: "web"}})

	series := doclient.NewSeries(map[string]string{"app_component": "api", "app_component_instance": "api-0"},
		types.MetricPoint{Timestamp: 1, Value: "2"})
	client := &fakeAppClient{series: [][]doclient.Series{{series}}}
	loaders := NewAppLoaders(client, store, vectors)
	assert.NoError(t, loaders.RestartCount(context.Background(), 1000))

	assert.Equal(t, [][2]int64{{999, 999}}, client.restartWindows)
	assert.Equal(t, float64(2), testutil.ToFloat64(vectors.AppRestartCount.WithLabelValues("web", "api", "api-0")))
}

func TestRestartCountAccumulatesAcrossNonOverlappingPasses(t *testing.T) {
	vectors := metrics.NewVectors(metrics.NewRegistry("", nil))
	store := newAppStore(t, vectors, []types.AppInfo{{ID: "app-1", Name: "web"}})

	first := doclient.NewSeries(map[string]string{"app_component": "api", "app_component_instance": "api-0"},
		types.MetricPoint{Timestamp: 1, Value: "1"})
	second := doclient.NewSeries(map[string]string{"app_component": "api", "app_component_instance": "api-0"},
		types.MetricPoint{Timestamp: 2, Value: "3"})
	client := &fakeAppClient{series: [][]doclient.Series{{first}, {second}}}
	loaders := NewAppLoaders(client, store, vectors)

	assert.NoError(t, loaders.RestartCount(context.Background(), 1000))
	assert.NoError(t, loaders.RestartCount(context.Background(), 1060))

	assert.Equal(t, [][2]int64{{999, 999}, {1000, 1059}}, client.restartWindows)
	assert.Equal(t, float64(4), testutil.ToFloat64(vectors.AppRestartCount.WithLabelValues("web", "api", "api-0")))
}

func TestMemoryPercentagePrunesDisappearedApp(t *testing.T) {
	vectors := metrics.NewVectors(metrics.NewRegistry("", nil))
	store := newAppStore(t, vectors, []types.AppInfo{{ID: "app-1", Name: "web"}})

	vectors.AppMemoryPercentage.WithLabelValues("ghost", "api", "api-0").Set(50)
	assert.Equal(t, 1, testutil.CollectAndCount(vectors.AppMemoryPercentage))

	client := &fakeAppClient{series: [][]doclient.Series{{}}}
	loaders := NewAppLoaders(client, store, vectors)
	assert.NoError(t, loaders.MemoryPercentage(context.Background(), 1000))

	assert.Equal(t, 0, testutil.CollectAndCount(vectors.AppMemoryPercentage))
}
