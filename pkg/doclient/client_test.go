package doclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cuemby/droxporter/pkg/keymanager"
	"github.com/cuemby/droxporter/pkg/metrics"
	"github.com/cuemby/droxporter/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func testKeys() *keymanager.Manager {
	return keymanager.New(map[types.KeyPurpose][]string{
		types.PurposeDefault: {"test-token"},
	}, []keymanager.TierSpec{{Capacity: 1000, Window: 1}}, nil, true)
}

func TestListDropletsPaginationTerminatesOnAbsentNext(t *testing.T) {
	var pages = []string{
		`{"droplets":[{"id":1,"name":"a"}],"links":{"pages":{"next":"http://x/page2"}}}`,
		`{"droplets":[{"id":2,"name":"b"}],"links":{"pages":{"next":"http://x/page3"}}}`,
		`{"droplets":[],"links":{"pages":{}}}`,
	}
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(pages[hits]))
		hits++
	}))
	defer srv.Close()

	c := New(Config{DropletsURL: srv.URL}, testKeys(), nil)
	droplets, err := c.ListDroplets(context.Background())
	assert.NoError(t, err)
	assert.Len(t, droplets, 2)
	assert.Equal(t, 3, hits, "must issue exactly three requests")
}

func TestListAppsMissingActiveDeploymentDefaultsUnknown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"apps":[{"id":"1","spec":{"name":"web"}}],"links":{"pages":{}}}`))
	}))
	defer srv.Close()

	c := New(Config{AppsURL: srv.URL}, testKeys(), nil)
	apps, err := c.ListApps(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "UNKNOWN", apps[0].ActiveDeploymentPhase)
}

func TestNon2xxResponseIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"Unauthorized"}`))
	}))
	defer srv.Close()

	c := New(Config{DropletsURL: srv.URL}, testKeys(), nil)
	_, err := c.ListDroplets(context.Background())
	assert.ErrorIs(t, err, ErrUpstreamNon2xx)
	assert.Contains(t, err.Error(), "Unauthorized")
}

func TestNoContentIsSuccessWithEmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(Config{MonitoringURL: srv.URL}, testKeys(), nil)
	series, err := c.GetDropletCPU(context.Background(), 42, 0, 60)
	assert.NoError(t, err)
	assert.Nil(t, series)
}

func TestMetricPointParsing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","data":{"result":[{"metric":{"host_id":"42","mode":"idle"},"values":[[1000,"95.5"],[1060,"90.0"]]}]}}`))
	}))
	defer srv.Close()

	c := New(Config{MonitoringURL: srv.URL}, testKeys(), nil)
	series, err := c.GetDropletCPU(context.Background(), 42, 1000, 1060)
	assert.NoError(t, err)
	assert.Len(t, series, 1)
	pts := Points(series[0])
	assert.Len(t, pts, 2)
	assert.Equal(t, "90.0", pts[1].Value)
	assert.Equal(t, "idle", Label(series[0], "mode"))
}

func TestUnknownLabelSubstitution(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","data":{"result":[{"metric":{"host_id":"42"},"values":[]}]}}`))
	}))
	defer srv.Close()

	c := New(Config{MonitoringURL: srv.URL}, testKeys(), nil)
	series, err := c.GetDropletCPU(context.Background(), 42, 0, 60)
	assert.NoError(t, err)
	assert.Equal(t, "unknown", Label(series[0], "mode"))
}

func TestRequestMetricsGatedByRecordRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"droplets":[],"links":{"pages":{}}}`))
	}))
	defer srv.Close()

	vectors := metrics.NewVectors(metrics.NewRegistry("", nil))
	c := New(Config{DropletsURL: srv.URL, RecordRequests: false}, testKeys(), vectors)
	_, err := c.ListDroplets(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 0, testutil.CollectAndCount(vectors.RequestCounter), "must not record request metrics when RecordRequests is false")

	c = New(Config{DropletsURL: srv.URL, RecordRequests: true}, testKeys(), vectors)
	_, err = c.ListDroplets(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 1, testutil.CollectAndCount(vectors.RequestCounter), "must record request metrics when RecordRequests is true")
}
