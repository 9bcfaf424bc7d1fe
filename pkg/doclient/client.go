package doclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cuemby/droxporter/pkg/keymanager"
	"github.com/cuemby/droxporter/pkg/log"
	"github.com/cuemby/droxporter/pkg/metrics"
	"github.com/cuemby/droxporter/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ErrUpstreamNon2xx is returned when the upstream responds with neither 200
// nor 204; the error text carries the status and body.
var ErrUpstreamNon2xx = errors.New("upstream non-2xx response")

// ErrDecodeError wraps JSON envelope decode failures (not per-point numeric
// parse failures, which degrade to 0 at the loader level).
var ErrDecodeError = errors.New("decode error")

// Client is the typed DigitalOcean API client (C3). It owns no periodic
// state beyond the shared HTTP connection pool; every call acquires its own
// token from the key manager.
type Client struct {
	httpClient     *http.Client
	keys           *keymanager.Manager
	vectors        *metrics.Vectors
	recordRequests bool
	dropletsURL    string
	appsURL        string
	monitoringURL  string
	logger         zerolog.Logger
	// globalLimiter is a process-wide outbound ceiling independent of the
	// per-key leaky bucket, the teacher's own rate-limiting idiom
	// (pkg/ingress/middleware.go) re-pointed at outbound calls.
	globalLimiter *rate.Limiter
}

// Config configures a Client. RecordRequests gates
// digital_ocean_request_histogram_seconds and digital_ocean_request_counter,
// per spec.md §4.3 step 5
// ("only when self-metrics include requests") — independent of vectors
// being nil, which only guards against a caller with no registry at all.
type Config struct {
	HTTPClient     *http.Client
	DropletsURL    string
	AppsURL        string
	MonitoringURL  string
	GlobalRPS      float64 // 0 disables the global outbound ceiling
	RecordRequests bool
}

// New builds a Client.
func New(cfg Config, keys *keymanager.Manager, vectors *metrics.Vectors) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	var limiter *rate.Limiter
	if cfg.GlobalRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.GlobalRPS), int(cfg.GlobalRPS)+1)
	}
	return &Client{
		httpClient:     httpClient,
		keys:           keys,
		vectors:        vectors,
		recordRequests: cfg.RecordRequests,
		dropletsURL:    cfg.DropletsURL,
		appsURL:        cfg.AppsURL,
		monitoringURL:  cfg.MonitoringURL,
		logger:         log.WithComponent("doclient"),
		globalLimiter:  limiter,
	}
}

// do issues one GET, acquiring a token for reqType's purpose, recording
// latency/outcome, and returning the raw body. Accepts HTTP 200 and 204.
func (c *Client) do(ctx context.Context, reqType types.RequestType, url string) ([]byte, error) {
	if c.globalLimiter != nil {
		if err := c.globalLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("global rate limiter: %w", err)
		}
	}

	token, err := c.keys.Acquire(reqType.Purpose())
	if err != nil {
		return nil, fmt.Errorf("acquire key for %s: %w", reqType, err)
	}

	requestID := uuid.New().String()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	reqLog := c.logger.With().Str("request_id", requestID).Str("type", reqType.Label()).Logger()
	reqLog.Debug().Str("url", url).Msg("upstream request")

	timer := metrics.NewTimer()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(reqType, timer, "transport_error")
		reqLog.Warn().Err(err).Msg("upstream transport error")
		return nil, fmt.Errorf("upstream transport: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.record(reqType, timer, "read_error")
		reqLog.Warn().Err(err).Msg("upstream body read error")
		return nil, fmt.Errorf("read body: %w", err)
	}

	result := strconv.Itoa(resp.StatusCode)
	c.record(reqType, timer, result)
	reqLog.Debug().Int("status", resp.StatusCode).Msg("upstream response")

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return nil, fmt.Errorf("%w: status=%d body=%s", ErrUpstreamNon2xx, resp.StatusCode, string(body))
	}
	return body, nil
}

func (c *Client) record(reqType types.RequestType, timer *metrics.Timer, result string) {
	if c.vectors == nil || !c.recordRequests {
		return
	}
	c.vectors.RequestCounter.WithLabelValues(reqType.Label(), result).Inc()
	timer.ObserveDurationVec(c.vectors.RequestHistogram, reqType.Label(), result)
}

// ListDroplets pages through /v2/droplets with per_page=100 until
// links.pages.next is absent, per spec.md §4.4's canonical termination rule.
func (c *Client) ListDroplets(ctx context.Context) ([]types.DropletInfo, error) {
	var out []types.DropletInfo
	page := 1
	for {
		url := fmt.Sprintf("%s?per_page=100&page=%d", c.dropletsURL, page)
		body, err := c.do(ctx, types.RequestListDroplets, url)
		if err != nil {
			return nil, err
		}
		var parsed dropletsResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecodeError, err)
		}
		for _, d := range parsed.Droplets {
			out = append(out, d.toInfo())
		}
		if !parsed.Links.hasNext(body) {
			break
		}
		page++
	}
	return out, nil
}

// ListApps pages through /v2/apps the same way ListDroplets does.
func (c *Client) ListApps(ctx context.Context) ([]types.AppInfo, error) {
	var out []types.AppInfo
	page := 1
	for {
		url := fmt.Sprintf("%s?per_page=100&page=%d", c.appsURL, page)
		body, err := c.do(ctx, types.RequestListApps, url)
		if err != nil {
			return nil, err
		}
		var parsed appsResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecodeError, err)
		}
		for _, a := range parsed.Apps {
			out = append(out, a.toInfo())
		}
		if !parsed.Links.hasNext(body) {
			break
		}
		page++
	}
	return out, nil
}

// fetchDropletMetric issues one GET against the droplet monitoring suffix
// and returns its series as decoded; absent optional labels read as
// "unknown" through Label.
func (c *Client) fetchDropletMetric(ctx context.Context, reqType types.RequestType, suffix string, hostID uint64, extra string, start, end int64) ([]metricSeriesJSON, error) {
	url := fmt.Sprintf("%s/%s?host_id=%d&start=%d&end=%d%s", c.monitoringURL, suffix, hostID, start, end, extra)
	body, err := c.do(ctx, reqType, url)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, nil
	}
	var parsed metricsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeError, err)
	}
	return parsed.Data.Result, nil
}

// GetDropletBandwidth fetches bandwidth samples for one interface/direction.
func (c *Client) GetDropletBandwidth(ctx context.Context, hostID uint64, iface, direction string, start, end int64) ([]metricSeriesJSON, error) {
	extra := fmt.Sprintf("&interface=%s&direction=%s", iface, direction)
	return c.fetchDropletMetric(ctx, types.RequestDropletBandwidth, "bandwidth", hostID, extra, start, end)
}

// GetDropletCPU fetches per-mode CPU samples.
func (c *Client) GetDropletCPU(ctx context.Context, hostID uint64, start, end int64) ([]metricSeriesJSON, error) {
	return c.fetchDropletMetric(ctx, types.RequestDropletCPU, "cpu", hostID, "", start, end)
}

// GetDropletFilesystem fetches filesystem free/size samples.
func (c *Client) GetDropletFilesystem(ctx context.Context, hostID uint64, kind string, start, end int64) ([]metricSeriesJSON, error) {
	return c.fetchDropletMetric(ctx, types.RequestDropletFilesystem, "filesystem_"+kind, hostID, "", start, end)
}

// GetDropletMemory fetches one memory sub-kind's samples (cached, free,
// total, available).
func (c *Client) GetDropletMemory(ctx context.Context, hostID uint64, kind string, start, end int64) ([]metricSeriesJSON, error) {
	return c.fetchDropletMetric(ctx, types.RequestDropletMemory, "memory_"+kind, hostID, "", start, end)
}

// GetDropletLoad fetches one load sub-kind's samples (1/5/15 minute).
func (c *Client) GetDropletLoad(ctx context.Context, hostID uint64, window string, start, end int64) ([]metricSeriesJSON, error) {
	return c.fetchDropletMetric(ctx, types.RequestDropletLoad, "load_"+window, hostID, "", start, end)
}

func (c *Client) fetchAppMetric(ctx context.Context, reqType types.RequestType, suffix, appID string, start, end int64) ([]metricSeriesJSON, error) {
	url := fmt.Sprintf("%s/%s?app_id=%s&start=%d&end=%d", c.monitoringURL, suffix, appID, start, end)
	body, err := c.do(ctx, reqType, url)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, nil
	}
	var parsed metricsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeError, err)
	}
	return parsed.Data.Result, nil
}

// GetAppCPUPercentage fetches per-instance CPU percentage samples.
func (c *Client) GetAppCPUPercentage(ctx context.Context, appID string, start, end int64) ([]metricSeriesJSON, error) {
	return c.fetchAppMetric(ctx, types.RequestAppCPUPercentage, "cpu_percentage", appID, start, end)
}

// GetAppMemoryPercentage fetches per-instance memory percentage samples.
func (c *Client) GetAppMemoryPercentage(ctx context.Context, appID string, start, end int64) ([]metricSeriesJSON, error) {
	return c.fetchAppMetric(ctx, types.RequestAppMemoryPercentage, "memory_percentage", appID, start, end)
}

// GetAppRestartCount fetches per-instance restart-count samples.
func (c *Client) GetAppRestartCount(ctx context.Context, appID string, start, end int64) ([]metricSeriesJSON, error) {
	return c.fetchAppMetric(ctx, types.RequestAppRestartCount, "restart_count", appID, start, end)
}

// Series re-exports the upstream series shape for loaders, decoupling them
// from this package's unexported JSON structs.
type Series = metricSeriesJSON

// Label reads a metric label, substituting "unknown" for an absent or
// empty value (spec.md §4.5), except app_owner_id which loaders never read.
func Label(s Series, key string) string {
	return label(s.Metric, key)
}

// Points exposes one series's points as types.MetricPoint.
func Points(s Series) []types.MetricPoint {
	out := make([]types.MetricPoint, len(s.Values))
	for i, p := range s.Values {
		out[i] = types.MetricPoint(p)
	}
	return out
}

// NewSeries builds a Series from labels and points, for tests outside this
// package that need to construct upstream monitoring responses by hand.
func NewSeries(labels map[string]string, points ...types.MetricPoint) Series {
	values := make([]point, len(points))
	for i, p := range points {
		values[i] = point(p)
	}
	return Series{Metric: labels, Values: values}
}
