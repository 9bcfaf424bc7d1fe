package main

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/droxporter/pkg/config"
	"github.com/cuemby/droxporter/pkg/doclient"
	"github.com/cuemby/droxporter/pkg/inventory"
	"github.com/cuemby/droxporter/pkg/keymanager"
	"github.com/cuemby/droxporter/pkg/loaders"
	"github.com/cuemby/droxporter/pkg/log"
	"github.com/cuemby/droxporter/pkg/metrics"
	"github.com/cuemby/droxporter/pkg/scheduler"
	"github.com/cuemby/droxporter/pkg/selfmetrics"
	"github.com/cuemby/droxporter/pkg/types"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "droxporter",
	Short:   "droxporter - a Prometheus exporter for DigitalOcean Droplets and Apps",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"droxporter version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the exporter and serve /metrics until interrupted",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringP("config", "c", "config.yaml", "Path to the exporter configuration file")
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	logger := log.WithComponent("main")

	settings, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	metrics.SetVersion(Version)

	registry := metrics.NewRegistry(settings.Custom.Prefix, settings.Custom.Labels)
	vectors := metrics.NewVectors(registry)

	recordLimits := settings.ExporterMetrics.Enabled && settings.ExporterMetrics.Has(config.AgentMetricLimits)
	keys := keymanager.New(keyPools(settings), defaultTiers(), vectors, recordLimits)
	metrics.RegisterComponent("keymanager", true, "ready")

	recordRequests := settings.ExporterMetrics.Enabled && settings.ExporterMetrics.Has(config.AgentMetricRequests)
	client := doclient.New(doclient.Config{
		DropletsURL:    settings.Droplets.URL,
		AppsURL:        settings.Apps.URL,
		MonitoringURL:  settings.Metrics.BaseURL,
		GlobalRPS:      settings.OutboundRPS,
		RecordRequests: recordRequests,
	}, keys, vectors)

	dropletStore := inventory.NewDropletStore(client, vectors, inventory.DropletToggles{
		Memory: settings.Droplets.Has(config.DropletMetricMemory),
		VCPU:   settings.Droplets.Has(config.DropletMetricVCPU),
		Disk:   settings.Droplets.Has(config.DropletMetricDisk),
		Status: settings.Droplets.Has(config.DropletMetricStatus),
	})
	appStore := inventory.NewAppStore(client, vectors, settings.Apps.ActiveDeployment)
	metrics.UpdateInventoryReadiness(dropletStore.Refreshed(), appStore.Refreshed())

	dropletLoaders := loaders.NewDropletLoaders(client, dropletStore, vectors)
	appLoaders := loaders.NewAppLoaders(client, appStore, vectors)

	agent, err := selfmetrics.New(vectors, selfmetricsToggles(settings), selfmetrics.StartUnix())
	if err != nil {
		return fmt.Errorf("start self-metrics agent: %w", err)
	}

	jobs := buildJobs(settings, dropletStore, appStore, dropletLoaders, appLoaders, agent)

	recordJobs := settings.ExporterMetrics.Enabled && settings.ExporterMetrics.Has(config.AgentMetricJobs)
	sched := scheduler.New(jobs, vectors, recordJobs)
	sched.Start()
	defer sched.Stop()
	metrics.RegisterComponent("scheduler", true, "running")

	srv := buildServer(settings, registry)
	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("starting metrics server")
		var err error
		if settings.Endpoint.SSL.Enabled {
			err = srv.ListenAndServeTLS(settings.Endpoint.SSL.RootCertPath, settings.Endpoint.SSL.KeyPath)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("metrics server: %w", err)
	case <-sig:
		logger.Info().Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// buildServer wires the scrape handler behind the configured Basic auth
// gate, per spec.md's external-HTTP-surface carve-out.
func buildServer(settings *config.AppSettings, registry *metrics.Registry) *http.Server {
	handler := registry.Handler()
	if settings.Endpoint.Auth.Enabled {
		handler = basicAuth(handler, settings.Endpoint.Auth.Login, settings.Endpoint.Auth.Password)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	mux.HandleFunc("/health", metrics.HealthHandler())
	mux.HandleFunc("/ready", metrics.ReadyHandler())
	mux.HandleFunc("/live", metrics.LivenessHandler())

	return &http.Server{
		Addr:    fmt.Sprintf("%s:%d", settings.Endpoint.Host, settings.Endpoint.Port),
		Handler: mux,
	}
}

func basicAuth(next http.Handler, login, password string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(login)) != 1 ||
			subtle.ConstantTimeCompare([]byte(pass), []byte(password)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="droxporter"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// keyPools assembles the purpose->token-values map keymanager.New needs
// from every keys list in the configuration.
func keyPools(s *config.AppSettings) map[types.KeyPurpose][]string {
	pools := map[types.KeyPurpose][]string{
		types.PurposeDefault:      s.DefaultKeys,
		types.PurposeDropletsList: s.Droplets.Keys,
		types.PurposeAppsList:     s.Apps.Keys,
	}
	if s.Metrics.Bandwidth != nil {
		pools[types.PurposeDropletBandwidth] = s.Metrics.Bandwidth.Keys
	}
	if s.Metrics.CPU != nil {
		pools[types.PurposeDropletCPU] = s.Metrics.CPU.Keys
	}
	if s.Metrics.Filesystem != nil {
		pools[types.PurposeDropletFilesystem] = s.Metrics.Filesystem.Keys
	}
	if s.Metrics.Memory != nil {
		pools[types.PurposeDropletMemory] = s.Metrics.Memory.Keys
	}
	if s.Metrics.Load != nil {
		pools[types.PurposeDropletLoad] = s.Metrics.Load.Keys
	}
	if s.Apps.CPUPercentage != nil {
		pools[types.PurposeAppCPU] = s.Apps.CPUPercentage.Keys
	}
	if s.Apps.MemoryPercentage != nil {
		pools[types.PurposeAppMemory] = s.Apps.MemoryPercentage.Keys
	}
	if s.Apps.RestartCount != nil {
		pools[types.PurposeAppRestart] = s.Apps.RestartCount.Keys
	}
	return pools
}

// defaultTiers mirrors the DigitalOcean API's published rate limits: 250
// requests per minute and 4,500 requests per hour per token, the two-tier
// gate spec.md §4.1 describes.
func defaultTiers() []keymanager.TierSpec {
	return []keymanager.TierSpec{
		{Capacity: 250, Window: time.Minute},
		{Capacity: 4500, Window: time.Hour},
	}
}

func selfmetricsToggles(s *config.AppSettings) selfmetrics.Toggles {
	if !s.ExporterMetrics.Enabled {
		return selfmetrics.Toggles{}
	}
	return selfmetrics.Toggles{
		CPU:    s.ExporterMetrics.Has(config.AgentMetricCPU),
		Memory: s.ExporterMetrics.Has(config.AgentMetricMemory),
	}
}

// buildJobs assembles one scheduler.Job per independently-intervaled
// collection loop: inventory refreshes, info gauges, and every metric
// loader pass, each gated by its own configured enablement.
func buildJobs(
	s *config.AppSettings,
	dropletStore *inventory.DropletStore,
	appStore *inventory.AppStore,
	dropletLoaders *loaders.DropletLoaders,
	appLoaders *loaders.AppLoaders,
	agent *selfmetrics.Agent,
) []scheduler.Job {
	var jobs []scheduler.Job

	jobs = append(jobs, scheduler.Job{
		Name:     "droplets_inventory",
		Interval: s.Droplets.Interval.Std(),
		Run: func(ctx context.Context, nowUnix int64) error {
			err := dropletStore.Refresh(ctx)
			metrics.UpdateInventoryReadiness(dropletStore.Refreshed(), appStore.Refreshed())
			if err != nil {
				return err
			}
			dropletStore.RecordInfoMetrics()
			return nil
		},
	})

	jobs = append(jobs, scheduler.Job{
		Name:     "apps_inventory",
		Interval: s.Apps.Interval.Std(),
		Run: func(ctx context.Context, nowUnix int64) error {
			err := appStore.Refresh(ctx)
			metrics.UpdateInventoryReadiness(dropletStore.Refreshed(), appStore.Refreshed())
			if err != nil {
				return err
			}
			appStore.RecordInfoMetrics()
			return nil
		},
	})

	if b := s.Metrics.Bandwidth; b != nil && b.Enabled != nil && *b.Enabled {
		pairs := bandwidthPairs(b.Types)
		jobs = append(jobs, scheduler.Job{
			Name:     "bandwidth",
			Interval: b.Interval.Std(),
			Run: func(ctx context.Context, nowUnix int64) error {
				return dropletLoaders.Bandwidth(ctx, nowUnix, pairs)
			},
		})
	}

	if c := s.Metrics.CPU; c != nil && c.Enabled != nil && *c.Enabled {
		jobs = append(jobs, scheduler.Job{
			Name:     "cpu",
			Interval: c.Interval.Std(),
			Run: func(ctx context.Context, nowUnix int64) error {
				return dropletLoaders.CPU(ctx, nowUnix)
			},
		})
	}

	if f := s.Metrics.Filesystem; f != nil && f.Enabled != nil && *f.Enabled {
		kinds := filesystemKinds(f.Types)
		jobs = append(jobs, scheduler.Job{
			Name:     "filesystem",
			Interval: f.Interval.Std(),
			Run: func(ctx context.Context, nowUnix int64) error {
				return dropletLoaders.Filesystem(ctx, nowUnix, kinds)
			},
		})
	}

	if m := s.Metrics.Memory; m != nil && m.Enabled != nil && *m.Enabled {
		kinds := memoryKinds(m.Types)
		jobs = append(jobs, scheduler.Job{
			Name:     "memory",
			Interval: m.Interval.Std(),
			Run: func(ctx context.Context, nowUnix int64) error {
				return dropletLoaders.Memory(ctx, nowUnix, kinds)
			},
		})
	}

	if l := s.Metrics.Load; l != nil && l.Enabled != nil && *l.Enabled {
		windows := loadWindows(l.Types)
		jobs = append(jobs, scheduler.Job{
			Name:     "load",
			Interval: l.Interval.Std(),
			Run: func(ctx context.Context, nowUnix int64) error {
				return dropletLoaders.Load(ctx, nowUnix, windows)
			},
		})
	}

	if c := s.Apps.CPUPercentage; c != nil && c.Enabled != nil && *c.Enabled {
		jobs = append(jobs, scheduler.Job{
			Name:     "app_cpu_percentage",
			Interval: c.Interval.Std(),
			Run:      appLoaders.CPUPercentage,
		})
	}

	if m := s.Apps.MemoryPercentage; m != nil && m.Enabled != nil && *m.Enabled {
		jobs = append(jobs, scheduler.Job{
			Name:     "app_memory_percentage",
			Interval: m.Interval.Std(),
			Run:      appLoaders.MemoryPercentage,
		})
	}

	if r := s.Apps.RestartCount; r != nil && r.Enabled != nil && *r.Enabled {
		jobs = append(jobs, scheduler.Job{
			Name:     "app_restart_count",
			Interval: r.Interval.Std(),
			Run:      appLoaders.RestartCount,
		})
	}

	if s.ExporterMetrics.Enabled {
		jobs = append(jobs, scheduler.Job{
			Name:     "agent",
			Interval: s.ExporterMetrics.Interval.Std(),
			Run: func(ctx context.Context, nowUnix int64) error {
				agent.Sample()
				return nil
			},
		})
	}

	return jobs
}

// bandwidthPairs decomposes the configured BandwidthType set into the
// specific (interface, direction) pairs to query — never their cross
// product. An empty set enables all four, matching the other loaders'
// "no types configured means every sub-kind" default.
func bandwidthPairs(kinds []config.BandwidthType) []loaders.BandwidthPair {
	all := []struct {
		kind config.BandwidthType
		pair loaders.BandwidthPair
	}{
		{config.BandwidthPrivateInbound, loaders.BandwidthPair{Interface: "private", Direction: "inbound"}},
		{config.BandwidthPrivateOutbound, loaders.BandwidthPair{Interface: "private", Direction: "outbound"}},
		{config.BandwidthPublicInbound, loaders.BandwidthPair{Interface: "public", Direction: "inbound"}},
		{config.BandwidthPublicOutbound, loaders.BandwidthPair{Interface: "public", Direction: "outbound"}},
	}

	enabled := make(map[config.BandwidthType]struct{}, len(kinds))
	for _, k := range kinds {
		enabled[k] = struct{}{}
	}

	var pairs []loaders.BandwidthPair
	for _, a := range all {
		if len(kinds) == 0 {
			pairs = append(pairs, a.pair)
			continue
		}
		if _, ok := enabled[a.kind]; ok {
			pairs = append(pairs, a.pair)
		}
	}
	return pairs
}

func filesystemKinds(kinds []config.FilesystemType) []string {
	if len(kinds) == 0 {
		return []string{"free", "size"}
	}
	out := make([]string, len(kinds))
	for i, t := range kinds {
		out[i] = string(t)
	}
	return out
}

func memoryKinds(kinds []config.MemoryType) []string {
	if len(kinds) == 0 {
		return []string{"cached", "free", "total", "available"}
	}
	out := make([]string, len(kinds))
	for i, t := range kinds {
		out[i] = string(t)
	}
	return out
}

func loadWindows(kinds []config.LoadType) []string {
	if len(kinds) == 0 {
		return []string{"1", "5", "15"}
	}
	out := make([]string, len(kinds))
	for i, t := range kinds {
		switch t {
		case config.Load1:
			out[i] = "1"
		case config.Load5:
			out[i] = "5"
		case config.Load15:
			out[i] = "15"
		}
	}
	return out
}
