package metrics

import "github.com/prometheus/client_golang/prometheus"

// Vectors holds every metric family droxporter's components write into.
// It is built once, from one Registry, and shared by every component per
// spec.md's dependency order (C1->C2->C3->C4,C5->C8).
type Vectors struct {
	// Inventory info gauges (C4).
	DropletMemorySettings    *prometheus.GaugeVec
	DropletVCPUSettings      *prometheus.GaugeVec
	DropletDiskSettings      *prometheus.GaugeVec
	DropletStatus            *prometheus.GaugeVec
	AppActiveDeploymentPhase *prometheus.GaugeVec

	// Metric loader vectors (C5).
	DropletBandwidth     *prometheus.GaugeVec
	DropletCPU           *prometheus.GaugeVec
	DropletFilesystem    *prometheus.GaugeVec
	DropletMemory        *prometheus.GaugeVec
	DropletLoad          *prometheus.GaugeVec
	AppCPUPercentage     *prometheus.GaugeVec
	AppMemoryPercentage  *prometheus.GaugeVec
	AppRestartCount      *prometheus.CounterVec

	// Key manager self-observability (C2).
	RemainingLimitsByKey *prometheus.GaugeVec
	KeysCountByStatus    *prometheus.GaugeVec
	KeysErrors           *prometheus.CounterVec

	// Upstream client self-observability (C3).
	RequestHistogram *prometheus.HistogramVec
	RequestCounter   *prometheus.CounterVec

	// Scheduler job outcomes (C8).
	JobsCounter       *prometheus.CounterVec
	JobsTimeHistogram *prometheus.HistogramVec

	// Self-agent process metrics (C7).
	SelfCPUUsagePercents prometheus.Gauge
	SelfMemoryUsage      prometheus.Gauge
	SelfStartTimeSeconds prometheus.Gauge
}

// NewVectors registers every family droxporter needs against reg.
func NewVectors(reg *Registry) *Vectors {
	return &Vectors{
		DropletMemorySettings: reg.NewGaugeVec("droplet_memory_settings",
			"Configured memory in MB for a droplet.", []string{"droplet"}),
		DropletVCPUSettings: reg.NewGaugeVec("droplet_vcpu_settings",
			"Configured vCPU count for a droplet.", []string{"droplet"}),
		DropletDiskSettings: reg.NewGaugeVec("droplet_disk_settings",
			"Configured disk size in GB for a droplet.", []string{"droplet"}),
		DropletStatus: reg.NewGaugeVec("droplet_status",
			"Droplet status info metric, value is always 1.", []string{"droplet", "status"}),
		AppActiveDeploymentPhase: reg.NewGaugeVec("app_active_deployment_phase",
			"App active deployment phase info metric, value is always 1.", []string{"app", "active_deployment_phase"}),

		DropletBandwidth: reg.NewGaugeVec("droplet_bandwidth",
			"Droplet bandwidth in bytes/s.", []string{"droplet", "interface", "direction"}),
		DropletCPU: reg.NewGaugeVec("droplet_cpu",
			"Droplet CPU time.", []string{"droplet", "mode"}),
		DropletFilesystem: reg.NewGaugeVec("droplet_filesystem",
			"Droplet filesystem metric.", []string{"droplet", "metric_type", "device", "fstype", "mountpoint"}),
		DropletMemory: reg.NewGaugeVec("droplet_memory",
			"Droplet memory metric in bytes.", []string{"droplet", "metric_type"}),
		DropletLoad: reg.NewGaugeVec("droplet_load",
			"Droplet load average.", []string{"droplet", "metric_type"}),
		AppCPUPercentage: reg.NewGaugeVec("app_cpu_percentage",
			"App component instance CPU percentage.", []string{"app", "app_component", "app_component_instance"}),
		AppMemoryPercentage: reg.NewGaugeVec("app_memory_percentage",
			"App component instance memory percentage.", []string{"app", "app_component", "app_component_instance"}),
		AppRestartCount: reg.NewCounterVec("app_restart_count",
			"App component instance restart count.", []string{"app", "app_component", "app_component_instance"}),

		RemainingLimitsByKey: reg.NewGaugeVec("remaining_limits_by_key",
			"Estimated remaining request budget summed over a key pool.", []string{"key_type", "timeframe"}),
		KeysCountByStatus: reg.NewGaugeVec("keys_count_by_status",
			"Count of tokens in a pool by status.", []string{"key_type", "status"}),
		KeysErrors: reg.NewCounterVec("keys_errors",
			"Key acquisition failures by reason.", []string{"key_type", "error"}),

		RequestHistogram: reg.NewHistogramVec("digital_ocean_request_histogram_seconds",
			"Upstream request latency in seconds.", DefaultBuckets, []string{"type", "result"}),
		RequestCounter: reg.NewCounterVec("digital_ocean_request_counter",
			"Upstream request count by outcome.", []string{"type", "result"}),

		JobsCounter: reg.NewCounterVec("jobs_counter",
			"Scheduler pass outcomes.", []string{"type", "result"}),
		JobsTimeHistogram: reg.NewHistogramVec("jobs_time_histogram_seconds",
			"Scheduler pass duration in seconds.", DefaultBuckets, []string{"type"}),

		SelfCPUUsagePercents: reg.NewGauge("self_cpu_usage_percents", "Exporter process CPU usage percentage."),
		SelfMemoryUsage:      reg.NewGauge("self_memory_usage", "Exporter process resident memory in bytes."),
		SelfStartTimeSeconds: reg.NewGauge("self_start_time_seconds", "Exporter process start time, UNIX seconds."),
	}
}
