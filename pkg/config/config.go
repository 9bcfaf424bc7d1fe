// Package config implements C10: the process-wide configuration resolved
// once at startup from a YAML file (after environment-variable
// interpolation) and shared by reference for the rest of the process's
// lifetime. Nothing in the exporter's engine packages parses or mutates it.
package config

// AppSettings is the root configuration document. Field tags follow the
// teacher's yaml.v3 convention (cmd/warren/apply.go).
type AppSettings struct {
	DefaultKeys     []string               `yaml:"default-keys"`
	Droplets        DropletSettings        `yaml:"droplets"`
	Apps            AppsSettings           `yaml:"apps"`
	Metrics         MetricsConfig          `yaml:"metrics"`
	ExporterMetrics ExporterMetricsConfigs `yaml:"exporter-metrics"`
	Endpoint        EndpointConfig         `yaml:"endpoint"`
	Custom          CustomSettings         `yaml:"custom"`

	// OutboundRPS caps the client's process-wide outbound request rate
	// against the upstream API, independent of and in addition to the
	// per-key leaky bucket (C1/C2). An omitted or zero value is replaced by
	// the default of 100 in applyDefaults; a negative value disables the
	// ceiling.
	OutboundRPS float64 `yaml:"outbound-rps"`
}

// CustomSettings applies an optional metric-name prefix and constant labels
// to every series the registry exposes.
type CustomSettings struct {
	Prefix string            `yaml:"prefix"`
	Labels map[string]string `yaml:"labels"`
}

// EndpointConfig configures the scrape HTTP surface.
type EndpointConfig struct {
	Port int            `yaml:"port"`
	Host string         `yaml:"host"`
	Auth AuthSettings   `yaml:"auth"`
	SSL  SslSettings    `yaml:"ssl"`
}

// AuthSettings gates HTTP Basic auth on the scrape endpoint.
type AuthSettings struct {
	Enabled  bool   `yaml:"enabled"`
	Login    string `yaml:"login"`
	Password string `yaml:"password"`
}

// SslSettings gates TLS termination on the scrape endpoint.
type SslSettings struct {
	Enabled      bool   `yaml:"enabled"`
	RootCertPath string `yaml:"root-cert-path"`
	KeyPath      string `yaml:"key-path"`
}

// MetricsConfig holds the droplet monitoring-metrics sub-settings.
type MetricsConfig struct {
	BaseURL    string             `yaml:"base-url"`
	Bandwidth  *BandwidthSettings `yaml:"bandwidth"`
	CPU        *CPUSettings       `yaml:"cpu"`
	Filesystem *FilesystemSettings `yaml:"filesystem"`
	Memory     *MemorySettings    `yaml:"memory"`
	Load       *LoadSettings      `yaml:"load"`
}

// AppsSettings configures App Platform inventory and its three loaders.
type AppsSettings struct {
	Keys             []string              `yaml:"keys"`
	URL              string                `yaml:"url"`
	Interval         Duration              `yaml:"interval"`
	ActiveDeployment bool                  `yaml:"active-deployment-phase"`
	CPUPercentage    *AppCPUSettings       `yaml:"cpu-percentage"`
	MemoryPercentage *AppMemorySettings    `yaml:"memory-percentage"`
	RestartCount     *AppRestartSettings   `yaml:"restart-count"`
}

// AppCPUSettings configures the app_cpu_percentage loader.
type AppCPUSettings struct {
	Keys     []string      `yaml:"keys"`
	Interval Duration `yaml:"interval"`
	Enabled  *bool         `yaml:"enabled"`
}

// AppMemorySettings configures the app_memory_percentage loader.
type AppMemorySettings struct {
	Keys     []string      `yaml:"keys"`
	Interval Duration `yaml:"interval"`
	Enabled  *bool         `yaml:"enabled"`
}

// AppRestartSettings configures the app_restart_count loader.
type AppRestartSettings struct {
	Keys     []string      `yaml:"keys"`
	Interval Duration `yaml:"interval"`
	Enabled  *bool         `yaml:"enabled"`
}

// ExporterMetricsConfigs configures the self-agent metrics loop (C7).
type ExporterMetricsConfigs struct {
	Metrics  []AgentMetricsType `yaml:"metrics"`
	Enabled  bool               `yaml:"enabled"`
	Interval Duration      `yaml:"interval"`
}

// AgentMetricsType is one of the self-metric families a deployment can opt
// into: memory, cpu, limits (key manager), requests (upstream client),
// jobs (scheduler outcomes).
type AgentMetricsType string

const (
	AgentMetricMemory   AgentMetricsType = "memory"
	AgentMetricCPU      AgentMetricsType = "cpu"
	AgentMetricLimits   AgentMetricsType = "limits"
	AgentMetricRequests AgentMetricsType = "requests"
	AgentMetricJobs     AgentMetricsType = "jobs"
)

// Has reports whether kind is present in the configured set.
func (c ExporterMetricsConfigs) Has(kind AgentMetricsType) bool {
	for _, k := range c.Metrics {
		if k == kind {
			return true
		}
	}
	return false
}

// DropletSettings configures droplet inventory and its info-gauge toggles.
type DropletSettings struct {
	Keys     []string             `yaml:"keys"`
	URL      string               `yaml:"url"`
	Interval Duration        `yaml:"interval"`
	Metrics  []DropletMetricsType `yaml:"metrics"`
}

// DropletMetricsType is one of the droplet info-gauge kinds.
type DropletMetricsType string

const (
	DropletMetricMemory DropletMetricsType = "memory"
	DropletMetricVCPU   DropletMetricsType = "vcpu"
	DropletMetricDisk   DropletMetricsType = "disk"
	DropletMetricStatus DropletMetricsType = "status"
)

// Has reports whether kind is present in the configured set.
func (s DropletSettings) Has(kind DropletMetricsType) bool {
	for _, k := range s.Metrics {
		if k == kind {
			return true
		}
	}
	return false
}

// BandwidthSettings configures the bandwidth loader.
type BandwidthSettings struct {
	Types    []BandwidthType `yaml:"types"`
	Keys     []string        `yaml:"keys"`
	Interval Duration   `yaml:"interval"`
	Enabled  *bool           `yaml:"enabled"`
}

// BandwidthType is one interface/direction combination.
type BandwidthType string

const (
	BandwidthPrivateInbound  BandwidthType = "private_inbound"
	BandwidthPrivateOutbound BandwidthType = "private_outbound"
	BandwidthPublicInbound   BandwidthType = "public_inbound"
	BandwidthPublicOutbound  BandwidthType = "public_outbound"
)

// CPUSettings configures the cpu loader.
type CPUSettings struct {
	Keys     []string      `yaml:"keys"`
	Interval Duration `yaml:"interval"`
	Enabled  *bool         `yaml:"enabled"`
}

// FilesystemSettings configures the filesystem loader.
type FilesystemSettings struct {
	Types    []FilesystemType `yaml:"types"`
	Keys     []string         `yaml:"keys"`
	Interval Duration    `yaml:"interval"`
	Enabled  *bool            `yaml:"enabled"`
}

// FilesystemType is one filesystem sub-kind.
type FilesystemType string

const (
	FilesystemFree FilesystemType = "free"
	FilesystemSize FilesystemType = "size"
)

// MemorySettings configures the memory loader.
type MemorySettings struct {
	Types    []MemoryType  `yaml:"types"`
	Keys     []string      `yaml:"keys"`
	Interval Duration `yaml:"interval"`
	Enabled  *bool         `yaml:"enabled"`
}

// MemoryType is one memory sub-kind.
type MemoryType string

const (
	MemoryCached    MemoryType = "cached"
	MemoryFree      MemoryType = "free"
	MemoryTotal     MemoryType = "total"
	MemoryAvailable MemoryType = "available"
)

// LoadSettings configures the load loader.
type LoadSettings struct {
	Types    []LoadType    `yaml:"types"`
	Keys     []string      `yaml:"keys"`
	Interval Duration `yaml:"interval"`
	Enabled  *bool         `yaml:"enabled"`
}

// LoadType is one load-average window.
type LoadType string

const (
	Load1  LoadType = "load_1"
	Load5  LoadType = "load_5"
	Load15 LoadType = "load_15"
)
