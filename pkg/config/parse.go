package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads path, expands ${VAR}/${VAR:default} references, parses the
// result as YAML, and applies defaults for every unset field.
func Load(path string) (*AppSettings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded, err := expandEnv(string(raw))
	if err != nil {
		return nil, fmt.Errorf("expand config env vars: %w", err)
	}

	var settings AppSettings
	if err := yaml.Unmarshal([]byte(expanded), &settings); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	applyDefaults(&settings)
	return &settings, nil
}

// applyDefaults fills every zero-value field with the same defaults
// config_model.rs's serde(default = "...") functions provide.
func applyDefaults(s *AppSettings) {
	if s.Endpoint.Port == 0 {
		s.Endpoint.Port = 8888
	}
	if s.Endpoint.Host == "" {
		s.Endpoint.Host = "0.0.0.0"
	}
	if s.Endpoint.Auth.Login == "" {
		s.Endpoint.Auth.Login = "login"
	}
	if s.Endpoint.Auth.Password == "" {
		s.Endpoint.Auth.Password = "password"
	}
	if s.Endpoint.SSL.RootCertPath == "" {
		s.Endpoint.SSL.RootCertPath = "./cert.pem"
	}
	if s.Endpoint.SSL.KeyPath == "" {
		s.Endpoint.SSL.KeyPath = "./key.pem"
	}

	if s.Droplets.URL == "" {
		s.Droplets.URL = "https://api.digitalocean.com/v2/droplets"
	}
	defaultInterval(&s.Droplets.Interval, time.Hour)

	if s.Apps.URL == "" {
		s.Apps.URL = "https://api.digitalocean.com/v2/apps"
	}
	defaultInterval(&s.Apps.Interval, time.Hour)

	if s.Metrics.BaseURL == "" {
		s.Metrics.BaseURL = "https://api.digitalocean.com/v2/monitoring/metrics/droplet"
	}
	if s.Metrics.Bandwidth != nil {
		defaultInterval(&s.Metrics.Bandwidth.Interval, 60*time.Second)
		defaultEnabled(&s.Metrics.Bandwidth.Enabled, true)
	}
	if s.Metrics.CPU != nil {
		defaultInterval(&s.Metrics.CPU.Interval, 45*time.Second)
		defaultEnabled(&s.Metrics.CPU.Enabled, true)
	}
	if s.Metrics.Filesystem != nil {
		defaultInterval(&s.Metrics.Filesystem.Interval, 120*time.Second)
		defaultEnabled(&s.Metrics.Filesystem.Enabled, true)
	}
	if s.Metrics.Memory != nil {
		defaultInterval(&s.Metrics.Memory.Interval, 120*time.Second)
		defaultEnabled(&s.Metrics.Memory.Enabled, false)
	}
	if s.Metrics.Load != nil {
		defaultInterval(&s.Metrics.Load.Interval, 120*time.Second)
		defaultEnabled(&s.Metrics.Load.Enabled, false)
	}

	if s.Apps.CPUPercentage != nil {
		defaultInterval(&s.Apps.CPUPercentage.Interval, 60*time.Second)
		defaultEnabled(&s.Apps.CPUPercentage.Enabled, true)
	}
	if s.Apps.MemoryPercentage != nil {
		defaultInterval(&s.Apps.MemoryPercentage.Interval, 60*time.Second)
		defaultEnabled(&s.Apps.MemoryPercentage.Enabled, true)
	}
	if s.Apps.RestartCount != nil {
		defaultInterval(&s.Apps.RestartCount.Interval, 60*time.Second)
		defaultEnabled(&s.Apps.RestartCount.Enabled, true)
	}

	defaultInterval(&s.ExporterMetrics.Interval, 60*time.Second)

	if s.OutboundRPS == 0 {
		s.OutboundRPS = 100
	}

	if len(s.DefaultKeys) == 0 {
		s.DefaultKeys = []string{}
	}
}

// defaultInterval fills interval with def if it is unset.
func defaultInterval(interval *Duration, def time.Duration) {
	if *interval == 0 {
		*interval = Duration(def)
	}
}

// defaultEnabled fills *enabled with def when the YAML omitted the field
// entirely. enabled is a pointer precisely so "omitted" and "explicitly
// false" are distinguishable, which a plain bool cannot express.
func defaultEnabled(enabled **bool, def bool) {
	if *enabled == nil {
		*enabled = &def
	}
}
