// Package doclient implements C3, the typed client against the DigitalOcean
// public REST API: droplet/app inventory listing and the monitoring metrics
// endpoints, each acquiring a token through the key manager and recording
// latency/outcome into the registry's request vectors.
package doclient

import (
	"encoding/json"
	"fmt"

	"github.com/cuemby/droxporter/pkg/types"
)

// dropletsResponse is GET /v2/droplets.
type dropletsResponse struct {
	Droplets []dropletJSON `json:"droplets"`
	Links    linksJSON     `json:"links"`
}

type dropletJSON struct {
	ID     uint64 `json:"id"`
	Name   string `json:"name"`
	Memory uint64 `json:"memory"`
	VCPUs  uint64 `json:"vcpus"`
	Disk   uint64 `json:"disk"`
	Locked bool   `json:"locked"`
	Status string `json:"status"`
}

func (d dropletJSON) toInfo() types.DropletInfo {
	return types.DropletInfo{
		ID: d.ID, Name: d.Name, Memory: d.Memory, VCPUs: d.VCPUs, Disk: d.Disk,
		Locked: d.Locked, Status: d.Status,
	}
}

// appsResponse is GET /v2/apps.
type appsResponse struct {
	Apps  []appJSON `json:"apps"`
	Links linksJSON `json:"links"`
}

type appJSON struct {
	ID               string            `json:"id"`
	Spec             appSpecJSON        `json:"spec"`
	ActiveDeployment *activeDeployJSON `json:"active_deployment,omitempty"`
}

type appSpecJSON struct {
	Name string `json:"name"`
}

type activeDeployJSON struct {
	Phase string `json:"phase"`
}

func (a appJSON) toInfo() types.AppInfo {
	phase := "UNKNOWN"
	if a.ActiveDeployment != nil && a.ActiveDeployment.Phase != "" {
		phase = a.ActiveDeployment.Phase
	}
	return types.AppInfo{ID: a.ID, Name: a.Spec.Name, ActiveDeploymentPhase: phase}
}

// linksJSON is the pagination envelope. hasNext reports whether
// links.pages.next was present in the response at all (spec.md §4.4: the
// canonical stop condition, not an empty page).
type linksJSON struct {
	Pages struct {
		Next string `json:"next"`
	} `json:"pages"`
}

func (l linksJSON) hasNext(raw []byte) bool {
	var probe struct {
		Links struct {
			Pages struct {
				Next *string `json:"next"`
			} `json:"pages"`
		} `json:"links"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	return probe.Links.Pages.Next != nil
}

// metricsResponse is the shared shape of both monitoring endpoints.
type metricsResponse struct {
	Status string `json:"status"`
	Data   struct {
		Result []metricSeriesJSON `json:"result"`
	} `json:"data"`
}

type metricSeriesJSON struct {
	Metric map[string]string `json:"metric"`
	Values []point            `json:"values"`
}

// point decodes one upstream [timestamp, value_string] tuple.
type point types.MetricPoint

func (p *point) UnmarshalJSON(data []byte) error {
	var raw [2]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode metric point: %w", err)
	}
	var ts uint64
	if err := json.Unmarshal(raw[0], &ts); err != nil {
		return fmt.Errorf("decode metric point timestamp: %w", err)
	}
	var value string
	if err := json.Unmarshal(raw[1], &value); err != nil {
		return fmt.Errorf("decode metric point value: %w", err)
	}
	p.Timestamp = ts
	p.Value = value
	return nil
}

func label(m map[string]string, key string) string {
	if v, ok := m[key]; ok && v != "" {
		return v
	}
	return "unknown"
}
