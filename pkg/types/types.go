// Package types holds the data shapes shared across droxporter's packages:
// inventory records, upstream metric points, and the closed enums that tie a
// request to the key pool and metric label it uses.
package types

// KeyPurpose tags the use-class of a token. One purpose maps to exactly one
// key pool; a RequestType maps to exactly one purpose.
type KeyPurpose string

const (
	PurposeDefault           KeyPurpose = "default"
	PurposeDropletsList      KeyPurpose = "droplets-list"
	PurposeAppsList          KeyPurpose = "apps-list"
	PurposeDropletBandwidth  KeyPurpose = "droplet-bandwidth"
	PurposeDropletCPU        KeyPurpose = "droplet-cpu"
	PurposeDropletFilesystem KeyPurpose = "droplet-filesystem"
	PurposeDropletMemory     KeyPurpose = "droplet-memory"
	PurposeDropletLoad       KeyPurpose = "droplet-load"
	PurposeAppCPU            KeyPurpose = "app-cpu"
	PurposeAppMemory         KeyPurpose = "app-memory"
	PurposeAppRestart        KeyPurpose = "app-restart"
)

// RequestType is a closed enum of upstream endpoints. Each variant maps to
// the KeyPurpose it draws from and the label recorded against the request
// histogram/counter; it does not carry the URL-path suffix, which doclient
// passes alongside it.
type RequestType string

const (
	RequestListDroplets        RequestType = "list_droplets"
	RequestListApps            RequestType = "list_apps"
	RequestDropletBandwidth    RequestType = "bandwidth"
	RequestDropletCPU          RequestType = "cpu"
	RequestDropletFilesystem   RequestType = "filesystem"
	RequestDropletMemory       RequestType = "memory"
	RequestDropletLoad         RequestType = "load"
	RequestAppCPUPercentage    RequestType = "app_cpu_percentage"
	RequestAppMemoryPercentage RequestType = "app_memory_percentage"
	RequestAppRestartCount     RequestType = "app_restart_count"
)

// Purpose returns the KeyPurpose a RequestType draws its token from.
func (r RequestType) Purpose() KeyPurpose {
	switch r {
	case RequestListDroplets:
		return PurposeDropletsList
	case RequestListApps:
		return PurposeAppsList
	case RequestDropletBandwidth:
		return PurposeDropletBandwidth
	case RequestDropletCPU:
		return PurposeDropletCPU
	case RequestDropletFilesystem:
		return PurposeDropletFilesystem
	case RequestDropletMemory:
		return PurposeDropletMemory
	case RequestDropletLoad:
		return PurposeDropletLoad
	case RequestAppCPUPercentage:
		return PurposeAppCPU
	case RequestAppMemoryPercentage:
		return PurposeAppMemory
	case RequestAppRestartCount:
		return PurposeAppRestart
	default:
		return PurposeDefault
	}
}

// Label is the value recorded against digital_ocean_request_histogram_seconds
// and digital_ocean_request_counter.
func (r RequestType) Label() string {
	return string(r)
}

// DropletInfo is one inventory record for a DigitalOcean virtual machine.
// Identity is ID; Name is the external label used on every droplet series.
type DropletInfo struct {
	ID     uint64
	Name   string
	Memory uint64
	VCPUs  uint64
	Disk   uint64
	Locked bool
	Status string
}

// AppInfo is one inventory record for an App Platform application. Identity
// is ID; Name is the external label used on every app series.
type AppInfo struct {
	ID                    string
	Name                  string
	ActiveDeploymentPhase string
}

// MetricPoint is a single upstream sample. Upstream encodes Value as a
// string; callers parse it to float64 at the edge and treat parse failures
// as 0, never as a pass-aborting error.
type MetricPoint struct {
	Timestamp uint64
	Value     string
}

// JobResult is the outcome recorded for one scheduler pass.
type JobResult string

const (
	JobSuccess JobResult = "success"
	JobFail    JobResult = "fail"
)
