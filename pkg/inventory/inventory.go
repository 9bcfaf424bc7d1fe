// Package inventory holds the two independent stores (C4) that page through
// the DigitalOcean API and cache a consistent snapshot of Droplets and Apps:
// readers always observe either the previous or the new snapshot, never a
// torn view, because refresh swaps an immutable slice under a mutex rather
// than mutating one in place.
package inventory

import (
	"context"
	"sync"

	"github.com/cuemby/droxporter/pkg/log"
	"github.com/cuemby/droxporter/pkg/metrics"
	"github.com/cuemby/droxporter/pkg/reconciler"
	"github.com/cuemby/droxporter/pkg/types"
	"github.com/rs/zerolog"
)

// DropletLister is the subset of doclient.Client the DropletStore needs.
type DropletLister interface {
	ListDroplets(ctx context.Context) ([]types.DropletInfo, error)
}

// AppLister is the subset of doclient.Client the AppStore needs.
type AppLister interface {
	ListApps(ctx context.Context) ([]types.AppInfo, error)
}

// DropletToggles gates which info gauges RecordInfoMetrics updates, per
// spec.md §4.4.
type DropletToggles struct {
	Memory bool
	VCPU   bool
	Disk   bool
	Status bool
}

// DropletStore caches the live droplet inventory.
type DropletStore struct {
	client  DropletLister
	vectors *metrics.Vectors
	toggles DropletToggles
	logger  zerolog.Logger

	mu        sync.RWMutex
	snapshot  []types.DropletInfo
	refreshed bool
}

// NewDropletStore builds a DropletStore.
func NewDropletStore(client DropletLister, vectors *metrics.Vectors, toggles DropletToggles) *DropletStore {
	return &DropletStore{
		client:  client,
		vectors: vectors,
		toggles: toggles,
		logger:  log.WithComponent("droplet-store"),
	}
}

// Refresh pages through the upstream and atomically swaps the snapshot.
func (s *DropletStore) Refresh(ctx context.Context) error {
	droplets, err := s.client.ListDroplets(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.snapshot = droplets
	s.refreshed = true
	s.mu.Unlock()
	return nil
}

// List returns the current snapshot. The returned slice must not be mutated.
func (s *DropletStore) List() []types.DropletInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Refreshed reports whether at least one Refresh has completed successfully.
// The "inventory" health component, reported by /ready, stays not-ready until
// this and AppStore.Refreshed are both true; /metrics is served regardless.
func (s *DropletStore) Refreshed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshed
}

// Names returns the current snapshot's name set, the primary-key set the
// label reconciler prunes against.
func (s *DropletStore) Names() map[string]struct{} {
	snapshot := s.List()
	out := make(map[string]struct{}, len(snapshot))
	for _, d := range snapshot {
		out[d.Name] = struct{}{}
	}
	return out
}

// RecordInfoMetrics updates the droplet info gauges subject to toggles, then
// prunes each touched vector against the current snapshot.
func (s *DropletStore) RecordInfoMetrics() {
	snapshot := s.List()
	names := s.Names()

	if s.toggles.Memory {
		for _, d := range snapshot {
			s.vectors.DropletMemorySettings.WithLabelValues(d.Name).Set(float64(d.Memory))
		}
		reconciler.RemoveOldDroplets(s.vectors.DropletMemorySettings, names)
	}
	if s.toggles.VCPU {
		for _, d := range snapshot {
			s.vectors.DropletVCPUSettings.WithLabelValues(d.Name).Set(float64(d.VCPUs))
		}
		reconciler.RemoveOldDroplets(s.vectors.DropletVCPUSettings, names)
	}
	if s.toggles.Disk {
		for _, d := range snapshot {
			s.vectors.DropletDiskSettings.WithLabelValues(d.Name).Set(float64(d.Disk))
		}
		reconciler.RemoveOldDroplets(s.vectors.DropletDiskSettings, names)
	}
	if s.toggles.Status {
		for _, d := range snapshot {
			s.vectors.DropletStatus.WithLabelValues(d.Name, d.Status).Set(1)
		}
		reconciler.RemoveOldDroplets(s.vectors.DropletStatus, names)
	}
}

// AppStore caches the live App Platform inventory.
type AppStore struct {
	client  AppLister
	vectors *metrics.Vectors
	enabled bool
	logger  zerolog.Logger

	mu        sync.RWMutex
	snapshot  []types.AppInfo
	refreshed bool
}

// NewAppStore builds an AppStore. enabled gates whether
// app_active_deployment_phase is recorded.
func NewAppStore(client AppLister, vectors *metrics.Vectors, enabled bool) *AppStore {
	return &AppStore{
		client:  client,
		vectors: vectors,
		enabled: enabled,
		logger:  log.WithComponent("app-store"),
	}
}

// Refresh pages through the upstream and atomically swaps the snapshot.
func (s *AppStore) Refresh(ctx context.Context) error {
	apps, err := s.client.ListApps(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.snapshot = apps
	s.refreshed = true
	s.mu.Unlock()
	return nil
}

// List returns the current snapshot.
func (s *AppStore) List() []types.AppInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Refreshed reports whether at least one Refresh has completed successfully.
func (s *AppStore) Refreshed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshed
}

// Names returns the current snapshot's name set.
func (s *AppStore) Names() map[string]struct{} {
	snapshot := s.List()
	out := make(map[string]struct{}, len(snapshot))
	for _, a := range snapshot {
		out[a.Name] = struct{}{}
	}
	return out
}

// RecordInfoMetrics updates app_active_deployment_phase, gated by enabled,
// then prunes it against the current snapshot.
func (s *AppStore) RecordInfoMetrics() {
	if !s.enabled {
		return
	}
	snapshot := s.List()
	for _, a := range snapshot {
		s.vectors.AppActiveDeploymentPhase.WithLabelValues(a.Name, a.ActiveDeploymentPhase).Set(1)
	}
	reconciler.RemoveOldAppsForGauge(s.vectors.AppActiveDeploymentPhase, s.Names())
}
