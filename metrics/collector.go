// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics exposes a volume's query_volume_stats (spec §4.10) as
// Prometheus gauges: resident CryptedFiles, cOpenStorageFiles, csInCache,
// and csDirty, labeled by the volume's VolumeLabel (its superblock label,
// or its instance ID when that is empty). aefsvol registers one Collector per
// accessed volume and serves them over the standard promhttp handler.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// StatsProvider is the subset of *volume.Volume the collector needs; kept
// narrow so this package does not import internal/aefs/volume (metrics
// stays an outer, optional layer over the core, spec §5: the core itself
// never emits telemetry).
type StatsProvider interface {
	QueryVolumeStats() Stats
	VolumeLabel() string
}

// Stats mirrors volume.Stats without importing the volume package.
type Stats struct {
	Files  int
	Open   int
	Cached int
	Dirty  int
}

var (
	filesDesc = prometheus.NewDesc(
		"aefs_crypted_files", "Number of CryptedFiles held resident (cMaxCryptedFiles bound).",
		[]string{"volume"}, nil)
	openDesc = prometheus.NewDesc(
		"aefs_open_storage_files", "Number of open host storage-file handles (cMaxOpenStorageFiles bound).",
		[]string{"volume"}, nil)
	cachedDesc = prometheus.NewDesc(
		"aefs_cached_sectors", "Number of plaintext sectors resident in the MRU cache (csMaxCached bound).",
		[]string{"volume"}, nil)
	dirtyDesc = prometheus.NewDesc(
		"aefs_dirty_sectors", "Number of cached sectors not yet written back (csDirty).",
		[]string{"volume"}, nil)
)

// Collector adapts one volume's stats to prometheus.Collector. Register it
// with a prometheus.Registry; each Collect call re-reads QueryVolumeStats,
// so the gauges always reflect current state without a background poller.
type Collector struct {
	vol StatsProvider
}

// NewCollector returns a Collector for vol.
func NewCollector(vol StatsProvider) *Collector {
	return &Collector{vol: vol}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- filesDesc
	ch <- openDesc
	ch <- cachedDesc
	ch <- dirtyDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.vol.QueryVolumeStats()
	label := c.vol.VolumeLabel()
	ch <- prometheus.MustNewConstMetric(filesDesc, prometheus.GaugeValue, float64(stats.Files), label)
	ch <- prometheus.MustNewConstMetric(openDesc, prometheus.GaugeValue, float64(stats.Open), label)
	ch <- prometheus.MustNewConstMetric(cachedDesc, prometheus.GaugeValue, float64(stats.Cached), label)
	ch <- prometheus.MustNewConstMetric(dirtyDesc, prometheus.GaugeValue, float64(stats.Dirty), label)
}
