// Copyright 2024 Google Inc. All Rights Reserved.
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

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	aefsmetrics "github.com/aefs/aefs/metrics"
	"github.com/aefs/aefs/internal/aefs/volume"
	"github.com/aefs/aefs/internal/logger"
)

var (
	serveFlushInterval time.Duration
	serveMetricsAddr   string
)

// statsAdapter narrows *volume.Volume to aefsmetrics.StatsProvider,
// converting volume.Stats to metrics.Stats so the metrics package never
// needs to import the core (spec §5: the core itself emits no telemetry).
type statsAdapter struct{ v *volume.Volume }

func (a statsAdapter) QueryVolumeStats() aefsmetrics.Stats {
	s := a.v.QueryVolumeStats()
	return aefsmetrics.Stats{Files: s.Files, Open: s.Open, Cached: s.Cached, Dirty: s.Dirty}
}

func (a statsAdapter) VolumeLabel() string { return a.v.VolumeLabel() }

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Keep a volume open, periodically flushing, and export Prometheus metrics",
	Long: `serve opens the configured volume and idles, flushing dirty sectors
on a timer and serving /metrics until interrupted. It has no FUSE or
network filesystem surface of its own (spec §1's mount/export protocols are
explicitly out of scope); it exists to keep one volume's engines resident
for other local tooling to drive and to expose its resource gauges.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := openVolume()
		if err != nil {
			return err
		}
		defer mustCloseVolume(v)

		registry := prometheus.NewRegistry()
		registry.MustRegister(aefsmetrics.NewCollector(statsAdapter{v: v}))

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: serveMetricsAddr, Handler: mux}

		srvErr := make(chan error, 1)
		go func() {
			logger.Infof("metrics listening on %s", serveMetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				srvErr <- err
			}
		}()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		ticker := time.NewTicker(serveFlushInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := v.FlushVolume(); err != nil {
					logger.Errorf("periodic flush: %v", err)
				}
			case err := <-srvErr:
				return fmt.Errorf("metrics server: %w", err)
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
				return v.FlushVolume()
			}
		}
	},
}

func init() {
	serveCmd.Flags().DurationVar(&serveFlushInterval, "flush-interval", 30*time.Second, "How often to flush dirty sectors.")
	serveCmd.Flags().StringVar(&serveMetricsAddr, "metrics-addr", ":9400", "Address to serve /metrics on.")
}
