package main

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"vrt-bridge/internal/metrics"
	"vrt-bridge/internal/network"
	"vrt-bridge/internal/router"
	"vrt-bridge/internal/stats"
)

func newListenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Receive VRT packets and apply context fields through the mapping",
		RunE:  runListen,
	}
	cmd.Flags().String("address", "", "Listen address")
	cmd.Flags().Int("port", 0, "Listen port")
	cmd.Flags().Int("idle-timeout", 0, "Forget streams idle for this many ms")
	cmd.Flags().Int("stats-interval", 0, "Periodic statistics interval in seconds (0 = off)")
	cmd.Flags().String("stats-export", "", "Write final statistics as JSON to this file")
	cmd.Flags().Bool("metrics", false, "Serve Prometheus metrics")
	cmd.Flags().String("metrics-address", "", "Metrics listen address (host:port)")
	return cmd
}

func runListen(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "VRT Bridge v%s\n", version)
	fmt.Fprintln(cmd.OutOrStdout(), "==============================")
	fmt.Fprint(cmd.OutOrStdout(), cfg.Summary())

	m, err := loadMapping(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	var mtr *metrics.Metrics
	if cfg.Metrics.Enabled {
		mtr = metrics.New()
		srv := metrics.NewServer(cfg.Metrics.Address, mtr)
		if err := srv.Start(); err != nil {
			return err
		}
		defer func() {
			if err := srv.Stop(context.Background()); err != nil {
				log.WithError(err).Warn("Failed to stop metrics server")
			}
		}()
	}

	collector := stats.NewCollector()
	reporter := stats.NewReporter(collector, cfg.Stats.ReportIntervalSec, cfg.Stats.ExportFile)
	if cfg.Stats.Enabled {
		reporter.StartPeriodicReport(ctx)
	}

	p := newPipeline(cfg, m, router.LogWriter{}, collector, mtr)
	p.tracker.StartExpiryMonitor(ctx)

	conn, err := network.Listen(cfg.Listener.Address, cfg.Listener.Port)
	if err != nil {
		return fmt.Errorf("failed to listen on %s:%d: %w", cfg.Listener.Address, cfg.Listener.Port, err)
	}
	defer conn.Close()

	log.WithField("addr", conn.LocalAddr()).Info("Listening for VRT packets")

	receiver := network.NewReceiver(conn, p.decodeObserver())
	receiver.Start(ctx)

	for rp := range receiver.Packets() {
		p.handle(ctx, rp.Packet, len(rp.Data), rp.From.String(), rp.At)
	}

	log.WithField("streams", len(p.tracker.Snapshot())).Info("Receiver stopped")

	if cfg.Stats.Enabled {
		reporter.PrintFinalReport()
		if err := reporter.ExportJSON(); err != nil {
			log.WithError(err).Warn("Failed to export statistics")
		}
	}
	printStreams(cmd, p.tracker)
	return nil
}

func printStreams(cmd *cobra.Command, tracker *network.StreamTracker) {
	streams := tracker.Snapshot()
	if len(streams) == 0 {
		return
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Streams:")
	for _, s := range streams {
		kind := "data"
		if s.Context {
			kind = "context"
		}
		fmt.Fprintf(out, "  0x%08X %-7s packets=%-7d lost=%-5d dup=%-5d last=%s from=%s\n",
			s.StreamID, kind, s.Packets, s.Lost, s.Duplicates, s.LastSeen.Format(time.RFC3339), s.From)
	}
}
