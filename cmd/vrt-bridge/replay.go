package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"vrt-bridge/internal/pcap"
	"vrt-bridge/internal/router"
	"vrt-bridge/internal/stats"
)

func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Decode and route the VRT packets of a capture file",
		RunE:  runReplay,
	}
	cmd.Flags().String("pcap", "", "Input capture file (pcap or pcapng)")
	cmd.Flags().Int("pcap-port", 0, "UDP port carrying VRT (0 = any)")
	cmd.Flags().String("stats-export", "", "Write final statistics as JSON to this file")
	return cmd
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Input.PcapFile == "" {
		return fmt.Errorf("input.pcap_file must be specified")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	m, err := loadMapping(cfg)
	if err != nil {
		return err
	}

	result, err := pcap.NewParser(cfg.Input.Port).Parse(cfg.Input.PcapFile)
	if err != nil {
		return fmt.Errorf("failed to parse pcap: %w", err)
	}
	if len(result.Datagrams) == 0 && result.Failures() == 0 {
		return fmt.Errorf("no VRT packets found in %s", cfg.Input.PcapFile)
	}

	collector := stats.NewCollector()
	for kind, n := range result.DecodeFailures {
		collector.AddDecodeErrors(kind, n)
	}

	// attribute state is reconstructed in memory; nothing is written to hardware
	writer := router.NewMemoryWriter()
	p := newPipeline(cfg, m, writer, collector, nil)

	ctx := context.Background()
	for _, d := range result.Datagrams {
		from := fmt.Sprintf("%s:%d", d.SrcIP, d.SrcPort)
		p.handle(ctx, d.Packet, len(d.Data), from, time.Now())
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Capture: %s (%d frames, %d UDP datagrams, %d VRT packets, %d decode failures)\n",
		cfg.Input.PcapFile, result.TotalFrames, result.UDPDatagrams, len(result.Datagrams), result.Failures())

	reporter := stats.NewReporter(collector, 0, cfg.Stats.ExportFile)
	reporter.SetOutput(out)
	reporter.PrintFinalReport()
	if err := reporter.ExportJSON(); err != nil {
		log.WithError(err).Warn("Failed to export statistics")
	}

	printAttributeState(cmd, writer)
	printStreams(cmd, p.tracker)
	return nil
}

func printAttributeState(cmd *cobra.Command, writer *router.MemoryWriter) {
	seen := make(map[string]bool)
	var targets []string
	for _, w := range writer.Writes() {
		if t := w.Record.Target(); !seen[t] {
			seen[t] = true
			targets = append(targets, t)
		}
	}
	if len(targets) == 0 {
		return
	}
	sort.Strings(targets)

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Final attribute values:")
	for _, t := range targets {
		v, _ := writer.Value(t)
		fmt.Fprintf(out, "  %-60s %s\n", t, v)
	}
}
