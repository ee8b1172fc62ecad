package main

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"vrt-bridge/internal/config"
	"vrt-bridge/internal/directory"
	"vrt-bridge/internal/mapping"
	"vrt-bridge/internal/metrics"
	"vrt-bridge/internal/network"
	"vrt-bridge/internal/router"
	"vrt-bridge/internal/stats"
	"vrt-bridge/internal/vrt"
)

// mappingResult is a parsed and, when a directory is configured, validated
// mapping file.
type mappingResult struct {
	file   *mapping.File
	report *mapping.Report // nil without a directory
}

// usable returns the records that parsed and resolved.
func (m *mappingResult) usable() []mapping.Record {
	if m.report == nil {
		return m.file.Records
	}
	var out []mapping.Record
	for _, res := range m.report.Results {
		if res.OK() {
			out = append(out, res.Record)
		}
	}
	return out
}

func (m *mappingResult) invalid() int {
	if m.report == nil {
		return 0
	}
	return m.report.ErrorCount()
}

func loadMapping(cfg *config.Config) (*mappingResult, error) {
	file, err := mapping.ParseFile(cfg.Mapping.File)
	if err != nil {
		return nil, err
	}
	for _, serr := range file.Errors {
		log.WithFields(log.Fields{
			"file":  cfg.Mapping.File,
			"field": serr.Field,
			"value": serr.Value,
		}).Warn(serr.Error())
	}

	result := &mappingResult{file: file}
	if cfg.Directory.File == "" {
		log.WithField("records", len(file.Records)).Info("Mapping loaded without device directory, skipping validation")
		return result, nil
	}

	dir, err := directory.Load(cfg.Directory.File)
	if err != nil {
		return nil, err
	}

	opts := []mapping.Option{mapping.WithWorkers(cfg.Mapping.Workers)}
	if cfg.Mapping.StrictDirection {
		opts = append(opts, mapping.WithStrictDirection())
	}
	result.report = mapping.NewValidator(dir, opts...).Validate(file.Records)

	for _, res := range result.report.Results {
		switch {
		case res.Err != nil:
			log.WithField("target", res.Record.Target()).Warn(res.Err.Error())
		case res.DirectionFallback:
			log.WithFields(log.Fields{
				"line":      res.Record.Line,
				"channel":   res.Record.ChannelName,
				"is_output": res.Record.IsOutput,
			}).Warn("Channel found only with the opposite direction")
		}
	}

	log.WithFields(log.Fields{
		"records":       len(file.Records),
		"syntax_errors": file.ErrorCount(),
		"invalid":       result.report.ErrorCount(),
	}).Info("Mapping loaded")

	return result, nil
}

// routeObservers fans routing outcomes out to several observers.
type routeObservers []router.Observer

func (o routeObservers) RouteWrite(rec mapping.Record) {
	for _, obs := range o {
		obs.RouteWrite(rec)
	}
}

func (o routeObservers) RouteSkip(rec mapping.Record) {
	for _, obs := range o {
		obs.RouteSkip(rec)
	}
}

func (o routeObservers) RouteError(rec mapping.Record, err error) {
	for _, obs := range o {
		obs.RouteError(rec, err)
	}
}

// decodeObservers fans decode failures out to several observers.
type decodeObservers []network.DecodeObserver

func (o decodeObservers) DecodeFailed(err error) {
	for _, obs := range o {
		obs.DecodeFailed(err)
	}
}

// pipeline is the per-packet path shared by listen and replay.
type pipeline struct {
	router    *router.Router
	tracker   *network.StreamTracker
	collector *stats.Collector
	metrics   *metrics.Metrics // nil when disabled
}

func newPipeline(cfg *config.Config, m *mappingResult, writer router.Writer, collector *stats.Collector, mtr *metrics.Metrics) *pipeline {
	records := m.usable()
	collector.RecordMapping(len(m.file.Records), m.file.ErrorCount(), m.invalid())

	observers := routeObservers{collector}
	if mtr != nil {
		observers = append(observers, mtr)
		mtr.MappingLoaded(len(records), m.file.ErrorCount(), m.invalid())
	}

	r := router.New(records, writer)
	r.SetObserver(observers)

	log.WithFields(log.Fields{
		"records": len(records),
		"streams": r.Streams(),
	}).Info("Router ready")

	return &pipeline{
		router:    r,
		tracker:   network.NewStreamTracker(cfg.Stream.IdleTimeoutMs),
		collector: collector,
		metrics:   mtr,
	}
}

func (p *pipeline) decodeObserver() network.DecodeObserver {
	if p.metrics == nil {
		return p.collector
	}
	return decodeObservers{p.collector, p.metrics}
}

// handle routes one decoded packet. receivedAt is used for latency.
func (p *pipeline) handle(ctx context.Context, pkt *vrt.Packet, size int, from string, receivedAt time.Time) {
	p.collector.RecordReceived(pkt.Header.Type, size)
	lost := p.tracker.Observe(pkt, from)
	if lost > 0 {
		p.collector.RecordLost(lost)
	}
	if p.metrics != nil {
		p.metrics.PacketReceived(pkt.Header.Type, size)
		p.metrics.SetActiveStreams(p.tracker.ActiveCount())
		if lost > 0 {
			p.metrics.Lost(lost)
		}
	}

	writes, err := p.router.Route(ctx, pkt)
	if err != nil {
		// write failures are already counted through the route observers
		if vrt.ErrorKind(err) != "other" {
			p.collector.DecodeFailed(err)
			if p.metrics != nil {
				p.metrics.DecodeFailed(err)
			}
		}
		log.WithError(err).WithFields(log.Fields{
			"stream_id": fmt.Sprintf("0x%08X", pkt.StreamID),
			"from":      from,
		}).Warn("Failed to route context packet")
	}
	if writes > 0 {
		took := time.Since(receivedAt)
		p.collector.RecordRouted(pkt.Header.Type, took)
		if p.metrics != nil {
			p.metrics.Processed(took)
		}
	}
}
