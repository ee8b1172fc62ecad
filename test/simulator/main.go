// VRT stream simulator for end-to-end testing of the bridge.
// Emits IF data packets and periodic IF context packets for a set of streams.
//
// Usage:
//
//	go run ./test/simulator [--target 127.0.0.1:4991] [--streams 2] [--rate 100] [--drop 0.01]
package main

import (
	"context"
	"flag"
	"math/rand"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"vrt-bridge/internal/network"
	"vrt-bridge/internal/vrt"
)

type stream struct {
	id          uint32
	sampleRate  float64
	bandwidth   float64
	rfFrequency float64
	dataCount   uint8
	ctxCount    uint8
}

type simulator struct {
	client       *network.UDPClient
	streams      []*stream
	contextEvery int
	dropRate     float64
	payloadWords int
	rng          *rand.Rand

	stats struct {
		data    int
		context int
		dropped int
		errors  int
	}
}

func (s *simulator) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	tick := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for _, st := range s.streams {
			if tick%s.contextEvery == 0 {
				s.sendContext(st, tick)
			}
			s.sendData(st)
		}
		tick++
	}
}

func (s *simulator) sendContext(st *stream, tick int) {
	// retune slowly so the bridge sees changing values
	st.rfFrequency += 1e6
	values := map[int]any{
		vrt.BitContextFieldChange:   true,
		vrt.BitBandwidth:            st.bandwidth,
		vrt.BitRFReferenceFrequency: st.rfFrequency,
		vrt.BitSampleRate:           st.sampleRate,
		vrt.BitTemperature:          35.0 + float64(tick%20)/4,
	}
	pkt, err := vrt.NewContextPacket(st.id, values, vrt.WithCount(st.ctxCount), vrt.WithClassID(0x0012A2, 0x0001))
	st.ctxCount = (st.ctxCount + 1) & 0xF
	if err != nil {
		log.WithError(err).Error("Failed to build context packet")
		s.stats.errors++
		return
	}
	s.send(pkt, &s.stats.context)
}

func (s *simulator) sendData(st *stream) {
	payload := make([]uint32, s.payloadWords)
	for i := range payload {
		payload[i] = s.rng.Uint32()
	}
	pkt := vrt.NewPacket(vrt.Header{Type: vrt.TypeIFDataWithStreamID, Count: st.dataCount}, st.id, 0, payload, 0)
	st.dataCount = (st.dataCount + 1) & 0xF
	s.send(pkt, &s.stats.data)
}

func (s *simulator) send(pkt *vrt.Packet, counter *int) {
	if s.dropRate > 0 && s.rng.Float64() < s.dropRate {
		s.stats.dropped++
		return
	}
	if err := s.client.SendPacket(pkt); err != nil {
		log.WithError(err).Warn("Send failed")
		s.stats.errors++
		return
	}
	*counter++
}

func main() {
	target := flag.String("target", "127.0.0.1:4991", "Bridge address (host:port)")
	numStreams := flag.Int("streams", 2, "Number of streams")
	firstID := flag.Uint("first-stream-id", 0x12345678, "Stream ID of the first stream")
	rate := flag.Int("rate", 100, "Data packets per second per stream")
	contextEvery := flag.Int("context-every", 10, "Send a context packet every N data packets")
	payloadWords := flag.Int("payload-words", 256, "Data packet payload size in words")
	drop := flag.Float64("drop", 0, "Fraction of packets to drop before sending")
	duration := flag.Duration("duration", 0, "Stop after this long (0 = until interrupted)")
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	host, portText, err := net.SplitHostPort(*target)
	if err != nil {
		log.WithError(err).Fatal("Invalid target")
	}
	port, err := strconv.Atoi(portText)
	if err != nil {
		log.WithError(err).Fatal("Invalid target port")
	}

	client, err := network.NewUDPClient("", 0, host, port)
	if err != nil {
		log.WithError(err).Fatal("Failed to create UDP client")
	}
	defer client.Close()

	sim := &simulator{
		client:       client,
		contextEvery: max(*contextEvery, 1),
		dropRate:     *drop,
		payloadWords: *payloadWords,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for i := 0; i < *numStreams; i++ {
		sim.streams = append(sim.streams, &stream{
			id:          uint32(*firstID) + uint32(i),
			sampleRate:  30.72e6,
			bandwidth:   18e6,
			rfFrequency: 2.4e9 + float64(i)*100e6,
		})
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if *duration > 0 {
		var tcancel context.CancelFunc
		ctx, tcancel = context.WithTimeout(ctx, *duration)
		defer tcancel()
	}

	log.WithFields(log.Fields{
		"target":  *target,
		"streams": *numStreams,
		"rate":    *rate,
	}).Info("VRT simulator started")

	sim.run(ctx, time.Second/time.Duration(max(*rate, 1)))

	log.WithFields(log.Fields{
		"data":    sim.stats.data,
		"context": sim.stats.context,
		"dropped": sim.stats.dropped,
		"errors":  sim.stats.errors,
	}).Info("VRT simulator stopped")
}
