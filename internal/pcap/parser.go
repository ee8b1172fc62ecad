package pcap

import (
	"fmt"
	"io"
	"net"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	log "github.com/sirupsen/logrus"

	"vrt-bridge/internal/vrt"
	"vrt-bridge/pkg/types"
)

// DefaultPort is the UDP port VRT streams use by default.
const DefaultPort = 4991

// Parser reads capture files and extracts VRT datagrams.
type Parser struct {
	port uint16
}

// NewParser creates a parser keeping UDP datagrams to or from port. Port 0
// keeps every UDP datagram.
func NewParser(port int) *Parser {
	return &Parser{port: uint16(port)}
}

// Datagram is a decoded VRT packet extracted from a capture.
type Datagram struct {
	types.RawDatagram
	Packet *vrt.Packet
}

// ParseResult holds the packets found in a capture, in capture order.
type ParseResult struct {
	Datagrams      []Datagram
	TotalFrames    int
	UDPDatagrams   int
	DecodeFailures map[string]int // keyed by vrt.ErrorKind
	TypeCounts     map[vrt.PacketType]int
}

// Failures returns the total number of datagrams that did not decode.
func (r *ParseResult) Failures() int {
	n := 0
	for _, c := range r.DecodeFailures {
		n += c
	}
	return n
}

type packetReader interface {
	gopacket.PacketDataSource
	LinkType() layers.LinkType
}

// openCapture accepts both classic pcap and pcapng files.
func openCapture(f *os.File) (packetReader, error) {
	r, err := pcapgo.NewReader(f)
	if err == nil {
		return r, nil
	}
	if _, serr := f.Seek(0, io.SeekStart); serr != nil {
		return nil, serr
	}
	ng, ngErr := pcapgo.NewNgReader(f, pcapgo.DefaultNgReaderOptions)
	if ngErr != nil {
		return nil, fmt.Errorf("not a pcap or pcapng file: %w", err)
	}
	return ng, nil
}

// Parse reads a capture file and decodes every matching UDP payload as a VRT
// packet. Datagrams that fail to decode are counted and skipped.
func (p *Parser) Parse(filename string) (*ParseResult, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open pcap file %s: %w", filename, err)
	}
	defer f.Close()

	reader, err := openCapture(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read pcap file %s: %w", filename, err)
	}

	linkType := reader.LinkType()
	log.WithField("link_type", linkType.String()).Debug("PCAP link type detected")

	packetSource := gopacket.NewPacketSource(reader, linkType)
	packetSource.DecodeOptions.Lazy = true
	packetSource.DecodeOptions.NoCopy = true

	result := &ParseResult{
		DecodeFailures: make(map[string]int),
		TypeCounts:     make(map[vrt.PacketType]int),
	}

	for packet := range packetSource.Packets() {
		result.TotalFrames++

		// works for Ethernet and Linux cooked captures alike
		udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if !ok {
			continue
		}
		if p.port != 0 && uint16(udp.DstPort) != p.port && uint16(udp.SrcPort) != p.port {
			continue
		}
		if len(udp.Payload) == 0 {
			continue
		}
		result.UDPDatagrams++

		// NoCopy: the payload aliases the reader buffer
		data := make([]byte, len(udp.Payload))
		copy(data, udp.Payload)

		pkt, err := vrt.Decode(data)
		if err != nil {
			result.DecodeFailures[vrt.ErrorKind(err)]++
			log.WithError(err).WithField("frame", result.TotalFrames).Warn("Failed to decode VRT packet, skipping")
			continue
		}
		result.TypeCounts[pkt.Header.Type]++

		var srcIP, dstIP net.IP
		if ipv4, ok := packet.Layer(layers.LayerTypeIPv4).(*layers.IPv4); ok {
			srcIP, dstIP = ipv4.SrcIP, ipv4.DstIP
		} else if ipv6, ok := packet.Layer(layers.LayerTypeIPv6).(*layers.IPv6); ok {
			srcIP, dstIP = ipv6.SrcIP, ipv6.DstIP
		}

		result.Datagrams = append(result.Datagrams, Datagram{
			RawDatagram: types.RawDatagram{
				Data:      data,
				Timestamp: packet.Metadata().Timestamp,
				SrcIP:     srcIP,
				DstIP:     dstIP,
				SrcPort:   uint16(udp.SrcPort),
				DstPort:   uint16(udp.DstPort),
			},
			Packet: pkt,
		})

		log.WithFields(log.Fields{
			"frame":     result.TotalFrames,
			"type":      pkt.Header.Type,
			"stream_id": fmt.Sprintf("0x%08X", pkt.StreamID),
			"src":       fmt.Sprintf("%s:%d", srcIP, udp.SrcPort),
		}).Debug("Extracted VRT packet")
	}

	log.WithFields(log.Fields{
		"total_frames":    result.TotalFrames,
		"udp_datagrams":   result.UDPDatagrams,
		"vrt_packets":     len(result.Datagrams),
		"decode_failures": result.Failures(),
	}).Info("PCAP parsing complete")

	return result, nil
}
