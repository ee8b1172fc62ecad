package pcap

import (
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"vrt-bridge/internal/vrt"
)

// Endpoint is one side of a captured UDP flow.
type Endpoint struct {
	MAC  net.HardwareAddr
	IP   net.IP
	Port uint16
}

// Writer writes VRT datagrams as Ethernet/IPv4/UDP frames in classic pcap
// format.
type Writer struct {
	w *pcapgo.Writer
}

// NewWriter writes the pcap file header to out.
func NewWriter(out io.Writer) (*Writer, error) {
	w := pcapgo.NewWriter(out)
	if err := w.WriteFileHeader(65535, layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("failed to write pcap header: %w", err)
	}
	return &Writer{w: w}, nil
}

// WriteDatagram frames payload from src to dst.
func (w *Writer) WriteDatagram(src, dst Endpoint, payload []byte, ts time.Time) error {
	eth := &layers.Ethernet{
		SrcMAC:       src.MAC,
		DstMAC:       dst.MAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    src.IP,
		DstIP:    dst.IP,
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(src.Port),
		DstPort: layers.UDPPort(dst.Port),
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return err
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)); err != nil {
		return fmt.Errorf("failed to serialize frame: %w", err)
	}

	ci := gopacket.CaptureInfo{
		Timestamp:     ts,
		CaptureLength: len(buf.Bytes()),
		Length:        len(buf.Bytes()),
	}
	if err := w.w.WritePacket(ci, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write packet: %w", err)
	}
	return nil
}

// WritePacket encodes p and frames it from src to dst.
func (w *Writer) WritePacket(src, dst Endpoint, p *vrt.Packet, ts time.Time) error {
	data, err := vrt.Encode(p)
	if err != nil {
		return err
	}
	return w.WriteDatagram(src, dst, data, ts)
}
