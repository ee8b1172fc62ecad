package main

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"vrt-bridge/internal/network"
	"vrt-bridge/internal/pcap"
	"vrt-bridge/internal/vrt"
)

func newSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send IF context packets built from command-line values",
		Example: `  vrt-bridge send --host 192.168.2.1 --stream-id 0x12345678 --sample-rate 30720000 --bandwidth 18000000
  vrt-bridge send --stream-id 1 --rf-frequency 2.4e9 --count 16 --pcap-out context.pcap`,
		RunE: runSend,
	}
	cmd.Flags().String("host", "127.0.0.1", "Destination host")
	cmd.Flags().Int("port", pcap.DefaultPort, "Destination port")
	cmd.Flags().String("stream-id", "0x12345678", "Stream ID (decimal or 0x hex)")
	cmd.Flags().Float64("sample-rate", 0, "Sample rate in Hz")
	cmd.Flags().Float64("bandwidth", 0, "Bandwidth in Hz")
	cmd.Flags().Float64("rf-frequency", 0, "RF reference frequency in Hz")
	cmd.Flags().Float64("if-frequency", 0, "IF reference frequency in Hz")
	cmd.Flags().Float64("reference-level", 0, "Reference level in dBm")
	cmd.Flags().Float64("gain", 0, "Stage 1 gain in dB")
	cmd.Flags().Float64("temperature", 0, "Temperature in degrees C")
	cmd.Flags().Bool("change", false, "Set the context field change indicator")
	cmd.Flags().Uint32("class-oui", 0, "Attach a class ID with this OUI")
	cmd.Flags().Int("count", 1, "Number of packets to send")
	cmd.Flags().Duration("interval", 100*time.Millisecond, "Delay between packets")
	cmd.Flags().String("pcap-out", "", "Write packets to this capture file instead of the network")
	return cmd
}

// contextValues collects the CIF0 fields whose flags were set.
func contextValues(cmd *cobra.Command) map[int]any {
	flags := cmd.Flags()
	values := make(map[int]any)
	doubles := []struct {
		flag string
		bit  int
	}{
		{"bandwidth", vrt.BitBandwidth},
		{"if-frequency", vrt.BitIFReferenceFrequency},
		{"rf-frequency", vrt.BitRFReferenceFrequency},
		{"reference-level", vrt.BitReferenceLevel},
		{"sample-rate", vrt.BitSampleRate},
		{"temperature", vrt.BitTemperature},
	}
	for _, d := range doubles {
		if flags.Changed(d.flag) {
			v, _ := flags.GetFloat64(d.flag)
			values[d.bit] = v
		}
	}
	if flags.Changed("gain") {
		g, _ := flags.GetFloat64("gain")
		values[vrt.BitGain] = vrt.Gain{Stage1: g}
	}
	if change, _ := flags.GetBool("change"); change {
		values[vrt.BitContextFieldChange] = true
	}
	return values
}

func runSend(cmd *cobra.Command, args []string) error {
	if _, err := loadConfig(cmd); err != nil {
		return err
	}

	sidText, _ := cmd.Flags().GetString("stream-id")
	sid, err := strconv.ParseUint(sidText, 0, 32)
	if err != nil {
		return fmt.Errorf("invalid stream ID %q: %w", sidText, err)
	}

	values := contextValues(cmd)
	if len(values) == 0 {
		return fmt.Errorf("no context fields given (use --sample-rate, --bandwidth, ...)")
	}

	var opts []vrt.PacketOption
	if cmd.Flags().Changed("class-oui") {
		oui, _ := cmd.Flags().GetUint32("class-oui")
		opts = append(opts, vrt.WithClassID(oui, 0))
	}

	count, _ := cmd.Flags().GetInt("count")
	interval, _ := cmd.Flags().GetDuration("interval")
	pcapOut, _ := cmd.Flags().GetString("pcap-out")

	var emit func(p *vrt.Packet, ts time.Time) error
	if pcapOut != "" {
		f, err := os.Create(pcapOut)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", pcapOut, err)
		}
		defer f.Close()

		w, err := pcap.NewWriter(f)
		if err != nil {
			return err
		}
		port, _ := cmd.Flags().GetInt("port")
		src := pcap.Endpoint{MAC: net.HardwareAddr{0x02, 0, 0, 0, 0, 1}, IP: net.IPv4(192, 168, 2, 2), Port: 50000}
		dst := pcap.Endpoint{MAC: net.HardwareAddr{0x02, 0, 0, 0, 0, 2}, IP: net.IPv4(192, 168, 2, 1), Port: uint16(port)}
		emit = func(p *vrt.Packet, ts time.Time) error {
			return w.WritePacket(src, dst, p, ts)
		}
	} else {
		host, _ := cmd.Flags().GetString("host")
		port, _ := cmd.Flags().GetInt("port")
		client, err := network.NewUDPClient("", 0, host, port)
		if err != nil {
			return err
		}
		defer client.Close()
		emit = func(p *vrt.Packet, _ time.Time) error {
			return client.SendPacket(p)
		}
	}

	ts := time.Now()
	for i := 0; i < count; i++ {
		pkt, err := vrt.NewContextPacket(uint32(sid), values, append(opts, vrt.WithCount(uint8(i)))...)
		if err != nil {
			return fmt.Errorf("failed to build context packet: %w", err)
		}
		if err := emit(pkt, ts); err != nil {
			return err
		}
		log.WithFields(log.Fields{
			"stream_id": fmt.Sprintf("0x%08X", sid),
			"count":     pkt.Header.Count,
			"words":     pkt.Header.Size,
		}).Debug("Context packet sent")

		if i+1 < count {
			if pcapOut == "" {
				time.Sleep(interval)
			}
			ts = ts.Add(interval)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Sent %d context packet(s) for stream 0x%08X\n", count, sid)
	return nil
}
