package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"vrt-bridge/internal/network"
	"vrt-bridge/internal/vrt"
)

func newExamineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "examine",
		Short: "Print decoded VRT packets received on a UDP port",
		RunE:  runExamine,
	}
	cmd.Flags().String("address", "", "Listen address")
	cmd.Flags().Int("port", 0, "Listen port")
	cmd.Flags().Int("count", 0, "Stop after this many packets (0 = unlimited)")
	cmd.Flags().Duration("timeout", 0, "Stop after this long (0 = until interrupted)")
	return cmd
}

func runExamine(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	count, _ := cmd.Flags().GetInt("count")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	ctx, cancel := signalContext()
	defer cancel()
	if timeout > 0 {
		var tcancel context.CancelFunc
		ctx, tcancel = context.WithTimeout(ctx, timeout)
		defer tcancel()
	}

	conn, err := network.Listen(cfg.Listener.Address, cfg.Listener.Port)
	if err != nil {
		return fmt.Errorf("failed to listen on %s:%d: %w", cfg.Listener.Address, cfg.Listener.Port, err)
	}
	defer conn.Close()

	log.WithField("addr", conn.LocalAddr()).Info("Examining VRT packets")

	receiver := network.NewReceiver(conn, nil)
	receiver.Start(ctx)

	out := cmd.OutOrStdout()
	seen := 0
	for rp := range receiver.Packets() {
		seen++
		fmt.Fprintf(out, "--- packet %d from %s (%d bytes)\n", seen, rp.From, len(rp.Data))
		printPacket(out, rp.Packet)
		if count > 0 && seen >= count {
			break
		}
	}
	return nil
}

func printPacket(w io.Writer, p *vrt.Packet) {
	h := p.Header
	fmt.Fprintf(w, "  type=%s count=%d size=%d words tsi=%d tsf=%d\n", h.Type, h.Count, h.Size, h.TSI, h.TSF)
	if h.HasStreamID() {
		fmt.Fprintf(w, "  stream_id=0x%08X\n", p.StreamID)
	}
	if h.HasClassID {
		fmt.Fprintf(w, "  class_id oui=0x%06X code=0x%08X\n", p.ClassOUI(), p.ClassCode())
	}
	if h.HasTrailer {
		fmt.Fprintf(w, "  trailer=0x%08X\n", p.Trailer)
	}
	fmt.Fprintf(w, "  payload=%d words\n", p.PayloadSize())

	fields, err := p.CIF()
	if err != nil {
		fmt.Fprintf(w, "  cif0 error: %v\n", err)
		return
	}
	if fields == nil {
		return
	}
	fmt.Fprintf(w, "  cif0=0x%08X\n", fields.CIF0)
	for _, f := range fields.Fields() {
		unit := ""
		if f.Unit != "" {
			unit = " " + f.Unit
		}
		fmt.Fprintf(w, "    [%2d] %-30s %v%s\n", f.Bit, f.Name, f.Value, unit)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			log.WithField("signal", sig).Info("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}
