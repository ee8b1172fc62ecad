package network

import (
	"context"
	"errors"
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"vrt-bridge/internal/vrt"
)

// ReceivedPacket is a decoded VRT packet and the datagram it came from.
type ReceivedPacket struct {
	Packet *vrt.Packet
	Data   []byte
	From   *net.UDPAddr
	At     time.Time
}

// DecodeObserver is told about datagrams that failed to decode.
type DecodeObserver interface {
	DecodeFailed(err error)
}

const (
	// maxReadErrors consecutive read failures stop the receiver.
	maxReadErrors  = 50
	maxReadBackoff = time.Second
)

// udpReader is the part of *net.UDPConn the receive loop uses.
type udpReader interface {
	ReadFromUDP(b []byte) (int, *net.UDPAddr, error)
	SetReadDeadline(t time.Time) error
}

// Receiver reads VRT datagrams from a UDP socket.
type Receiver struct {
	conn        udpReader
	pktChan     chan ReceivedPacket
	observer    DecodeObserver
	backoffBase time.Duration
	backoffMax  time.Duration
}

// NewReceiver creates a receiver on conn. observer may be nil.
func NewReceiver(conn *net.UDPConn, observer DecodeObserver) *Receiver {
	return &Receiver{
		conn:        conn,
		pktChan:     make(chan ReceivedPacket, 1000),
		observer:    observer,
		backoffBase: 10 * time.Millisecond,
		backoffMax:  maxReadBackoff,
	}
}

// Listen binds a UDP socket on address:port. Port 0 picks a free port.
func Listen(address string, port int) (*net.UDPConn, error) {
	return net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP(address), Port: port})
}

// Start begins reading in a goroutine. The packet channel is closed when ctx
// is cancelled or the socket is closed.
func (r *Receiver) Start(ctx context.Context) {
	go r.listen(ctx)
}

// Packets returns the channel of decoded packets.
func (r *Receiver) Packets() <-chan ReceivedPacket {
	return r.pktChan
}

func (r *Receiver) listen(ctx context.Context) {
	defer close(r.pktChan)

	// unblock ReadFromUDP on cancel
	stop := context.AfterFunc(ctx, func() {
		_ = r.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	buf := make([]byte, 65535)
	failures := 0
	for {
		n, addr, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, net.ErrClosed) {
				log.WithError(err).Debug("UDP socket closed")
				return
			}
			failures++
			if failures >= maxReadErrors {
				log.WithError(err).WithField("failures", failures).Error("Too many UDP read errors, stopping receiver")
				return
			}
			log.WithError(err).WithField("failures", failures).Warn("Error reading from UDP")
			if !r.sleep(ctx, r.backoff(failures)) {
				return
			}
			continue
		}
		failures = 0

		data := make([]byte, n)
		copy(data, buf[:n])

		pkt, err := vrt.Decode(data)
		if err != nil {
			log.WithError(err).WithFields(log.Fields{
				"from":  addr,
				"bytes": n,
			}).Warn("Failed to decode VRT packet")
			if r.observer != nil {
				r.observer.DecodeFailed(err)
			}
			continue
		}

		select {
		case r.pktChan <- ReceivedPacket{
			Packet: pkt,
			Data:   data,
			From:   addr,
			At:     time.Now(),
		}:
		case <-ctx.Done():
			return
		}
	}
}

// backoff doubles from backoffBase per consecutive failure, up to backoffMax.
func (r *Receiver) backoff(failures int) time.Duration {
	d := r.backoffBase
	for i := 1; i < failures && d < r.backoffMax; i++ {
		d *= 2
	}
	return min(d, r.backoffMax)
}

func (r *Receiver) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
