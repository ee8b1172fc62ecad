package network

import (
	"fmt"
	"net"
	"sync"

	"vrt-bridge/internal/vrt"
)

// UDPClient sends VRT datagrams to one remote endpoint.
type UDPClient struct {
	conn   *net.UDPConn
	remote *net.UDPAddr
	mu     sync.Mutex
}

// NewUDPClient binds localAddr:localPort and targets remoteAddr:remotePort.
// An empty local address and port 0 let the kernel choose.
func NewUDPClient(localAddr string, localPort int, remoteAddr string, remotePort int) (*UDPClient, error) {
	remoteIP := net.ParseIP(remoteAddr)
	if remoteIP == nil {
		ips, err := net.LookupIP(remoteAddr)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", remoteAddr, err)
		}
		if len(ips) == 0 {
			return nil, fmt.Errorf("no addresses for %s", remoteAddr)
		}
		remoteIP = ips[0]
	}

	local := &net.UDPAddr{IP: net.ParseIP(localAddr), Port: localPort}
	conn, err := net.ListenUDP("udp", local)
	if err != nil {
		return nil, fmt.Errorf("failed to bind UDP to %s:%d: %w", localAddr, localPort, err)
	}

	return &UDPClient{
		conn:   conn,
		remote: &net.UDPAddr{IP: remoteIP, Port: remotePort},
	}, nil
}

// Send transmits raw bytes.
func (c *UDPClient) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.conn.WriteToUDP(data, c.remote); err != nil {
		return fmt.Errorf("failed to send to %s: %w", c.remote, err)
	}
	return nil
}

// SendPacket encodes and transmits p.
func (c *UDPClient) SendPacket(p *vrt.Packet) error {
	data, err := vrt.Encode(p)
	if err != nil {
		return fmt.Errorf("failed to encode packet: %w", err)
	}
	return c.Send(data)
}

// Close closes the UDP connection.
func (c *UDPClient) Close() error {
	return c.conn.Close()
}

// LocalAddr returns the local address the client is bound to.
func (c *UDPClient) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr returns the destination address.
func (c *UDPClient) RemoteAddr() *net.UDPAddr {
	return c.remote
}
