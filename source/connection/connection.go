// Package connection implements the Connection collaborator the
// channel layer depends on but never constructs itself: raw datagram
// transmission over a shared UDP socket, RTT sampling, and disconnect.
//
// Grounded on source/server.Server: one bound *net.UDPConn shared by
// every peer, addressed per-send with a net.UDPAddr, the same shape as
// Server.conn/Server.listen.
package connection

import (
	"net"
	"sync"
	"time"

	"reliachan/pkg/logger"
	"reliachan/source/rtt"
)

// Connection is a single peer's view of the shared UDP socket. It
// satisfies source/channel.Connection.
type Connection struct {
	sock *net.UDPConn
	peer *net.UDPAddr

	estimator *rtt.Estimator

	mu           sync.Mutex
	disconnected bool
	onDisconnect func(*Connection)
}

// New wraps sock for sending to peer. onDisconnect, if non-nil, is
// called exactly once the first time Disconnect is called, letting the
// dispatcher drop this connection's channel registry entry.
func New(sock *net.UDPConn, peer *net.UDPAddr, onDisconnect func(*Connection)) *Connection {
	return &Connection{
		sock:         sock,
		peer:         peer,
		estimator:    rtt.NewEstimator(),
		onDisconnect: onDisconnect,
	}
}

// Addr returns the peer address this connection sends to.
func (c *Connection) Addr() *net.UDPAddr { return c.peer }

// SendRaw writes payload to the peer. A send on an already-disconnected
// connection is a silent no-op: by the time Disconnect has run, the
// dispatcher is expected to stop routing to this connection, but a
// channel's own in-flight tick can still race it once.
func (c *Connection) SendRaw(payload []byte) error {
	c.mu.Lock()
	disconnected := c.disconnected
	c.mu.Unlock()
	if disconnected {
		return nil
	}

	_, err := c.sock.WriteToUDP(payload, c.peer)
	return err
}

// AddRoundtripSample feeds an ack round-trip observation to the RTT
// estimator.
func (c *Connection) AddRoundtripSample(d time.Duration) {
	c.estimator.AddSample(d)
}

// RoundtripMS returns the current smoothed RTT estimate.
func (c *Connection) RoundtripMS() time.Duration {
	return c.estimator.Estimate()
}

// Disconnect tears the connection down after resend exhaustion.
// Idempotent: only the first call fires onDisconnect.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	if c.disconnected {
		c.mu.Unlock()
		return
	}
	c.disconnected = true
	c.mu.Unlock()

	logger.Warn("peer disconnected after resend exhaustion: peer=%s", c.peer.String())
	if c.onDisconnect != nil {
		c.onDisconnect(c)
	}
}

// Disconnected reports whether Disconnect has already run.
func (c *Connection) Disconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}
