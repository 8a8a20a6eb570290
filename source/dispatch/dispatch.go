// Package dispatch is the demo-level glue the core channel package
// deliberately has no opinion about: a UDP read loop that routes
// datagrams to the right peer and channel, and a ticker that drives
// retransmission across every live channel.
//
// Grounded on source/server.Server's listen/updateLoop/
// sessionCleanupLoop shape: a read loop, a retransmission ticker, and
// an idle-session sweep, generalized from one game-packet switch to a
// channel-id keyed registry per connection.
package dispatch

import (
	"context"
	"net"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"reliachan/pkg/config"
	"reliachan/pkg/logger"
	"reliachan/pkg/memory"
	"reliachan/source/channel"
	"reliachan/source/connection"
)

// Kind selects which channel variant backs a channel id.
type Kind int

const (
	KindUnreliable Kind = iota
	KindReliable
	KindSequenced
)

// Layout assigns a variant to each channel id a connection will use. A
// channel is a logical sub-stream of a connection with its own
// reliability mode and independent sequence space; Layout is what lets
// one connection run several side by side.
type Layout map[byte]Kind

// Registry is one connection's full set of channels. A channel
// instance is owned by a single dispatch loop per connection and is
// not itself thread-safe; mu is what lets the Dispatcher's read loop,
// tick loop, and cleanup sweep all touch the same connection's
// channels from different goroutines without serializing across
// unrelated connections.
type Registry struct {
	mu       sync.Mutex
	conn     *connection.Connection
	channels map[byte]channel.Channel
	lastSeen time.Time
}

func newRegistry(mm memory.Manager, conn *connection.Connection, clk channel.Clock, cfg config.Config, layout Layout) *Registry {
	r := &Registry{
		conn:     conn,
		channels: make(map[byte]channel.Channel, len(layout)),
		lastSeen: time.Now(),
	}
	for id, kind := range layout {
		switch kind {
		case KindReliable:
			r.channels[id] = channel.NewReliable(mm, conn, clk, id, cfg)
		case KindSequenced:
			r.channels[id] = channel.NewSequenced(mm, conn, clk, id, cfg)
		default:
			r.channels[id] = channel.NewUnreliable(mm, id, cfg)
		}
	}
	return r
}

// OnMessage is invoked once per delivered application payload, in the
// order the owning channel variant guarantees.
type OnMessage func(peer *net.UDPAddr, channelID byte, payload []byte)

// Dispatcher owns the shared UDP socket, the per-peer registries, and
// the ticker loop that drives retransmission across all of them.
type Dispatcher struct {
	sock   *net.UDPConn
	mm     memory.Manager
	clock  channel.Clock
	cfg    config.Config
	layout Layout
	onMsg  OnMessage

	tracer  trace.Tracer
	limiter *rate.Limiter

	mu    sync.RWMutex
	peers map[string]*Registry
}

// New builds a Dispatcher. layout is applied to every new peer as it
// is first seen; onMsg may be nil if the caller only cares about
// keeping channels alive (e.g. a relay).
func New(sock *net.UDPConn, mm memory.Manager, clk channel.Clock, cfg config.Config, layout Layout, onMsg OnMessage) *Dispatcher {
	return &Dispatcher{
		sock:    sock,
		mm:      mm,
		clock:   clk,
		cfg:     cfg,
		layout:  layout,
		onMsg:   onMsg,
		tracer:  otel.Tracer("reliachan/source/dispatch"),
		limiter: rate.NewLimiter(rate.Every(10*time.Millisecond), 1),
		peers:   make(map[string]*Registry),
	}
}

// Listen reads datagrams off the socket until ctx is cancelled,
// routing each to its peer's registry. Mirrors Server.listen, minus
// the game-packet switch: routing stops at channel id.
func (d *Dispatcher) Listen(ctx context.Context) error {
	buf := make([]byte, 2048)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, addr, err := d.sock.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("dispatch: read error: %v", err)
			continue
		}
		if n < 2 {
			continue // too short to carry a message type and channel id
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		d.route(addr, data)
	}
}

func (d *Dispatcher) route(addr *net.UDPAddr, data []byte) {
	msgType := data[0]
	channelID := data[1]
	body := data[2:]

	reg := d.registryFor(addr)

	reg.mu.Lock()
	reg.lastSeen = time.Now()

	ch, ok := reg.channels[channelID]
	if !ok {
		reg.mu.Unlock()
		logger.Warn("dispatch: unknown channel id %d from %s", channelID, addr.String())
		return
	}

	var delivered [][]byte
	switch msgType {
	case channel.MessageTypeAck:
		ch.HandleAck(body)

	case channel.MessageTypeData:
		if body, _ := ch.HandleIncoming(body); body != nil {
			cp := make([]byte, len(body))
			copy(cp, body)
			delivered = append(delivered, cp)
		}
		for {
			buf := ch.Poll()
			if buf == nil {
				break
			}
			cp := make([]byte, buf.Len())
			copy(cp, buf.Bytes())
			d.mm.Release(buf)
			delivered = append(delivered, cp)
		}

	default:
		reg.mu.Unlock()
		logger.Warn("dispatch: unknown message type 0x%02X from %s", msgType, addr.String())
		return
	}
	reg.mu.Unlock()

	for _, payload := range delivered {
		d.deliver(addr, channelID, payload)
	}
}

func (d *Dispatcher) deliver(addr *net.UDPAddr, channelID byte, payload []byte) {
	if d.onMsg == nil {
		return
	}
	d.onMsg(addr, channelID, payload)
}

func (d *Dispatcher) registryFor(addr *net.UDPAddr) *Registry {
	key := addr.String()

	d.mu.RLock()
	reg, ok := d.peers[key]
	d.mu.RUnlock()
	if ok {
		return reg
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if reg, ok = d.peers[key]; ok {
		return reg
	}

	conn := connection.New(d.sock, addr, func(*connection.Connection) {
		// Disconnect fires from inside a channel's own Tick, which runs
		// with that registry's mu already held; dropping asynchronously
		// avoids re-entering the same mutex from the same goroutine.
		go d.drop(key)
	})
	reg = newRegistry(d.mm, conn, d.clock, d.cfg, d.layout)
	d.peers[key] = reg
	logger.Info("dispatch: new peer %s", key)
	return reg
}

func (d *Dispatcher) drop(key string) {
	d.mu.Lock()
	reg, ok := d.peers[key]
	if ok {
		delete(d.peers, key)
	}
	d.mu.Unlock()
	if !ok {
		return
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	for _, ch := range reg.channels {
		ch.Reset()
	}
}

// Tick runs tickOnce every interval until ctx is cancelled. Mirrors
// Server.updateLoop's ticker shape.
func (d *Dispatcher) Tick(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.tickOnce(ctx)
		}
	}
}

func (d *Dispatcher) tickOnce(ctx context.Context) {
	if err := d.limiter.Wait(ctx); err != nil {
		return
	}

	ctx, span := d.tracer.Start(ctx, "dispatch.tick")
	defer span.End()
	_ = ctx

	d.mu.RLock()
	regs := make([]*Registry, 0, len(d.peers))
	for _, r := range d.peers {
		regs = append(regs, r)
	}
	d.mu.RUnlock()

	span.SetAttributes(attribute.Int("dispatch.peer_count", len(regs)))

	for _, r := range regs {
		r.mu.Lock()
		for _, ch := range r.channels {
			ch.Tick()
		}
		r.mu.Unlock()
	}
}

// CleanupStale drops any peer whose registry hasn't seen a packet
// within maxIdle, releasing every one of its channels' retained
// buffers. Mirrors Server.sessionCleanupLoop.
func (d *Dispatcher) CleanupStale(maxIdle time.Duration) {
	cutoff := time.Now().Add(-maxIdle)

	d.mu.Lock()
	var stale []*Registry
	for key, reg := range d.peers {
		reg.mu.Lock()
		idle := reg.lastSeen.Before(cutoff)
		reg.mu.Unlock()
		if idle {
			stale = append(stale, reg)
			delete(d.peers, key)
			logger.Info("dispatch: dropped idle peer %s", key)
		}
	}
	d.mu.Unlock()

	for _, reg := range stale {
		reg.mu.Lock()
		for _, ch := range reg.channels {
			ch.Reset()
		}
		reg.mu.Unlock()
	}
}

// PeerCount reports how many peers currently have a live registry.
func (d *Dispatcher) PeerCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.peers)
}
