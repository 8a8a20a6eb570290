package channel

import (
	"fmt"
	"time"

	"reliachan/pkg/memory"
	"reliachan/pkg/seqnum"
	"reliachan/pkg/window"
)

// pendingOutgoing is a reliable send retained until ack or resend
// exhaustion. alive is an explicit liveness flag rather than relying
// on sequence 0 as a sentinel, since sequence 0 is itself a valid
// assigned sequence once the counter wraps.
type pendingOutgoing struct {
	alive       bool
	buffer      *memory.Buffer
	firstSentAt time.Time
	lastSentAt  time.Time
	attempts    int
}

// outgoingCore is the outgoing/ack/tick logic shared by Reliable and
// Reliable-Sequenced, factored out since the two variants only differ
// in their incoming-side policy. Unreliable doesn't embed this: it has
// no send window, no acks, and no resend.
type outgoingCore struct {
	mm        memory.Manager
	conn      Connection
	clock     Clock
	channelID byte
	cfg       reliabilityConfig

	txLast          uint16
	txLowestUnacked uint16
	sendWindow      *window.Window[pendingOutgoing]
}

func newOutgoingCore(mm memory.Manager, conn Connection, clock Clock, channelID byte, cfg reliabilityConfig) outgoingCore {
	return outgoingCore{
		mm:              mm,
		conn:            conn,
		clock:           clock,
		channelID:       channelID,
		cfg:             cfg,
		txLowestUnacked: 1,
		sendWindow:      window.New[pendingOutgoing](cfg.windowSize),
	}
}

// createOutgoing frames payload as a reliable data datagram, assigns
// it the next sequence, and retains it in the send window until ack
// or resend exhaustion. The returned buffer is also what the caller
// transmits for the first send; the channel owns it from here on.
func (c *outgoingCore) createOutgoing(payload []byte) (*memory.Buffer, error) {
	c.txLast++
	seq := c.txLast

	buf, err := c.mm.Allocate(dataHeaderSize + len(payload))
	if err != nil {
		return nil, fmt.Errorf("channel: allocate outgoing buffer: %w", err)
	}
	data := buf.Bytes()
	writeDataHeader(data, c.channelID, seq)
	copy(data[dataHeaderSize:], payload)

	now := c.clock.Now()
	c.sendWindow.Set(seq, pendingOutgoing{
		alive:       true,
		buffer:      buf,
		firstSentAt: now,
		lastSentAt:  now,
		attempts:    1,
	})

	return buf, nil
}

// handleAck releases the acked slot (RTT sample, buffer free, slot
// cleared) and advances txLowestUnacked across any now-contiguously-dead
// slots. txLowestUnacked is a dedicated send-side floor, advanced only
// here, read by tick, and returned to 1 by reset — never confused with
// the receive-side watermark a channel's incoming policy tracks
// separately.
func (c *outgoingCore) handleAck(seq uint16) {
	slot := c.sendWindow.Get(seq)
	if !slot.alive {
		return
	}

	c.conn.AddRoundtripSample(c.clock.Now().Sub(slot.firstSentAt))
	c.mm.Release(slot.buffer)
	c.sendWindow.Set(seq, pendingOutgoing{})

	for seqnum.Distance16(c.txLast, c.txLowestUnacked) >= 0 && !c.sendWindow.Get(c.txLowestUnacked).alive {
		c.txLowestUnacked++
	}
}

// tick walks the in-flight window from txLowestUnacked to txLast,
// resending anything past its resend threshold and disconnecting on
// resend exhaustion.
func (c *outgoingCore) tick() {
	threshold := c.conn.RoundtripMS() + c.cfg.resendExtraDelay
	now := c.clock.Now()

	for seq := c.txLowestUnacked; seqnum.Distance16(c.txLast, seq) >= 0; seq++ {
		slot := c.sendWindow.Get(seq)
		if !slot.alive {
			continue
		}

		if slot.attempts > c.cfg.maxResendAttempts {
			c.conn.Disconnect()
			return
		}

		if now.Sub(slot.lastSentAt) > threshold {
			_ = c.conn.SendRaw(slot.buffer.Bytes())
			slot.attempts++
			slot.lastSentAt = now
			c.sendWindow.Set(seq, slot)
		}
	}
}

// reset releases every retained outgoing buffer and returns sequence
// state to zero.
func (c *outgoingCore) reset() {
	for seq := c.txLowestUnacked; seqnum.Distance16(c.txLast, seq) >= 0; seq++ {
		slot := c.sendWindow.Get(seq)
		if slot.alive {
			c.mm.Release(slot.buffer)
		}
	}
	c.sendWindow.Release()
	c.txLast = 0
	c.txLowestUnacked = 1
}
