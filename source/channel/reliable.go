package channel

import (
	"reliachan/pkg/config"
	"reliachan/pkg/memory"
	"reliachan/pkg/seqnum"
	"reliachan/pkg/window"
)

// Reliable is guaranteed delivery, unordered. Future arrivals are
// delivered immediately and tracked in an acked-set so a later
// in-order arrival knows to skip re-delivering them.
type Reliable struct {
	outgoingCore

	rxLowest uint16
	acked    *window.Window[bool]
}

var _ Channel = (*Reliable)(nil)

// NewReliable builds a Reliable channel.
func NewReliable(mm memory.Manager, conn Connection, clock Clock, channelID byte, cfg config.Config) *Reliable {
	rc := fromConfig(cfg)
	return &Reliable{
		outgoingCore: newOutgoingCore(mm, conn, clock, channelID, rc),
		acked:        window.New[bool](rc.windowSize),
	}
}

// CreateOutgoing frames and retains the packet for retransmission.
func (r *Reliable) CreateOutgoing(payload []byte) (*memory.Buffer, bool, error) {
	buf, err := r.createOutgoing(payload)
	return buf, false, err
}

// HandleIncoming drops stale/duplicate arrivals, delivers in-order and
// future arrivals immediately, and re-acks anything already seen.
func (r *Reliable) HandleIncoming(payload []byte) ([]byte, bool) {
	seq, body, err := readDataHeader(payload)
	if err != nil {
		return nil, false
	}

	stale := seqnum.Distance16(seq, r.rxLowest) <= 0
	alreadyAcked := r.acked.Get(seq)

	if stale || alreadyAcked {
		_ = sendAck(r.mm, r.conn, r.channelID, seq)
		return nil, false
	}

	if seq == r.rxLowest+1 {
		r.rxLowest = seq
		for r.acked.Get(r.rxLowest + 1) {
			r.rxLowest++
			r.acked.Set(r.rxLowest, false)
		}
		_ = sendAck(r.mm, r.conn, r.channelID, seq)
		return body, false
	}

	r.acked.Set(seq, true)
	_ = sendAck(r.mm, r.conn, r.channelID, seq)
	return body, false
}

// HandleAck releases the acked slot and advances the send floor.
func (r *Reliable) HandleAck(payload []byte) {
	seq, err := readAckSeq(payload)
	if err != nil {
		return
	}
	r.outgoingCore.handleAck(seq)
}

// Poll never has anything to deliver: reliable delivers on receipt.
func (r *Reliable) Poll() *memory.Buffer { return nil }

// Tick drives retransmission of unacked sends.
func (r *Reliable) Tick() { r.outgoingCore.tick() }

// Reset releases all retained state and returns sequences to zero.
func (r *Reliable) Reset() {
	r.outgoingCore.reset()
	r.acked.Release()
	r.rxLowest = 0
}
