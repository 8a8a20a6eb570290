package channel

import (
	"reliachan/pkg/config"
	"reliachan/pkg/memory"
	"reliachan/pkg/seqnum"
	"reliachan/pkg/window"
)

// pendingIncoming is an out-of-order arrival held until the in-order
// watermark reaches it.
type pendingIncoming struct {
	alive  bool
	buffer *memory.Buffer
}

// Sequenced is guaranteed delivery with strict in-order release.
// Unlike Reliable, out-of-order arrivals are held in a full window of
// buffers rather than a boolean acked-set, since the application must
// not see them until Poll drains the gap.
type Sequenced struct {
	outgoingCore

	rxLowest uint16
	recvBuf  *window.Window[pendingIncoming]
}

var _ Channel = (*Sequenced)(nil)

// NewSequenced builds a Reliable-Sequenced channel.
func NewSequenced(mm memory.Manager, conn Connection, clock Clock, channelID byte, cfg config.Config) *Sequenced {
	rc := fromConfig(cfg)
	return &Sequenced{
		outgoingCore: newOutgoingCore(mm, conn, clock, channelID, rc),
		recvBuf:      window.New[pendingIncoming](rc.windowSize),
	}
}

// CreateOutgoing frames and retains the packet for retransmission.
func (s *Sequenced) CreateOutgoing(payload []byte) (*memory.Buffer, bool, error) {
	buf, err := s.createOutgoing(payload)
	return buf, false, err
}

// HandleIncoming: an in-order arrival advances the watermark and is
// delivered straight away; a future arrival is copied into a held
// buffer and surfaces only once Poll reaches it.
func (s *Sequenced) HandleIncoming(payload []byte) ([]byte, bool) {
	seq, body, err := readDataHeader(payload)
	if err != nil {
		return nil, false
	}

	stale := seqnum.Distance16(seq, s.rxLowest) <= 0
	buffered := s.recvBuf.Get(seq).alive

	if stale || buffered {
		_ = sendAck(s.mm, s.conn, s.channelID, seq)
		return nil, false
	}

	if seq == s.rxLowest+1 {
		s.rxLowest = seq
		_ = sendAck(s.mm, s.conn, s.channelID, seq)
		hasMore := s.recvBuf.Get(s.rxLowest + 1).alive
		return body, hasMore
	}

	held, err := s.mm.Allocate(len(body))
	if err != nil {
		return nil, false
	}
	copy(held.Bytes(), body)
	s.recvBuf.Set(seq, pendingIncoming{alive: true, buffer: held})
	_ = sendAck(s.mm, s.conn, s.channelID, seq)
	return nil, false
}

// HandleAck releases the acked slot and advances the send floor.
func (s *Sequenced) HandleAck(payload []byte) {
	seq, err := readAckSeq(payload)
	if err != nil {
		return
	}
	s.outgoingCore.handleAck(seq)
}

// Poll drains the next in-order held payload, if any.
func (s *Sequenced) Poll() *memory.Buffer {
	next := s.rxLowest + 1
	slot := s.recvBuf.Get(next)
	if !slot.alive {
		return nil
	}

	s.rxLowest = next
	s.recvBuf.Set(next, pendingIncoming{})
	return slot.buffer
}

// Tick drives retransmission of unacked sends.
func (s *Sequenced) Tick() { s.outgoingCore.tick() }

// Reset releases all retained state (both send and receive windows)
// and returns sequences to zero.
func (s *Sequenced) Reset() {
	s.outgoingCore.reset()

	s.recvBuf.Each(func(p pendingIncoming) {
		if p.alive {
			s.mm.Release(p.buffer)
		}
	})
	s.recvBuf.Release()
	s.rxLowest = 0
}
