package channel

import (
	"reliachan/pkg/config"
	"reliachan/pkg/memory"
	"reliachan/pkg/seqnum"
	"reliachan/pkg/window"
)

// Unreliable is best-effort send, duplicate suppression on receive via
// a sliding-window bitmap. No acks, no retransmission.
type Unreliable struct {
	mm        memory.Manager
	channelID byte

	txLast uint16

	rxLowest uint16
	acked    *window.Window[bool]
}

var _ Channel = (*Unreliable)(nil)

// NewUnreliable builds an Unreliable channel.
func NewUnreliable(mm memory.Manager, channelID byte, cfg config.Config) *Unreliable {
	return &Unreliable{
		mm:        mm,
		channelID: channelID,
		acked:     window.New[bool](cfg.Reliability.WindowSize),
	}
}

// CreateOutgoing increments tx_last and frames the payload. The
// caller owns the returned buffer; the channel retains nothing.
func (u *Unreliable) CreateOutgoing(payload []byte) (*memory.Buffer, bool, error) {
	u.txLast++

	buf, err := u.mm.Allocate(dataHeaderSize + len(payload))
	if err != nil {
		return nil, false, err
	}
	data := buf.Bytes()
	writeDataHeader(data, u.channelID, u.txLast)
	copy(data[dataHeaderSize:], payload)

	return buf, true, nil
}

// HandleIncoming drops stale/duplicate arrivals, advances the
// watermark on an in-order arrival, or delivers a future arrival
// immediately while marking it seen.
func (u *Unreliable) HandleIncoming(payload []byte) ([]byte, bool) {
	seq, body, err := readDataHeader(payload)
	if err != nil {
		return nil, false
	}

	if seqnum.Distance16(seq, u.rxLowest) <= 0 || u.acked.Get(seq) {
		return nil, false
	}

	if seq == u.rxLowest+1 {
		u.rxLowest = seq
		for u.acked.Get(u.rxLowest + 1) {
			u.rxLowest++
			u.acked.Set(u.rxLowest, false)
		}
		return body, false
	}

	u.acked.Set(seq, true)
	return body, false
}

// HandleAck is a no-op: unreliable sends no acks and expects none.
func (u *Unreliable) HandleAck([]byte) {}

// Poll never has anything to deliver: unreliable delivers on receipt.
func (u *Unreliable) Poll() *memory.Buffer { return nil }

// Tick is a no-op: unreliable never retransmits.
func (u *Unreliable) Tick() {}

// Reset clears duplicate-suppression state and the sequence counters.
func (u *Unreliable) Reset() {
	u.acked.Release()
	u.rxLowest = 0
	u.txLast = 0
}
