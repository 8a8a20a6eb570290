// Package channel implements three reliability variants over raw
// datagrams: Unreliable, Reliable (unordered), and Reliable-Sequenced
// (strict in-order). All three share the data framing (packet.go).
// Reliable and Reliable-Sequenced also share the ack protocol and the
// resend loop (factored into core.go) and differ only in their
// incoming-side policy (acked-set / buffered-window); Unreliable sends
// no acks and never retransmits.
//
// Modeled on RakNet's ACKQueue/RecoveryQueue/NACKQueue bookkeeping and
// its UNRELIABLE/RELIABLE/RELIABLE_SEQUENCED reliability-type
// taxonomy, simplified to a single-sequence-ack wire format instead of
// RakNet's own 24-bit, split-packet, per-channel-order-index framing.
package channel

import (
	"time"

	"reliachan/pkg/config"
	"reliachan/pkg/memory"
)

// Wire message types, echoing RakNet's own packet IDs (0x84 for a
// data datagram, 0xC0 for an ack) without being byte-identical to
// RakNet's richer framing.
const (
	MessageTypeData byte = 0x84
	MessageTypeAck  byte = 0xC0
)

// dataHeaderSize is the channel-framed data header: type + channel id
// + 2-byte sequence.
const dataHeaderSize = 4

// ackPacketSize is the fixed ack frame: type + channel id + 2-byte
// sequence.
const ackPacketSize = 4

// Connection is the external collaborator every channel sends
// through: raw datagram transmission, RTT sampling, disconnect, and a
// read-only RTT estimate. The channel package never does socket I/O
// itself.
type Connection interface {
	SendRaw(payload []byte) error
	AddRoundtripSample(d time.Duration)
	Disconnect()
	RoundtripMS() time.Duration
}

// Clock is the monotonic-timestamp collaborator a channel reads for
// resend timing and RTT sampling.
type Clock interface {
	Now() time.Time
}

// Channel is the dispatcher-facing interface every variant implements.
type Channel interface {
	// CreateOutgoing frames an application payload for transmission.
	// callerMustRelease reports whether the caller owns the returned
	// buffer (true for Unreliable) or whether the channel retains it
	// for retransmission (false for Reliable/Reliable-Sequenced).
	CreateOutgoing(payload []byte) (buf *memory.Buffer, callerMustRelease bool, err error)

	// HandleIncoming processes a received datagram (channel-id byte
	// already stripped). hasMore hints the dispatcher to call Poll
	// again; only Reliable-Sequenced ever sets it.
	HandleIncoming(payload []byte) (delivered []byte, hasMore bool)

	// HandleAck processes a received ack datagram.
	HandleAck(payload []byte)

	// Poll drains one buffered in-order payload, if any is ready.
	// Only Reliable-Sequenced ever returns non-nil.
	Poll() *memory.Buffer

	// Tick drives retransmission.
	Tick()

	// Reset releases all retained state; sequences return to zero.
	Reset()
}

// reliabilityConfig is the slice of config.Config every channel
// variant needs; plain fields rather than the full config.Config so
// channel construction doesn't depend on the config package's YAML
// concerns.
type reliabilityConfig struct {
	windowSize        uint16
	maxResendAttempts int
	resendExtraDelay  time.Duration
}

func fromConfig(c config.Config) reliabilityConfig {
	return reliabilityConfig{
		windowSize:        c.Reliability.WindowSize,
		maxResendAttempts: c.Reliability.MaxResendAttempts,
		resendExtraDelay:  c.Reliability.ResendExtraDelay,
	}
}
