package channel

import (
	"encoding/binary"
	"fmt"

	"reliachan/pkg/memory"
)

// writeDataHeader frames a data datagram: type, channel id,
// little-endian sequence, then the payload (already copied in by the
// caller).
func writeDataHeader(buf []byte, channelID byte, seq uint16) {
	buf[0] = MessageTypeData
	buf[1] = channelID
	binary.LittleEndian.PutUint16(buf[2:4], seq)
}

// readDataHeader reads the sequence out of a received data datagram.
// A payload too short to hold the header is malformed: the caller
// must bound-check before trusting the result.
func readDataHeader(payload []byte) (seq uint16, body []byte, err error) {
	if len(payload) < 2 {
		return 0, nil, fmt.Errorf("channel: data payload too short to read sequence (%d bytes)", len(payload))
	}
	seq = binary.LittleEndian.Uint16(payload[0:2])
	return seq, payload[2:], nil
}

// sendAck builds a fresh ack buffer, hands it to the connection, and
// releases it immediately: acks are never retained or retransmitted,
// only re-sent when the triggering data packet is re-received.
func sendAck(mm memory.Manager, conn Connection, channelID byte, seq uint16) error {
	buf, err := mm.Allocate(ackPacketSize)
	if err != nil {
		return fmt.Errorf("channel: allocate ack buffer: %w", err)
	}
	defer mm.Release(buf)

	data := buf.Bytes()
	data[0] = MessageTypeAck
	data[1] = channelID
	binary.LittleEndian.PutUint16(data[2:4], seq)

	return conn.SendRaw(data)
}

// readAckSeq reads the acked sequence from an ack payload (channel-id
// byte already stripped, so only the 2-byte sequence remains).
func readAckSeq(payload []byte) (uint16, error) {
	if len(payload) < 2 {
		return 0, fmt.Errorf("channel: ack payload too short to read sequence (%d bytes)", len(payload))
	}
	return binary.LittleEndian.Uint16(payload[0:2]), nil
}
