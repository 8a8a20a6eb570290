package channel_test

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reliachan/pkg/clock"
	"reliachan/pkg/config"
	"reliachan/pkg/memory"
	"reliachan/source/channel"
)

// fixtureConfig is the default window size 64, max resend attempts
// 10, resend extra delay 50ms used across these scenario tests.
func fixtureConfig() config.Config {
	return config.Default()
}

type fakeConn struct {
	sent         [][]byte
	rtSamples    []time.Duration
	disconnected bool
	rtt          time.Duration
}

func newFakeConn() *fakeConn { return &fakeConn{} }

func (f *fakeConn) SendRaw(payload []byte) error {
	cp := make([]byte, len(payload))
	copy(cp, payload)
	f.sent = append(f.sent, cp)
	return nil
}

func (f *fakeConn) AddRoundtripSample(d time.Duration) { f.rtSamples = append(f.rtSamples, d) }
func (f *fakeConn) Disconnect()                        { f.disconnected = true }
func (f *fakeConn) RoundtripMS() time.Duration         { return f.rtt }

func (f *fakeConn) ackCount() int {
	n := 0
	for _, s := range f.sent {
		if len(s) > 0 && s[0] == channel.MessageTypeAck {
			n++
		}
	}
	return n
}

// buildIncoming constructs the bytes HandleIncoming expects: the raw
// datagram after the channel-id byte has been stripped, i.e. a
// 2-byte little-endian sequence followed by the application payload.
func buildIncoming(seq uint16, body []byte) []byte {
	buf := make([]byte, 2+len(body))
	binary.LittleEndian.PutUint16(buf[0:2], seq)
	copy(buf[2:], body)
	return buf
}

// --- Reliable-sequenced, out-of-order arrival ---

func TestSequencedOutOfOrderArrivalIsHeldUntilGapFills(t *testing.T) {
	mm := memory.NewPooledManager()
	conn := newFakeConn()
	clk := clock.NewMock(time.Unix(0, 0))
	ch := channel.NewSequenced(mm, conn, clk, 0, fixtureConfig())

	drainAll := func() []byte {
		var out []byte
		for {
			buf := ch.Poll()
			if buf == nil {
				break
			}
			out = append(out, buf.Bytes()...)
			mm.Release(buf)
		}
		return out
	}

	// seq 2
	delivered, hasMore := ch.HandleIncoming(buildIncoming(2, []byte("B")))
	assert.Nil(t, delivered)
	assert.False(t, hasMore)
	assert.Empty(t, drainAll())

	// seq 3
	delivered, hasMore = ch.HandleIncoming(buildIncoming(3, []byte("C")))
	assert.Nil(t, delivered)
	assert.False(t, hasMore)
	assert.Empty(t, drainAll())

	// seq 1: in-order arrival, immediate delivery of A, then Poll
	// drains the now-contiguous B and C.
	delivered, hasMore = ch.HandleIncoming(buildIncoming(1, []byte("A")))
	require.Equal(t, []byte("A"), delivered)
	assert.True(t, hasMore)
	assert.Equal(t, []byte("BC"), drainAll())

	// seq 4: in-order, immediate delivery of D.
	delivered, hasMore = ch.HandleIncoming(buildIncoming(4, []byte("D")))
	require.Equal(t, []byte("D"), delivered)
	assert.False(t, hasMore)
	assert.Empty(t, drainAll())

	assert.Equal(t, 4, conn.ackCount())
}

// --- Reliable, out-of-order arrival ---

func TestReliableOutOfOrderArrivalIsDeliveredImmediately(t *testing.T) {
	mm := memory.NewPooledManager()
	conn := newFakeConn()
	clk := clock.NewMock(time.Unix(0, 0))
	ch := channel.NewReliable(mm, conn, clk, 0, fixtureConfig())

	delivered, _ := ch.HandleIncoming(buildIncoming(2, []byte("B")))
	assert.Equal(t, []byte("B"), delivered)

	delivered, _ = ch.HandleIncoming(buildIncoming(3, []byte("C")))
	assert.Equal(t, []byte("C"), delivered)

	delivered, _ = ch.HandleIncoming(buildIncoming(1, []byte("A")))
	assert.Equal(t, []byte("A"), delivered)

	delivered, _ = ch.HandleIncoming(buildIncoming(4, []byte("D")))
	assert.Equal(t, []byte("D"), delivered)

	assert.Equal(t, 4, conn.ackCount())
}

// --- Duplicate suppression ---

func TestReliableSuppressesDuplicateArrival(t *testing.T) {
	mm := memory.NewPooledManager()
	conn := newFakeConn()
	clk := clock.NewMock(time.Unix(0, 0))
	ch := channel.NewReliable(mm, conn, clk, 0, fixtureConfig())

	first, _ := ch.HandleIncoming(buildIncoming(5, []byte("X")))
	second, _ := ch.HandleIncoming(buildIncoming(5, []byte("X")))

	assert.Equal(t, []byte("X"), first)
	assert.Nil(t, second)
	assert.Equal(t, 2, conn.ackCount())
}

func TestSequencedSuppressesDuplicateArrival(t *testing.T) {
	mm := memory.NewPooledManager()
	conn := newFakeConn()
	clk := clock.NewMock(time.Unix(0, 0))
	ch := channel.NewSequenced(mm, conn, clk, 0, fixtureConfig())

	first, _ := ch.HandleIncoming(buildIncoming(1, []byte("X")))
	second, _ := ch.HandleIncoming(buildIncoming(1, []byte("X")))

	assert.Equal(t, []byte("X"), first)
	assert.Nil(t, second)
	assert.Equal(t, 2, conn.ackCount())
}

func TestUnreliableSuppressesDuplicateArrival(t *testing.T) {
	mm := memory.NewPooledManager()
	ch := channel.NewUnreliable(mm, 0, fixtureConfig())

	first, _ := ch.HandleIncoming(buildIncoming(5, []byte("X")))
	second, _ := ch.HandleIncoming(buildIncoming(5, []byte("X")))

	assert.NotNil(t, first)
	assert.Nil(t, second)
}

// --- Retransmission ---

func TestUnackedSendIsRetransmittedPastThreshold(t *testing.T) {
	mm := memory.NewPooledManager()
	conn := newFakeConn()
	conn.rtt = 100 * time.Millisecond
	clk := clock.NewMock(time.Unix(0, 0))
	ch := channel.NewReliable(mm, conn, clk, 0, fixtureConfig())

	_, _, err := ch.CreateOutgoing([]byte("hello"))
	require.NoError(t, err)
	require.Len(t, conn.sent, 0, "CreateOutgoing doesn't itself transmit; the caller does")

	clk.Advance(160 * time.Millisecond)
	ch.Tick()
	assert.Len(t, conn.sent, 1, "160ms > 100ms+50ms threshold: tick must resend")

	clk.Advance(160 * time.Millisecond) // now at 320ms, well past next threshold
	ch.Tick()
	assert.Len(t, conn.sent, 2)
}

// --- Resend exhaustion ---

func TestResendExhaustionDisconnects(t *testing.T) {
	mm := memory.NewPooledManager()
	conn := newFakeConn()
	conn.rtt = 10 * time.Millisecond
	clk := clock.NewMock(time.Unix(0, 0))

	cfg := fixtureConfig()
	cfg.Reliability.MaxResendAttempts = 3
	ch := channel.NewReliable(mm, conn, clk, 0, cfg)

	_, _, err := ch.CreateOutgoing([]byte("hello"))
	require.NoError(t, err)

	threshold := conn.rtt + cfg.Reliability.ResendExtraDelay
	for i := 0; i < 3; i++ {
		clk.Advance(threshold + time.Millisecond)
		ch.Tick()
	}
	assert.False(t, conn.disconnected, "3 attempts used, not yet exhausted")

	clk.Advance(threshold + time.Millisecond)
	ch.Tick()
	assert.True(t, conn.disconnected, "tick past max attempts must disconnect")
}

// --- Wrap-around ---

func TestSequenceWrapAroundIsHandledCorrectly(t *testing.T) {
	mm := memory.NewPooledManager()
	conn := newFakeConn()
	clk := clock.NewMock(time.Unix(0, 0))
	ch := channel.NewReliable(mm, conn, clk, 0, fixtureConfig())

	seedTxLastTo65530(t, ch)
	baseline := len(conn.rtSamples)

	var seqs []uint16
	for i := 0; i < 10; i++ {
		_, _, err := ch.CreateOutgoing([]byte{byte(i)})
		require.NoError(t, err)
		seqs = append(seqs, uint16(65531+i))
	}

	for _, seq := range seqs {
		ch.HandleAck(buildAck(seq))
	}

	assert.Equal(t, 10, len(conn.rtSamples)-baseline)
	assert.Equal(t, 0, mm.Outstanding(), "every outgoing buffer must be freed on ack")
}

func buildAck(seq uint16) []byte {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, seq)
	return buf
}

// seedTxLastTo65530 drives CreateOutgoing until the internal tx_last
// counter sits at 65530, exercising the wraparound seam without a
// test-only constructor: the channel package intentionally has no
// external setter for tx_last (sequence 0 must never be hand-assigned),
// so the test drives it the same way any real sender would, then
// immediately acks/frees each filler send.
func seedTxLastTo65530(t *testing.T, ch *channel.Reliable) {
	t.Helper()
	for i := uint16(1); i <= 65530; i++ {
		_, _, err := ch.CreateOutgoing([]byte{0})
		require.NoError(t, err)
		ch.HandleAck(buildAck(i))
	}
}

// --- Buffer accounting after reset ---

func TestResetFreesAllOutstandingBuffers(t *testing.T) {
	mm := memory.NewPooledManager()
	conn := newFakeConn()
	clk := clock.NewMock(time.Unix(0, 0))
	ch := channel.NewSequenced(mm, conn, clk, 0, fixtureConfig())

	_, _, err := ch.CreateOutgoing([]byte("unacked"))
	require.NoError(t, err)

	// a future arrival buffered but never polled
	ch.HandleIncoming(buildIncoming(3, []byte("future")))

	assert.Greater(t, mm.Outstanding(), 0)
	ch.Reset()
	assert.Equal(t, 0, mm.Outstanding())
}

// --- Sequence 0 is never assigned as a first sequence ---

func TestFirstAssignedSequenceIsOne(t *testing.T) {
	mm := memory.NewPooledManager()
	ch := channel.NewUnreliable(mm, 0, fixtureConfig())

	buf, _, err := ch.CreateOutgoing([]byte("x"))
	require.NoError(t, err)
	defer mm.Release(buf)

	seq := binary.LittleEndian.Uint16(buf.Bytes()[2:4])
	assert.Equal(t, uint16(1), seq)
}

// --- Malformed packets ---

func TestMalformedPacketTooShortIsSilentlyDropped(t *testing.T) {
	mm := memory.NewPooledManager()
	ch := channel.NewUnreliable(mm, 0, fixtureConfig())

	delivered, hasMore := ch.HandleIncoming([]byte{0x01})
	assert.Nil(t, delivered)
	assert.False(t, hasMore)
}
