// Package memory provides the pooled byte-buffer allocator the
// channel layer uses instead of raw allocation. It is the
// MemoryManager collaborator: every Allocate is meant to be paired
// with exactly one Release, whether on the happy path or a disconnect
// path, and double-release is rejected loudly rather than corrupting
// the pool.
//
// Grounded on Lzww0608-AetherFlow's internal/quantum/transport.PacketPool,
// which pools *Packet values over a sync.Pool; this reworks the same
// idea around raw byte buffers and adds outstanding-allocation
// accounting so "after reset, zero buffers outstanding" is
// mechanically checkable.
package memory

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// maxPooledSize bounds how large a buffer is allowed to return to the
// pool; oversized buffers are simply dropped for the GC to collect,
// mirroring PacketPool.Put's cap(pkt.Payload) <= 2048 guard.
const maxPooledSize = 4096

// Buffer is an owned, poolable byte slice. The zero value is not
// valid; obtain one from a Manager.
type Buffer struct {
	data     []byte
	released atomic.Bool
}

// Bytes returns the buffer's live contents. The returned slice must
// not be retained past Release.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Len returns the buffer's length.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Manager allocates and releases pooled buffers.
type Manager interface {
	Allocate(size int) (*Buffer, error)
	Release(*Buffer)
	// Outstanding returns the number of buffers allocated but not yet
	// released. Used by tests to check full release-after-reset.
	Outstanding() int
}

// PooledManager is the default Manager, backed by a sync.Pool of
// reusable backing arrays.
type PooledManager struct {
	pool        sync.Pool
	outstanding atomic.Int64
}

// NewPooledManager creates a ready-to-use pooled allocator.
func NewPooledManager() *PooledManager {
	return &PooledManager{
		pool: sync.Pool{
			New: func() any {
				return &Buffer{data: make([]byte, 0, maxPooledSize)}
			},
		},
	}
}

// Allocate returns a buffer of exactly size bytes, zero-filled.
func (m *PooledManager) Allocate(size int) (*Buffer, error) {
	if size < 0 {
		return nil, fmt.Errorf("memory: negative allocation size %d", size)
	}

	buf := m.pool.Get().(*Buffer)
	if cap(buf.data) < size {
		buf.data = make([]byte, size)
	} else {
		buf.data = buf.data[:size]
		for i := range buf.data {
			buf.data[i] = 0
		}
	}
	buf.released.Store(false)
	m.outstanding.Add(1)
	return buf, nil
}

// Release returns a buffer to the pool. Releasing the same buffer
// twice panics: the caller almost certainly lost track of ownership
// across a send/ack/resend boundary, and the allocator must detect it
// rather than silently corrupt the pool.
func (m *PooledManager) Release(buf *Buffer) {
	if buf == nil {
		return
	}
	if !buf.released.CompareAndSwap(false, true) {
		panic("memory: double release of buffer")
	}
	m.outstanding.Add(-1)
	if cap(buf.data) <= maxPooledSize {
		buf.data = buf.data[:0]
		m.pool.Put(buf)
	}
}

// Outstanding reports the number of buffers currently allocated.
func (m *PooledManager) Outstanding() int {
	return int(m.outstanding.Load())
}
