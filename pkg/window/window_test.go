package window

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetSetRoundTrip(t *testing.T) {
	w := New[int](64)
	w.Set(5, 42)
	assert.Equal(t, 42, w.Get(5))
	assert.Equal(t, 0, w.Get(6))
}

func TestSlotReuseOnWrap(t *testing.T) {
	w := New[string](64)
	w.Set(1, "first")
	w.Set(1+64, "second")
	assert.Equal(t, "second", w.Get(1))
	assert.Equal(t, "second", w.Get(1+64))
}

func TestRelease(t *testing.T) {
	w := New[int](8)
	for i := uint16(0); i < 8; i++ {
		w.Set(i, int(i)+1)
	}
	w.Release()
	for i := uint16(0); i < 8; i++ {
		assert.Equal(t, 0, w.Get(i))
	}
}

func TestCapacity(t *testing.T) {
	w := New[bool](64)
	assert.Equal(t, uint16(64), w.Capacity())
}
