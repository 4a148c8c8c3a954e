package utils

import (
	"finboard/src/models"
)

// -----------------------------------------------------------------------------
// BarRing is a fixed-size circular buffer of sealed OHLCV bars.
// Once full, appending drops exactly the oldest bar per new bar.
// -----------------------------------------------------------------------------

type BarRing struct {
	data     []models.MOHLCVBar
	capacity int
	index    int // Next write position
	size     int // Current number of elements
}

// -----------------------------------------------------------------------------

// NewBarRing creates a new ring with fixed capacity
func NewBarRing(capacity int) *BarRing {
	if capacity <= 0 {
		capacity = 3600 // One hour of per-second bars
	}

	return &BarRing{
		data:     make([]models.MOHLCVBar, capacity),
		capacity: capacity,
		index:    0,
		size:     0,
	}
}

// -----------------------------------------------------------------------------

// Append adds a sealed bar
func (rb *BarRing) Append(bar models.MOHLCVBar) {
	rb.data[rb.index] = bar
	rb.index = (rb.index + 1) % rb.capacity

	// Update size (never exceeds capacity)
	if rb.size < rb.capacity {
		rb.size++
	}
}

// -----------------------------------------------------------------------------

// GetLatest returns the n most recent bars, oldest first
func (rb *BarRing) GetLatest(n int) []models.MOHLCVBar {
	if rb.size == 0 || n <= 0 {
		return []models.MOHLCVBar{}
	}

	count := n
	if n > rb.size {
		count = rb.size
	}

	result := make([]models.MOHLCVBar, count)

	// Latest data is at index-1
	startIdx := (rb.index - count + rb.capacity) % rb.capacity

	for i := 0; i < count; i++ {
		idx := (startIdx + i) % rb.capacity
		result[i] = rb.data[idx]
	}

	return result
}

// -----------------------------------------------------------------------------

// GetAll returns all bars in insertion order (oldest to newest)
func (rb *BarRing) GetAll() []models.MOHLCVBar {
	if rb.size == 0 {
		return []models.MOHLCVBar{}
	}

	result := make([]models.MOHLCVBar, rb.size)

	var startIdx int
	if rb.size == rb.capacity {
		// Buffer is full, oldest is at current index (wrap-around)
		startIdx = rb.index
	} else {
		startIdx = 0
	}

	for i := 0; i < rb.size; i++ {
		idx := (startIdx + i) % rb.capacity
		result[i] = rb.data[idx]
	}

	return result
}

// -----------------------------------------------------------------------------

// Size returns current number of elements
func (rb *BarRing) Size() int {
	return rb.size
}

// -----------------------------------------------------------------------------

// Capacity returns buffer capacity (fixed)
func (rb *BarRing) Capacity() int {
	return rb.capacity
}

// -----------------------------------------------------------------------------

// IsFull returns whether buffer is full
func (rb *BarRing) IsFull() bool {
	return rb.size == rb.capacity
}

// -----------------------------------------------------------------------------

// Clear resets the buffer
func (rb *BarRing) Clear() {
	rb.index = 0
	rb.size = 0
}
