package spider

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueuePopOrder(t *testing.T) {
	q := newRequestQueues()
	q.pushRequest(5, 100, numPreload)
	q.pushForce(9)

	index, force, ok := q.pop(100)
	assert.True(t, ok)
	assert.True(t, force, "force queue drains first")
	assert.Equal(t, 9, index)

	index, force, ok = q.pop(100)
	assert.True(t, ok)
	assert.False(t, force)
	assert.Equal(t, 5, index)

	// Preloads follow
	for want := 6; want <= 10; want++ {
		index, force, ok = q.pop(100)
		assert.True(t, ok)
		assert.False(t, force)
		assert.Equal(t, want, index)
	}

	_, _, ok = q.pop(100)
	assert.False(t, ok, "no work left")
}

func TestQueuePreloadReplaced(t *testing.T) {
	q := newRequestQueues()
	q.pushRequest(10, 100, numPreload)
	assert.Equal(t, []int{11, 12, 13, 14, 15}, q.preload)

	q.pushRequest(40, 100, numPreload)
	assert.Equal(t, []int{41, 42, 43, 44, 45}, q.preload)
	assert.Equal(t, []int{10, 40}, q.request)
}

func TestQueuePreloadClampedToSize(t *testing.T) {
	q := newRequestQueues()
	q.pushRequest(98, 100, numPreload)
	assert.Equal(t, []int{99}, q.preload)

	q.pushRequest(99, 100, numPreload)
	assert.Empty(t, q.preload)
}

func TestQueueDownloadCursor(t *testing.T) {
	q := newRequestQueues()
	_, _, ok := q.pop(3)
	assert.False(t, ok, "cursor disabled outside download mode")

	q.setDownloadMode(true)
	for want := 0; want < 3; want++ {
		index, force, ok := q.pop(3)
		assert.True(t, ok)
		assert.False(t, force)
		assert.Equal(t, want, index)
	}
	_, _, ok = q.pop(3)
	assert.False(t, ok, "cursor exhausted")

	q.setDownloadMode(false)
	assert.Equal(t, -1, q.downloadCursor)
}

func TestQueuePending(t *testing.T) {
	q := newRequestQueues()
	assert.False(t, q.pending(10))

	q.pushForce(1)
	assert.True(t, q.pending(10))
	q.pop(10)
	assert.False(t, q.pending(10))

	q.setDownloadMode(true)
	assert.True(t, q.pending(10))
	assert.False(t, q.pending(0), "cursor beyond page count is idle")
}
