package spider

// requestQueues is the worker dequeue source: explicit re-requests
// first, then interactive requests, then preloads, then the sequential
// download cursor. One mutex guards all four.
type requestQueues struct {
	force   []int
	request []int
	preload []int

	// downloadCursor walks 0..pages-1 in download mode, -1 otherwise.
	downloadCursor int
}

func newRequestQueues() *requestQueues {
	return &requestQueues{downloadCursor: -1}
}

func (q *requestQueues) pushForce(index int) {
	q.force = append(q.force, index)
}

// pushRequest enqueues an interactive request and replaces the preload
// queue with the next consecutive indices. size bounds the preloads;
// pass a huge size when the page count is not yet known.
func (q *requestQueues) pushRequest(index, size, preloadCount int) {
	q.request = append(q.request, index)
	q.preload = q.preload[:0]
	for i := index + 1; i < index+1+preloadCount && i < size; i++ {
		q.preload = append(q.preload, i)
	}
}

// pop removes the next index per the dequeue policy. ok is false when
// no work remains; the returned index may still be out of range.
func (q *requestQueues) pop(size int) (index int, force, ok bool) {
	switch {
	case len(q.force) > 0:
		index, q.force = q.force[0], q.force[1:]
		return index, true, true
	case len(q.request) > 0:
		index, q.request = q.request[0], q.request[1:]
		return index, false, true
	case len(q.preload) > 0:
		index, q.preload = q.preload[0], q.preload[1:]
		return index, false, true
	case q.downloadCursor >= 0 && q.downloadCursor < size:
		index = q.downloadCursor
		q.downloadCursor++
		return index, false, true
	default:
		return 0, false, false
	}
}

// pending reports whether any work would be dequeued for the given
// page count.
func (q *requestQueues) pending(size int) bool {
	return len(q.force) > 0 || len(q.request) > 0 || len(q.preload) > 0 ||
		(q.downloadCursor >= 0 && q.downloadCursor < size)
}

func (q *requestQueues) setDownloadMode(on bool) {
	if on {
		q.downloadCursor = 0
	} else {
		q.downloadCursor = -1
	}
}
