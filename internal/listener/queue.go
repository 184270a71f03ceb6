package listener

import "sync"

// Queue is an unbounded FIFO handoff of utterances from the capture
// goroutine to the transcription worker. Stop enqueues a sentinel instead of
// closing the queue, so utterances already enqueued are still drained in
// order before the worker observes shutdown, and the sentinel unblocks
// exactly one blocking Pop.
type Queue struct {
	mu    sync.Mutex
	cond  *sync.Cond
	items [][]float32 // a nil element is the stop sentinel
}

// NewQueue creates an empty utterance queue.
func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends one utterance. utterance must not be nil.
func (q *Queue) Push(utterance []float32) {
	if utterance == nil {
		return
	}
	q.mu.Lock()
	q.items = append(q.items, utterance)
	q.mu.Unlock()
	q.cond.Signal()
}

// PushSentinel appends the stop sentinel.
func (q *Queue) PushSentinel() {
	q.mu.Lock()
	q.items = append(q.items, nil)
	q.mu.Unlock()
	q.cond.Signal()
}

// Pop blocks until an item is available. It returns (utterance, true) for a
// queued utterance and (nil, false) once the sentinel is reached. The
// sentinel is consumed, it is not requeued for later receivers.
func (q *Queue) Pop() ([]float32, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 {
		q.cond.Wait()
	}

	item := q.items[0]
	q.items = q.items[1:]
	if item == nil {
		return nil, false
	}
	return item, true
}

// Len returns the number of queued items, including a pending sentinel.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
