package win32

import (
	"sync"

	"github.com/panicsave/panicsave/pkg/window"
)

type request struct {
	register bool
	spec     window.HookSpec
	cb       window.Callback
	handle   window.Handle
	reply    chan reply
}

type reply struct {
	handle window.Handle
	err    error
}

func newRequest() *request {
	return &request{reply: make(chan reply, 1)}
}

// requestQueue hands Register and Unregister calls to the message loop
// thread. Once closed it accepts nothing and keeps nothing.
type requestQueue struct {
	mu      sync.Mutex
	closed  bool
	pending []*request
}

// push queues req and wakes the loop with signal. A request whose signal
// fails is taken back out, since the loop will never see it.
func (q *requestQueue) push(req *request, signal func() error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return window.ErrClosed
	}

	q.pending = append(q.pending, req)
	if err := signal(); err != nil {
		q.pending = q.pending[:len(q.pending)-1]
		return err
	}
	return nil
}

// take returns every queued request
func (q *requestQueue) take() []*request {
	q.mu.Lock()
	defer q.mu.Unlock()

	queue := q.pending
	q.pending = nil
	return queue
}

// close stops accepting requests. Only the first call runs signal.
func (q *requestQueue) close(signal func() error) (first bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false, nil
	}
	q.closed = true
	return true, signal()
}

// abandon closes the queue from the loop side and fails whatever is left
func (q *requestQueue) abandon() {
	q.mu.Lock()
	q.closed = true
	queue := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, req := range queue {
		req.reply <- reply{err: window.ErrClosed}
	}
}
