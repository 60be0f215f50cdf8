package dial

import "sync"

// Queue is an in-memory Device. Producers Push from any goroutine; the run
// loop pops. It backs the serial driver and keyboard emulation.
type Queue struct {
	mu       sync.Mutex
	events   []Event
	capacity int

	divisions uint16
	enabled   bool
	applies   int
	closed    bool
}

// NewQueue creates a queue holding at most capacity pending events.
// Older events are dropped when full. capacity <= 0 means unbounded.
func NewQueue(capacity int) *Queue {
	return &Queue{capacity: capacity}
}

// Push appends an event.
func (q *Queue) Push(e Event) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	if q.capacity > 0 && len(q.events) >= q.capacity {
		q.events = q.events[1:]
	}
	q.events = append(q.events, e)
}

// PopEvent returns the oldest pending event.
func (q *Queue) PopEvent() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}
	e := q.events[0]
	q.events = q.events[1:]
	return e, true
}

// Len returns the number of pending events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// SetSubdivisions records the requested detent count.
func (q *Queue) SetSubdivisions(n uint16) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.divisions = n
	q.enabled = true
	q.applies++
	return nil
}

// DisableSubdivisions switches to free rotation.
func (q *Queue) DisableSubdivisions() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.divisions = 0
	q.enabled = false
	q.applies++
	return nil
}

// Subdivisions returns the current detent count and whether detents are on.
func (q *Queue) Subdivisions() (uint16, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.divisions, q.enabled
}

// Config returns the configuration applied last.
func (q *Queue) Config() Config {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.enabled {
		return Free()
	}
	return Detents(q.divisions)
}

// Applies returns how many configurations have been applied.
func (q *Queue) Applies() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.applies
}

// Close drops pending events and ignores further pushes.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.events = nil
	return nil
}

var _ Device = (*Queue)(nil)
