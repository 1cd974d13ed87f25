package spqueue

import "github.com/readoutcard/rocdma/rocerr"

// Queue is a registry of up to capacity superpage entries plus the three
// FIFOs of IDs into it: Pushing, Arrivals, Filled.
type Queue struct {
	capacity int
	registry []Entry
	valid    []bool
	nextID   int
	count    int

	pushing  *idRing
	arrivals *idRing
	filled   *idRing
}

// New builds an empty queue with room for capacity in-flight superpages.
func New(capacity int) *Queue {
	return &Queue{
		capacity: capacity,
		registry: make([]Entry, capacity),
		valid:    make([]bool, capacity),
		pushing:  newIDRing(capacity),
		arrivals: newIDRing(capacity),
		filled:   newIDRing(capacity),
	}
}

// Capacity returns the maximum number of in-flight superpages.
func (q *Queue) Capacity() int {
	return q.capacity
}

// Count returns the number of live entries across all three sub-queues.
func (q *Queue) Count() int {
	return q.count
}

// Available returns how many more superpages can be added before Add
// fails with QueueFull.
func (q *Queue) Available() int {
	return q.capacity - q.count
}

// Add appends a new entry, putting its ID into both Pushing and Arrivals,
// and returns the allocated ID.
func (q *Queue) Add(entry Entry) (int, error) {
	if q.count == q.capacity {
		return 0, rocerr.New(rocerr.QueueFull, "superpage queue full (capacity %d)", q.capacity)
	}
	id := q.nextID
	q.registry[id] = entry
	q.valid[id] = true
	q.nextID = (q.nextID + 1) % q.capacity
	q.count++
	q.pushing.pushBack(id)
	q.arrivals.pushBack(id)
	return id, nil
}

// Entry returns the live entry for id.
func (q *Queue) Entry(id int) *Entry {
	return &q.registry[id]
}

// BackID returns the ID of the youngest superpage: the most recent one
// still in Pushing, else Arrivals, else Filled.
func (q *Queue) BackID() (int, error) {
	switch {
	case !q.pushing.empty():
		return q.pushing.back(), nil
	case !q.arrivals.empty():
		return q.arrivals.back(), nil
	case !q.filled.empty():
		return q.filled.back(), nil
	default:
		return 0, rocerr.New(rocerr.QueueEmpty, "could not get back superpage, queues were empty")
	}
}

// FrontID returns the ID of the oldest superpage: the one closest to
// being returned by PopFilled.
func (q *Queue) FrontID() (int, error) {
	switch {
	case !q.filled.empty():
		return q.filled.front(), nil
	case !q.arrivals.empty():
		return q.arrivals.front(), nil
	case !q.pushing.empty():
		return q.pushing.front(), nil
	default:
		return 0, rocerr.New(rocerr.QueueEmpty, "could not get front superpage, queues were empty")
	}
}

// PushingFrontEntry returns the oldest entry still in the Pushing queue.
func (q *Queue) PushingFrontEntry() (*Entry, error) {
	if q.pushing.empty() {
		return nil, rocerr.New(rocerr.QueueEmpty, "pushing queue is empty")
	}
	return q.Entry(q.pushing.front()), nil
}

// PushingFrontID returns the ID of the oldest entry still in the Pushing
// queue. Engines record it against an armed descriptor slot so the later
// arrival is credited to the right entry even after it has left Pushing.
func (q *Queue) PushingFrontID() (int, error) {
	if q.pushing.empty() {
		return 0, rocerr.New(rocerr.QueueEmpty, "pushing queue is empty")
	}
	return q.pushing.front(), nil
}

// ArrivalsFrontEntry returns the oldest entry still in the Arrivals
// queue.
func (q *Queue) ArrivalsFrontEntry() (*Entry, error) {
	if q.arrivals.empty() {
		return nil, rocerr.New(rocerr.QueueEmpty, "arrivals queue is empty")
	}
	return q.Entry(q.arrivals.front()), nil
}

// RemoveFromPushing removes the Pushing-front entry once it has been
// completely pushed (PushedPages == MaxPages).
func (q *Queue) RemoveFromPushing() (int, error) {
	if q.pushing.empty() {
		return 0, rocerr.New(rocerr.QueueEmpty, "could not remove from pushing queue, queue was empty")
	}
	id := q.pushing.front()
	if !q.Entry(id).IsPushed() {
		return 0, rocerr.New(rocerr.BadState, "could not remove from pushing queue, entry %d was not completely pushed", id)
	}
	q.pushing.popFront()
	return id, nil
}

// PromoteArrivalsToFilled moves the Arrivals-front entry to Filled once
// its superpage is marked ready.
func (q *Queue) PromoteArrivalsToFilled() (int, error) {
	if q.arrivals.empty() {
		return 0, rocerr.New(rocerr.QueueEmpty, "could not move from arrivals to filled, queue was empty")
	}
	id := q.arrivals.front()
	if !q.Entry(id).Superpage.Ready {
		return 0, rocerr.New(rocerr.BadState, "could not move arrivals to filled, superpage %d was not ready", id)
	}
	q.filled.pushBack(id)
	q.arrivals.popFront()
	return id, nil
}

// ForceRemoveFromPushing removes the Pushing-front entry regardless of
// whether it has been completely pushed. Used to abort a superpage whose
// engine reported an arrival error mid-flight.
func (q *Queue) ForceRemoveFromPushing() (int, error) {
	if q.pushing.empty() {
		return 0, rocerr.New(rocerr.QueueEmpty, "could not remove from pushing queue, queue was empty")
	}
	return q.pushing.popFront(), nil
}

// ForceMoveArrivalsToFilled moves the Arrivals-front entry to Filled
// regardless of its Ready flag. Used alongside ForceRemoveFromPushing to
// abort a superpage.
func (q *Queue) ForceMoveArrivalsToFilled() (int, error) {
	if q.arrivals.empty() {
		return 0, rocerr.New(rocerr.QueueEmpty, "could not move from arrivals to filled, queue was empty")
	}
	id := q.arrivals.front()
	q.filled.pushBack(id)
	q.arrivals.popFront()
	return id, nil
}

// PopFilled removes and returns the oldest Filled entry, ending the
// superpage's lifecycle.
func (q *Queue) PopFilled() (Entry, error) {
	if q.filled.empty() {
		return Entry{}, rocerr.New(rocerr.QueueEmpty, "could not pop superpage, filled queue was empty")
	}
	id := q.filled.front()
	entry := q.registry[id]
	q.valid[id] = false
	q.count--
	q.filled.popFront()
	return entry, nil
}

// Clear empties every sub-queue and resets ID allocation.
func (q *Queue) Clear() {
	for i := range q.valid {
		q.valid[i] = false
	}
	q.pushing.clear()
	q.arrivals.clear()
	q.filled.clear()
	q.count = 0
	q.nextID = 0
}

// PushingLen, ArrivalsLen and FilledLen report each sub-queue's current
// length, used for queue-accounting tests and stats reporting.
func (q *Queue) PushingLen() int  { return q.pushing.len() }
func (q *Queue) ArrivalsLen() int { return q.arrivals.len() }
func (q *Queue) FilledLen() int   { return q.filled.len() }
