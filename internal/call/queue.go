package call

import "time"

// Queue is the FIFO of inbound calls that have not been answered or
// rejected yet. Insertion order is arrival order and entries are
// deduplicated by call id. The queue is not safe for concurrent use;
// the session is its single writer and guards it with its own lock.
type Queue struct {
	entries []*CallRecord
	ttl     time.Duration // lazy expiry window, 0 disables
}

// NewQueue creates a queue whose entries expire ttl after arrival. The
// remote caller has abandoned by its own ring timeout, so entries older
// than that window are pruned lazily on access.
func NewQueue(ttl time.Duration) *Queue {
	return &Queue{ttl: ttl}
}

// Enqueue appends a record unless its call id is already present.
// Returns false for the duplicate no-op.
func (q *Queue) Enqueue(rec *CallRecord) bool {
	q.prune(time.Now())
	for _, e := range q.entries {
		if e.CallID == rec.CallID {
			return false
		}
	}
	q.entries = append(q.entries, rec)
	return true
}

// Get returns the queued record with the given call id.
func (q *Queue) Get(callID string) (*CallRecord, bool) {
	q.prune(time.Now())
	for _, e := range q.entries {
		if e.CallID == callID {
			return e, true
		}
	}
	return nil, false
}

// Remove takes a record out of the queue. Each record leaves the queue
// exactly once: by answer, reject or expiry.
func (q *Queue) Remove(callID string) (*CallRecord, bool) {
	for i, e := range q.entries {
		if e.CallID == callID {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return e, true
		}
	}
	return nil, false
}

// All returns the queued records in FIFO order. The slice is a copy;
// answering or rejecting one entry never reorders the rest.
func (q *Queue) All() []CallRecord {
	q.prune(time.Now())
	out := make([]CallRecord, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, *e)
	}
	return out
}

// Len returns the number of pending entries.
func (q *Queue) Len() int {
	q.prune(time.Now())
	return len(q.entries)
}

// prune drops entries older than the ttl window.
func (q *Queue) prune(now time.Time) {
	if q.ttl <= 0 {
		return
	}
	kept := q.entries[:0]
	for _, e := range q.entries {
		if now.Sub(e.ReceivedAt) <= q.ttl {
			kept = append(kept, e)
		}
	}
	q.entries = kept
}
