package logic

import (
	"container/heap"
	"time"
)

// Scheduler is a time-ordered queue of deferred sorter commands.
// Entries are ordered by (Due, Seq), so events with equal due times
// dispatch in the order they were scheduled.
// Not safe for concurrent use; the control loop owns it.
type Scheduler struct {
	queue eventHeap
	seq   uint64 // last sequence number handed out; never reset
}

// NewScheduler creates an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Schedule queues kind to fire at due and returns the queued entry.
func (s *Scheduler) Schedule(due time.Time, kind EventKind, itemID string) ScheduledEvent {
	s.seq++
	ev := ScheduledEvent{Due: due, Seq: s.seq, Kind: kind, ItemID: itemID}
	heap.Push(&s.queue, ev)
	return ev
}

// DrainDue pops every entry whose due time is at or before now, lowest key first.
// Returns nil if nothing is due.
func (s *Scheduler) DrainDue(now time.Time) []ScheduledEvent {
	var due []ScheduledEvent
	for len(s.queue) > 0 && !s.queue[0].Due.After(now) {
		due = append(due, heap.Pop(&s.queue).(ScheduledEvent))
	}
	return due
}

// Clear discards all pending entries and returns how many were dropped.
// The sequence counter keeps counting.
func (s *Scheduler) Clear() int {
	n := len(s.queue)
	s.queue = nil
	return n
}

// Len returns the number of pending entries.
func (s *Scheduler) Len() int {
	return len(s.queue)
}

// Peek returns the next entry to fire without removing it.
func (s *Scheduler) Peek() (ScheduledEvent, bool) {
	if len(s.queue) == 0 {
		return ScheduledEvent{}, false
	}
	return s.queue[0], true
}

// eventHeap implements heap.Interface over ScheduledEvent.
type eventHeap []ScheduledEvent

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].Due.Equal(h[j].Due) {
		return h[i].Seq < h[j].Seq
	}
	return h[i].Due.Before(h[j].Due)
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) {
	*h = append(*h, x.(ScheduledEvent))
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	*h = old[:n-1]
	return ev
}
