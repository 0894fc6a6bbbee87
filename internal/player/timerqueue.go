package player

import "time"

// offEvent is a pending note release.
type offEvent struct {
	at    time.Time
	pitch int
}

// offQueue is a min-heap of pending releases ordered by due time, letting
// one scheduling loop manage every release instead of one timer per note.
// It implements container/heap.Interface.
type offQueue []offEvent

func (q offQueue) Len() int           { return len(q) }
func (q offQueue) Less(i, j int) bool { return q[i].at.Before(q[j].at) }
func (q offQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *offQueue) Push(x any)        { *q = append(*q, x.(offEvent)) }
func (q *offQueue) Pop() any {
	old := *q
	n := len(old)
	ev := old[n-1]
	*q = old[:n-1]
	return ev
}
