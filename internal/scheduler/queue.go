package scheduler

import (
	"container/heap"
	"time"

	"github.com/northlane-labs/social-tracker/internal/models"
)

// queueItem is one account's entry in the ready queue.
type queueItem struct {
	accountID string
	priority  models.Priority
	queuedAt  time.Time
	manual    bool
	index     int
}

// readyQueue orders entries by (manual first, priority desc, queuedAt asc).
// It is a thin container/heap.Interface implementation — the one stdlib
// exception in this package, since no pack dependency
// offers an ordered priority container.
type readyQueue []*queueItem

func (q readyQueue) Len() int { return len(q) }

func (q readyQueue) Less(i, j int) bool {
	a, b := q[i], q[j]
	if a.manual != b.manual {
		return a.manual
	}
	if a.priority != b.priority {
		return a.priority > b.priority
	}
	return a.queuedAt.Before(b.queuedAt)
}

func (q readyQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *readyQueue) Push(x any) {
	item := x.(*queueItem)
	item.index = len(*q)
	*q = append(*q, item)
}

func (q *readyQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*q = old[:n-1]
	return item
}

var _ heap.Interface = (*readyQueue)(nil)
