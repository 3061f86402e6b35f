// Implements the ReadyQueue, which holds the PIDs of processes waiting for a core.
// Processes are enqueued on admission and again when a quantum expires.

package sim

import (
	"fmt"
	"strings"
)

// ReadyQueue is a FIFO of process ids waiting to be dispatched.
// Not safe for concurrent use; the scheduler guards it with its mutex.
type ReadyQueue struct {
	queue []int
}

// Enqueue adds a pid to the back of the ready queue.
func (rq *ReadyQueue) Enqueue(pid int) {
	rq.queue = append(rq.queue, pid)
}

func (rq *ReadyQueue) String() string {
	var sb strings.Builder
	sb.WriteString("[")
	for i, val := range rq.queue {
		sb.WriteString(fmt.Sprint(val))
		if i < len(rq.queue)-1 {
			sb.WriteString(" ")
		}
	}
	sb.WriteString("]")
	return sb.String()
}

// Len returns the number of queued pids.
func (rq *ReadyQueue) Len() int {
	return len(rq.queue)
}

// Items returns a copy of the queue contents in dispatch order.
func (rq *ReadyQueue) Items() []int {
	return append([]int(nil), rq.queue...)
}

// Dequeue removes the pid at the front of the queue.
// Returns false if the queue is empty.
func (rq *ReadyQueue) Dequeue() (int, bool) {
	if len(rq.queue) == 0 {
		return 0, false
	}
	pid := rq.queue[0]
	rq.queue = rq.queue[1:]
	return pid, true
}
