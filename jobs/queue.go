package jobs

import "container/heap"

type queued struct {
	job      *Job
	priority int
	seq      uint64
	index    int
}

// jobQueue orders jobs by descending priority, then by arrival.
type jobQueue []*queued

func (q jobQueue) Len() int { return len(q) }

func (q jobQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority > q[j].priority
	}
	return q[i].seq < q[j].seq
}

func (q jobQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *jobQueue) Push(x interface{}) {
	item := x.(*queued)
	item.index = len(*q)
	*q = append(*q, item)
}

func (q *jobQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*q = old[:n-1]
	return item
}

func (q *jobQueue) push(item *queued) {
	heap.Push(q, item)
}

func (q *jobQueue) peek() *queued {
	if len(*q) == 0 {
		return nil
	}
	return (*q)[0]
}

func (q *jobQueue) pop() *queued {
	if len(*q) == 0 {
		return nil
	}
	return heap.Pop(q).(*queued)
}

func (q *jobQueue) remove(job *Job) bool {
	for _, item := range *q {
		if item.job == job {
			heap.Remove(q, item.index)
			return true
		}
	}
	return false
}
