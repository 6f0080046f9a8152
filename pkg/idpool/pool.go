// Package idpool implements a lowest-free integer allocator, the building
// block behind layer, buffer, and stream handle indices.
package idpool

import (
	"container/heap"
	"sync"
)

// Pool hands out the smallest non-negative integer not currently
// allocated. Freed integers are reused before the pool grows past its
// high watermark. A Pool is safe for concurrent use.
type Pool struct {
	mu    sync.Mutex
	free  minHeap
	watermark int
}

// New returns an empty pool.
func New() *Pool {
	return &Pool{}
}

// Next returns the smallest integer not currently allocated.
func (p *Pool) Next() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.free) > 0 {
		return heap.Pop(&p.free).(int)
	}

	n := p.watermark
	p.watermark++
	return n
}

// Free returns i to the pool, making it eligible for reuse by a future
// Next call. Freeing an integer that was never allocated, or is already
// free, is a contract violation; the caller is responsible for not doing
// so (spec §4.1).
func (p *Pool) Free(i int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	heap.Push(&p.free, i)
}

// minHeap is a container/heap min-heap of freed integers, so Next always
// reissues the smallest one first.
type minHeap []int

func (h minHeap) Len() int            { return len(h) }
func (h minHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(int)) }
func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}
