package query

import (
	"container/heap"
	"context"
)

// mergeEntry is one source head inside the merge heap.
type mergeEntry struct {
	it  item
	src int
}

type mergeHeap []mergeEntry

func (h mergeHeap) Len() int { return len(h) }
func (h mergeHeap) Less(i, j int) bool {
	return h[i].it.msg.Before(h[j].it.msg)
}
func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x any)   { *h = append(*h, x.(mergeEntry)) }
func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// merge performs a streaming k-way merge of independently sorted physical
// scan outputs into the result stream. Sources must each be ascending by
// (timestamp, sequence); nothing is materialized beyond one head per
// source. The first in-band source error aborts the merge.
func (s *Streamer) merge(ctx context.Context, sources []<-chan item, out *ResultStream) error {
	h := make(mergeHeap, 0, len(sources))

	pull := func(src int) (item, bool, error) {
		select {
		case it, ok := <-sources[src]:
			if !ok {
				return item{}, false, nil
			}
			if it.err != nil {
				return item{}, false, it.err
			}
			return it, true, nil
		case <-ctx.Done():
			return item{}, false, ctx.Err()
		}
	}

	for i := range sources {
		it, ok, err := pull(i)
		if err != nil {
			return err
		}
		if ok {
			h = append(h, mergeEntry{it: it, src: i})
		}
	}
	heap.Init(&h)

	for h.Len() > 0 {
		top := h[0]
		if !out.emit(top.it.msg) {
			return ctx.Err()
		}
		s.notifyRead(top.it.msg)
		it, ok, err := pull(top.src)
		if err != nil {
			return err
		}
		if ok {
			h[0] = mergeEntry{it: it, src: top.src}
			heap.Fix(&h, 0)
		} else {
			heap.Pop(&h)
		}
	}
	return nil
}
