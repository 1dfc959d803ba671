package pool

// reorder holds out-of-order results until every lower index has been
// released.
type reorder[T any] struct {
	next    int
	pending map[int]T
}

func newReorder[T any]() *reorder[T] {
	return &reorder[T]{pending: make(map[int]T)}
}

func (r *reorder[T]) add(i int, v T) {
	r.pending[i] = v
}

// drain passes every contiguous ready value, starting at the next expected
// index, to fn.
func (r *reorder[T]) drain(fn func(int, T) error) error {
	for {
		v, ok := r.pending[r.next]
		if !ok {
			return nil
		}
		delete(r.pending, r.next)
		if err := fn(r.next, v); err != nil {
			return err
		}
		r.next++
	}
}

// buffered reports how many values wait for a lower index.
func (r *reorder[T]) buffered() int {
	return len(r.pending)
}
