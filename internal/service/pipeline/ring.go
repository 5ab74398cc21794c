package pipeline

// ring is a fixed-capacity FIFO that overwrites its oldest element on overflow.
type ring[T any] struct {
	items []T
	start int
	size  int
}

func newRing[T any](capacity int) *ring[T] {
	return &ring[T]{items: make([]T, capacity)}
}

func (r *ring[T]) push(v T) {
	capacity := len(r.items)
	if r.size < capacity {
		r.items[(r.start+r.size)%capacity] = v
		r.size++
		return
	}
	r.items[r.start] = v
	r.start = (r.start + 1) % capacity
}

func (r *ring[T]) len() int {
	return r.size
}

// each visits the held elements oldest first.
func (r *ring[T]) each(fn func(T)) {
	for i := 0; i < r.size; i++ {
		fn(r.items[(r.start+i)%len(r.items)])
	}
}
