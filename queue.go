package runloop

// queue is a growable ring-buffer FIFO.
type queue[E any] struct {
	buf  []E
	head int
	n    int
}

func (q *queue[E]) Empty() bool {
	return q.n == 0
}

func (q *queue[E]) Push(v E) {
	if q.n == len(q.buf) {
		q.grow()
	}
	q.buf[(q.head+q.n)%len(q.buf)] = v
	q.n++
}

func (q *queue[E]) Pop() (v E) {
	q.buf[q.head], v = v, q.buf[q.head]
	q.head = (q.head + 1) % len(q.buf)
	q.n--
	if q.n == 0 {
		q.head = 0
	}
	return v
}

func (q *queue[E]) grow() {
	size := len(q.buf) * 2
	if size == 0 {
		size = 8
	}

	buf := make([]E, size)
	for i := range q.n {
		buf[i] = q.buf[(q.head+i)%len(q.buf)]
	}

	q.buf, q.head = buf, 0
}
