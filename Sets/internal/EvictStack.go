package internal

const depth = 1 << 2

// EvictStack remembers the last few pushed nodes; older entries are silently evicted. A zero EvictStack is empty and ready to use.
type EvictStack[N any] struct {
	vs         [depth]*N
	head, tail byte
}

func (es *EvictStack[N]) Push(v *N) {
	es.vs[es.head&(depth-1)] = v
	es.head++
	if es.head-es.tail > depth {
		es.tail++
	}
}

// Pop returns the most recently pushed node that has not been evicted, or nil.
func (es *EvictStack[N]) Pop() *N {
	if es.tail == es.head {
		return nil
	}
	es.head--
	return es.vs[es.head&(depth-1)]
}

func (es *EvictStack[N]) Empty() bool {
	return es.head == es.tail
}

func (es *EvictStack[N]) len() int {
	return int(es.head - es.tail)
}
