package Sets

// Set is a concurrent set of elements E identified by keys K.
type Set[E, K any] interface {
	// Insert adds e unless its key is present. The error reports that e couldn't be stored at all.
	Insert(E) (bool, error)
	Find(K) bool
	Erase(K) bool
	Size() int
	Empty() bool
	// Range calls f on the elements until f returns false; the pointers are only valid during the call.
	Range(f func(*E) bool)
	Clear()
}
