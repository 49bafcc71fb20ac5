package fragment

// ValueSet is an insertion-ordered set of Values.
type ValueSet struct {
	items []Value
	index map[string]int
}

// NewValueSet returns an empty set.
func NewValueSet() *ValueSet {
	return &ValueSet{index: make(map[string]int)}
}

// Add inserts v unless an equal Value is present.  It reports whether v was
// added.
func (s *ValueSet) Add(v Value) bool {
	id := v.identity()
	if _, ok := s.index[id]; ok {
		return false
	}
	s.index[id] = len(s.items)
	s.items = append(s.items, v)
	return true
}

// Contains reports whether an equal Value is present.
func (s *ValueSet) Contains(v Value) bool {
	_, ok := s.index[v.identity()]
	return ok
}

// Len returns the number of Values.
func (s *ValueSet) Len() int { return len(s.items) }

// Values returns the Values in insertion order.
func (s *ValueSet) Values() []Value { return append([]Value(nil), s.items...) }
