package fragment

// Result maps Keys to the Values seen with them.  Keys and Values keep
// their first-insertion order so that identical input order gives identical
// output order.
type Result struct {
	keys []Key
	sets map[string]*ValueSet
}

// NewResult returns an empty Result.
func NewResult() *Result {
	return &Result{sets: make(map[string]*ValueSet)}
}

// Add records v under k.  It reports whether v was new for k.
func (r *Result) Add(k Key, v Value) bool {
	set, ok := r.sets[k.String()]
	if !ok {
		set = NewValueSet()
		r.sets[k.String()] = set
		r.keys = append(r.keys, k)
	}
	return set.Add(v)
}

// Merge unions o into r: Keys in o's order after r's, Values per Key in
// o's order after r's.
func (r *Result) Merge(o *Result) {
	if o == nil {
		return
	}
	for _, k := range o.keys {
		for _, v := range o.sets[k.String()].items {
			r.Add(k, v)
		}
	}
}

// Keys returns the Keys in insertion order.
func (r *Result) Keys() []Key { return append([]Key(nil), r.keys...) }

// Values returns the Values recorded under k, nil if k is unknown.
func (r *Result) Values(k Key) []Value {
	set, ok := r.sets[k.String()]
	if !ok {
		return nil
	}
	return set.Values()
}

// Len returns the number of Keys.
func (r *Result) Len() int { return len(r.keys) }

// ValueCount returns the number of Key/Value entries.
func (r *Result) ValueCount() int {
	n := 0
	for _, s := range r.sets {
		n += s.Len()
	}
	return n
}

// Each calls fn for every Key in order.
func (r *Result) Each(fn func(k Key, values []Value)) {
	for _, k := range r.keys {
		fn(k, r.sets[k.String()].items)
	}
}
