package fragment

// FilterOptions bounds the Values kept by FilterFragments.  A nil field
// disables that bound.
type FilterOptions struct {
	MaxChangingHeavyAtoms *int
	MinUnchangedRatio     *float64
}

// Active reports whether any bound is set.
func (o FilterOptions) Active() bool {
	return o.MaxChangingHeavyAtoms != nil || o.MinUnchangedRatio != nil
}

// Keep reports whether v under k passes the bounds.  A Value with exactly
// MaxChangingHeavyAtoms heavy atoms is kept.
func (o FilterOptions) Keep(k Key, v Value) bool {
	if o.MaxChangingHeavyAtoms != nil && v.HeavyAtoms() > *o.MaxChangingHeavyAtoms {
		return false
	}
	if o.MinUnchangedRatio != nil {
		return UnchangedRatio(k, v) >= *o.MinUnchangedRatio
	}
	return true
}

// UnchangedRatio is keyHeavy / (keyHeavy + valueHeavy), 0 when both are 0.
func UnchangedRatio(k Key, v Value) float64 {
	kh := k.HeavyAtoms()
	total := kh + v.HeavyAtoms()
	if total == 0 {
		return 0
	}
	return float64(kh) / float64(total)
}

// FilterFragments returns a new Result holding the entries of r that pass
// opts.  r is not modified; Keys left without Values are dropped.
func FilterFragments(r *Result, opts FilterOptions) *Result {
	out := NewResult()
	r.Each(func(k Key, values []Value) {
		for _, v := range values {
			if opts.Keep(k, v) {
				out.Add(k, v)
			}
		}
	})
	return out
}
