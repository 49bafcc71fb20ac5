package fragment

// LeafRecord is the serialized form of a Leaf.
type LeafRecord struct {
	Canonical string `json:"canonical"`
	Index     int    `json:"index"`
	Heavy     int    `json:"heavy"`
}

// Record is one Key/Value entry in a form that can be cached or shipped
// without a toolkit.  The Value's ID is not stored.
type Record struct {
	Key              []LeafRecord `json:"key"`
	Value            string       `json:"value"`
	ValueAttachments int          `json:"value_attachments"`
	ValueHeavy       int          `json:"value_heavy"`
}

// Records flattens r in iteration order.
func (r *Result) Records() []Record {
	out := make([]Record, 0, r.ValueCount())
	r.Each(func(k Key, values []Value) {
		leaves := make([]LeafRecord, len(k.leaves))
		for i, l := range k.leaves {
			leaves[i] = LeafRecord{Canonical: l.canonical, Index: l.index, Heavy: l.heavy}
		}
		for _, v := range values {
			out = append(out, Record{
				Key:              leaves,
				Value:            v.canonical,
				ValueAttachments: v.attachments,
				ValueHeavy:       v.heavy,
			})
		}
	})
	return out
}

// ResultFromRecords rebuilds a Result, stamping every Value with id.
func ResultFromRecords(records []Record, id string, significantID bool) *Result {
	r := NewResult()
	for _, rec := range records {
		leaves := make([]Leaf, len(rec.Key))
		for i, l := range rec.Key {
			leaves[i] = Leaf{canonical: l.Canonical, index: l.Index, heavy: l.Heavy}
		}
		r.Add(NewKey(leaves), NewValue(rec.Value, id, significantID, rec.ValueAttachments, rec.ValueHeavy))
	}
	return r
}
