package fragment

import (
	"github.com/turtacn/KeyIP-MMP/internal/domain/toolkit"
	"github.com/turtacn/KeyIP-MMP/pkg/errors"
)

// BridgingValue is the Value recorded when a single cut disconnects the
// structure and connectivity tracking is on: two attachments, no atoms.
const BridgingValue = "[1*][2*]"

// Value is the changing part of a fragmentation.
type Value struct {
	canonical     string
	id            string
	significantID bool
	attachments   int
	heavy         int
}

// NewValue builds a Value from an already canonical form.
func NewValue(canonical, id string, significantID bool, attachments, heavy int) Value {
	return Value{
		canonical:     canonical,
		id:            id,
		significantID: significantID,
		attachments:   attachments,
		heavy:         heavy,
	}
}

// ParseValue reads and canonicalizes a changing fragment.
func ParseValue[M any](tk toolkit.Toolkit[M], s, id string, significantID bool) (Value, error) {
	m, err := tk.Parse(s)
	if err != nil {
		return Value{}, err
	}
	defer tk.Release(m)
	canonical, err := tk.Canonicalize(m)
	if err != nil {
		return Value{}, errors.Wrap(err, errors.CodeToolkit, "canonicalize value")
	}
	return NewValue(canonical, id, significantID, len(tk.AttachmentPoints(m)), tk.HeavyAtomCount(m)), nil
}

// WithID returns a copy of v carrying id.
func (v Value) WithID(id string, significant bool) Value {
	v.id = id
	v.significantID = significant
	return v
}

// Canonical returns the canonical form with [n*] attachment labels.
func (v Value) Canonical() string { return v.canonical }

// ID returns the source identifier, possibly empty.
func (v Value) ID() string { return v.id }

// SignificantID reports whether the ID takes part in equality.
func (v Value) SignificantID() bool { return v.significantID }

// AttachmentCount returns the number of attachment points.
func (v Value) AttachmentCount() int { return v.attachments }

// HeavyAtoms returns the changing heavy-atom count.
func (v Value) HeavyAtoms() int { return v.heavy }

// IsBridging reports whether v is the atomless two-attachment value.
func (v Value) IsBridging() bool { return v.heavy == 0 && v.attachments == 2 }

// identity is the equality key of v.
func (v Value) identity() string {
	if v.significantID {
		return v.canonical + "\x00" + v.id
	}
	return v.canonical
}

// Equal compares canonical forms, and IDs when significant on either side.
func (v Value) Equal(o Value) bool {
	if v.canonical != o.canonical {
		return false
	}
	if v.significantID || o.significantID {
		return v.id == o.id
	}
	return true
}

// Less orders by canonical form, then by ID when significant.
func (v Value) Less(o Value) bool {
	if v.canonical != o.canonical {
		return v.canonical < o.canonical
	}
	if v.significantID || o.significantID {
		return v.id < o.id
	}
	return false
}

func (v Value) String() string { return v.canonical }
