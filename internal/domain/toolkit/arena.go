package toolkit

import "sync"

// Arena owns every toolkit handle created while processing one unit of work
// (normally one input structure) and releases them together.  Use it with
// defer so handles are freed on every exit path:
//
//	arena := toolkit.NewArena(tk)
//	defer arena.Release()
//	mol, err := arena.Parse(text)
type Arena[M any] struct {
	tk      Toolkit[M]
	mu      sync.Mutex
	handles []M
}

// NewArena returns an empty arena bound to tk.
func NewArena[M any](tk Toolkit[M]) *Arena[M] {
	return &Arena[M]{tk: tk}
}

// Track registers m with the arena and returns it.
func (a *Arena[M]) Track(m M) M {
	a.mu.Lock()
	a.handles = append(a.handles, m)
	a.mu.Unlock()
	return m
}

// Len reports how many handles are currently owned.
func (a *Arena[M]) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.handles)
}

// Release frees all owned handles in reverse creation order.  The arena can
// be reused afterwards.
func (a *Arena[M]) Release() {
	a.mu.Lock()
	hs := a.handles
	a.handles = nil
	a.mu.Unlock()
	for i := len(hs) - 1; i >= 0; i-- {
		a.tk.Release(hs[i])
	}
}

// Parse parses text and tracks the result.
func (a *Arena[M]) Parse(text string) (M, error) {
	m, err := a.tk.Parse(text)
	if err != nil {
		var zero M
		return zero, err
	}
	return a.Track(m), nil
}

// FragmentOnBonds cuts m and tracks the result.
func (a *Arena[M]) FragmentOnBonds(m M, bonds []int) (M, error) {
	out, err := a.tk.FragmentOnBonds(m, bonds)
	if err != nil {
		var zero M
		return zero, err
	}
	return a.Track(out), nil
}

// Components splits m and tracks every component.
func (a *Arena[M]) Components(m M) ([]M, error) {
	comps, err := a.tk.Components(m)
	if err != nil {
		return nil, err
	}
	for _, c := range comps {
		a.Track(c)
	}
	return comps, nil
}

// SetAttachmentLabels relabels a copy of m and tracks it.
func (a *Arena[M]) SetAttachmentLabels(m M, labels map[int]int) (M, error) {
	out, err := a.tk.SetAttachmentLabels(m, labels)
	if err != nil {
		var zero M
		return zero, err
	}
	return a.Track(out), nil
}

// AddHydrogens adds explicit hydrogens to a copy of m and tracks it.
func (a *Arena[M]) AddHydrogens(m M) (M, error) {
	out, err := a.tk.AddHydrogens(m)
	if err != nil {
		var zero M
		return zero, err
	}
	return a.Track(out), nil
}

// Toolkit returns the bound toolkit.
func (a *Arena[M]) Toolkit() Toolkit[M] { return a.tk }
