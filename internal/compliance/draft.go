package compliance

// Draft holds uncommitted edits over a committed map. Reads see the pending
// value when one exists and fall back to the committed value otherwise.
type Draft[K comparable, V comparable] struct {
	base    map[K]V
	pending map[K]V
}

// NewDraft wraps base. The map is copied, so later changes to base do not
// leak into the draft.
func NewDraft[K comparable, V comparable](base map[K]V) *Draft[K, V] {
	cp := make(map[K]V, len(base))
	for k, v := range base {
		cp[k] = v
	}
	return &Draft[K, V]{base: cp, pending: make(map[K]V)}
}

// Get returns the effective value for k and whether any value exists.
func (d *Draft[K, V]) Get(k K) (V, bool) {
	if v, ok := d.pending[k]; ok {
		return v, true
	}
	v, ok := d.base[k]
	return v, ok
}

// Set records a pending edit.
func (d *Draft[K, V]) Set(k K, v V) {
	d.pending[k] = v
}

// Dirty reports whether any edit is pending.
func (d *Draft[K, V]) Dirty() bool {
	return len(d.pending) > 0
}

// Pending returns a copy of the pending overlay.
func (d *Draft[K, V]) Pending() map[K]V {
	cp := make(map[K]V, len(d.pending))
	for k, v := range d.pending {
		cp[k] = v
	}
	return cp
}

// Changes returns the pending entries whose value differs from the
// committed one. A key missing from the committed map compares against the
// zero value.
func (d *Draft[K, V]) Changes() map[K]V {
	out := make(map[K]V)
	for k, v := range d.pending {
		if d.base[k] != v {
			out[k] = v
		}
	}
	return out
}

// Committed returns a copy of the committed map.
func (d *Draft[K, V]) Committed() map[K]V {
	cp := make(map[K]V, len(d.base))
	for k, v := range d.base {
		cp[k] = v
	}
	return cp
}

// Discard drops every pending edit.
func (d *Draft[K, V]) Discard() {
	clear(d.pending)
}

// Commit merges pending edits into the committed map, clears the overlay,
// and returns a copy of the new committed state.
func (d *Draft[K, V]) Commit() map[K]V {
	for k, v := range d.pending {
		d.base[k] = v
	}
	clear(d.pending)
	return d.Committed()
}
