// Package arena provides a generational slot arena.
//
// Slots are addressed by an Index that pairs a slot number with a generation
// counter. Removing a value bumps the slot's generation, so any Index held
// elsewhere stops resolving instead of silently pointing at a reused slot.
// This is what lets tree-shaped structures keep parent/child links as plain
// values rather than pointers that could dangle after restructuring.
package arena

// Index addresses one live value in an Arena. The zero Index is never valid.
type Index struct {
	slot uint32
	gen  uint32
}

// IsZero reports whether ix is the zero (never-valid) Index.
func (ix Index) IsZero() bool {
	return ix.gen == 0
}

type slot[T any] struct {
	value T
	gen   uint32
	live  bool
}

// Arena is a growable slot table with generation-checked indices.
// The zero Arena is empty and ready to use. An Arena is not safe for
// concurrent mutation.
type Arena[T any] struct {
	slots []slot[T]
	free  []uint32
	count int
}

// Insert stores v and returns its Index.
func (a *Arena[T]) Insert(v T) Index {
	a.count++
	if n := len(a.free); n > 0 {
		i := a.free[n-1]
		a.free = a.free[:n-1]
		s := &a.slots[i]
		s.value = v
		s.gen++
		s.live = true
		return Index{slot: i, gen: s.gen}
	}
	a.slots = append(a.slots, slot[T]{value: v, gen: 1, live: true})
	return Index{slot: uint32(len(a.slots) - 1), gen: 1}
}

// Get returns a pointer to the value at ix, or false if ix is stale or was
// never issued by this arena.
func (a *Arena[T]) Get(ix Index) (*T, bool) {
	if ix.IsZero() || int(ix.slot) >= len(a.slots) {
		return nil, false
	}
	s := &a.slots[ix.slot]
	if !s.live || s.gen != ix.gen {
		return nil, false
	}
	return &s.value, true
}

// Remove frees the slot at ix. Removing an already-stale Index is a no-op.
// The slot's generation is bumped so ix (and any copy of it) stops resolving.
func (a *Arena[T]) Remove(ix Index) bool {
	if ix.IsZero() || int(ix.slot) >= len(a.slots) {
		return false
	}
	s := &a.slots[ix.slot]
	if !s.live || s.gen != ix.gen {
		return false
	}
	var zero T
	s.value = zero
	s.live = false
	s.gen++
	a.free = append(a.free, ix.slot)
	a.count--
	return true
}

// Len returns the number of live values.
func (a *Arena[T]) Len() int {
	return a.count
}

// Range calls fn for every live value until fn returns false.
// fn must not insert or remove during iteration.
func (a *Arena[T]) Range(fn func(Index, *T) bool) {
	for i := range a.slots {
		s := &a.slots[i]
		if !s.live {
			continue
		}
		if !fn(Index{slot: uint32(i), gen: s.gen}, &s.value) {
			return
		}
	}
}
