package datacache

import "iter"

// Chain holds every descriptor that shared one ItemKey, in source order.
// Linked dictionaries map each key to a non-empty Chain.
type Chain[D any] []D

// Head returns the first descriptor with the chain's key.
func (c Chain[D]) Head() (D, bool) {
	if len(c) == 0 {
		var zero D
		return zero, false
	}
	return c[0], true
}

func (c Chain[D]) Len() int { return len(c) }

// All yields the chain's descriptors in order.
func (c Chain[D]) All() iter.Seq[D] {
	return func(yield func(D) bool) {
		for _, d := range c {
			if !yield(d) {
				return
			}
		}
	}
}

// link appends d to the chain stored under key, starting a new one when
// the key is new.
func link[D any](m map[string]Chain[D], key string, d D) {
	m[key] = append(m[key], d)
}
