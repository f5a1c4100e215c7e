// Package reconcile reduces raw holdings observations to one value per
// (security, holder, quarter) and resolves competing sources for a cell.
package reconcile

import (
	"cmp"
	"time"
)

// Reading is what the reducer compares when two records share a key.
// Primary is the value the stage cares about; Secondary breaks ties between
// readings struck on the same date with the same primary value.
type Reading struct {
	At        time.Time
	Primary   *float64
	Secondary *float64
}

// compareNullable orders nil below any value.
func compareNullable(a, b *float64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return cmp.Compare(*a, *b)
}

// beats reports whether r should replace o for the same key: a later date
// wins, then a larger primary value, then a larger secondary value. Equal
// readings keep the record seen first.
func (r Reading) beats(o Reading) bool {
	if !r.At.Equal(o.At) {
		return r.At.After(o.At)
	}
	if c := compareNullable(r.Primary, o.Primary); c != 0 {
		return c > 0
	}
	return compareNullable(r.Secondary, o.Secondary) > 0
}

// Latest keeps the most recent record per key. The result is a new map; the
// input slice is not modified.
func Latest[K comparable, T any](items []T, key func(T) K, read func(T) Reading) map[K]T {
	out := make(map[K]T, len(items))
	seen := make(map[K]Reading, len(items))
	for _, it := range items {
		k := key(it)
		r := read(it)
		if prev, ok := seen[k]; ok && !r.beats(prev) {
			continue
		}
		out[k] = it
		seen[k] = r
	}
	return out
}

// Merge folds b into a copy of a, keeping the record that wins under the
// same rule as Latest. Records of a win ties, so Merge(Latest(x), Latest(y))
// equals Latest(x ++ y).
func Merge[K comparable, T any](a, b map[K]T, read func(T) Reading) map[K]T {
	out := make(map[K]T, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		if prev, ok := out[k]; ok && !read(v).beats(read(prev)) {
			continue
		}
		out[k] = v
	}
	return out
}
