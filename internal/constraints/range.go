package constraints

import (
	"math"
	"slices"
)

// Number is the scalar domain of a numeric Range.
type Number interface {
	~int32 | ~int64 | ~float64
}

// Range is a min/max/ideal constraint over a numeric domain.
// Ideal is not guaranteed to lie within [Min, Max]; use Get to read it clamped.
type Range[T Number] struct {
	Name     string
	Min      T
	Max      T
	Ideal    T
	HasIdeal bool

	mergeDenominator uint32
}

func newLongRange(name string) Range[int32] {
	return Range[int32]{Name: name, Min: math.MinInt32 + 1, Max: math.MaxInt32}
}

func newLongLongRange(name string) Range[int64] {
	return Range[int64]{Name: name, Min: math.MinInt64 + 1, Max: math.MaxInt64}
}

func newDoubleRange(name string) Range[float64] {
	return Range[float64]{Name: name, Min: math.Inf(-1), Max: math.Inf(1)}
}

// Intersects reports whether the two ranges overlap.
func (r Range[T]) Intersects(o Range[T]) bool {
	return r.Max >= o.Min && r.Min <= o.Max
}

// Intersect narrows r toward o. When the ranges do not overlap the upper bound
// is widened instead, so the result is a best-effort span rather than empty.
func (r *Range[T]) Intersect(o Range[T]) {
	r.Min = max(r.Min, o.Min)
	if r.Intersects(o) {
		r.Max = min(r.Max, o.Max)
	} else {
		r.Max = max(r.Max, o.Max)
	}
}

// continuous ranges merge even when disjoint; the source scales or drops frames.
func (r *Range[T]) continuous() bool {
	return r.Name == "width" || r.Name == "height" || r.Name == "frameRate"
}

// Merge folds o into r, accumulating ideals for a later FinalizeMerge.
// Returns false, leaving r untouched, when the ranges cannot be reconciled.
func (r *Range[T]) Merge(o Range[T]) bool {
	if !r.continuous() && !r.Intersects(o) {
		return false
	}
	r.Intersect(o)
	if o.HasIdeal {
		// Clamped values are averaged so outlying ideals do not skew the result.
		if !r.HasIdeal {
			r.Ideal = o.Get(0)
			r.HasIdeal = true
			r.mergeDenominator = 1
		} else {
			if r.mergeDenominator == 0 {
				r.Ideal = r.Get(0)
				r.mergeDenominator = 1
			}
			r.Ideal += o.Get(0)
			r.mergeDenominator++
		}
	}
	return true
}

// FinalizeMerge divides the accumulated ideal. Call exactly once after all merges.
func (r *Range[T]) FinalizeMerge() {
	if r.mergeDenominator > 0 {
		r.Ideal /= T(r.mergeDenominator)
		r.mergeDenominator = 0
	}
}

// Clamp bounds x to [Min, Max].
func (r Range[T]) Clamp(x T) T {
	return max(r.Min, min(r.Max, x))
}

// Get returns the ideal, or def when there is none, clamped to the range.
func (r Range[T]) Get(def T) T {
	if r.HasIdeal {
		return r.Clamp(r.Ideal)
	}
	return r.Clamp(def)
}

func (r *Range[T]) name() string { return r.Name }

func (r *Range[T]) mergeMember(o member) bool {
	other, ok := o.(*Range[T])
	return ok && r.Merge(*other)
}

func (r *Range[T]) finalizeMember() { r.FinalizeMerge() }

// BoolRange is a Range over booleans, ordered false < true.
// Merging votes on the ideal instead of averaging it.
type BoolRange struct {
	Name     string
	Min      bool
	Max      bool
	Ideal    bool
	HasIdeal bool

	mergeCounter     uint32
	mergeDenominator uint32
}

func newBoolRange(name string) BoolRange {
	return BoolRange{Name: name, Min: false, Max: true}
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Intersects reports whether the two ranges overlap.
func (r BoolRange) Intersects(o BoolRange) bool {
	return b2i(r.Max) >= b2i(o.Min) && b2i(r.Min) <= b2i(o.Max)
}

// Intersect narrows r toward o, widening the upper bound when disjoint.
func (r *BoolRange) Intersect(o BoolRange) {
	r.Min = r.Min || o.Min
	if r.Intersects(o) {
		r.Max = r.Max && o.Max
	} else {
		r.Max = r.Max || o.Max
	}
}

// Merge folds o into r, counting ideal votes for FinalizeMerge.
func (r *BoolRange) Merge(o BoolRange) bool {
	if !r.Intersects(o) {
		return false
	}
	r.Intersect(o)
	if o.HasIdeal {
		if !r.HasIdeal {
			r.Ideal = o.Get(false)
			r.HasIdeal = true
			r.mergeCounter = uint32(b2i(r.Ideal))
			r.mergeDenominator = 1
		} else {
			if r.mergeDenominator == 0 {
				r.mergeCounter = uint32(b2i(r.Get(false)))
				r.mergeDenominator = 1
			}
			r.mergeCounter += uint32(b2i(o.Get(false)))
			r.mergeDenominator++
		}
	}
	return true
}

// FinalizeMerge resolves the vote: true only when every merged ideal was true.
func (r *BoolRange) FinalizeMerge() {
	if r.mergeDenominator > 0 {
		r.Ideal = r.mergeCounter/r.mergeDenominator != 0
		r.mergeCounter = 0
		r.mergeDenominator = 0
	}
}

// Clamp bounds x to [Min, Max].
func (r BoolRange) Clamp(x bool) bool {
	if !x && r.Min {
		return true
	}
	if x && !r.Max {
		return false
	}
	return x
}

// Get returns the ideal, or def when there is none, clamped to the range.
func (r BoolRange) Get(def bool) bool {
	if r.HasIdeal {
		return r.Clamp(r.Ideal)
	}
	return r.Clamp(def)
}

func (r *BoolRange) name() string { return r.Name }

func (r *BoolRange) mergeMember(o member) bool {
	other, ok := o.(*BoolRange)
	return ok && r.Merge(*other)
}

func (r *BoolRange) finalizeMember() { r.FinalizeMerge() }

// StringRange constrains a string to an exact set and prefers an ideal set.
// Both slices are sorted and deduplicated; they are replaced, never mutated in place.
type StringRange struct {
	Name  string
	Exact []string
	Ideal []string
}

func newStringRange(name string) StringRange {
	return StringRange{Name: name}
}

func stringSet(values ...string) []string {
	if len(values) == 0 {
		return nil
	}
	out := slices.Clone(values)
	slices.Sort(out)
	return slices.Compact(out)
}

func intersectSets(a, b []string) []string {
	var out []string
	for _, s := range a {
		if _, found := slices.BinarySearch(b, s); found {
			out = append(out, s)
		}
	}
	return out
}

// HasExact reports whether v is in the exact set.
func (r StringRange) HasExact(v string) bool {
	_, found := slices.BinarySearch(r.Exact, v)
	return found
}

// HasIdeal reports whether v is in the ideal set.
func (r StringRange) HasIdeal(v string) bool {
	_, found := slices.BinarySearch(r.Ideal, v)
	return found
}

// Intersects reports whether any value could satisfy both exact sets.
func (r StringRange) Intersects(o StringRange) bool {
	if len(r.Exact) == 0 || len(o.Exact) == 0 {
		return true
	}
	return len(intersectSets(r.Exact, o.Exact)) > 0
}

// Intersect narrows the exact set of r to values also exact in o.
func (r *StringRange) Intersect(o StringRange) {
	if len(o.Exact) == 0 {
		return
	}
	if len(r.Exact) == 0 {
		r.Exact = slices.Clone(o.Exact)
		return
	}
	r.Exact = intersectSets(r.Exact, o.Exact)
}

// Merge intersects exact sets and unions ideal sets.
func (r *StringRange) Merge(o StringRange) bool {
	if !r.Intersects(o) {
		return false
	}
	r.Intersect(o)
	r.Ideal = stringSet(append(slices.Clone(r.Ideal), o.Ideal...)...)
	return true
}

// FinalizeMerge is a no-op; string ideals are unioned as they merge.
func (r *StringRange) FinalizeMerge() {}

func (r *StringRange) name() string { return r.Name }

func (r *StringRange) mergeMember(o member) bool {
	other, ok := o.(*StringRange)
	return ok && r.Merge(*other)
}

func (r *StringRange) finalizeMember() {}

// member is a named field of a constraint set that takes part in merging.
type member interface {
	name() string
	mergeMember(o member) bool
	finalizeMember()
}
