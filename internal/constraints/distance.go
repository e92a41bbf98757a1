package constraints

import "math"

// MaxDistance disqualifies a candidate.
const MaxDistance uint32 = math.MaxUint32

// belowIdealBias ranks values under the ideal after every value above it,
// so larger native modes that can be downscaled win.
const belowIdealBias = 10000

func relativeDistance[T Number](n, ideal T) uint32 {
	a, b := float64(n), float64(ideal)
	return uint32(math.Abs(a-b) * 1000 / max(math.Abs(a), math.Abs(b)))
}

// FitnessDistance scores n against r: 0 is a perfect match, MaxDistance is
// out of range, anything else is a relative distance in 0..1000.
func FitnessDistance[T Number](n T, r Range[T]) uint32 {
	if n < r.Min || n > r.Max {
		return MaxDistance
	}
	if !r.HasIdeal || n == r.Ideal {
		return 0
	}
	return relativeDistance(n, r.Ideal)
}

// FeasibilityDistance is FitnessDistance with only the lower bound enforced.
// Values below the ideal score after all values above it.
func FeasibilityDistance[T Number](n T, r Range[T]) uint32 {
	if n < r.Min {
		return MaxDistance
	}
	if !r.HasIdeal || n == r.Ideal {
		return 0
	}
	if n > r.Ideal {
		return relativeDistance(n, r.Ideal)
	}
	return belowIdealBias + relativeDistance(n, r.Ideal)
}

// BoolFitnessDistance scores b as 0 or 1.
func BoolFitnessDistance(b bool, r BoolRange) uint32 {
	if b2i(b) < b2i(r.Min) || b2i(b) > b2i(r.Max) {
		return MaxDistance
	}
	if !r.HasIdeal || b == r.Ideal {
		return 0
	}
	return 1000
}

// StringFitnessDistance scores an optional string value. An absent value
// matches neither set.
func StringFitnessDistance(v string, present bool, r StringRange) uint32 {
	if len(r.Exact) > 0 && (!present || !r.HasExact(v)) {
		return MaxDistance
	}
	if len(r.Ideal) > 0 && (!present || !r.HasIdeal(v)) {
		return 1000
	}
	return 0
}

// SumDistance adds distances, saturating at MaxDistance.
func SumDistance(parts ...uint32) uint32 {
	var sum uint64
	for _, p := range parts {
		sum += uint64(p)
	}
	return uint32(min(sum, uint64(MaxDistance)))
}
