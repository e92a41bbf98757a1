package constraints

import (
	"math"
	"testing"
)

func TestRangeIntersect(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Range[int32]
		min, max int32
	}{
		{
			name: "overlapping",
			a:    Range[int32]{Min: 0, Max: 100},
			b:    Range[int32]{Min: 50, Max: 200},
			min:  50,
			max:  100,
		},
		{
			name: "disjoint keeps combined span",
			a:    Range[int32]{Min: 0, Max: 10},
			b:    Range[int32]{Min: 20, Max: 30},
			min:  20,
			max:  30,
		},
		{
			name: "disjoint from above",
			a:    Range[int32]{Min: 20, Max: 30},
			b:    Range[int32]{Min: 0, Max: 10},
			min:  20,
			max:  30,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tt.a
			r.Intersect(tt.b)
			if r.Min != tt.min || r.Max != tt.max {
				t.Errorf("Intersect = [%d,%d], want [%d,%d]", r.Min, r.Max, tt.min, tt.max)
			}
			if r.Min > r.Max {
				t.Errorf("min %d > max %d after Intersect", r.Min, r.Max)
			}
		})
	}
}

func TestRangeMerge_ContinuousAlwaysMerges(t *testing.T) {
	a := newLongRange("width")
	a.Min, a.Max = 0, 10
	b := newLongRange("width")
	b.Min, b.Max = 20, 30
	b.Ideal, b.HasIdeal = 25, true

	if !a.Merge(b) {
		t.Fatal("width should merge even when disjoint")
	}
	a.FinalizeMerge()
	if a.Min != 20 || a.Max != 30 {
		t.Errorf("range = [%d,%d], want [20,30]", a.Min, a.Max)
	}
	if !a.HasIdeal || a.Ideal != 25 {
		t.Errorf("ideal = %d (%v), want 25", a.Ideal, a.HasIdeal)
	}
}

func TestRangeMerge_HardFieldRefusesDisjoint(t *testing.T) {
	a := newLongRange("channelCount")
	a.Min, a.Max = 1, 1
	b := newLongRange("channelCount")
	b.Min, b.Max = 2, 2

	if a.Merge(b) {
		t.Fatal("disjoint channelCount should not merge")
	}
	if a.Min != 1 || a.Max != 1 {
		t.Errorf("refused merge mutated range: [%d,%d]", a.Min, a.Max)
	}
}

func TestRangeMerge_AveragesIdeals(t *testing.T) {
	a := newLongRange("width")
	a.Ideal, a.HasIdeal = 640, true
	b := newLongRange("width")
	b.Ideal, b.HasIdeal = 1280, true
	c := newLongRange("width")

	if !a.Merge(b) || !a.Merge(c) {
		t.Fatal("merge failed")
	}
	if a.Ideal != 1920 {
		t.Errorf("ideal before finalize = %d, want running sum 1920", a.Ideal)
	}
	a.FinalizeMerge()
	if a.Ideal != 960 {
		t.Errorf("ideal = %d, want 960", a.Ideal)
	}
	a.FinalizeMerge()
	if a.Ideal != 960 {
		t.Errorf("second FinalizeMerge changed ideal to %d", a.Ideal)
	}
}

func TestBoolRangeMerge_Votes(t *testing.T) {
	tests := []struct {
		name   string
		ideals []bool
		want   bool
	}{
		{name: "unanimous true", ideals: []bool{true, true, true}, want: true},
		{name: "split vote", ideals: []bool{true, false}, want: false},
		{name: "all false", ideals: []bool{false, false}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newBoolRange("echoCancellation")
			r.Ideal, r.HasIdeal = tt.ideals[0], true
			for _, ideal := range tt.ideals[1:] {
				o := newBoolRange("echoCancellation")
				o.Ideal, o.HasIdeal = ideal, true
				if !r.Merge(o) {
					t.Fatal("merge failed")
				}
			}
			r.FinalizeMerge()
			if r.Ideal != tt.want {
				t.Errorf("ideal = %v, want %v", r.Ideal, tt.want)
			}
		})
	}
}

func TestBoolRangeMerge_Disjoint(t *testing.T) {
	a := newBoolRange("noiseSuppression")
	a.Min, a.Max = true, true
	b := newBoolRange("noiseSuppression")
	b.Min, b.Max = false, false

	if a.Merge(b) {
		t.Error("exact true and exact false should not merge")
	}
}

func TestRangeClampIdempotent(t *testing.T) {
	ranges := []Range[int32]{
		newLongRange("width"),
		{Name: "width", Min: 160, Max: 4096},
		{Name: "height", Min: 90, Max: 90},
	}
	values := []int32{math.MinInt32, -1, 0, 89, 90, 1000, 5000, math.MaxInt32}

	for _, r := range ranges {
		for _, x := range values {
			once := r.Clamp(x)
			if twice := r.Clamp(once); twice != once {
				t.Errorf("Clamp(Clamp(%d)) = %d, want %d for [%d,%d]", x, twice, once, r.Min, r.Max)
			}
			if once < r.Min || once > r.Max {
				t.Errorf("Clamp(%d) = %d outside [%d,%d]", x, once, r.Min, r.Max)
			}
		}
	}

	d := newDoubleRange("frameRate")
	d.Min, d.Max = 1, 60
	for _, x := range []float64{math.Inf(-1), 0, 30, 120, math.Inf(1)} {
		if d.Clamp(d.Clamp(x)) != d.Clamp(x) {
			t.Errorf("double clamp not idempotent for %v", x)
		}
	}
}

func TestRangeGet(t *testing.T) {
	r := Range[int32]{Name: "width", Min: 160, Max: 4096}
	if got := r.Get(100); got != 160 {
		t.Errorf("Get(100) without ideal = %d, want 160", got)
	}
	r.Ideal, r.HasIdeal = 8000, true
	if got := r.Get(100); got != 4096 {
		t.Errorf("Get with ideal 8000 = %d, want clamped 4096", got)
	}
}

func TestStringRange(t *testing.T) {
	a := StringRange{Name: "deviceId", Exact: stringSet("a", "b")}
	b := StringRange{Name: "deviceId", Exact: stringSet("b", "c"), Ideal: stringSet("x")}
	c := StringRange{Name: "deviceId", Exact: stringSet("z")}

	if !a.Intersects(b) {
		t.Error("{a,b} and {b,c} should intersect")
	}
	if a.Intersects(c) {
		t.Error("{a,b} and {z} should not intersect")
	}
	if !a.Intersects(StringRange{}) {
		t.Error("empty exact set intersects everything")
	}

	if !a.Merge(b) {
		t.Fatal("merge failed")
	}
	if len(a.Exact) != 1 || a.Exact[0] != "b" {
		t.Errorf("exact = %v, want [b]", a.Exact)
	}
	if !a.HasIdeal("x") {
		t.Errorf("ideal = %v, want x unioned in", a.Ideal)
	}
	if a.Merge(c) {
		t.Error("merge with disjoint exact set should fail")
	}

	empty := StringRange{Name: "facingMode"}
	empty.Intersect(c)
	if !empty.HasExact("z") {
		t.Errorf("intersecting an unconstrained range should adopt other's exact set, got %v", empty.Exact)
	}
}
