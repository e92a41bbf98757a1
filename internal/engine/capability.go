package engine

import (
	"fmt"
	"slices"
	"sync"

	"github.com/hpungsan/mediamgr/internal/constraints"
)

// Capability is one native mode of a source. Zero fields mean "any".
type Capability struct {
	Width    int32   `json:"width,omitempty"`
	Height   int32   `json:"height,omitempty"`
	FPS      float64 `json:"fps,omitempty"`
	Channels int32   `json:"channels,omitempty"`
	Format   string  `json:"format,omitempty"`
}

// preferredFormats are chosen among equally fit modes.
var preferredFormats = []string{"I420", "YUY2", "NV12"}

type candidate struct {
	capability Capability
	distance   uint32
}

// capabilitySet scores the modes of one source.
type capabilitySet struct {
	caps   []Capability
	facing string
	video  bool
}

func newCapabilitySet(caps []Capability, facing string, video bool) capabilitySet {
	if len(caps) == 0 {
		caps = []Capability{{}}
	}
	return capabilitySet{caps: slices.Clone(caps), facing: facing, video: video}
}

// distance sums per-field distances of c against set. feasibility only
// enforces lower bounds, so larger modes remain candidates for downscaling.
func (cs capabilitySet) distance(c Capability, set *constraints.NormalizedConstraintSet, feasibility bool) uint32 {
	long := constraints.FitnessDistance[int32]
	double := constraints.FitnessDistance[float64]
	if feasibility {
		long = constraints.FeasibilityDistance[int32]
		double = constraints.FeasibilityDistance[float64]
	}

	var facing, w, h, fps, ch uint32
	if cs.video {
		facing = constraints.StringFitnessDistance(cs.facing, cs.facing != "", set.FacingMode)
	}
	if c.Width > 0 {
		w = long(c.Width, set.Width)
	}
	if c.Height > 0 {
		h = long(c.Height, set.Height)
	}
	if c.FPS > 0 {
		fps = double(c.FPS, set.FrameRate)
	}
	if c.Channels > 0 {
		ch = constraints.FitnessDistance(c.Channels, set.ChannelCount)
	}
	return constraints.SumDistance(facing, w, h, fps, ch)
}

func trimLessFit(cands []candidate) []candidate {
	best := constraints.MaxDistance
	for _, c := range cands {
		best = min(best, c.distance)
	}
	out := make([]candidate, 0, len(cands))
	for _, c := range cands {
		if c.distance == best {
			out = append(out, c)
		}
	}
	return out
}

// bestFitnessDistance filters modes through every set in the stack and
// returns the lowest distance measured against the first set.
func (cs capabilitySet) bestFitnessDistance(sets []constraints.NormalizedConstraintSet) uint32 {
	cands := make([]candidate, 0, len(cs.caps))
	for _, c := range cs.caps {
		cands = append(cands, candidate{capability: c})
	}
	for i := range sets {
		kept := cands[:0]
		for _, cand := range cands {
			d := cs.distance(cand.capability, &sets[i], false)
			if d == constraints.MaxDistance {
				continue
			}
			if i == 0 {
				cand.distance = d
			}
			kept = append(kept, cand)
		}
		cands = kept
	}
	if len(cands) == 0 {
		return constraints.MaxDistance
	}
	return trimLessFit(cands)[0].distance
}

func prefsSet(prefs Prefs) constraints.NormalizedConstraintSet {
	return constraints.NewSet(constraints.MediaTrackConstraintSet{
		Width:        constraints.Long(prefs.Width),
		Height:       constraints.Long(prefs.Height),
		FrameRate:    constraints.Double(prefs.FPS),
		ChannelCount: constraints.Long(prefs.Channels),
	}, false)
}

// choose picks the mode that best serves c, leaning toward prefs and
// preferred pixel formats among equals. Reports false when the required set
// rules out every mode.
func (cs capabilitySet) choose(c *constraints.NormalizedConstraints, prefs Prefs) (Capability, bool) {
	cands := make([]candidate, 0, len(cs.caps))
	for _, capability := range cs.caps {
		d := cs.distance(capability, &c.NormalizedConstraintSet, true)
		if d != constraints.MaxDistance {
			cands = append(cands, candidate{capability: capability, distance: d})
		}
	}
	if len(cands) == 0 {
		return Capability{}, false
	}

	for i := range c.Advanced {
		var passed, rejects []candidate
		for _, cand := range cands {
			if cs.distance(cand.capability, &c.Advanced[i], true) == constraints.MaxDistance {
				rejects = append(rejects, cand)
			} else {
				passed = append(passed, cand)
			}
		}
		if len(passed) > 0 {
			cands = passed
		} else {
			cands = rejects
		}
	}

	cands = trimLessFit(cands)

	defaults := prefsSet(prefs)
	for i := range cands {
		cands[i].distance = cs.distance(cands[i].capability, &defaults, true)
	}
	cands = trimLessFit(cands)

	for _, cand := range cands {
		if slices.Contains(preferredFormats, cand.capability.Format) {
			return cand.capability, true
		}
	}
	return cands[0].capability, true
}

// anyBounds clamps dimensions resolved for "any" modes. Zero means unbounded.
type anyBounds struct {
	minWidth, maxWidth   int32
	minHeight, maxHeight int32
}

func clampBound(v, lo, hi int32) int32 {
	if lo > 0 {
		v = max(v, lo)
	}
	if hi > 0 {
		v = min(v, hi)
	}
	return v
}

// allocations tracks every live handle on one source. Handles share the
// source, so each change re-merges all constraints and re-chooses the mode.
type allocations struct {
	mu      sync.Mutex
	nextID  uint64
	handles []*AllocationHandle
	merged  *constraints.NormalizedConstraints
	prefs   Prefs
	chosen  Capability
	running int
}

func (a *allocations) resolve(cs capabilitySet, handles []*AllocationHandle, prefs Prefs) (*constraints.NormalizedConstraints, Capability, error) {
	list := make([]*constraints.NormalizedConstraints, 0, len(handles))
	for _, h := range handles {
		list = append(list, h.Constraints)
	}
	merged, bad := constraints.MergeConstraints(list)
	if merged == nil {
		return nil, Capability{}, fmt.Errorf("%w: %s conflicts with an existing allocation", ErrAllocation, bad)
	}
	chosen, ok := cs.choose(merged, prefs)
	if !ok {
		return nil, Capability{}, fmt.Errorf("%w: no mode satisfies the constraints", ErrAllocation)
	}
	return merged, chosen, nil
}

func (a *allocations) allocate(cs capabilitySet, c *constraints.NormalizedConstraints, prefs Prefs, deviceID string) (*AllocationHandle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	h := &AllocationHandle{
		ID:          a.nextID + 1,
		Constraints: c,
		Prefs:       prefs,
		DeviceID:    deviceID,
	}
	handles := append(slices.Clone(a.handles), h)
	merged, chosen, err := a.resolve(cs, handles, prefs)
	if err != nil {
		return nil, err
	}
	a.nextID++
	a.handles = handles
	a.merged = merged
	a.prefs = prefs
	a.chosen = chosen
	return h, nil
}

// deallocate releases h. It reports true when no handles remain. If the
// remaining handles no longer resolve, h stays released, the previous mode is
// kept and the error is returned.
func (a *allocations) deallocate(cs capabilitySet, h *AllocationHandle) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	idx := slices.Index(a.handles, h)
	if idx < 0 {
		return false, fmt.Errorf("%w: unknown handle", ErrAllocation)
	}
	if h.started {
		h.started = false
		a.running--
	}
	a.handles = slices.Delete(slices.Clone(a.handles), idx, idx+1)
	if len(a.handles) == 0 {
		a.merged = nil
		a.chosen = Capability{}
		return true, nil
	}
	merged, chosen, err := a.resolve(cs, a.handles, a.prefs)
	if err != nil {
		return false, fmt.Errorf("re-resolve after release: %w", err)
	}
	a.merged, a.chosen = merged, chosen
	return false, nil
}

// start marks h running and reports whether it is the first running handle.
func (a *allocations) start(h *AllocationHandle) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !slices.Contains(a.handles, h) {
		return false, fmt.Errorf("%w: unknown handle", ErrAllocation)
	}
	if h.started {
		return false, nil
	}
	h.started = true
	a.running++
	return a.running == 1, nil
}

// stop marks h stopped and reports whether no handle is running anymore.
func (a *allocations) stop(h *AllocationHandle) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !slices.Contains(a.handles, h) {
		return false, fmt.Errorf("%w: unknown handle", ErrAllocation)
	}
	if !h.started {
		return false, nil
	}
	h.started = false
	a.running--
	return a.running == 0, nil
}

func (a *allocations) settings(cs capabilitySet, bounds anyBounds) Settings {
	a.mu.Lock()
	defer a.mu.Unlock()

	st := Settings{}
	if cs.video {
		st.FacingMode = cs.facing
	}
	if a.merged == nil {
		return st
	}
	flat := constraints.Flatten(a.merged)
	if cs.video {
		st.Width = a.chosen.Width
		if st.Width == 0 {
			st.Width = clampBound(flat.Width.Get(a.prefs.Width), bounds.minWidth, bounds.maxWidth)
		}
		st.Height = a.chosen.Height
		if st.Height == 0 {
			st.Height = clampBound(flat.Height.Get(a.prefs.Height), bounds.minHeight, bounds.maxHeight)
		}
		st.FrameRate = a.chosen.FPS
		if st.FrameRate == 0 {
			st.FrameRate = flat.FrameRate.Get(a.prefs.FPS)
		}
		return st
	}
	st.ChannelCount = a.chosen.Channels
	if st.ChannelCount == 0 {
		st.ChannelCount = flat.ChannelCount.Get(a.prefs.Channels)
	}
	st.EchoCancellation = flat.EchoCancellation.Get(a.prefs.EchoCancellation)
	st.NoiseSuppression = flat.NoiseSuppression.Get(a.prefs.NoiseSuppression)
	st.AutoGainControl = flat.AutoGainControl.Get(a.prefs.AutoGainControl)
	return st
}

// baseSource implements the identity and allocation parts of Source.
type baseSource struct {
	name        string
	uuid        string
	groupID     string
	kind        Kind
	mediaSource MediaSource
	caps        capabilitySet
	bounds      anyBounds
	alloc       allocations
}

func (s *baseSource) Name() string             { return s.name }
func (s *baseSource) UUID() string             { return s.uuid }
func (s *baseSource) GroupID() string          { return s.groupID }
func (s *baseSource) Kind() Kind               { return s.kind }
func (s *baseSource) MediaSource() MediaSource { return s.mediaSource }

func (s *baseSource) BestFitnessDistance(sets []constraints.NormalizedConstraintSet) uint32 {
	return s.caps.bestFitnessDistance(sets)
}

func (s *baseSource) Settings() Settings {
	return s.alloc.settings(s.caps, s.bounds)
}

// Capabilities returns the native modes of the source.
func (s *baseSource) Capabilities() []Capability {
	return slices.Clone(s.caps.caps)
}
