// Package particle implements the tracker's per-hypothesis state: one
// weighted Particle carrying a variable-length list of live Targets, each
// with a 6D Kalman mean/covariance, an age and a stable identity. The
// teacher's Particle interface described a dynamical-system filter with a
// weight vector over a fixed-size state; here the association hypothesis
// itself is variable-length, so a concrete growable-list type replaces the
// original interface.
package particle

import "gonum.org/v1/gonum/mat"

// Target is one tracked object's Kalman state within a single particle.
type Target struct {
	// ID is a stable identity, unique among the live targets of the
	// particle that owns it. IDs are reused after a target dies.
	ID int
	// Mean is the 6D state (position, velocity).
	Mean *mat.VecDense
	// Cov is the 6x6 state covariance.
	Cov *mat.SymDense
	// Age counts dt steps elapsed since birth.
	Age int
}

// Clone returns a deep copy of t.
func (t *Target) Clone() *Target {
	mean := mat.NewVecDense(t.Mean.Len(), nil)
	mean.CopyVec(t.Mean)

	cov := mat.NewSymDense(t.Cov.Symmetric(), nil)
	cov.CopySym(t.Cov)

	return &Target{
		ID:   t.ID,
		Mean: mean,
		Cov:  cov,
		Age:  t.Age,
	}
}

// Particle is one Monte-Carlo hypothesis over the joint target state: a
// weight and an ordered list of live targets. It exclusively owns its
// target list -- no two particles ever share a *Target.
type Particle struct {
	// Weight is the particle's current (post-renormalisation) weight.
	Weight float64
	// PrevWeight is the weight the last smoothing update produced; used by
	// the one-pole smoother in package smooth.
	PrevWeight float64
	// PriorWeight is the weight every particle is reset to: 1/Np.
	PriorWeight float64
	// Targets is the ordered list of live targets.
	Targets []*Target
	// LastEvent is the textual tag of the event slot chosen for this
	// particle on the most recent update (e.g. "clutter", "target 3",
	// "birth"). Nothing in the tracker branches on it; it exists for
	// observability/debugging.
	LastEvent string
}

// New creates an empty particle with weight w0.
func New(w0 float64) *Particle {
	return &Particle{
		Weight:      w0,
		PrevWeight:  w0,
		PriorWeight: w0,
	}
}

// Reset empties the target list and restores the particle's prior weight.
func (p *Particle) Reset() {
	p.Targets = nil
	p.Weight = p.PriorWeight
	p.PrevWeight = p.PriorWeight
	p.LastEvent = ""
}

// Clone returns a deep copy of p: a new target list with every target
// individually cloned, so mutating the clone never affects p.
func (p *Particle) Clone() *Particle {
	targets := make([]*Target, len(p.Targets))
	for i, t := range p.Targets {
		targets[i] = t.Clone()
	}
	return &Particle{
		Weight:      p.Weight,
		PrevWeight:  p.PrevWeight,
		PriorWeight: p.PriorWeight,
		Targets:     targets,
		LastEvent:   p.LastEvent,
	}
}

// CopyFrom overwrites p in place with a deep copy of src's targets and
// resets p's weight to its own prior weight. This is the form resampling
// uses against a disjoint scratch buffer: each scratch particle keeps its
// own PriorWeight and is repopulated from a (possibly repeated) source
// particle's targets.
func (p *Particle) CopyFrom(src *Particle) {
	targets := make([]*Target, len(src.Targets))
	for i, t := range src.Targets {
		targets[i] = t.Clone()
	}
	p.Targets = targets
	p.Weight = p.PriorWeight
	p.PrevWeight = p.PriorWeight
	p.LastEvent = src.LastEvent
}

// Destroy releases the particle's target list.
func (p *Particle) Destroy() {
	p.Targets = nil
}

// NextID returns the smallest non-negative integer not currently assigned
// to a live target within p, the rule new births use to acquire an
// identity.
func (p *Particle) NextID() int {
	used := make(map[int]bool, len(p.Targets))
	for _, t := range p.Targets {
		used[t.ID] = true
	}
	for id := 0; ; id++ {
		if !used[id] {
			return id
		}
	}
}

// RemoveIndices returns a new slice with the targets at the given indices
// (assumed sorted ascending and in range) removed, preserving the relative
// order of the survivors.
func RemoveIndices(targets []*Target, dead []int) []*Target {
	if len(dead) == 0 {
		return targets
	}
	deadSet := make(map[int]bool, len(dead))
	for _, i := range dead {
		deadSet[i] = true
	}
	survivors := make([]*Target, 0, len(targets)-len(dead))
	for i, t := range targets {
		if !deadSet[i] {
			survivors = append(survivors, t)
		}
	}
	return survivors
}
