// Package rbpf implements a real-time 3D multi-target tracker: a
// Rao-Blackwellised particle filter for data association layered over
// per-target 6D Kalman filters (3D position, 3D velocity). It consumes a
// stream of 3D position measurements arriving at a fixed cadence and
// maintains a time-varying set of tracked targets, each with a stable
// integer identity, across an unknown and changing target count.
//
// The package wires together the lower-level pieces of this module: the
// matrix-fraction discretiser (package discretize) that builds the
// tracker's constant-velocity motion model, the Kalman filter (package
// kalman/ckf) that analytically integrates each target's continuous
// state, the event generator (package assoc) that enumerates and scores
// association hypotheses, and the resampling primitives (package rand)
// that keep the particle set from degenerating.
package rbpf

import (
	"fmt"
	"math"

	"github.com/milosgajdos/rbpf/assoc"
	"github.com/milosgajdos/rbpf/discretize"
	"github.com/milosgajdos/rbpf/kalman/ckf"
	"github.com/milosgajdos/rbpf/matrix"
	"github.com/milosgajdos/rbpf/particle"
	rsample "github.com/milosgajdos/rbpf/rand"
	"github.com/milosgajdos/rbpf/smooth"
	"github.com/rs/zerolog"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// ConfigurationError reports an invalid or non-finite Config passed to
// New. It is always fatal: the tracker is never partially constructed.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("rbpf: invalid configuration field %q: %s", e.Field, e.Reason)
}

// NumericError reports that a particle's covariance could not be
// recovered even after the single eigenvalue-floor retry the Kalman
// filter attempts internally, and that the particle carrying it has been
// dropped (reset to an empty particle at the prior weight) rather than
// left in an inconsistent state.
type NumericError struct {
	ParticleIndex int
	Cause         error
}

func (e *NumericError) Error() string {
	return fmt.Sprintf("rbpf: particle %d dropped after unrecoverable numeric error: %v", e.ParticleIndex, e.Cause)
}

func (e *NumericError) Unwrap() error { return e.Cause }

// Config is the tracker's complete configuration. Every field corresponds
// to one of the tunables of the tracker's external interface; New
// validates it and rejects any out-of-range or non-finite field with a
// ConfigurationError. No field is clamped.
type Config struct {
	// Np is the particle count.
	Np int
	// MaxActiveTargets caps the number of simultaneously live targets per
	// particle.
	MaxActiveTargets int
	// NoiseLikelihood is the per-step clutter prior, in [0, 0.99].
	NoiseLikelihood float64
	// MeasNoiseSD is the measurement noise standard deviation (metres),
	// applied isotropically across the 3 position axes. Per the linear
	// interpretation this spec settles on (as opposed to the angular
	// 1-cos(SD) reading found in some ports), R = MeasNoiseSD^2 * I3.
	MeasNoiseSD float64
	// NoiseSpecDen is the continuous-time process noise spectral density
	// driving each velocity component.
	NoiseSpecDen float64
	// AllowMultiDeath permits more than one target death per particle per
	// prediction step.
	AllowMultiDeath bool
	// InitBirth is the per-step birth prior, in [0, 0.99].
	InitBirth float64
	// AlphaDeath, BetaDeath are the shape and scale of the gamma target
	// lifetime distribution; both must be >= 1.
	AlphaDeath, BetaDeath float64
	// Dt is the nominal step interval in seconds.
	Dt float64
	// WAvgCoeff is the one-pole weight smoothing coefficient, in
	// [0, 0.999]; 0 disables smoothing.
	WAvgCoeff float64
	// ForceKillTargets enables proximity-based forced death: a younger
	// target within ForceKillDistance (radians, great-circle angle
	// between position vectors) of an older one is killed outright.
	ForceKillTargets  bool
	ForceKillDistance float64
	// M0, P0 are the birth prior mean and covariance, 6 and 6x6
	// respectively; P0 must be symmetric positive-definite.
	M0 [6]float64
	P0 [6][6]float64
	// Cd is the clutter density, > 0.
	Cd float64
	// Seed seeds the tracker's owned RNG. Two trackers built with the
	// same Config and Seed produce identical runs.
	Seed uint64
	// Logger receives the structured warnings Step's eigenvalue-floor and
	// degenerate-weight recovery paths emit (spec's §7 NumericError
	// policy). A nil Logger defaults to zerolog.Nop(), so a caller that
	// never sets this field gets no logging output at all.
	Logger *zerolog.Logger
}

const npMax = 1 << 16

func (c *Config) validate() error {
	switch {
	case c.Np < 1 || c.Np > npMax:
		return &ConfigurationError{"Np", fmt.Sprintf("must be in [1, %d]", npMax)}
	case c.MaxActiveTargets < 1:
		return &ConfigurationError{"MaxActiveTargets", "must be >= 1"}
	case c.NoiseLikelihood < 0 || c.NoiseLikelihood > 0.99:
		return &ConfigurationError{"NoiseLikelihood", "must be in [0, 0.99]"}
	case !(c.MeasNoiseSD > 0):
		return &ConfigurationError{"MeasNoiseSD", "must be > 0"}
	case !(c.NoiseSpecDen > 0):
		return &ConfigurationError{"NoiseSpecDen", "must be > 0"}
	case c.InitBirth < 0 || c.InitBirth > 0.99:
		return &ConfigurationError{"InitBirth", "must be in [0, 0.99]"}
	case c.AlphaDeath < 1:
		return &ConfigurationError{"AlphaDeath", "must be >= 1"}
	case c.BetaDeath < 1:
		return &ConfigurationError{"BetaDeath", "must be >= 1"}
	case !(c.Dt > 0):
		return &ConfigurationError{"Dt", "must be > 0"}
	case c.WAvgCoeff < 0 || c.WAvgCoeff > 0.999:
		return &ConfigurationError{"WAvgCoeff", "must be in [0, 0.999]"}
	case c.ForceKillTargets && !(c.ForceKillDistance > 0):
		return &ConfigurationError{"ForceKillDistance", "must be > 0 when ForceKillTargets is set"}
	case !(c.Cd > 0):
		return &ConfigurationError{"Cd", "must be > 0"}
	}
	for i := 0; i < 6; i++ {
		if math.IsNaN(c.M0[i]) || math.IsInf(c.M0[i], 0) {
			return &ConfigurationError{"M0", "must be finite"}
		}
	}

	p0 := mat.NewDense(6, 6, nil)
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			v := c.P0[i][j]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return &ConfigurationError{"P0", "must be finite"}
			}
			p0.Set(i, j, v)
		}
	}
	p0Sym, err := matrix.ToSymDense(p0)
	if err != nil {
		return &ConfigurationError{"P0", fmt.Sprintf("must be symmetric: %v", err)}
	}
	var eig mat.EigenSym
	if ok := eig.Factorize(p0Sym, false); !ok {
		return &ConfigurationError{"P0", "eigendecomposition failed"}
	}
	for _, v := range eig.Values(nil) {
		if v <= 0 {
			return &ConfigurationError{"P0", "must be positive-definite"}
		}
	}

	return nil
}

// Target is one live tracked object as reported in an Output.
type Target struct {
	ID       int
	Position [3]float64
	Variance [3]float64
}

// Output is the result of one Step call: the dominant particle's target
// list, verbatim.
type Output struct {
	Targets []Target
}

// Tracker is a single multi-target tracking session. It is not safe for
// concurrent use: Step, Reset, and Close must not be called concurrently
// on the same handle.
type Tracker struct {
	cfg Config
	gen *assoc.Generator

	particles []*particle.Particle
	scratch   []*particle.Particle

	rng *rand.Rand
	log zerolog.Logger

	incrementTime int
}

// New validates cfg, builds the tracker's motion model via the
// discretiser, and allocates its particle set.
func New(cfg Config) (*Tracker, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	F := mat.NewDense(6, 6, nil)
	for i := 0; i < 3; i++ {
		F.Set(i, i+3, 1)
	}

	Qc := mat.NewDense(6, 6, nil)
	for i := 3; i < 6; i++ {
		Qc.Set(i, i, cfg.NoiseSpecDen)
	}

	A, Q, err := discretize.Discretize(F, nil, Qc, cfg.Dt)
	if err != nil {
		return nil, &ConfigurationError{"Dt/NoiseSpecDen", fmt.Sprintf("discretisation failed: %v", err)}
	}

	H := mat.NewDense(3, 6, nil)
	for i := 0; i < 3; i++ {
		H.Set(i, i, 1)
	}

	R := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		R.Set(i, i, cfg.MeasNoiseSD*cfg.MeasNoiseSD)
	}

	kf, err := ckf.New(A, Q, H, R)
	if err != nil {
		return nil, &ConfigurationError{"model", fmt.Sprintf("could not build Kalman filter: %v", err)}
	}

	m0 := mat.NewVecDense(6, cfg.M0[:])
	p0Flat := make([]float64, 36)
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			p0Flat[i*6+j] = cfg.P0[i][j]
		}
	}
	p0 := mat.NewSymDense(6, p0Flat)

	gen := assoc.New(kf, assoc.Config{
		NoiseLikelihood:   cfg.NoiseLikelihood,
		InitBirth:         cfg.InitBirth,
		Cd:                cfg.Cd,
		MaxActiveTargets:  cfg.MaxActiveTargets,
		AlphaDeath:        cfg.AlphaDeath,
		BetaDeath:         cfg.BetaDeath,
		Dt:                cfg.Dt,
		AllowMultiDeath:   cfg.AllowMultiDeath,
		ForceKillTargets:  cfg.ForceKillTargets,
		ForceKillDistance: cfg.ForceKillDistance,
		M0:                m0,
		P0:                p0,
	})

	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}

	t := &Tracker{
		cfg: cfg,
		gen: gen,
		rng: rand.New(rand.NewSource(cfg.Seed)),
		log: log,
	}

	w0 := 1.0 / float64(cfg.Np)
	t.particles = make([]*particle.Particle, cfg.Np)
	t.scratch = make([]*particle.Particle, cfg.Np)
	for i := range t.particles {
		t.particles[i] = particle.New(w0)
		t.scratch[i] = particle.New(w0)
	}

	return t, nil
}

// Reset empties every particle's target list and zeroes the tracker's
// elapsed-silence counter, leaving weights at the prior.
func (t *Tracker) Reset() {
	t.incrementTime = 0
	for _, p := range t.particles {
		p.Reset()
	}
}

// Close releases the tracker's particle arena. The tracker must not be
// used again afterwards.
func (t *Tracker) Close() {
	for _, p := range t.particles {
		p.Destroy()
	}
	t.particles = nil
	t.scratch = nil
}

// Step advances the tracker by one call: runs prediction and update for
// each observation in order, resamples and smooths as configured, and
// returns the dominant particle's target list. An empty observations
// slice still advances the tracker's elapsed-silence counter, so the
// next observation's death sampling and target ageing cover the
// intervening steps; its Kalman prediction is still a single dt step.
func (t *Tracker) Step(observations [][3]float64) Output {
	t.incrementTime++

	for _, obs := range observations {
		tinc := t.incrementTime
		y := mat.NewVecDense(3, obs[:])

		for _, p := range t.particles {
			t.gen.Predict(p, tinc, t.rng)
		}

		for i, p := range t.particles {
			slots, err := t.gen.Enumerate(p, y, tinc)
			if err != nil {
				t.log.Warn().Err(err).Int("particle", i).Msg("dropping particle after unrecoverable numeric error")
				p.Reset()
				continue
			}

			e, reweight, err := assoc.Choose(slots, t.rng)
			if err != nil {
				t.log.Warn().Err(err).Int("particle", i).Msg("event draw failed, dropping particle")
				p.Reset()
				continue
			}

			chosen := slots[e].Post
			chosen.LastEvent = slots[e].Tag
			chosen.Weight = p.Weight * reweight
			*p = *chosen
		}

		normalizeWeights(t.particles)
		t.incrementTime = 0

		if w := weights(t.particles); rsample.EffectiveSampleSize(w) < float64(t.cfg.Np)/4 {
			t.resample(w)
		}

		if t.cfg.WAvgCoeff > 0 {
			for _, p := range t.particles {
				p.Weight = smooth.Weight(p.Weight, p.PrevWeight, t.cfg.WAvgCoeff)
				p.PrevWeight = p.Weight
			}
			normalizeWeights(t.particles)
		}
	}

	return t.output()
}

func weights(ps []*particle.Particle) []float64 {
	w := make([]float64, len(ps))
	for i, p := range ps {
		w[i] = p.Weight
	}
	return w
}

func normalizeWeights(ps []*particle.Particle) {
	var sum float64
	for _, p := range ps {
		sum += p.Weight
	}
	if sum <= 0 {
		w0 := 1.0 / float64(len(ps))
		for _, p := range ps {
			p.Weight = w0
		}
		return
	}
	for _, p := range ps {
		p.Weight /= sum
	}
}

// resample performs stratified resampling of t.particles according to w,
// writing the result through t.scratch to avoid source/destination
// aliasing, then swaps the two arenas.
func (t *Tracker) resample(w []float64) {
	idx, err := rsample.Stratified(w, t.rng)
	if err != nil {
		t.log.Warn().Err(err).Msg("resampling skipped: degenerate weights")
		return
	}

	for i, src := range idx {
		t.scratch[i].CopyFrom(t.particles[src])
	}
	t.particles, t.scratch = t.scratch, t.particles
}

// output selects the particle with the largest weight and emits its
// target list verbatim.
func (t *Tracker) output() Output {
	best := t.particles[0]
	for _, p := range t.particles[1:] {
		if p.Weight > best.Weight {
			best = p
		}
	}

	out := Output{Targets: make([]Target, len(best.Targets))}
	for i, tg := range best.Targets {
		var pos, variance [3]float64
		for j := 0; j < 3; j++ {
			pos[j] = tg.Mean.AtVec(j)
			variance[j] = tg.Cov.At(j, j)
		}
		out.Targets[i] = Target{ID: tg.ID, Position: pos, Variance: variance}
	}
	return out
}
