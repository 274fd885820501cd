// Package assoc implements the tracker's data-association machinery: the
// per-target death sampling and Kalman prediction that advance one
// particle by Tinc steps, and the event enumeration (clutter / associate
// to an existing target / birth) together with the importance-weighted
// draw that picks which hypothesis a particle follows for one observation.
package assoc

import (
	"fmt"
	"math"

	"github.com/milosgajdos/rbpf/gammadist"
	"github.com/milosgajdos/rbpf/kalman/ckf"
	"github.com/milosgajdos/rbpf/matrix"
	"github.com/milosgajdos/rbpf/particle"
	rsample "github.com/milosgajdos/rbpf/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// minTargetDivisor guards the TP0 = (1-noiseLikelihood)/max(nTargets,eps)
// division when a particle currently has zero targets.
const minTargetDivisor = 1e-6

// Config bundles the birth/death and clutter model parameters that are
// shared, read-only, across every particle -- the association-level
// counterpart of the tracker's global A/Q/H/R Kalman matrices.
type Config struct {
	NoiseLikelihood   float64
	InitBirth         float64
	Cd                float64
	MaxActiveTargets  int
	AlphaDeath        float64
	BetaDeath         float64
	Dt                float64
	AllowMultiDeath   bool
	ForceKillTargets  bool
	ForceKillDistance float64
	M0                *mat.VecDense
	P0                *mat.SymDense
}

// Generator enumerates association events and advances particles between
// observations, using a shared Kalman filter and Config.
type Generator struct {
	Filter *ckf.Filter
	Cfg    Config
}

// New returns a Generator over f using cfg.
func New(f *ckf.Filter, cfg Config) *Generator {
	return &Generator{Filter: f, Cfg: cfg}
}

// Slot is one data-association hypothesis considered for a single
// particle at a single update: clutter, associate to an existing target,
// or birth of a new one.
type Slot struct {
	Tag        string
	Prior      float64
	Likelihood float64
	Post       *particle.Particle
}

// Predict applies death sampling followed by Kalman prediction to every
// target of p, in place. Death is sampled over the next tinc dt-steps;
// each survivor then gets a single Kalman prediction step (A, Q) whatever
// the value of tinc. Age is not
// incremented here -- per spec it advances during Update, since a target's
// age at the moment of prediction is still needed to evaluate its death
// probability over the interval the prediction spans.
func (g *Generator) Predict(p *particle.Particle, tinc int, src rsample.Source) {
	n := len(p.Targets)
	dead := make([]bool, n)
	anyDead := false

	for j, t := range p.Targets {
		if !g.Cfg.AllowMultiDeath && anyDead {
			break
		}

		pDeath := deathProbability(t.Age, tinc, g.Cfg.AlphaDeath, g.Cfg.BetaDeath, g.Cfg.Dt)

		if g.Cfg.ForceKillTargets {
			for k, other := range p.Targets {
				if k == j || other.Age < t.Age {
					continue
				}
				angle := matrix.AngleBetween(posOf(t), posOf(other))
				if angle < g.Cfg.ForceKillDistance {
					pDeath = 1
					break
				}
			}
		}

		if src.Float64() < pDeath {
			dead[j] = true
			anyDead = true
		}
	}

	deadIdx := make([]int, 0, n)
	for j, t := range p.Targets {
		if dead[j] {
			deadIdx = append(deadIdx, j)
			continue
		}
		mNext, pNext := g.Filter.Predict(t.Mean, t.Cov)
		t.Mean = mNext
		t.Cov = pNext
	}
	p.Targets = particle.RemoveIndices(p.Targets, deadIdx)
}

// deathProbability returns the conditional probability that a target aged
// age steps (age*dt seconds) dies within the next tinc steps, per spec's shifted-gamma
// lifetime model:
//
//	p = 1 - (1-F(dt1))/(1-F(dt0))   (age > 0)
//	p = F(dt1)                      (age == 0)
func deathProbability(age, tinc int, alpha, beta, dt float64) float64 {
	dt0 := float64(age) * dt
	dt1 := float64(age+tinc) * dt

	if age == 0 {
		return gammadist.CDF(dt1, alpha, beta, 0)
	}

	f0 := gammadist.CDF(dt0, alpha, beta, 0)
	f1 := gammadist.CDF(dt1, alpha, beta, 0)
	denom := 1 - f0
	if denom <= 0 {
		return 1
	}
	return 1 - (1-f1)/denom
}

func posOf(t *particle.Target) []float64 {
	return []float64{t.Mean.AtVec(0), t.Mean.AtVec(1), t.Mean.AtVec(2)}
}

// Enumerate builds the event slots available to p for measurement y,
// given tinc steps elapsed since the last update (used to age surviving
// targets in each slot's post-state). It returns an error only when even
// the eigenvalue-floor recovery inside the Kalman update cannot produce a
// finite likelihood for every slot.
func (g *Generator) Enumerate(p *particle.Particle, y *mat.VecDense, tinc int) ([]Slot, error) {
	n := len(p.Targets)
	tp0 := (1 - g.Cfg.NoiseLikelihood) / math.Max(float64(n), minTargetDivisor)

	slots := make([]Slot, 0, n+2)

	slots = append(slots, Slot{
		Tag:        "clutter",
		Prior:      (1 - g.Cfg.InitBirth) * g.Cfg.NoiseLikelihood,
		Likelihood: g.Cfg.Cd,
		Post:       p.Clone(),
	})

	for j, t := range p.Targets {
		mOut, pOut, ll, err := g.Filter.Update(t.Mean, t.Cov, y)
		if err != nil {
			return nil, fmt.Errorf("assoc: target %d update failed: %v", t.ID, err)
		}

		post := p.Clone()
		post.Targets[j].Mean = mOut
		post.Targets[j].Cov = pOut
		for _, pt := range post.Targets {
			pt.Age += tinc
		}

		slots = append(slots, Slot{
			Tag:        fmt.Sprintf("target %d", t.ID),
			Prior:      (1 - g.Cfg.InitBirth) * tp0,
			Likelihood: ll,
			Post:       post,
		})
	}

	if n < g.Cfg.MaxActiveTargets {
		mOut, pOut, ll, err := g.Filter.Update(g.Cfg.M0, g.Cfg.P0, y)
		if err != nil {
			return nil, fmt.Errorf("assoc: birth update failed: %v", err)
		}

		post := p.Clone()
		id := post.NextID()
		post.Targets = append(post.Targets, &particle.Target{ID: id, Mean: mOut, Cov: pOut, Age: 0})

		slots = append(slots, Slot{
			Tag:        "birth",
			Prior:      g.Cfg.InitBirth,
			Likelihood: ll,
			Post:       post,
		})
	}

	return slots, nil
}

// Choose normalises slots' priors, forms and normalises the importance
// weights imp_k = prior_k * likelihood_k, and draws one event index using
// src. If every importance weight is zero it falls back to drawing from
// the (already normalised) priors; if those are also all zero it forces
// the clutter slot (index 0), per spec's DegenerateImportanceDistribution
// policy.
//
// It returns the chosen index e and the reweight factor
// likelihood_e * prior_e / imp_e that the caller multiplies into the
// particle's weight.
func Choose(slots []Slot, src rsample.Source) (e int, reweight float64, err error) {
	priors := make([]float64, len(slots))
	for i, s := range slots {
		priors[i] = s.Prior
	}
	priorSum := floats.Sum(priors)
	if priorSum > 0 {
		floats.Scale(1/priorSum, priors)
	}

	imp := make([]float64, len(slots))
	for i, s := range slots {
		imp[i] = priors[i] * s.Likelihood
	}
	impSum := floats.Sum(imp)

	switch {
	case impSum > 0:
		floats.Scale(1/impSum, imp)
		e, err = rsample.DrawOne(imp, src)
	case priorSum > 0:
		imp = priors
		e, err = rsample.DrawOne(priors, src)
	default:
		e = 0
		imp[0] = 1
	}
	if err != nil {
		return 0, 0, fmt.Errorf("assoc: event draw failed: %v", err)
	}

	if imp[e] == 0 {
		return e, 0, nil
	}
	return e, slots[e].Likelihood * priors[e] / imp[e], nil
}
