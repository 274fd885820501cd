package particle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func newTarget(id int) *Target {
	return &Target{
		ID:   id,
		Mean: mat.NewVecDense(6, []float64{float64(id), 0, 0, 0, 0, 0}),
		Cov:  mat.NewSymDense(6, nil),
		Age:  id,
	}
}

func TestNewAndReset(t *testing.T) {
	assert := assert.New(t)

	p := New(0.1)
	assert.Equal(0.1, p.Weight)
	assert.Equal(0.1, p.PrevWeight)
	assert.Empty(p.Targets)

	p.Targets = append(p.Targets, newTarget(0))
	p.Weight = 0.9
	p.Reset()

	assert.Empty(p.Targets)
	assert.Equal(0.1, p.Weight)
	assert.Equal(0.1, p.PrevWeight)
}

func TestCloneIsDeep(t *testing.T) {
	assert := assert.New(t)

	p := New(1.0)
	p.Targets = append(p.Targets, newTarget(0), newTarget(1))

	clone := p.Clone()
	clone.Targets[0].Mean.SetVec(0, 999)
	clone.Targets = append(clone.Targets, newTarget(2))

	assert.Equal(2, len(p.Targets))
	assert.NotEqual(999.0, p.Targets[0].Mean.AtVec(0))
}

func TestNextID(t *testing.T) {
	assert := assert.New(t)

	p := New(1.0)
	assert.Equal(0, p.NextID())

	p.Targets = append(p.Targets, newTarget(0), newTarget(2))
	assert.Equal(1, p.NextID())

	p.Targets = append(p.Targets, newTarget(1))
	assert.Equal(3, p.NextID())
}

func TestRemoveIndicesPreservesOrder(t *testing.T) {
	assert := assert.New(t)

	targets := []*Target{newTarget(0), newTarget(1), newTarget(2), newTarget(3)}
	survivors := RemoveIndices(targets, []int{1, 3})

	assert.Equal(2, len(survivors))
	assert.Equal(0, survivors[0].ID)
	assert.Equal(2, survivors[1].ID)
}

func TestCopyFromResetsWeight(t *testing.T) {
	assert := assert.New(t)

	src := New(0.5)
	src.PriorWeight = 0.25
	src.Targets = append(src.Targets, newTarget(5))

	dst := New(0.25)
	dst.PriorWeight = 0.25
	dst.Weight = 0.9

	dst.CopyFrom(src)

	assert.Equal(0.25, dst.Weight)
	assert.Equal(1, len(dst.Targets))
	assert.Equal(5, dst.Targets[0].ID)

	dst.Targets[0].Mean.SetVec(0, -1)
	assert.NotEqual(-1.0, src.Targets[0].Mean.AtVec(0))
}
