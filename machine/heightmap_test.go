package machine

import (
	"testing"

	"github.com/mats19/pcb-bridge/coord"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplesFor(t *testing.T, z []float64) []Sample {
	t.Helper()
	g := grid5x3(t)
	require.Len(t, z, g.Len())
	s := make([]Sample, len(z))
	for i := range s {
		p := g.At(i)
		s[i] = Sample{X: p.X, Y: p.Y, ZRaw: z[i]}
	}
	return s
}

func TestNormalize_RisingSurface(t *testing.T) {
	hm, err := Normalize(samplesFor(t, rawHeights(15)))
	require.NoError(t, err)

	require.Len(t, hm.Points, 15)
	assert.Equal(t, coord.Point{}, hm.Points[0])
	assert.Equal(t, 0.0, hm.Stats.MinZ)
	assert.InDelta(t, 0.028, hm.Stats.MaxZ, 1e-9)
	assert.InDelta(t, 0.028, hm.Stats.DeltaZ, 1e-9)
	assert.Equal(t, "Min Z: 0.0000 mm | Max Z: 0.0280 mm | Delta: 0.0280 mm", hm.Stats.String())

	for i, p := range hm.Points {
		assert.Equal(t, grid5x3(t).At(i).X, p.X)
		assert.Equal(t, grid5x3(t).At(i).Y, p.Y)
	}
}

func TestNormalize_ReferenceNotMinimum(t *testing.T) {
	z := rawHeights(15)
	z[9] = 0.95

	hm, err := Normalize(samplesFor(t, z))
	require.NoError(t, err)

	assert.Equal(t, 0.0, hm.Points[0].Z)
	assert.InDelta(t, -0.05, hm.Stats.MinZ, 1e-9)
	assert.True(t, hm.Stats.MinZ <= 0 && hm.Stats.MaxZ >= 0)
	assert.InDelta(t, hm.Stats.MaxZ-hm.Stats.MinZ, hm.Stats.DeltaZ, 1e-12)
}

func TestNormalize_Flat(t *testing.T) {
	z := make([]float64, 15)
	for i := range z {
		z[i] = -1.25
	}
	hm, err := Normalize(samplesFor(t, z))
	require.NoError(t, err)
	assert.Equal(t, Stats{}, hm.Stats)
}

func TestNormalize_Empty(t *testing.T) {
	_, err := Normalize(nil)
	assert.ErrorIs(t, err, ErrNoSamples)

	_, ok := ComputeStats(nil)
	assert.False(t, ok)
}

func TestNormalize_DoesNotModifyInput(t *testing.T) {
	in := samplesFor(t, rawHeights(15))
	_, err := Normalize(in)
	require.NoError(t, err)
	assert.Equal(t, 1.0, in[0].ZRaw)
}
