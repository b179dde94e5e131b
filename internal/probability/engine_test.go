package probability

import (
	"errors"
	"sync"
	"testing"

	catalogdomain "github.com/smallbiznis/cardforge/internal/catalog/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sequenceSource replays fixed values in order and repeats the last one.
type sequenceSource struct {
	mu     sync.Mutex
	values []float64
	next   int
}

func newSequenceSource(values ...float64) *sequenceSource {
	return &sequenceSource{values: values}
}

func (s *sequenceSource) Float64() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.values) == 0 {
		return 0, errors.New("sequence source is empty")
	}
	i := s.next
	if i >= len(s.values) {
		i = len(s.values) - 1
	} else {
		s.next++
	}
	return s.values[i], nil
}

func TestNormalize(t *testing.T) {
	out, err := Normalize([]Candidate{
		{Rank: catalogdomain.RankSSS, Weight: 2},
		{Rank: catalogdomain.RankS, Weight: 0},
		{Rank: catalogdomain.RankSS, Weight: -1},
		{Rank: catalogdomain.RankA, Weight: 2},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, catalogdomain.RankA, out[0].Rank)
	assert.InDelta(t, 0.5, out[0].Weight, 1e-12)
	assert.InDelta(t, 0.5, out[1].Weight, 1e-12)

	_, err = Normalize([]Candidate{{Rank: catalogdomain.RankA, Weight: 0}})
	assert.ErrorIs(t, err, ErrEmptyCandidates)
	_, err = Normalize(nil)
	assert.ErrorIs(t, err, ErrEmptyCandidates)
}

func TestSample(t *testing.T) {
	cs := []Candidate{{Rank: catalogdomain.RankA, Weight: 0.5}, {Rank: catalogdomain.RankSSS, Weight: 0.5}}

	c, err := Sample(cs, 0.49)
	require.NoError(t, err)
	assert.Equal(t, catalogdomain.RankA, c.Rank)

	c, err = Sample(cs, 0.5)
	require.NoError(t, err)
	assert.Equal(t, catalogdomain.RankSSS, c.Rank)

	c, err = Sample([]Candidate{{Rank: catalogdomain.RankA, Weight: 0.3}, {Rank: catalogdomain.RankS, Weight: 0.3}}, 0.9999)
	require.NoError(t, err)
	assert.Equal(t, catalogdomain.RankS, c.Rank)

	_, err = Sample(cs, 1)
	assert.ErrorIs(t, err, ErrInvalidRoll)
	_, err = Sample(nil, 0.1)
	assert.ErrorIs(t, err, ErrEmptyCandidates)
}

func TestDraw(t *testing.T) {
	eval := Evaluation{
		PolicyVersion: PolicyV2,
		SuccessRate:   0.75,
		Candidates: []Candidate{
			{Rank: catalogdomain.RankA, Weight: 6},
			{Rank: catalogdomain.RankS, Weight: 3},
			{Rank: catalogdomain.RankSSS, Weight: 1},
		},
	}

	out, err := Draw(eval, newSequenceSource(0.1, 0.95))
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, catalogdomain.RankSSS, out.SelectedRank)
	assert.Equal(t, StatMultipliers{Attack: 2, Defense: 2}, out.Multipliers)

	out, err = Draw(eval, newSequenceSource(0.75))
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Empty(t, out.SelectedRank)

	out, err = Draw(eval, newSequenceSource(0.7499, 0.0))
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, catalogdomain.RankA, out.SelectedRank)
}

type failingSource struct{}

func (failingSource) Float64() (float64, error) { return 0, errors.New("entropy exhausted") }

func TestDrawPropagatesSourceErrors(t *testing.T) {
	_, err := Draw(Evaluation{SuccessRate: 0.5}, failingSource{})
	assert.Error(t, err)

	_, err = Draw(Evaluation{SuccessRate: 0.5}, newSequenceSource(1.5))
	assert.ErrorIs(t, err, ErrInvalidRoll)
}

func TestCryptoSourceRange(t *testing.T) {
	src := NewCryptoSource()
	for i := 0; i < 1000; i++ {
		f, err := src.Float64()
		require.NoError(t, err)
		assert.GreaterOrEqual(t, f, 0.0)
		assert.Less(t, f, 1.0)
	}
}

func TestIntn(t *testing.T) {
	i, err := Intn(newSequenceSource(0.999999), 3)
	require.NoError(t, err)
	assert.Equal(t, 2, i)

	i, err = Intn(newSequenceSource(0), 3)
	require.NoError(t, err)
	assert.Equal(t, 0, i)

	_, err = Intn(newSequenceSource(0.5), 0)
	assert.Error(t, err)
}
