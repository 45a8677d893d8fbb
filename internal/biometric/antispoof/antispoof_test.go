package antispoof

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	dErrors "facegate/pkg/domain-errors"
)

// =============================================================================
// Anti-Spoof Scorer Test Suite
// =============================================================================
// Justification for unit tests: inversion and weighting determine whether a
// replayed screen is accepted; attack labels feed fraud review.

type AntiSpoofSuite struct {
	suite.Suite
	scorer Scorer
}

func TestAntiSpoofSuite(t *testing.T) {
	suite.Run(t, new(AntiSpoofSuite))
}

func (s *AntiSpoofSuite) SetupTest() {
	scorer, err := New(DefaultConfig())
	s.Require().NoError(err)
	s.scorer = scorer
}

func realFeatures() Features {
	return Features{
		SpoofProbability:   0.05,
		LaplacianVariance:  300,
		TextureVariance:    0.70,
		HighFrequencyRatio: 0.30,
		MoireScore:         0.05,
		ReflectionScore:    0.10,
		ColorNaturalness:   0.90,
		Saturation:         0.50,
	}
}

func (s *AntiSpoofSuite) TestRealCapture() {
	res, err := s.scorer.Score(realFeatures())
	s.Require().NoError(err)

	s.True(res.IsReal)
	s.InDelta(8.25, res.SpoofScore, 1e-9)
	s.InDelta(91.75, res.PassScore, 1e-9)
	s.Equal(AttackNone, res.AttackType)
	s.Empty(res.Reason)
	s.Equal(100.0, res.Confidence)
}

func (s *AntiSpoofSuite) TestAttackClassification() {
	cases := []struct {
		name   string
		mutate func(f *Features)
		spoof  float64
		attack AttackType
	}{
		{
			name: "screen replay",
			mutate: func(f *Features) {
				f.SpoofProbability = 0.80
				f.LaplacianVariance = 150
				f.TextureVariance = 0.20
				f.MoireScore = 0.70
				f.ReflectionScore = 0.80
				f.ColorNaturalness = 0.70
			},
			spoof:  68,
			attack: AttackVideo,
		},
		{
			name: "printed photo",
			mutate: func(f *Features) {
				f.SpoofProbability = 0.70
				f.LaplacianVariance = 40
				f.TextureVariance = 0.20
				f.HighFrequencyRatio = 0.10
				f.MoireScore = 0
				f.ReflectionScore = 0.20
				f.ColorNaturalness = 0.60
			},
			spoof:  61,
			attack: AttackPhoto,
		},
		{
			name: "synthetic face",
			mutate: func(f *Features) {
				f.SpoofProbability = 0.75
				f.TextureVariance = 0.80
				f.MoireScore = 0
				f.ColorNaturalness = 0.20
				f.Saturation = 0.90
			},
			spoof:  42.5,
			attack: AttackDeepfake,
		},
		{
			name: "model-only rejection",
			mutate: func(f *Features) {
				f.SpoofProbability = 0.90
				f.MoireScore = 0
			},
			spoof:  41.5,
			attack: AttackUnknown,
		},
	}

	for _, tc := range cases {
		s.Run(tc.name, func() {
			f := realFeatures()
			tc.mutate(&f)
			res, err := s.scorer.Score(f)
			s.Require().NoError(err)
			s.False(res.IsReal)
			s.InDelta(tc.spoof, res.SpoofScore, 1e-6)
			s.Equal(tc.attack, res.AttackType)
			s.Contains(res.Reason, "presentation attack suspected")
		})
	}
}

func (s *AntiSpoofSuite) TestValidation() {
	cases := map[string]func(f *Features){
		"negative laplacian":  func(f *Features) { f.LaplacianVariance = -1 },
		"infinite laplacian":  func(f *Features) { f.LaplacianVariance = math.Inf(1) },
		"probability above 1": func(f *Features) { f.SpoofProbability = 1.2 },
		"NaN reflection":      func(f *Features) { f.ReflectionScore = math.NaN() },
	}
	for name, mutate := range cases {
		s.Run(name, func() {
			f := realFeatures()
			mutate(&f)
			_, err := s.scorer.Score(f)
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
}

func (s *AntiSpoofSuite) TestPassScoreMonotonicInModelRealness() {
	f := realFeatures()
	f.SpoofProbability = 0.5
	worse, err := s.scorer.Score(f)
	s.Require().NoError(err)

	f.SpoofProbability = 0.1
	better, err := s.scorer.Score(f)
	s.Require().NoError(err)

	s.Greater(better.PassScore, worse.PassScore)
}

func TestNew_UnknownVersion(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Version = "legacy"
	_, err := New(cfg)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}
