package embedding

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
)

// identityEpsilon absorbs rounding so a vector is at distance zero from itself.
const identityEpsilon = 1e-12

// Matcher performs validated vector comparisons for one deployment dimension.
type Matcher struct {
	cfg Config
}

// NewMatcher validates cfg and returns a Matcher.
func NewMatcher(cfg Config) (*Matcher, error) {
	if cfg.ShardSize <= 0 {
		cfg.ShardSize = defaultShardSize
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Matcher{cfg: cfg}, nil
}

func (m *Matcher) Dimension() int { return m.cfg.Dimension }

// Validate rejects vectors of the wrong length, with non-finite elements, or
// with zero norm.
func (m *Matcher) Validate(v []float64) error {
	if len(v) != m.cfg.Dimension {
		return dimensionError(len(v), m.cfg.Dimension)
	}
	_, err := norm(v)
	return err
}

func norm(v []float64) (float64, error) {
	var sum float64
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, fmt.Errorf("%w: non-finite element at index %d", ErrMalformedVector, i)
		}
		sum += x * x
	}
	n := math.Sqrt(sum)
	if n == 0 || math.IsInf(n, 0) {
		return 0, fmt.Errorf("%w: zero or overflowing norm", ErrMalformedVector)
	}
	return n, nil
}

// Distance returns the cosine distance between a and b in [0, 2].
func (m *Matcher) Distance(a, b []float64) (float64, error) {
	if err := m.Validate(a); err != nil {
		return 0, err
	}
	if err := m.Validate(b); err != nil {
		return 0, err
	}
	return cosineDistance(a, b), nil
}

// cosineDistance assumes both vectors were validated.
func cosineDistance(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	cos := dot / (math.Sqrt(na) * math.Sqrt(nb))
	d := 1 - cos
	switch {
	case d < identityEpsilon:
		return 0
	case d > 2:
		return 2
	}
	return d
}

// Similarity maps a distance to a 0..100 percentage.
func Similarity(distance float64) float64 {
	s := (1 - distance/2) * 100
	return math.Max(0, math.Min(100, s))
}

// Classify buckets a distance into a match level.
func (m *Matcher) Classify(distance float64) MatchLevel {
	switch {
	case distance < m.cfg.High:
		return LevelHigh
	case distance < m.cfg.Medium:
		return LevelMedium
	case distance < m.cfg.Low:
		return LevelLow
	default:
		return LevelNone
	}
}

// Compare validates both vectors and returns the full comparison.
func (m *Matcher) Compare(a, b []float64) (ComparisonResult, error) {
	d, err := m.Distance(a, b)
	if err != nil {
		return ComparisonResult{}, err
	}
	return m.result(d), nil
}

func (m *Matcher) result(d float64) ComparisonResult {
	return ComparisonResult{Distance: d, Similarity: Similarity(d), Level: m.Classify(d)}
}

// Normalize returns a unit-length copy of v.
func (m *Matcher) Normalize(v []float64) ([]float64, error) {
	if err := m.Validate(v); err != nil {
		return nil, err
	}
	return normalized(v), nil
}

func normalized(v []float64) []float64 {
	n, _ := norm(v)
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / n
	}
	return out
}

// Average returns the normalized mean of the normalized inputs.
func (m *Matcher) Average(vs [][]float64) ([]float64, error) {
	if len(vs) == 0 {
		return nil, ErrEmptySampleSet
	}
	sum := make([]float64, m.cfg.Dimension)
	for i, v := range vs {
		if err := m.Validate(v); err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		for j, x := range normalized(v) {
			sum[j] += x
		}
	}
	// Opposing samples can cancel out; Normalize reports that as malformed.
	return m.Normalize(sum)
}

// QualityFromSamples scores how consistent a sample set is: one minus twice
// the mean distance of each sample to the set's centroid, clamped to [0, 1].
// A single sample is perfectly consistent with itself.
func (m *Matcher) QualityFromSamples(vs [][]float64) (float64, error) {
	centroid, err := m.Average(vs)
	if err != nil {
		return 0, err
	}
	if len(vs) == 1 {
		return 1, nil
	}
	var total float64
	for _, v := range vs {
		total += cosineDistance(v, centroid)
	}
	q := 1 - 2*(total/float64(len(vs)))
	return math.Max(0, math.Min(1, q)), nil
}

// BestMatch finds the active candidate nearest to query. Candidates with a
// foreign dimension or malformed vector are skipped and counted. Ties keep
// the earliest candidate, so results do not depend on sharding.
func (m *Matcher) BestMatch(ctx context.Context, query []float64, candidates []Embedding) (Match, error) {
	if err := m.Validate(query); err != nil {
		return Match{}, err
	}

	shard := m.cfg.ShardSize
	if len(candidates) <= shard {
		best := scan(query, candidates, 0, len(candidates))
		return m.finish(best, candidates), nil
	}

	shards := (len(candidates) + shard - 1) / shard
	partials := make([]partial, shards)
	g, gctx := errgroup.WithContext(ctx)
	for s := 0; s < shards; s++ {
		lo := s * shard
		hi := min(lo+shard, len(candidates))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			partials[s] = scan(query, candidates, lo, hi)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Match{}, fmt.Errorf("best match scan: %w", err)
	}

	merged := partial{index: -1}
	for _, p := range partials {
		merged.skipped += p.skipped
		if p.index < 0 {
			continue
		}
		if merged.index < 0 || p.distance < merged.distance {
			merged.index, merged.distance = p.index, p.distance
		}
	}
	return m.finish(merged, candidates), nil
}

type partial struct {
	index    int
	distance float64
	skipped  int
}

func scan(query []float64, candidates []Embedding, lo, hi int) partial {
	best := partial{index: -1}
	for i := lo; i < hi; i++ {
		c := candidates[i]
		if !c.IsActive {
			continue
		}
		if len(c.Vector) != len(query) {
			best.skipped++
			continue
		}
		if _, err := norm(c.Vector); err != nil {
			best.skipped++
			continue
		}
		d := cosineDistance(query, c.Vector)
		if best.index < 0 || d < best.distance {
			best.index, best.distance = i, d
		}
	}
	return best
}

func (m *Matcher) finish(p partial, candidates []Embedding) Match {
	if p.index < 0 {
		return Match{Index: -1, Skipped: p.skipped, Result: ComparisonResult{Distance: 2, Level: LevelNone}}
	}
	return Match{
		Found:     true,
		Candidate: candidates[p.index],
		Index:     p.index,
		Result:    m.result(p.distance),
		Skipped:   p.skipped,
	}
}
