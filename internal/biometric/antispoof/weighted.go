package antispoof

// Attack classification cutoffs. Diagnostic only; they never gate a decision.
const (
	strongReflection     = 0.6
	visibleMoire         = 0.5
	flatTexture          = 0.4
	blurredSharpness     = 50
	unnaturalColorCutoff = 0.4
)

type weightedScorer struct {
	cfg Config
}

func (s *weightedScorer) Version() string { return VersionWeightedV2 }

func (s *weightedScorer) Validate(f Features) error { return validate(f) }

func (s *weightedScorer) Score(f Features) (Result, error) {
	if err := s.Validate(f); err != nil {
		return Result{}, err
	}

	sharpness := s.sharpness(f)
	w := s.cfg.Weights
	scored := []struct {
		check    Check
		realness float64
		weight   float64
	}{
		{CheckModel, clamp100((1 - f.SpoofProbability) * 100), w.Model},
		{CheckTexture, clamp100(0.5*sharpness + 0.5*f.TextureVariance*100), w.Texture},
		{CheckFrequency, clamp100(f.HighFrequencyRatio/s.cfg.FrequencyFullScale*100) * (1 - f.MoireScore), w.Frequency},
		{CheckReflection, clamp100((1 - f.ReflectionScore) * 100), w.Reflection},
		{CheckColor, s.colorScore(f), w.Color},
	}

	res := Result{Version: s.Version(), Checks: make([]CheckResult, 0, len(scored))}
	passed := 0
	for _, c := range scored {
		ok := c.realness >= s.cfg.CheckPass
		if ok {
			passed++
		}
		res.SpoofScore += c.weight * (100 - c.realness)
		res.Checks = append(res.Checks, CheckResult{Check: c.check, Passed: ok, Score: c.realness})
	}
	res.SpoofScore = clamp100(res.SpoofScore)
	res.PassScore = 100 - res.SpoofScore
	res.Confidence = float64(passed) / float64(len(scored)) * 100
	res.IsReal = res.SpoofScore <= s.cfg.MaxSpoofScore
	if !res.IsReal {
		res.AttackType = classify(f, sharpness)
		res.Reason = reasonFor(res.Checks, res.AttackType)
	}
	return res, nil
}

func (s *weightedScorer) sharpness(f Features) float64 {
	return clamp100(f.LaplacianVariance / s.cfg.LaplacianFullScale * 100)
}

func (s *weightedScorer) colorScore(f Features) float64 {
	score := clamp100(f.ColorNaturalness * 100)
	if f.Saturation < s.cfg.MinSaturation || f.Saturation > s.cfg.MaxSaturation {
		score /= 2
	}
	return score
}

// classify guesses the attack medium: screens reflect and alias, prints blur
// and flatten texture, synthetic faces drift in color.
func classify(f Features, sharpness float64) AttackType {
	switch {
	case (f.ReflectionScore >= strongReflection || f.MoireScore >= visibleMoire) && f.TextureVariance < flatTexture:
		return AttackVideo
	case sharpness < blurredSharpness && f.TextureVariance < flatTexture:
		return AttackPhoto
	case f.ColorNaturalness < unnaturalColorCutoff:
		return AttackDeepfake
	default:
		return AttackUnknown
	}
}
