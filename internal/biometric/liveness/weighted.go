package liveness

import "math"

type weightedScorer struct {
	cfg Config
}

func (s *weightedScorer) Version() string { return VersionWeightedV2 }

func (s *weightedScorer) Validate(f Features) error { return validate(f, s.cfg.MinLandmarks) }

func (s *weightedScorer) Score(f Features) (Result, error) {
	if err := s.Validate(f); err != nil {
		return Result{}, err
	}

	w := s.cfg.Weights
	scored := []struct {
		check  Check
		score  float64
		weight float64
	}{
		{CheckBlink, s.blinkScore(f), w.Blink},
		{CheckPose, s.poseScore(f), w.Pose},
		{CheckMotion, clamp100(f.MotionScore * 100), w.Motion},
		{CheckDepth, clamp100(f.DepthScore * 100), w.Depth},
		{CheckTexture, clamp100(f.TextureScore * 100), w.Texture},
	}

	res := Result{Version: s.Version(), Checks: make([]CheckResult, 0, len(scored))}
	passed := 0
	for _, c := range scored {
		ok := c.score >= s.cfg.CheckPass
		if ok {
			passed++
		}
		res.Score += c.weight * c.score
		res.Checks = append(res.Checks, CheckResult{Check: c.check, Passed: ok, Score: c.score})
	}
	res.Score = clamp100(res.Score)
	res.Confidence = float64(passed) / float64(len(scored)) * 100
	res.IsLive = res.Score >= s.cfg.LiveThreshold
	res.Reason = reasonFor(res.FailedChecks())
	return res, nil
}

// blinkScore rewards at least one natural blink; more blinks add confidence.
func (s *weightedScorer) blinkScore(f Features) float64 {
	if f.BlinkCount == 0 {
		return 0
	}
	score := math.Min(100, 60+20*float64(f.BlinkCount-1))
	if f.EyeAspectRatio < s.cfg.MinEyeAspectRatio || f.EyeAspectRatio > s.cfg.MaxEyeAspectRatio {
		score /= 2
	}
	return score
}

func (s *weightedScorer) poseScore(f Features) float64 {
	variation := f.YawRange + f.PitchRange + f.RollRange
	return clamp100(variation / s.cfg.PoseFullScale * 100)
}
