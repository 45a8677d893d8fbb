package cascade

import "math"

// Fuse blends the gate scores, all on a 0-100 scale, into one confidence:
//
//	w.Liveness*liveness + w.AntiSpoof*antiSpoofPass + w.Embedding*embedding + w.Backup*second
//
// where second is the backup similarity when one is given and the embedding
// similarity otherwise. On a backup MATCH the orchestrator passes the mean of
// the local and backup similarities as embedding and the backup similarity as
// second, so the backup score carries w.Embedding/2 + w.Backup of the result.
// The result is clamped to [0, 100] and is monotonic non-decreasing in each
// input since every weight is non-negative.
func Fuse(w FusionWeights, livenessScore, antiSpoofPass, embeddingSimilarity float64, backupSimilarity *float64) float64 {
	second := embeddingSimilarity
	if backupSimilarity != nil {
		second = *backupSimilarity
	}
	fused := w.Liveness*livenessScore +
		w.AntiSpoof*antiSpoofPass +
		w.Embedding*embeddingSimilarity +
		w.Backup*second
	return math.Max(0, math.Min(100, fused))
}
