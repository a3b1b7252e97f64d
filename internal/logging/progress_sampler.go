package logging

// ProgressSampler suppresses repetitive progress logs for one job, emitting
// only when the percentage enters a new bucket.
type ProgressSampler struct {
	bucketSize float64
	lastBucket int
}

// NewProgressSampler constructs a sampler that emits when the percent crosses
// bucket boundaries (default 25%).
func NewProgressSampler(bucketSize float64) *ProgressSampler {
	if bucketSize <= 0 {
		bucketSize = 25
	}
	return &ProgressSampler{bucketSize: bucketSize, lastBucket: -1}
}

// ShouldLog reports whether a progress value in percent should be logged.
// Negative values mean "unknown" and never log.
func (s *ProgressSampler) ShouldLog(percent float64) bool {
	if s == nil {
		return true
	}
	if percent < 0 {
		return false
	}
	if percent > 100 {
		percent = 100
	}
	bucket := int(percent / s.bucketSize)
	if bucket <= s.lastBucket {
		return false
	}
	s.lastBucket = bucket
	return true
}

// Reset clears the sampler state.
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.lastBucket = -1
}
