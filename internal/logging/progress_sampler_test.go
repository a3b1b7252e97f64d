package logging

import "testing"

func TestNewProgressSampler(t *testing.T) {
	tests := []struct {
		name       string
		bucketSize float64
		wantSize   float64
	}{
		{"default bucket size for zero", 0, 25},
		{"default bucket size for negative", -1, 25},
		{"custom bucket size", 10, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewProgressSampler(tt.bucketSize)
			if s.bucketSize != tt.wantSize {
				t.Errorf("bucketSize = %v, want %v", s.bucketSize, tt.wantSize)
			}
			if s.lastBucket != -1 {
				t.Errorf("lastBucket = %d, want -1", s.lastBucket)
			}
		})
	}
}

func TestProgressSamplerNilSampler(t *testing.T) {
	var s *ProgressSampler
	if !s.ShouldLog(50) {
		t.Error("ShouldLog on nil sampler should always return true")
	}
	s.Reset()
}

func TestProgressSamplerBuckets(t *testing.T) {
	s := NewProgressSampler(25)
	steps := []struct {
		percent float64
		want    bool
	}{
		{0, true},
		{10, false},
		{24.9, false},
		{25, true},
		{30, false},
		{20, false},
		{75, true},
		{100, true},
		{120, false},
		{-1, false},
	}
	for _, step := range steps {
		if got := s.ShouldLog(step.percent); got != step.want {
			t.Fatalf("ShouldLog(%v) = %v, want %v", step.percent, got, step.want)
		}
	}
}

func TestProgressSamplerReset(t *testing.T) {
	s := NewProgressSampler(50)
	s.ShouldLog(60)
	if s.ShouldLog(70) {
		t.Fatal("expected same bucket to be suppressed")
	}
	s.Reset()
	if !s.ShouldLog(70) {
		t.Fatal("expected reset sampler to log")
	}
}
