package logging

import "strings"

// ProgressSampler thins out progress callbacks for logging. It lets through
// the first update, any update at least step percentage points past the last
// one it let through, the first update at or above 100%, and every stage
// change. A nil sampler lets everything through.
type ProgressSampler struct {
	step   float64
	stage  string
	logged float64
	done   bool
}

// NewProgressSampler returns a sampler with the given step (default 5).
func NewProgressSampler(step float64) *ProgressSampler {
	if step <= 0 {
		step = 5
	}
	return &ProgressSampler{step: step, logged: -1}
}

// ShouldLog reports whether this update deserves a log line. Negative percent
// means unknown.
func (s *ProgressSampler) ShouldLog(percent float64, stage string) bool {
	if s == nil {
		return true
	}
	if stage = strings.TrimSpace(stage); stage != "" && stage != s.stage {
		s.stage = stage
		s.logged = percent
		s.done = percent >= 100
		return true
	}
	switch {
	case percent < 0 || s.done:
		return false
	case percent >= 100:
		s.logged, s.done = 100, true
		return true
	case s.logged < 0 || percent-s.logged >= s.step:
		s.logged = percent
		return true
	default:
		return false
	}
}
