package logger

import (
	"strconv"
	"strings"
	"sync/atomic"
)

type ratio struct {
	keep  uint64
	every uint64
}

// ratioSampler lets keep out of every events through, in a fixed pattern.
// A zero ratio lets everything through.
type ratioSampler struct {
	ratio atomic.Pointer[ratio]
	seq   atomic.Uint64
}

func newRatioSampler(keep, every int) *ratioSampler {
	s := &ratioSampler{}
	s.Set(keep, every)
	return s
}

// Set replaces the ratio and restarts the pattern.
func (s *ratioSampler) Set(keep, every int) {
	s.seq.Store(0)
	if keep <= 0 || every <= 0 {
		s.ratio.Store(nil)
		return
	}
	if keep > every {
		keep = every
	}
	s.ratio.Store(&ratio{keep: uint64(keep), every: uint64(every)})
}

// Allow reports whether the next event passes.
func (s *ratioSampler) Allow() bool {
	r := s.ratio.Load()
	if r == nil {
		return true
	}
	n := s.seq.Add(1) - 1
	return n%r.every < r.keep
}

// parseRatioSpec accepts "keep/every", "every" (one in every) and "N%".
// Anything else, or a non-positive value, disables sampling.
func parseRatioSpec(spec string) (int, int) {
	spec = strings.TrimSpace(spec)
	if pct, ok := strings.CutSuffix(spec, "%"); ok {
		if v, err := strconv.Atoi(strings.TrimSpace(pct)); err == nil && v > 0 {
			return v, 100
		}
		return 0, 0
	}
	if keep, every, ok := strings.Cut(spec, "/"); ok {
		k, err1 := strconv.Atoi(strings.TrimSpace(keep))
		e, err2 := strconv.Atoi(strings.TrimSpace(every))
		if err1 != nil || err2 != nil || k <= 0 || e <= 0 {
			return 0, 0
		}
		return k, e
	}
	if v, err := strconv.Atoi(spec); err == nil && v > 0 {
		return 1, v
	}
	return 0, 0
}
