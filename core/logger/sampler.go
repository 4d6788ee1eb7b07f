package logger

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// ratio passes num out of every den events. The pair is packed into one word so Set and
// Allow need no lock.
type ratio struct {
	spec    atomic.Uint64
	counter atomic.Uint64
}

func newRatioSampler(num, den int) *ratio {
	s := &ratio{}
	s.Set(num, den)
	return s
}

// Set changes the ratio; a non-positive part disables sampling.
func (s *ratio) Set(num, den int) {
	if num <= 0 || den <= 0 {
		s.spec.Store(0)
		return
	}
	num = min(num, den)
	s.spec.Store(uint64(num)<<32 | uint64(uint32(den)))
	s.counter.Store(0)
}

// Allow reports whether the next event passes.
func (s *ratio) Allow() bool {
	spec := s.spec.Load()
	if spec == 0 {
		return true
	}
	num, den := spec>>32, spec&0xffffffff
	n := s.counter.Add(1) - 1
	return n%den < num
}

// parseRatioSpec reads "n/d" or "d" (meaning 1/d).
func parseRatioSpec(spec string) (int, int) {
	spec = strings.TrimSpace(spec)
	if a, b, ok := strings.Cut(spec, "/"); ok {
		num, err1 := strconv.Atoi(strings.TrimSpace(a))
		den, err2 := strconv.Atoi(strings.TrimSpace(b))
		if err1 == nil && err2 == nil {
			return num, den
		}
		return 0, 0
	}
	if v, err := strconv.Atoi(spec); err == nil && v > 0 {
		return 1, v
	}
	return 0, 0
}
