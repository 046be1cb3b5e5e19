package logits

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

var (
	ErrDegenerateDistribution = errors.New("degenerate distribution")
	ErrInvalidTemperature     = errors.New("invalid temperature")
)

// SamplerConfig configures the behaviour of a Sampler.
type SamplerConfig struct {
	// Seed for the random source. Negative seeds from the clock.
	Seed int64
	// Temperature reshapes the distribution. Zero selects greedy decoding.
	Temperature float64
	// TopK keeps only the k most likely entries. Zero disables it.
	TopK int
}

// Sampler picks one index from a probability vector. A Sampler owns scratch
// buffers and a random source, so it must not be shared between goroutines.
type Sampler struct {
	rng    *rand.Rand
	cfg    SamplerConfig
	greedy bool
	prob   []float64
	keep   []bool
	topIdx []int
	topVal []float64
}

// NewSampler returns a new sampler with the provided configuration.
func NewSampler(cfg SamplerConfig) (*Sampler, error) {
	if err := ValidateTemperature(cfg.Temperature); err != nil {
		return nil, err
	}
	if cfg.TopK < 0 {
		cfg.TopK = 0
	}
	seed := cfg.Seed
	if seed < 0 {
		seed = time.Now().UnixNano()
	}
	return &Sampler{
		rng:    rand.New(rand.NewSource(seed)),
		cfg:    cfg,
		greedy: cfg.Temperature == 0,
	}, nil
}

// ValidateTemperature accepts zero (greedy) and any finite positive value.
func ValidateTemperature(t float64) error {
	if math.IsNaN(t) || math.IsInf(t, 0) || t < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidTemperature, t)
	}
	return nil
}

// Greedy reports whether the sampler always returns the mode.
func (s *Sampler) Greedy() bool { return s.greedy }

func (s *Sampler) Temperature() float64 { return s.cfg.Temperature }

// Sample draws a single index from the distribution p:
//
//  1. Greedy samplers return Argmax(p).
//  2. Entries outside the TopK largest are zeroed when TopK is set.
//  3. Unless the temperature is 1, every p is reshaped to exp(ln(p)/T).
//  4. The vector is renormalized to sum to 1.
//  5. A value r is drawn from [0,1) and the cumulative sum is walked until it
//     reaches r.
//
// p is not modified.
func (s *Sampler) Sample(p []float32) (int, error) {
	if len(p) == 0 {
		return 0, fmt.Errorf("%w: empty", ErrDegenerateDistribution)
	}
	if err := checkEntries(p); err != nil {
		return 0, err
	}
	if s.greedy {
		return Argmax(p), nil
	}

	if cap(s.prob) < len(p) {
		s.prob = make([]float64, len(p))
		s.keep = make([]bool, len(p))
	}
	prob := s.prob[:len(p)]
	for i, v := range p {
		prob[i] = float64(v)
	}
	if s.cfg.TopK > 0 && s.cfg.TopK < len(prob) {
		s.keepTopK(prob, s.cfg.TopK)
	}
	if s.cfg.Temperature != 1 {
		ApplyTemperature(prob, s.cfg.Temperature)
	}
	if err := Normalize(prob); err != nil {
		return 0, err
	}
	return pick(prob, s.rng.Float64()), nil
}

// pick walks the cumulative sum. Entries without mass are never selected;
// if rounding keeps the sum below r the last entry with mass wins.
func pick(prob []float64, r float64) int {
	var acc float64
	last := -1
	for i, v := range prob {
		if v <= 0 {
			continue
		}
		acc += v
		last = i
		if acc >= r {
			return i
		}
	}
	if last < 0 {
		return 0
	}
	return last
}

func checkEntries(p []float32) error {
	for i, v := range p {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
			return fmt.Errorf("%w: entry %d is %v", ErrDegenerateDistribution, i, v)
		}
	}
	return nil
}

// ApplyTemperature reshapes p in place to exp(ln(p)/t). Zero entries stay
// zero. Values are scaled by the maximum first so large exponents cannot
// overflow; the scale cancels on normalization.
func ApplyTemperature(p []float64, t float64) {
	var maxv float64
	for _, v := range p {
		if v > maxv {
			maxv = v
		}
	}
	if maxv <= 0 || math.IsInf(maxv, 0) {
		return
	}
	inv := 1 / t
	for i, v := range p {
		if v <= 0 {
			p[i] = 0
			continue
		}
		p[i] = math.Exp(math.Log(v/maxv) * inv)
	}
}

// Normalize divides p by its sum.
func Normalize(p []float64) error {
	var sum float64
	for _, v := range p {
		sum += v
	}
	if sum <= 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return fmt.Errorf("%w: sum %v", ErrDegenerateDistribution, sum)
	}
	if sum == 1 {
		return nil
	}
	for i := range p {
		p[i] /= sum
	}
	return nil
}

// Argmax returns the index of the maximum value in the slice. Ties go to the
// first index, NaN entries are skipped and an empty slice yields 0.
func Argmax(x []float32) int {
	bestI := 0
	bestV := float32(math.Inf(-1))
	found := false
	for i, v := range x {
		if v != v {
			continue
		}
		if !found || v > bestV {
			bestV = v
			bestI = i
			found = true
		}
	}
	return bestI
}

// keepTopK zeroes every entry outside the k largest. The shortlist is an
// O(V*K) insertion sort, fine for character vocabularies.
func (s *Sampler) keepTopK(prob []float64, k int) {
	if cap(s.topIdx) < k+1 {
		s.topIdx = make([]int, 0, k+1)
		s.topVal = make([]float64, 0, k+1)
	}
	topIdx := s.topIdx[:0]
	topVal := s.topVal[:0]

	for i, v := range prob {
		pos := len(topVal)
		for pos > 0 && topVal[pos-1] < v {
			pos--
		}
		if pos >= k {
			continue
		}
		topIdx = append(topIdx, 0)
		topVal = append(topVal, 0)
		copy(topIdx[pos+1:], topIdx[pos:])
		copy(topVal[pos+1:], topVal[pos:])
		topIdx[pos] = i
		topVal[pos] = v
		if len(topVal) > k {
			topIdx = topIdx[:k]
			topVal = topVal[:k]
		}
	}
	s.topIdx = topIdx
	s.topVal = topVal

	keep := s.keep[:len(prob)]
	clear(keep)
	for _, i := range topIdx {
		keep[i] = true
	}
	for i := range prob {
		if !keep[i] {
			prob[i] = 0
		}
	}
}
