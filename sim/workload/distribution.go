package workload

import (
	"fmt"
	"math/bits"
	"math/rand"
)

// IntSampler draws integers from a fixed distribution.
type IntSampler interface {
	Sample(rng *rand.Rand) int
}

// UniformSampler draws uniformly from [min, max].
type UniformSampler struct {
	min, max int
}

func (s *UniformSampler) Sample(rng *rand.Rand) int {
	if s.min == s.max {
		return s.min
	}
	return s.min + rng.Intn(s.max-s.min+1)
}

// PowerOfTwoSampler draws 2^k with k uniform over the exponents of [min, max].
type PowerOfTwoSampler struct {
	minExp, maxExp int
}

func (s *PowerOfTwoSampler) Sample(rng *rand.Rand) int {
	k := s.minExp
	if s.maxExp > s.minExp {
		k += rng.Intn(s.maxExp - s.minExp + 1)
	}
	return 1 << k
}

// NewUniformSampler validates the range and returns a sampler over it.
func NewUniformSampler(min, max int) (*UniformSampler, error) {
	if min < 0 || max < min {
		return nil, fmt.Errorf("uniform range [%d, %d] is invalid", min, max)
	}
	return &UniformSampler{min: min, max: max}, nil
}

// NewPowerOfTwoSampler returns a sampler over the powers of two in [min, max].
// Both bounds must themselves be powers of two.
func NewPowerOfTwoSampler(min, max int) (*PowerOfTwoSampler, error) {
	if !isPow2(min) || !isPow2(max) || max < min {
		return nil, fmt.Errorf("power-of-two range [%d, %d] is invalid", min, max)
	}
	return &PowerOfTwoSampler{minExp: log2(min), maxExp: log2(max)}, nil
}

func isPow2(n int) bool { return n > 0 && n&(n-1) == 0 }

func log2(n int) int { return bits.Len(uint(n)) - 1 }
