package sim

import (
	"hash/fnv"
	"math/rand"
)

// SimulationKey is the seed a workload is reproduced from.
type SimulationKey int64

// NewSimulationKey wraps a config seed.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// Random streams used by the workload generator.
const (
	// SubsystemWorkload draws memory sizes and instruction counts.
	SubsystemWorkload = "workload"
	// SubsystemProgram draws instruction kinds and operands.
	SubsystemProgram = "program"
)

// PartitionedRNG hands out one independent *rand.Rand per named stream, so
// drawing more program instructions never shifts the sequence of memory sizes.
// The workload stream is seeded with the key itself; every other stream with
// key ^ fnv1a64(name).
//
// Not safe for concurrent use; the generator calls it under its own lock.
type PartitionedRNG struct {
	key     SimulationKey
	streams map[string]*rand.Rand
}

// NewPartitionedRNG returns a PartitionedRNG with no streams created yet.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{key: key, streams: make(map[string]*rand.Rand)}
}

// ForSubsystem returns the stream for name, creating it on first use.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if r, ok := p.streams[name]; ok {
		return r
	}
	seed := int64(p.key)
	if name != SubsystemWorkload {
		seed ^= fnv1a64(name)
	}
	r := rand.New(rand.NewSource(seed))
	p.streams[name] = r
	return r
}

// Key returns the seed the streams derive from.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
