package opt

import "math/rand"

// defaultSeed replaces a zero seed so that "no seed" is still reproducible.
const defaultSeed int64 = 1

// NewRNG returns a deterministic source for seed. *rand.Rand is not safe for
// concurrent use; parallel runs derive their own with DeriveSeed.
func NewRNG(seed int64) *rand.Rand {
	if seed == 0 {
		seed = defaultSeed
	}
	return rand.New(rand.NewSource(seed))
}

// DeriveSeed mixes a parent seed with a stream id (SplitMix64 finalizer) so
// that runs 0..k of a multi-start or grid get uncorrelated seeds.
func DeriveSeed(parent int64, stream uint64) int64 {
	x := uint64(parent) ^ (stream + 0x9e3779b97f4a7c15)
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	x ^= x >> 31
	return int64(x)
}

func shuffleInts(a []int, rng *rand.Rand) {
	for i := len(a) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		a[i], a[j] = a[j], a[i]
	}
}
