package runner

// CombineSeed mixes a worker index into the base seed with a
// rotate-left-5 / add / xor step, giving each worker a reproducible but
// uncorrelated random stream for the same base seed.
func CombineSeed(workerIndex int, baseSeed int64) int64 {
	h := uint64(baseSeed)
	rotated := (h << 5) | (h >> 59)
	return int64((rotated + h) ^ uint64(workerIndex))
}
