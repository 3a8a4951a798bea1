package capability

import (
	"encoding/binary"
	"hash/fnv"
)

// SampleIncludes applies the SampleSpec selection rule to a unit key.
// All adapters must use this rule so source and target checksum the same
// subset during migration verification.
func SampleIncludes(key string, spec SampleSpec) bool {
	if spec.Rate >= 1.0 {
		return true
	}
	if spec.Rate <= 0 {
		return false
	}
	h := fnv.New32a()
	var seed [8]byte
	binary.BigEndian.PutUint64(seed[:], uint64(spec.Seed))
	h.Write(seed[:])
	h.Write([]byte(key))
	// Scale the 32-bit hash to [0,1) and compare against the rate.
	return float64(h.Sum32())/float64(1<<32) < spec.Rate
}
