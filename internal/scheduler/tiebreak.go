package scheduler

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// tieBreakHash answers the spec's open question on deterministic faculty/option
// tie-breaking: it folds the run's random seed into a blake2b-256 digest of the
// candidate key so identical (snapshot, seed) pairs always sort identically,
// while different seeds can reorder ties without touching blake2b's security
// properties (not needed here — only its determinism and avalanche is used).
func tieBreakHash(seed int64, parts ...string) uint64 {
	h, _ := blake2b.New256(nil)
	var seedBuf [8]byte
	binary.LittleEndian.PutUint64(seedBuf[:], uint64(seed))
	_, _ = h.Write(seedBuf[:])
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte{0})
	}
	sum := h.Sum(nil)
	return binary.LittleEndian.Uint64(sum[:8])
}

// facultyTieBreakKey renders a stable sort key string for a faculty candidate.
func facultyTieBreakKey(seed int64, courseCode, facultyID string) string {
	return fmt.Sprintf("%016x", tieBreakHash(seed, courseCode, facultyID))
}
