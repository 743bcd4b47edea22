package orphanage

import (
	"crypto/rand"
	"math/big"
)

// Rng supplies uniformly distributed integers in [0, n) for random
// eviction. A connected peer must not be able to predict its output, or
// uniform eviction loses its defense against an attacker displacing
// valuable orphans with cheap ones.
type Rng interface {
	Uniform(n int) int
}

// CryptoRng is the production Rng, backed by crypto/rand — the same source
// the rest of obsidian-core reaches for whenever randomness must resist a
// network adversary (ECDSA nonces in crypto/signature.go, shielded proof
// blinding in wire/shielded.go).
type CryptoRng struct{}

// Uniform returns a uniformly distributed value in [0, n).
func (CryptoRng) Uniform(n int) int {
	if n <= 0 {
		return 0
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		// The OS entropy source is broken; there is no safe way to keep
		// evicting without it, so fall back to the first slot rather than
		// block the caller forever.
		return 0
	}
	return int(v.Int64())
}

// DefaultRng is the process-wide CryptoRng instance for callers that do not
// need a custom Rng, e.g. the orphan-limit ticker in network.SyncManager.
var DefaultRng Rng = CryptoRng{}
