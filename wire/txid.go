package wire

import "encoding/hex"

// Txid identifies a transaction by its transparent envelope (version,
// inputs, outputs, locktime) without any shielded/witness payload. It has
// the same layout as Hash but is a distinct type so a Txid can never be
// passed where a Wtxid is expected, or vice versa.
type Txid [HashSize]byte

// String returns the Txid as a byte-reversed hex string, matching Hash.
func (t Txid) String() string {
	for i := 0; i < HashSize/2; i++ {
		t[i], t[HashSize-1-i] = t[HashSize-1-i], t[i]
	}
	return hex.EncodeToString(t[:])
}

// Wtxid identifies a transaction including its shielded/witness payload.
type Wtxid [HashSize]byte

// String returns the Wtxid as a byte-reversed hex string, matching Hash.
func (w Wtxid) String() string {
	for i := 0; i < HashSize/2; i++ {
		w[i], w[HashSize-1-i] = w[HashSize-1-i], w[i]
	}
	return hex.EncodeToString(w[:])
}

// GenTxid is a generic transaction id: either a Txid or a Wtxid, tagged so
// callers can dispatch lookups to the right index without risking a
// same-bit-pattern collision between the two id spaces.
type GenTxid struct {
	isWtxid bool
	hash    Hash
}

// NewGenTxidFromTxid builds a GenTxid tagged as a Txid.
func NewGenTxidFromTxid(t Txid) GenTxid {
	return GenTxid{isWtxid: false, hash: Hash(t)}
}

// NewGenTxidFromWtxid builds a GenTxid tagged as a Wtxid.
func NewGenTxidFromWtxid(w Wtxid) GenTxid {
	return GenTxid{isWtxid: true, hash: Hash(w)}
}

// IsWtxid reports whether this GenTxid was tagged as a Wtxid.
func (g GenTxid) IsWtxid() bool {
	return g.isWtxid
}

// Txid returns the underlying bytes as a Txid. Only meaningful if
// IsWtxid() is false.
func (g GenTxid) Txid() Txid {
	return Txid(g.hash)
}

// Wtxid returns the underlying bytes as a Wtxid. Only meaningful if
// IsWtxid() is true.
func (g GenTxid) Wtxid() Wtxid {
	return Wtxid(g.hash)
}
