package remittance

import "golang.org/x/crypto/sha3"

// Domain tags keep the two derivations (and the input kinds inside them)
// from ever producing the same preimage.
const (
	retrievalDomain = "remittance/retrieval-code/v1"
	secureDomain    = "remittance/secure-code/v1"

	tagAddress byte = 0x02
	tagHash    byte = 0x03
)

// RetrievalCode derives the code shared by sender and exchange from the
// secret. The fragments are concatenated before hashing, so how a client
// splits the secret does not change the code.
func RetrievalCode(fragments ...[]byte) Hash {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(retrievalDomain))
	for _, f := range fragments {
		h.Write(f)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// RetrievalCodeFromStrings is RetrievalCode for text fragments.
func RetrievalCodeFromStrings(fragments ...string) Hash {
	bs := make([][]byte, len(fragments))
	for i, f := range fragments {
		bs[i] = []byte(f)
	}
	return RetrievalCode(bs...)
}

// SecureCode binds a retrieval code to the identity allowed to claim it.
// The ledger recomputes it from the caller at withdrawal, so a code observed
// in flight is useless to anyone but the bound claimant.
func SecureCode(claimant Address, retrieval Hash) Hash {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(secureDomain))
	h.Write([]byte{tagAddress})
	h.Write(claimant[:])
	h.Write([]byte{tagHash})
	h.Write(retrieval[:])
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}
