package ton

import (
	"crypto/sha256"
	"math/big"
)

// LookupKey is the argument pair of the registry's get_source_item_address
// get-method.
type LookupKey struct {
	VerifierID *big.Int
	CodeHash   *big.Int
}

// DeriveLookupKey hashes the verifier identity with SHA-256 and reads both
// the digest and codeHash as big-endian unsigned integers.
func DeriveLookupKey(verifier string, codeHash [32]byte) LookupKey {
	id := sha256.Sum256([]byte(verifier))
	return LookupKey{
		VerifierID: new(big.Int).SetBytes(id[:]),
		CodeHash:   new(big.Int).SetBytes(codeHash[:]),
	}
}
