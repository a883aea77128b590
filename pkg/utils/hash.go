package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// GenesisHash is the previous hash of the first link in a receipt chain.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// ChainedHash returns the hex encoded sha256 of canonical followed by previous.
func ChainedHash(canonical []byte, previous string) string {
	hasher := sha256.New()
	hasher.Write(canonical)
	hasher.Write([]byte(previous))
	return hex.EncodeToString(hasher.Sum(nil))
}
