package miniscript

import "crypto/sha256"

func shaSum256(data []byte) [32]byte {
	return sha256.Sum256(data)
}
