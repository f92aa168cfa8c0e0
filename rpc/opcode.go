package rpc

import farm "github.com/dgryski/go-farm"

// OpCode folds the 32-bit farm fingerprint of name into 16 bits. Both ends of
// a channel compute it the same way, so no negotiation is needed.
func OpCode(name string) uint16 {
	h := farm.Fingerprint32([]byte(name))
	return uint16(h ^ h>>16)
}
