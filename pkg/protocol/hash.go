package protocol

import (
	"crypto/sha256"
	"crypto/subtle"
)

// ComputeAuthHash computes sha256(salt || passphrase), the hash a repeater
// must present in RPTK after receiving the server's MSTCL challenge.
func ComputeAuthHash(salt []byte, passphrase string) []byte {
	h := sha256.New()
	h.Write(salt)
	h.Write([]byte(passphrase))
	return h.Sum(nil)
}

// VerifyAuthHash reports whether got matches the expected hash for salt and
// passphrase, in constant time.
func VerifyAuthHash(salt []byte, passphrase string, got []byte) bool {
	want := ComputeAuthHash(salt, passphrase)
	return subtle.ConstantTimeCompare(want, got) == 1
}
