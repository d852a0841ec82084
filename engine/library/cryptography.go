package library

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

func Sha256Sum(data interface{}) Sha256 {
	var b []byte
	switch d := data.(type) {
	case string:
		b = []byte(d)
	case []byte:
		b = d
	default:
		LogCLI("attempted to hash non-string or non-[]byte", 1)
	}
	h := sha256.New()
	h.Write(b)
	return fmt.Sprintf("%x", h.Sum(nil))
}

// ValidatePreimage reports whether the hex-encoded preimage hashes to the
// payment hash embedded in a bolt11 payment request.
func ValidatePreimage(preimage string, paymentHash Sha256) bool {
	raw, err := hex.DecodeString(preimage)
	if err != nil {
		return false
	}
	return Sha256Sum(raw) == paymentHash
}
