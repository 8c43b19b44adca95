package verification

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
)

// DefaultCodeLength is the number of digits in a generated OTP.
const DefaultCodeLength = 6

// CodeGenerator produces fixed-width numeric one-time codes from a
// cryptographically secure random source, together with their hashes.
type CodeGenerator struct {
	length int
}

// NewCodeGenerator creates a CodeGenerator. A non-positive length falls back
// to DefaultCodeLength.
func NewCodeGenerator(length int) *CodeGenerator {
	if length <= 0 {
		length = DefaultCodeLength
	}
	return &CodeGenerator{length: length}
}

// Generate returns a zero-padded decimal code and its hash.
func (g *CodeGenerator) Generate() (code, hash string, err error) {
	bound := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(g.length)), nil)
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return "", "", fmt.Errorf("generate code: %w", err)
	}
	code = fmt.Sprintf("%0*d", g.length, n)
	return code, HashCode(code), nil
}

// HashCode returns the hex-encoded SHA-256 of the code's UTF-8 bytes.
// Codes are short-lived and single-use, so no per-record salt is kept.
func HashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// MatchesHash compares a submitted code against a stored hash in constant time.
func MatchesHash(hash, code string) bool {
	return subtle.ConstantTimeCompare([]byte(hash), []byte(HashCode(code))) == 1
}
