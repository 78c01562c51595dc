package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	// CodeLength is the fixed length of generated short codes. With the
	// 62-symbol alphabet this gives 62^6, about 5.6e10 combinations.
	CodeLength = 6

	codeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
)

var alphabetSize = big.NewInt(int64(len(codeAlphabet)))

// GenerateCode returns a random 6-character base62 code. crypto/rand keeps
// the draw unbiased and codes impractical to guess.
func GenerateCode() (string, error) {
	code := make([]byte, CodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		code[i] = codeAlphabet[n.Int64()]
	}
	return string(code), nil
}

// ValidCode reports whether s has the shape of a generated short code.
func ValidCode(s string) bool {
	if len(s) != CodeLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('0' <= c && c <= '9' || 'A' <= c && c <= 'Z' || 'a' <= c && c <= 'z') {
			return false
		}
	}
	return true
}
