package usecase

import (
	"crypto/rand"
	"fmt"
	"strings"
)

const (
	bagIDPrefix   = "BAG-"
	bagIDLength   = 8
	bagIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// Largest multiple of len(bagIDAlphabet) below 256, for unbiased sampling.
	bagIDByteLimit = 252
)

// NewBagID returns an opaque identifier such as BAG-7QK2M9XD. Nothing about
// the bag, its amount or its source can be read from it.
func NewBagID() (string, error) {
	var b strings.Builder
	b.Grow(len(bagIDPrefix) + bagIDLength)
	b.WriteString(bagIDPrefix)
	buf := make([]byte, bagIDLength*2)
	for n := 0; n < bagIDLength; {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		for _, c := range buf {
			if c >= bagIDByteLimit {
				continue
			}
			b.WriteByte(bagIDAlphabet[int(c)%len(bagIDAlphabet)])
			n++
			if n == bagIDLength {
				break
			}
		}
	}
	return b.String(), nil
}

// ValidBagID reports whether id has the shape NewBagID produces.
func ValidBagID(id string) bool {
	if len(id) != len(bagIDPrefix)+bagIDLength || !strings.HasPrefix(id, bagIDPrefix) {
		return false
	}
	for _, c := range id[len(bagIDPrefix):] {
		if !strings.ContainsRune(bagIDAlphabet, c) {
			return false
		}
	}
	return true
}
