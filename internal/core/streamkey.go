package core

import (
	"crypto/rand"
	"math/big"
)

const (
	DefaultStreamKeyLength = 15
	streamKeyAlphabet      = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// RandomKeys returns a generator of n-character alphanumeric keys drawn
// from crypto/rand.
func RandomKeys(n int) KeyGenerator {
	if n <= 0 {
		n = DefaultStreamKeyLength
	}
	max := big.NewInt(int64(len(streamKeyAlphabet)))
	return func() string {
		buf := make([]byte, n)
		for i := range buf {
			idx, err := rand.Int(rand.Reader, max)
			if err != nil {
				panic("stream key: " + err.Error())
			}
			buf[i] = streamKeyAlphabet[idx.Int64()]
		}
		return string(buf)
	}
}
