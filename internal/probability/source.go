package probability

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Source yields uniform floats in [0, 1).
type Source interface {
	Float64() (float64, error)
}

// CryptoSource draws from crypto/rand.
type CryptoSource struct {
	reader io.Reader
}

func NewCryptoSource() *CryptoSource {
	return &CryptoSource{reader: rand.Reader}
}

// Float64 uses the top 53 bits of a random uint64.
func (s *CryptoSource) Float64() (float64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(s.reader, buf[:]); err != nil {
		return 0, fmt.Errorf("read random: %w", err)
	}
	return float64(binary.BigEndian.Uint64(buf[:])>>11) / (1 << 53), nil
}

// Intn maps one draw from src into [0, n).
func Intn(src Source, n int) (int, error) {
	if n <= 0 {
		return 0, errors.New("intn: n must be positive")
	}
	f, err := src.Float64()
	if err != nil {
		return 0, err
	}
	if f < 0 || f >= 1 {
		return 0, ErrInvalidRoll
	}
	i := int(f * float64(n))
	if i >= n {
		i = n - 1
	}
	return i, nil
}
