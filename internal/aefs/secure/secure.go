// Package secure provides a type-wrapped secret byte buffer that zeros
// itself on release, per the "burn" semantics design note: all keys,
// passphrase buffers, expanded key schedules, and plaintext sectors used as
// temporaries must flow through this type.
package secure

import "crypto/rand"

// Bytes is a secret buffer that must be released with Burn once no longer
// needed. The zero value is not usable; use New or NewRandom.
type Bytes struct {
	b      []byte
	burned bool
}

// New wraps an existing slice as a secret buffer. The caller gives up
// ownership of b; it must not be used again except through the returned
// Bytes.
func New(b []byte) *Bytes {
	return &Bytes{b: b}
}

// NewZero allocates a secret buffer of n zero bytes.
func NewZero(n int) *Bytes {
	return &Bytes{b: make([]byte, n)}
}

// NewRandom allocates a secret buffer of n bytes drawn from a
// cryptographically secure source.
func NewRandom(n int) (*Bytes, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return &Bytes{b: b}, nil
}

// Bytes returns the underlying slice. The caller must not retain it past a
// call to Burn.
func (s *Bytes) Bytes() []byte {
	if s.burned {
		panic("secure: use of burned buffer")
	}
	return s.b
}

// Len returns the length of the buffer.
func (s *Bytes) Len() int { return len(s.b) }

// Clone returns an independent secret buffer with the same contents.
func (s *Bytes) Clone() *Bytes {
	c := make([]byte, len(s.b))
	copy(c, s.b)
	return &Bytes{b: c}
}

// Burn zeros the buffer and marks it unusable. Safe to call more than once.
func (s *Bytes) Burn() {
	if s.burned {
		return
	}
	for i := range s.b {
		s.b[i] = 0
	}
	s.burned = true
	s.b = nil
}
