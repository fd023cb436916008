// Package cipher adapts opaque block ciphers (Rijndael, Twofish) behind a
// narrow interface, per spec §1: the primitives themselves are out of
// scope, only key-expansion and single-block encrypt/decrypt are needed by
// the sector codec.
package cipher

import (
	"crypto/aes"
	"fmt"

	"golang.org/x/crypto/twofish"
)

// BlockCipher is the narrow interface the sector codec drives. It never
// sees more than one block at a time; chaining is the codec's job.
type BlockCipher interface {
	// BlockSize returns the cipher's block size in bytes.
	BlockSize() int
	// Encrypt encrypts the first BlockSize() bytes of src into dst.
	Encrypt(dst, src []byte)
	// Decrypt decrypts the first BlockSize() bytes of src into dst.
	Decrypt(dst, src []byte)
}

// ID identifies a cipher family, independent of key/block size, matching
// the "cipher: <id>-<keybits>-<blockbits>" line in SUPERBLK.1.
type ID string

const (
	Rijndael ID = "rijndael"
	Twofish  ID = "twofish"
)

// New performs key expansion for the named cipher with key (its length sets
// the key size) and returns a ready-to-use BlockCipher, or a plain error if
// id or the key length is not supported; callers wrap that error with
// errs.UnknownCipher.
func New(id ID, key []byte) (BlockCipher, error) {
	switch id {
	case Rijndael:
		blk, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("rijndael key expansion: %w", err)
		}
		return stdCipher{blk}, nil
	case Twofish:
		blk, err := twofish.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("twofish key expansion: %w", err)
		}
		return stdCipher{blk}, nil
	default:
		return nil, fmt.Errorf("unknown cipher id %q", id)
	}
}

// stdCipher adapts the standard cipher.Block interface (which both
// crypto/aes and golang.org/x/crypto/twofish implement) to BlockCipher.
type stdCipher struct {
	blk stdBlock
}

// stdBlock mirrors crypto/cipher.Block without importing it under a name
// that would collide with this package.
type stdBlock interface {
	BlockSize() int
	Encrypt(dst, src []byte)
	Decrypt(dst, src []byte)
}

func (s stdCipher) BlockSize() int            { return s.blk.BlockSize() }
func (s stdCipher) Encrypt(dst, src []byte)   { s.blk.Encrypt(dst, src) }
func (s stdCipher) Decrypt(dst, src []byte)   { s.blk.Decrypt(dst, src) }
