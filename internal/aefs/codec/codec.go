// Package codec implements the sector codec (spec §4.1): encryption and
// decryption of one 512-byte sector, with a keyed checksum that detects
// both payload corruption and the wrong passphrase.
//
// On-disk contract (permanent; never change without a volume format bump):
// the 4-byte random nonce and 4-byte checksum fields are stored in the
// clear (spec §6 describes the sector as "payload encrypted per §4.1" —
// only the payload is ciphertext). The checksum is a CBC-MAC over the
// plaintext payload, zero-padded to the cipher's block size, keeping only
// the last block's leading ChecksumSize bytes. The payload itself is then
// encrypted block by block (CBC, chained from an IV seeded by
// random||checksum, or ECB), with any short final partial block (the
// payload size need not be a multiple of the cipher's block size) folded
// in via a one-time keystream derived from encrypting the IV, so the
// scheme stays fully invertible regardless of block size.
package codec

import (
	"fmt"

	"github.com/aefs/aefs/internal/aefs/cipher"
	"github.com/aefs/aefs/internal/aefs/errs"
	"github.com/aefs/aefs/internal/aefs/types"
)

// Sector layout offsets, spec §3.
const (
	offRandom   = 0
	offChecksum = types.RandomSize
	offPayload  = types.RandomSize + types.ChecksumSize
)

// Payload returns the payload region of a raw sector buffer.
func Payload(sector []byte) []byte { return sector[offPayload : offPayload+types.PayloadSize] }

// Random returns the random (nonce) region of a raw sector buffer.
func Random(sector []byte) []byte { return sector[offRandom : offRandom+types.RandomSize] }

// checksumField returns the checksum region of a raw sector buffer.
func checksumField(sector []byte) []byte {
	return sector[offChecksum : offChecksum+types.ChecksumSize]
}

// payloadMAC computes the keyed checksum over the payload: a CBC-MAC run
// with a zero IV, the payload zero-padded up to a multiple of the cipher's
// block size (the padding participates in the MAC but is never stored),
// truncating the final cipher block to ChecksumSize bytes.
func payloadMAC(blk cipher.BlockCipher, payload []byte) []byte {
	bs := blk.BlockSize()
	padded := len(payload)
	if r := padded % bs; r != 0 {
		padded += bs - r
	}
	buf := make([]byte, padded)
	copy(buf, payload)

	prev := make([]byte, bs) // zero IV
	cur := make([]byte, bs)
	out := make([]byte, bs)
	for off := 0; off < padded; off += bs {
		block := buf[off : off+bs]
		for i := 0; i < bs; i++ {
			cur[i] = block[i] ^ prev[i]
		}
		blk.Encrypt(out, cur)
		prev, out = out, prev
	}
	return append([]byte(nil), prev[:types.ChecksumSize]...)
}

// ivSeed builds the CBC IV (and tail keystream seed) for a sector from
// random||checksum, zero-extended (or truncated) to the cipher's block
// size.
func ivSeed(blk cipher.BlockCipher, random, checksum []byte) []byte {
	bs := blk.BlockSize()
	iv := make([]byte, bs)
	n := copy(iv, random)
	copy(iv[n:], checksum)
	return iv
}

// cryptPayload runs the payload through the cipher, encrypting if encrypt
// is true, decrypting otherwise. Full blocks chain in CBC (or run
// independently in ECB); any short final block is folded in via XOR with a
// one-time keystream derived from the IV, so it needs no block-size
// alignment.
func cryptPayload(payload []byte, blk cipher.BlockCipher, iv []byte, useCBC, encrypt bool) {
	bs := blk.BlockSize()
	n := len(payload)
	full := (n / bs) * bs

	prev := iv
	tmp := make([]byte, bs)
	out := make([]byte, bs)
	for off := 0; off < full; off += bs {
		block := payload[off : off+bs]
		if encrypt {
			chainIV := iv
			if useCBC {
				chainIV = prev
			}
			for i := 0; i < bs; i++ {
				tmp[i] = block[i] ^ chainIV[i]
			}
			blk.Encrypt(out, tmp)
			copy(block, out)
			prev = append([]byte(nil), out...)
		} else {
			cipherBlock := append([]byte(nil), block...)
			blk.Decrypt(tmp, block)
			chainIV := iv
			if useCBC {
				chainIV = prev
			}
			for i := 0; i < bs; i++ {
				block[i] = tmp[i] ^ chainIV[i]
			}
			prev = cipherBlock
		}
	}

	if tail := payload[full:]; len(tail) > 0 {
		keystream := make([]byte, bs)
		blk.Encrypt(keystream, iv)
		for i := range tail {
			tail[i] ^= keystream[i]
		}
	}
}

// Encrypt encrypts a 512-byte plaintext sector in place, per spec §4.1. The
// caller must have already written a fresh nonce into the sector's random
// field. flags' only defined bit is types.UseCBC.
func Encrypt(sector []byte, blk cipher.BlockCipher, flags types.CryptoFlags) error {
	if err := checkSector(sector, blk); err != nil {
		return err
	}

	payload := Payload(sector)
	copy(checksumField(sector), payloadMAC(blk, payload))

	iv := ivSeed(blk, Random(sector), checksumField(sector))
	cryptPayload(payload, blk, iv, flags&types.UseCBC != 0, true)
	return nil
}

// Decrypt decrypts a 512-byte ciphertext sector in place. On a checksum
// mismatch it still completes the decryption (callers may want the
// materialized-anyway plaintext, per the ADD_BAD fetch flag) and returns a
// *errs.Error with code BadChecksum; on any other error decryption is
// aborted and the buffer is left undefined.
func Decrypt(sector []byte, blk cipher.BlockCipher, flags types.CryptoFlags) error {
	if err := checkSector(sector, blk); err != nil {
		return err
	}

	random := append([]byte(nil), Random(sector)...)
	checksum := append([]byte(nil), checksumField(sector)...)
	iv := ivSeed(blk, random, checksum)

	payload := Payload(sector)
	cryptPayload(payload, blk, iv, flags&types.UseCBC != 0, false)

	if mac := payloadMAC(blk, payload); !equal(mac, checksum) {
		return errs.New(errs.BadChecksum, "sector payload checksum mismatch")
	}
	return nil
}

func checkSector(sector []byte, blk cipher.BlockCipher) error {
	if len(sector) != types.SectorSize {
		return fmt.Errorf("codec: sector must be %d bytes, got %d", types.SectorSize, len(sector))
	}
	if blk.BlockSize() <= 0 || blk.BlockSize() > types.PayloadSize {
		return fmt.Errorf("codec: unusable block size %d", blk.BlockSize())
	}
	return nil
}

func equal(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
