// Package keymgr implements passphrase hashing and the superblock (spec
// §4.2): SUPERBLK.1 (plaintext cipher parameters), SUPERBLK.2 (one
// encrypted sector of bootstrap metadata), and the optional KEY file that
// wraps the data key under the pass key.
package keymgr

import (
	"crypto/sha1"

	"github.com/aefs/aefs/internal/aefs/secure"
)

// shaDigestSize is SHA-1's digest width, used as the chunking unit of the
// passphrase hash (spec §4.2).
const shaDigestSize = sha1.Size // 20

// HashPassphrase derives a keyLen-byte key from phrase. It consumes phrase
// in shaDigestSize chunks; for each chunk it computes
// digest = SHA1(currentKey || chunk) and XORs digest into the key buffer
// starting at a rotating write position (mod keyLen), so phrases longer
// than one digest are not wasted and a repeating phrase does not converge
// to zero.
func HashPassphrase(phrase []byte, keyLen int) *secure.Bytes {
	key := secure.NewZero(keyLen)
	kb := key.Bytes()

	pos := 0
	for off := 0; off < len(phrase); off += shaDigestSize {
		end := off + shaDigestSize
		if end > len(phrase) {
			end = len(phrase)
		}
		chunk := phrase[off:end]

		h := sha1.New()
		h.Write(kb)
		h.Write(chunk)
		digest := h.Sum(nil)

		for i := 0; i < len(digest); i++ {
			kb[(pos+i)%keyLen] ^= digest[i]
		}
		pos = (pos + len(chunk)) % keyLen
	}
	return key
}
