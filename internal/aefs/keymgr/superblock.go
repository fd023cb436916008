package keymgr

import (
	"bufio"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aefs/aefs/internal/aefs/binio"
	"github.com/aefs/aefs/internal/aefs/cipher"
	"github.com/aefs/aefs/internal/aefs/codec"
	"github.com/aefs/aefs/internal/aefs/errs"
	"github.com/aefs/aefs/internal/aefs/secure"
	"github.com/aefs/aefs/internal/aefs/types"
)

const (
	superblock1Name = "SUPERBLK.1"
	superblock2Name = "SUPERBLK.2"
	keyFileName     = "KEY"

	sb2RandomPad  = 32
	sb2LabelSize  = 12
	sb2DescSize   = 128
	sb2FlagDirty  = 1 << 0
	maxKeySize    = 32 // bytes; covers up to Rijndael/Twofish-256
	maxBlockBytes = 32
)

// CipherParams names the cipher/key/block configuration recorded in
// SUPERBLK.1.
type CipherParams struct {
	ID           cipher.ID
	KeyBits      int
	BlockBits    int
	UseCBC       bool
	EncryptedKey bool // whether KEY wraps the data key under the pass key
}

// Superblock2 is the bootstrap metadata carried by the single encrypted
// sector SUPERBLK.2, spec §6.
type Superblock2 struct {
	Version     uint32
	Dirty       bool
	RootID      types.FileID
	Label       string
	Description string
}

// SuperBlock exclusively owns the expanded data key (spec §3 "Lifecycle &
// ownership"); callers must Burn() it via Close when done.
type SuperBlock struct {
	BasePath string
	Params   CipherParams
	Block2   Superblock2
	DataKey  *secure.Bytes
}

// Close burns the data key. Safe to call more than once.
func (sb *SuperBlock) Close() {
	if sb.DataKey != nil {
		sb.DataKey.Burn()
	}
}

// ReadResult distinguishes why a read didn't fully succeed, per spec §4.2
// ("cr distinguishes absent/bad-checksum/unknown-cipher/bad-version").
type ReadResult int

const (
	ReadOK ReadResult = iota
	ReadAbsent
	ReadBadChecksum
	ReadUnknownCipher
	ReadBadVersion
)

// ReadSuperblock reads SUPERBLK.1/.2 (and KEY, if the cipher params say the
// data key is wrapped) and returns a constructed SuperBlock even on partial
// failure, so aefsck-style tools can inspect whatever is recoverable.
func ReadSuperblock(basePath string, passphrase []byte) (*SuperBlock, ReadResult, error) {
	sb := &SuperBlock{BasePath: basePath}

	params, err := readSuperblock1(filepath.Join(basePath, superblock1Name))
	if os.IsNotExist(err) {
		return sb, ReadAbsent, errs.New(errs.BadSuperblock, "missing SUPERBLK.1")
	}
	if err != nil {
		return sb, ReadAbsent, err
	}
	sb.Params = params

	passKey := HashPassphrase(passphrase, params.KeyBits/8)
	defer passKey.Burn()

	dataKey, err := resolveDataKey(basePath, params, passKey)
	if err != nil {
		sb.DataKey = nil
		return sb, ReadUnknownCipher, err
	}
	sb.DataKey = dataKey

	blk, err := cipher.New(params.ID, sb.DataKey.Bytes())
	if err != nil {
		return sb, ReadUnknownCipher, errs.Wrap(errs.UnknownCipher, "cipher construction", err)
	}

	b2, cr, err := readSuperblock2(filepath.Join(basePath, superblock2Name), blk, params)
	if err != nil {
		return sb, cr, err
	}
	sb.Block2 = b2

	return sb, ReadOK, nil
}

// WriteSuperblock atomically rewrites SUPERBLK.1 (unless suppressSB1 is
// set) then SUPERBLK.2, per spec §4.2.
func WriteSuperblock(sb *SuperBlock, suppressSB1 bool) error {
	if !suppressSB1 {
		if err := writeSuperblock1(filepath.Join(sb.BasePath, superblock1Name), sb.Params); err != nil {
			return err
		}
	}

	blk, err := cipher.New(sb.Params.ID, sb.DataKey.Bytes())
	if err != nil {
		return errs.Wrap(errs.UnknownCipher, "cipher construction", err)
	}
	return writeSuperblock2(filepath.Join(sb.BasePath, superblock2Name), blk, sb.Params, sb.Block2)
}

// WriteDataKey re-wraps the data key under a newly derived pass key
// (spec §4.2 "write_data_key"), rewriting KEY. It returns InvalidParameter
// for a volume without a wrapped KEY file and never rewrites SUPERBLK.1.
func WriteDataKey(sb *SuperBlock, newPassphrase []byte) error {
	passKey := HashPassphrase(newPassphrase, sb.Params.KeyBits/8)
	defer passKey.Burn()

	if !sb.Params.EncryptedKey {
		// The data key IS the pass key: rotating the passphrase rotates the
		// data key itself, which would re-encrypt the whole volume. AEFS
		// instead requires EncryptedKey for passphrase rotation; reject.
		return errs.New(errs.InvalidParameter, "cannot rotate passphrase: volume has no wrapped KEY file")
	}

	blk, err := cipher.New(sb.Params.ID, passKey.Bytes())
	if err != nil {
		return errs.Wrap(errs.UnknownCipher, "cipher construction", err)
	}
	return writeKeyFile(filepath.Join(sb.BasePath, keyFileName), blk, sb.DataKey)
}

func readSuperblock1(path string) (CipherParams, error) {
	f, err := os.Open(path)
	if err != nil {
		return CipherParams{}, err
	}
	defer f.Close()

	p := CipherParams{KeyBits: 128, BlockBits: 128}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue // unrecognized lines are ignored, spec §4.2
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)

		switch key {
		case "cipher":
			parts := strings.Split(val, "-")
			if len(parts) != 3 {
				continue
			}
			p.ID = cipher.ID(parts[0])
			p.KeyBits, _ = strconv.Atoi(parts[1])
			p.BlockBits, _ = strconv.Atoi(parts[2])
		case "use-cbc":
			p.UseCBC = val == "1"
		case "encrypted-key":
			p.EncryptedKey = val == "1"
		}
	}
	if err := sc.Err(); err != nil {
		return CipherParams{}, err
	}
	if p.ID == "" {
		return CipherParams{}, errs.New(errs.BadSuperblock, "SUPERBLK.1 missing cipher line")
	}
	return p, nil
}

func writeSuperblock1(path string, p CipherParams) error {
	var sbuf strings.Builder
	fmt.Fprintf(&sbuf, "cipher: %s-%d-%d\n", p.ID, p.KeyBits, p.BlockBits)
	fmt.Fprintf(&sbuf, "use-cbc: %s\n", boolDigit(p.UseCBC))
	fmt.Fprintf(&sbuf, "encrypted-key: %s\n", boolDigit(p.EncryptedKey))
	return writeFileAtomic(path, []byte(sbuf.String()))
}

func boolDigit(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func resolveDataKey(basePath string, p CipherParams, passKey *secure.Bytes) (*secure.Bytes, error) {
	if !p.EncryptedKey {
		return passKey.Clone(), nil
	}

	raw, err := os.ReadFile(filepath.Join(basePath, keyFileName))
	if err != nil {
		return nil, errs.Wrap(errs.SysIO, "reading KEY", err)
	}
	blk, err := cipher.New(p.ID, passKey.Bytes())
	if err != nil {
		return nil, errs.Wrap(errs.UnknownCipher, "cipher construction", err)
	}
	return unwrapDataKey(raw, blk, p.KeyBits/8)
}

// wrapped KEY layout: data key padded with random bytes up to a multiple of
// the cipher's block size, ECB-encrypted under the pass key.
func writeKeyFile(path string, blk cipher.BlockCipher, dataKey *secure.Bytes) error {
	bs := blk.BlockSize()
	n := dataKey.Len()
	padded := n
	if r := padded % bs; r != 0 {
		padded += bs - r
	}
	buf := make([]byte, padded)
	copy(buf, dataKey.Bytes())
	if padded > n {
		if _, err := rand.Read(buf[n:]); err != nil {
			return err
		}
	}
	for off := 0; off < padded; off += bs {
		blk.Encrypt(buf[off:off+bs], buf[off:off+bs])
	}
	return writeFileAtomic(path, buf)
}

func unwrapDataKey(wrapped []byte, blk cipher.BlockCipher, keyLen int) (*secure.Bytes, error) {
	bs := blk.BlockSize()
	if len(wrapped)%bs != 0 || len(wrapped) < keyLen {
		return nil, errs.New(errs.BadSuperblock, "malformed KEY file")
	}
	buf := make([]byte, len(wrapped))
	for off := 0; off < len(wrapped); off += bs {
		blk.Decrypt(buf[off:off+bs], wrapped[off:off+bs])
	}
	return secure.New(buf[:keyLen]), nil
}

func readSuperblock2(path string, blk cipher.BlockCipher, p CipherParams) (Superblock2, ReadResult, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Superblock2{}, ReadAbsent, errs.Wrap(errs.SysIO, "reading SUPERBLK.2", err)
	}
	if len(raw) != types.SectorSize {
		return Superblock2{}, ReadBadChecksum, errs.New(errs.BadSuperblock, "SUPERBLK.2 is not one sector")
	}

	sector := append([]byte(nil), raw...)
	flags := types.UseECB
	if p.UseCBC {
		flags = types.UseCBC
	}
	if err := codec.Decrypt(sector, blk, flags); err != nil {
		// A wrong passphrase manifests here as BadChecksum, spec §7.
		return Superblock2{}, ReadBadChecksum, err
	}

	payload := codec.Payload(sector)
	r := binio.NewReader(payload)
	_ = r.Bytes(sb2RandomPad) // leading random padding, spec §6
	magic := r.U32()
	if magic != types.MagicSuperblock {
		return Superblock2{}, ReadBadChecksum, errs.New(errs.BadSuperblock, "bad SUPERBLK.2 magic")
	}
	version := r.U32()
	// Open Question (spec §9): the original version check was a C
	// precedence bug comparing `version & 0xff0000 > SBV_CURRENT &
	// 0xff0000`. The intended check is "do the major versions match",
	// implemented directly and documented rather than reproduced.
	if version>>16 != types.CurrentVersion>>16 {
		return Superblock2{}, ReadBadVersion, errs.New(errs.BadVersion, "unsupported major version")
	}
	flagsField := r.U32()
	rootID := types.FileID(r.U32())
	label := string(trimNul(r.Bytes(sb2LabelSize)))
	desc := string(trimNul(r.Bytes(sb2DescSize)))

	return Superblock2{
		Version:     version,
		Dirty:       flagsField&sb2FlagDirty != 0,
		RootID:      rootID,
		Label:       label,
		Description: desc,
	}, ReadOK, nil
}

func writeSuperblock2(path string, blk cipher.BlockCipher, p CipherParams, b2 Superblock2) error {
	sector := make([]byte, types.SectorSize)
	if _, err := rand.Read(codec.Random(sector)); err != nil {
		return err
	}

	payload := codec.Payload(sector)
	w := binio.NewWriter(payload)
	randPad := make([]byte, sb2RandomPad)
	_, _ = rand.Read(randPad)
	w.Bytes(randPad)
	w.U32(types.MagicSuperblock)
	w.U32(b2.Version)
	var flagsField uint32
	if b2.Dirty {
		flagsField |= sb2FlagDirty
	}
	w.U32(flagsField)
	w.U32(uint32(b2.RootID))
	w.Bytes(padTo([]byte(b2.Label), sb2LabelSize))
	w.Bytes(padTo([]byte(b2.Description), sb2DescSize))

	flags := types.UseECB
	if p.UseCBC {
		flags = types.UseCBC
	}
	if err := codec.Encrypt(sector, blk, flags); err != nil {
		return err
	}
	return writeFileAtomic(path, sector)
}

func padTo(b []byte, n int) []byte {
	out := make([]byte, n)
	copy(out, b)
	return out
}

func trimNul(b []byte) []byte {
	for i, c := range b {
		if c == 0 {
			return b[:i]
		}
	}
	return b
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errs.Wrap(errs.SysIO, "writing "+path, err)
	}
	return os.Rename(tmp, path)
}
