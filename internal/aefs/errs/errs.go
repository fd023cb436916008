// Package errs defines the closed error taxonomy shared by every AEFS
// engine. Each layer returns the most specific Code it can determine;
// wrapping layers preserve the inner Code unless they have a more precise
// one of their own (for example a decryption BadChecksum surfaces from the
// sector codec through the cache to the caller unchanged).
package errs

import (
	"errors"
	"fmt"
)

// Code is one member of the AEFS error taxonomy.
type Code int

const (
	OK Code = iota
	FileNotFound
	FileExists
	InvalidName
	InvalidParameter
	NotDirectory
	BadDirectory
	BadType
	BadEAs
	BadInfoSector
	BadChecksum
	BadSuperblock
	BadVersion
	ISFCorrupt
	IDExists
	NotEnoughMemory
	CacheOverflow
	ReadOnly
	NotSymlink
	NameTooLong
	UnknownCipher
	SysIO
)

var names = map[Code]string{
	OK:               "OK",
	FileNotFound:     "FILE_NOT_FOUND",
	FileExists:       "FILE_EXISTS",
	InvalidName:      "INVALID_NAME",
	InvalidParameter: "INVALID_PARAMETER",
	NotDirectory:     "NOT_DIRECTORY",
	BadDirectory:     "BAD_DIRECTORY",
	BadType:          "BAD_TYPE",
	BadEAs:           "BAD_EAS",
	BadInfoSector:    "BAD_INFOSECTOR",
	BadChecksum:      "BAD_CHECKSUM",
	BadSuperblock:    "BAD_SUPERBLOCK",
	BadVersion:       "BAD_VERSION",
	ISFCorrupt:       "ISF_CORRUPT",
	IDExists:         "ID_EXISTS",
	NotEnoughMemory:  "NOT_ENOUGH_MEMORY",
	CacheOverflow:    "CACHE_OVERFLOW",
	ReadOnly:         "READ_ONLY",
	NotSymlink:       "NOT_SYMLINK",
	NameTooLong:      "NAME_TOO_LONG",
	UnknownCipher:    "UNKNOWN_CIPHER",
	SysIO:            "SYS_IO",
}

func (c Code) String() string {
	if s, ok := names[c]; ok {
		return s
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// Error wraps a Code with context and, optionally, an underlying I/O error
// from the host filesystem (the SYS_<kind> tag of spec §7).
type Error struct {
	Code Code
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Code, so callers can
// use errors.Is(err, errs.New(errs.BadChecksum, "")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New constructs an *Error carrying the given Code.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// Wrap constructs an *Error that carries an underlying host I/O error.
func Wrap(code Code, msg string, err error) *Error {
	return &Error{Code: code, Msg: msg, Err: err}
}

// IsCode reports whether err carries the given Code anywhere in its chain.
func IsCode(err error, code Code) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Code == code {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}
