//go:build !unix

package storagepool

import "os"

// chown is a no-op on platforms without a POSIX ownership model.
func (c Credentials) chown(f *os.File) {}

// checkOwner is a no-op on platforms without a POSIX ownership model.
func (c Credentials) checkOwner(f *os.File) error { return nil }
