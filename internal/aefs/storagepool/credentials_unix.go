//go:build unix

package storagepool

import (
	"os"
	"syscall"

	"github.com/aefs/aefs/internal/aefs/errs"
)

// chown applies the pool's configured ownership to a freshly created
// storage file. A zero UID/GID means "leave as the process default".
// Errors are ignored: the caller has no fs-uid privilege to chown to an
// arbitrary owner when running unprivileged, and that is an expected,
// non-fatal configuration on single-user deployments.
func (c Credentials) chown(f *os.File) {
	if c.UID == 0 && c.GID == 0 {
		return
	}
	uid, gid := -1, -1
	if c.UID != 0 {
		uid = int(c.UID)
	}
	if c.GID != 0 {
		gid = int(c.GID)
	}
	_ = f.Chown(uid, gid)
}

// checkOwner enforces credentials after open rather than before, avoiding
// the open/verify TOCTOU window on platforms (like this one) that expose
// the effective owner through fstat, spec §4.3.
func (c Credentials) checkOwner(f *os.File) error {
	if c.UID == 0 {
		return nil
	}
	fi, err := f.Stat()
	if err != nil {
		return errs.Wrap(errs.SysIO, "stat storage file", err)
	}
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return nil
	}
	if st.Uid != c.UID {
		return errs.New(errs.SysIO, "storage file owner mismatch")
	}
	return nil
}
