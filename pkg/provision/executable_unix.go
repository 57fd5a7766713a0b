//go:build unix

package provision

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// MakeExecutable grants the owner rwx on path and checks the result
func MakeExecutable(path string) error {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return errors.Wrapf(err, "stat %s", path)
	}
	mode := uint32(st.Mode&0o7777) | unix.S_IRWXU
	if err := unix.Chmod(path, mode); err != nil {
		return errors.Wrapf(err, "chmod %s", path)
	}
	if err := unix.Access(path, unix.X_OK); err != nil {
		return errors.Wrapf(err, "%s is still not executable", path)
	}
	return nil
}
