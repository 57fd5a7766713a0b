//go:build !unix

package provision

import (
	"runtime"

	"github.com/pingcap-incubator/tinykv/log"
)

// MakeExecutable has nothing to set on this platform
func MakeExecutable(path string) error {
	log.Warnf("[provision] permission bits are not managed on %s, %s left as extracted", runtime.GOOS, path)
	return nil
}
