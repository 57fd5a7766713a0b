package provision

import (
	"runtime"

	"github.com/pkg/errors"
)

// ErrUnsupportedPlatform is returned when no archive is published for the
// running (OS, architecture) pair.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

type Platform struct {
	OS   string
	Arch string
}

func CurrentPlatform() Platform {
	return Platform{OS: runtime.GOOS, Arch: runtime.GOARCH}
}

// Key is the lookup key used in the download table, e.g. "linux/amd64"
func (p Platform) Key() string {
	return p.OS + "/" + p.Arch
}

func (p Platform) String() string {
	return p.Key()
}

// DownloadURL looks p up in table
func DownloadURL(table map[string]string, p Platform) (string, error) {
	url, ok := table[p.Key()]
	if !ok || url == "" {
		return "", errors.Wrapf(ErrUnsupportedPlatform, "no agent archive for %s", p)
	}
	return url, nil
}
