// Package provision downloads and unpacks the ngrok agent binary
package provision

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"NgrokBoot/pkg/configs"

	"github.com/gofrs/flock"
	"github.com/pingcap-incubator/tinykv/log"
	"github.com/pkg/errors"
)

const (
	copyBufferSize = 32 * 1024
	lockFileName   = ".ngrok-provision.lock"
	lockRetryDelay = 200 * time.Millisecond
)

// Provisioner installs the agent binary for one platform into a work dir
type Provisioner struct {
	workDir    string
	binaryName string
	urls       map[string]string
	platform   Platform
	httpClient *http.Client
}

type Option func(*Provisioner)

func WithPlatform(p Platform) Option {
	return func(pr *Provisioner) {
		pr.platform = p
	}
}

func WithHTTPClient(cli *http.Client) Option {
	return func(pr *Provisioner) {
		pr.httpClient = cli
	}
}

func NewProvisioner(cfg *configs.Config, opts ...Option) *Provisioner {
	p := &Provisioner{
		workDir:    cfg.WorkDir,
		binaryName: cfg.ExecutableName(),
		urls:       cfg.DownloadURLs,
		platform:   CurrentPlatform(),
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// BinaryPath is the absolute path the agent binary ends up at after Provision.
// A bare name would be looked up on $PATH when launched.
func (p *Provisioner) BinaryPath() (string, error) {
	binPath, err := filepath.Abs(filepath.Join(p.workDir, p.binaryName))
	if err != nil {
		return "", errors.Wrapf(err, "resolve %s in %s", p.binaryName, p.workDir)
	}
	return binPath, nil
}

// Provision makes sure an executable agent binary exists in the working
// directory and returns its path. The platform is checked before anything
// touches the network or the filesystem.
func (p *Provisioner) Provision(ctx context.Context) (string, error) {
	archiveURL, err := DownloadURL(p.urls, p.platform)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(p.workDir, 0o755); err != nil {
		return "", errors.Wrapf(err, "create work dir %s", p.workDir)
	}

	lock := flock.New(filepath.Join(p.workDir, lockFileName))
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return "", errors.Wrap(err, "acquire provision lock")
	}
	if !locked {
		return "", errors.Errorf("provision lock %s is held elsewhere", lock.Path())
	}
	defer lock.Unlock()

	binPath, err := p.BinaryPath()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(binPath); err == nil {
		// another provisioner finished while we waited on the lock
		log.Infof("[provision] %s already present", binPath)
		return binPath, MakeExecutable(binPath)
	}

	archivePath, err := p.archivePath(archiveURL)
	if err != nil {
		return "", err
	}
	log.Infof("[provision] downloading %s for %s", archiveURL, p.platform)
	if err := p.Download(ctx, archiveURL, archivePath); err != nil {
		return "", err
	}

	log.Infof("[provision] extracting %s into %s", archivePath, p.workDir)
	if err := Extract(archivePath, p.workDir); err != nil {
		return "", err
	}
	if _, err := os.Stat(binPath); err != nil {
		return "", errors.Wrapf(err, "archive %s did not contain %s", filepath.Base(archivePath), p.binaryName)
	}
	if err := MakeExecutable(binPath); err != nil {
		return "", err
	}
	if err := os.Remove(archivePath); err != nil {
		log.Warnf("[provision] failed to remove %s: %v", archivePath, err)
	}

	log.Infof("[provision] agent binary ready at %s", binPath)
	return binPath, nil
}

// Download streams archiveURL into dest
func (p *Provisioner) Download(ctx context.Context, archiveURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, archiveURL, nil)
	if err != nil {
		return errors.Wrapf(err, "create request for %s", archiveURL)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "download %s", archiveURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("download %s failed with status %d", archiveURL, resp.StatusCode)
	}

	out, err := os.Create(dest)
	if err != nil {
		return errors.Wrapf(err, "create %s", dest)
	}
	n, err := io.CopyBuffer(out, resp.Body, make([]byte, copyBufferSize))
	if err != nil {
		out.Close()
		return errors.Wrapf(err, "write %s", dest)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return errors.Wrapf(err, "flush %s", dest)
	}
	if err := out.Close(); err != nil {
		return errors.Wrapf(err, "close %s", dest)
	}
	log.Debugf("[provision] wrote %d bytes to %s", n, dest)
	return nil
}

func (p *Provisioner) archivePath(archiveURL string) (string, error) {
	u, err := url.Parse(archiveURL)
	if err != nil {
		return "", errors.Wrapf(err, "parse download url %s", archiveURL)
	}
	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		return "", errors.Errorf("download url %s has no file name", archiveURL)
	}
	return filepath.Join(p.workDir, name), nil
}
