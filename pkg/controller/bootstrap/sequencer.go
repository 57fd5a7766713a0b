// Package bootstrap makes sure the ngrok agent is installed and answering
// on its local API before callers use it.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"NgrokBoot/pkg/api"
	"NgrokBoot/pkg/configs"
	"NgrokBoot/pkg/provision"

	"github.com/pingcap-incubator/tinykv/log"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

// State is where a Sequencer is in its bootstrap run
type State string

const (
	StateIdle      State = "idle"
	StateProbing   State = "probing"
	StateLaunching State = "launching"
	StateConverged State = "converged"
	StateFailed    State = "failed"
)

// ErrBootstrapExhausted matches every error returned after the probe bound
// is used up. It needs outside intervention (e.g. a manual install).
var ErrBootstrapExhausted = errors.New("could not start agent")

// ExhaustedError reports a bootstrap that used every probe without the API
// answering
type ExhaustedError struct {
	Attempts int
	Launched bool
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%v after %d probes (launched=%t): %v", ErrBootstrapExhausted, e.Attempts, e.Launched, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

func (e *ExhaustedError) Is(target error) bool { return target == ErrBootstrapExhausted }

// TunnelLister is the agent API call used as a readiness probe
type TunnelLister interface {
	ListTunnels(ctx context.Context) (*api.TunnelList, error)
}

// BinaryProvisioner installs the agent and returns the path to launch
type BinaryProvisioner interface {
	Provision(ctx context.Context) (string, error)
}

// Result of a converged bootstrap. Process is nil when the agent was
// already running.
type Result struct {
	Tunnels *api.TunnelList
	Process *AgentProcess
}

// Sequencer drives probe, launch and install until the agent answers
type Sequencer struct {
	client      TunnelLister
	provisioner BinaryProvisioner
	launcher    Launcher
	lookPath    func(string) (string, error)
	findRunning func(string) ([]RunningAgent, error)

	binaryName string
	binaryArgs []string
	workDir    string
	attempts   int
	interval   time.Duration

	group singleflight.Group
	mu    sync.Mutex
	state State
}

// Option customises a Sequencer
type Option func(*Sequencer)

func WithLauncher(l Launcher) Option {
	return func(s *Sequencer) {
		s.launcher = l
	}
}

// WithLookPath replaces exec.LookPath for locating the agent binary
func WithLookPath(fn func(string) (string, error)) Option {
	return func(s *Sequencer) {
		s.lookPath = fn
	}
}

func WithProcessFinder(fn func(string) ([]RunningAgent, error)) Option {
	return func(s *Sequencer) {
		s.findRunning = fn
	}
}

// NewSequencer builds a Sequencer from cfg. It launches with an ExecLauncher
// in cfg.WorkDir unless WithLauncher says otherwise.
func NewSequencer(cfg *configs.Config, client TunnelLister, provisioner BinaryProvisioner, opts ...Option) *Sequencer {
	s := &Sequencer{
		client:      client,
		provisioner: provisioner,
		launcher:    &ExecLauncher{Dir: cfg.WorkDir},
		lookPath:    exec.LookPath,
		findRunning: FindRunningAgents,
		binaryName:  cfg.ExecutableName(),
		binaryArgs:  cfg.BinaryArgs,
		workDir:     cfg.WorkDir,
		attempts:    cfg.ProbeAttempts,
		interval:    cfg.ProbeInterval,
		state:       StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current bootstrap state
func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Sequencer) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Bootstrap probes the agent API, launching (and if needed installing) the
// agent after the first failed probe. Concurrent calls share one run.
// On error the Result may still carry a launched process for the caller to
// stop.
func (s *Sequencer) Bootstrap(ctx context.Context) (*Result, error) {
	v, err, shared := s.group.Do("bootstrap", func() (interface{}, error) {
		return s.run(ctx)
	})
	if shared {
		log.Debugf("[bootstrap] joined an in-flight bootstrap")
	}
	res, _ := v.(*Result)
	return res, err
}

func (s *Sequencer) run(ctx context.Context) (*Result, error) {
	s.setState(StateProbing)
	result := &Result{}
	launched := false
	var lastErr error

	for attempt := 1; attempt <= s.attempts; attempt++ {
		tunnels, err := s.client.ListTunnels(ctx)
		if err == nil {
			s.setState(StateConverged)
			result.Tunnels = tunnels
			log.Infof("[bootstrap] agent answered on probe %d/%d with %d tunnels", attempt, s.attempts, len(tunnels.Tunnels))
			return result, nil
		}
		lastErr = err
		log.Debugf("[bootstrap] probe %d/%d failed: %v", attempt, s.attempts, err)

		if !launched {
			launched = true
			s.setState(StateLaunching)
			proc, err := s.launch(ctx)
			if err != nil {
				log.Warnf("[bootstrap] launch failed: %v", err)
			}
			result.Process = proc
			s.setState(StateProbing)
		}

		if attempt == s.attempts {
			break
		}
		timer := time.NewTimer(s.interval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			s.setState(StateFailed)
			return result, errors.Wrap(ctx.Err(), "bootstrap interrupted")
		}
	}

	s.setState(StateFailed)
	return result, &ExhaustedError{Attempts: s.attempts, Launched: result.Process != nil, Last: lastErr}
}

// launch starts the agent, installing it first when it cannot be found
func (s *Sequencer) launch(ctx context.Context) (*AgentProcess, error) {
	if found, err := s.findRunning(s.binaryName); err == nil && len(found) > 0 {
		log.Warnf("[bootstrap] %s already running as pid %d but its API is not answering", s.binaryName, found[0].Pid)
	}

	binPath, err := s.locate()
	if err != nil {
		log.Infof("[bootstrap] %s not found, provisioning", s.binaryName)
		binPath, err = s.provisioner.Provision(ctx)
		if errors.Is(err, provision.ErrUnsupportedPlatform) {
			log.Warnf("[bootstrap] skipping provisioning: %v", err)
			return nil, err
		}
		if err != nil {
			return nil, errors.WithMessage(err, "provision agent")
		}
	}
	return s.launcher.Launch(binPath, s.binaryArgs)
}

// locate looks on $PATH first, then in the working directory
func (s *Sequencer) locate() (string, error) {
	if path, err := s.lookPath(s.binaryName); err == nil {
		return path, nil
	}
	local := filepath.Join(s.workDir, s.binaryName)
	info, err := os.Stat(local)
	if err != nil {
		return "", errors.Wrapf(err, "%s not on PATH or in %s", s.binaryName, s.workDir)
	}
	if info.IsDir() {
		return "", errors.Errorf("%s is a directory", local)
	}
	return filepath.Abs(local)
}
