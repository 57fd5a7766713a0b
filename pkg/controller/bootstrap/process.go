package bootstrap

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/pingcap-incubator/tinykv/log"
	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/process"
)

const stopGracePeriod = 5 * time.Second

// AgentProcess is the handle of an agent started by this library. The agent
// outlives the caller unless Stop is called.
type AgentProcess struct {
	Pid       int
	Path      string
	Args      []string
	StartedAt time.Time

	proc    *os.Process
	done    chan struct{}
	waitErr error
}

// Launcher starts the agent binary
type Launcher interface {
	Launch(binPath string, args []string) (*AgentProcess, error)
}

// ExecLauncher spawns the agent as a child process in Dir
type ExecLauncher struct {
	Dir string
}

// Launch starts binPath without waiting for it. A relative path is made
// absolute against the current directory, a bare name is looked up on $PATH.
func (l *ExecLauncher) Launch(binPath string, args []string) (*AgentProcess, error) {
	if strings.ContainsRune(binPath, filepath.Separator) && !filepath.IsAbs(binPath) {
		abs, err := filepath.Abs(binPath)
		if err != nil {
			return nil, errors.Wrapf(err, "resolve %s", binPath)
		}
		binPath = abs
	}
	cmd := exec.Command(binPath, args...)
	cmd.Dir = l.Dir
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "start %s", binPath)
	}

	p := &AgentProcess{
		Pid:       cmd.Process.Pid,
		Path:      binPath,
		Args:      args,
		StartedAt: time.Now(),
		proc:      cmd.Process,
		done:      make(chan struct{}),
	}
	// reap the child so it never lingers as a zombie
	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()

	log.Infof("[bootstrap] launched %s %s (pid %d)", binPath, strings.Join(args, " "), p.Pid)
	return p, nil
}

// Running reports whether the agent process is still alive
func (p *AgentProcess) Running() bool {
	if p.done != nil {
		select {
		case <-p.done:
			return false
		default:
			return true
		}
	}
	// not our child, ask the OS
	proc, err := process.NewProcess(int32(p.Pid))
	if err != nil {
		return false
	}
	running, err := proc.IsRunning()
	return err == nil && running
}

// Wait blocks until the agent exits or ctx ends
func (p *AgentProcess) Wait(ctx context.Context) error {
	if p.done == nil {
		return errors.New("process was not started by this library")
	}
	select {
	case <-p.done:
		return p.waitErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop interrupts the agent, and kills it if it has not exited after a
// grace period.
func (p *AgentProcess) Stop(ctx context.Context) error {
	if p.proc == nil || p.done == nil {
		return errors.New("process was not started by this library")
	}
	select {
	case <-p.done:
		return nil
	default:
	}

	if runtime.GOOS == "windows" {
		return p.kill()
	}
	if err := p.proc.Signal(os.Interrupt); err != nil {
		return p.kill()
	}

	timer := time.NewTimer(stopGracePeriod)
	defer timer.Stop()
	select {
	case <-p.done:
		log.Infof("[bootstrap] agent pid %d stopped", p.Pid)
		return nil
	case <-timer.C:
		log.Warnf("[bootstrap] agent pid %d ignored interrupt, killing", p.Pid)
	case <-ctx.Done():
	}
	return p.kill()
}

func (p *AgentProcess) kill() error {
	if err := p.proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return errors.Wrapf(err, "kill agent pid %d", p.Pid)
	}
	<-p.done
	return nil
}

// RunningAgent describes an agent process found on the host
type RunningAgent struct {
	Pid     int32
	Name    string
	Cmdline string
}

// FindRunningAgents lists processes whose executable name is name (with or
// without a .exe suffix)
func FindRunningAgents(name string) ([]RunningAgent, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, errors.Wrap(err, "list processes")
	}
	want := strings.TrimSuffix(name, ".exe")
	var found []RunningAgent
	for _, p := range procs {
		pname, err := p.Name()
		if err != nil || strings.TrimSuffix(pname, ".exe") != want {
			continue
		}
		cmdline, _ := p.Cmdline()
		found = append(found, RunningAgent{Pid: p.Pid, Name: pname, Cmdline: cmdline})
	}
	return found, nil
}
