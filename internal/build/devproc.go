package build

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// DevProcess is a handle to the long-lived build-watch subprocess. Its
// stdout and stderr are discarded after launch; only the output artifact it
// produces is ever inspected.
type DevProcess struct {
	cmd     *exec.Cmd
	done    chan struct{}
	waitErr error // written once by monitor before done is closed
}

// StartDev launches argv in dir as a detached, long-lived process.
func StartDev(dir string, argv []string) (*DevProcess, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty dev command")
	}

	cmd := exec.Command(argv[0], argv[1:]...) //nolint:gosec // Dev command comes from config
	cmd.Dir = dir
	// Stdout/Stderr stay nil: output goes to the null device.

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", argv[0], err)
	}

	p := &DevProcess{
		cmd:  cmd,
		done: make(chan struct{}),
	}

	go p.monitor()

	return p, nil
}

func (p *DevProcess) monitor() {
	p.waitErr = p.cmd.Wait()
	close(p.done)
}

// PID returns the subprocess PID.
func (p *DevProcess) PID() int {
	if p.cmd.Process == nil {
		return -1
	}

	return p.cmd.Process.Pid
}

// Alive reports whether the subprocess is still running.
func (p *DevProcess) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Stop terminates the subprocess: SIGTERM first, then SIGKILL once the grace
// period expires. It reports whether the kill escalation was needed.
func (p *DevProcess) Stop(grace time.Duration) (killed bool, err error) {
	select {
	case <-p.done:
		return false, nil
	default:
	}

	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// The process may have exited between the check and the signal.
		if errors.Is(err, os.ErrProcessDone) {
			return false, nil
		}

		return false, fmt.Errorf("terminating build process: %w", err)
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-p.done:
		return false, nil
	case <-timer.C:
	}

	if err := p.cmd.Process.Kill(); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return false, nil
		}

		return true, fmt.Errorf("killing build process: %w", err)
	}

	<-p.done

	return true, nil
}
