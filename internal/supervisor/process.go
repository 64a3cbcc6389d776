package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Process is the handle for one supervised command. All state is guarded
// by mu; the wait goroutine is the only writer of the exit fields.
type Process struct {
	spec    ProcessSpec
	logPath string
	logger  zerolog.Logger
	out     *lineWriter

	mu        sync.Mutex
	cmd       *exec.Cmd
	done      chan struct{}
	running   bool
	stopped   bool
	startedAt time.Time
	exitCode  *int
	restarts  int
	lastErr   error
}

func (p *Process) start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return ErrAlreadyRunning
	}

	cmd := exec.Command(p.spec.Command, p.spec.Args...)
	cmd.Dir = p.spec.Dir
	cmd.Env = append(os.Environ(), p.spec.Env...)
	cmd.Stdout = p.out
	cmd.Stderr = p.out
	cmd.WaitDelay = 5 * time.Second
	setProcessGroup(cmd)

	p.out.note(fmt.Sprintf("starting %s", p.spec.Name))
	if err := cmd.Start(); err != nil {
		p.lastErr = err
		p.out.note(fmt.Sprintf("failed to start %s: %v", p.spec.Name, err))
		return fmt.Errorf("start %s: %w", p.spec.Name, err)
	}

	p.cmd = cmd
	p.done = make(chan struct{})
	p.running = true
	p.stopped = false
	p.startedAt = time.Now()
	p.exitCode = nil
	p.lastErr = nil

	p.logger.Info().Int("pid", cmd.Process.Pid).Msg("process started")

	go p.wait(cmd, p.done)

	return nil
}

func (p *Process) wait(cmd *exec.Cmd, done chan struct{}) {
	err := cmd.Wait()
	code := cmd.ProcessState.ExitCode()

	p.out.note(fmt.Sprintf("%s exited with code %d", p.spec.Name, code))

	p.mu.Lock()
	p.running = false
	p.exitCode = &code
	if err != nil && !p.stopped {
		p.lastErr = err
	}
	p.mu.Unlock()

	p.logger.Info().Int("exit_code", code).Msg("process exited")
	close(done)
}

func (p *Process) stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return ErrNotRunning
	}
	p.stopped = true
	cmd, done := p.cmd, p.done
	p.mu.Unlock()

	p.logger.Info().Int("pid", cmd.Process.Pid).Msg("stopping process")
	if err := terminate(cmd); err != nil {
		p.logger.Warn().Err(err).Msg("terminate failed, killing")
		kill(cmd)
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
	}

	p.logger.Warn().Msg("process did not exit in time, killing")
	kill(cmd)
	<-done

	return nil
}

func (p *Process) needsRestart() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.spec.Restart && !p.running && !p.stopped && p.exitCode != nil
}

func (p *Process) status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := Status{
		Name:     p.spec.Name,
		Running:  p.running,
		ExitCode: p.exitCode,
		Restarts: p.restarts,
	}
	if p.running {
		st.PID = p.cmd.Process.Pid
		startedAt := p.startedAt
		st.StartedAt = &startedAt
	}
	if p.lastErr != nil {
		st.LastError = p.lastErr.Error()
	}

	return st
}
