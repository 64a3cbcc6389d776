// Package supervisor runs and watches the long-lived processes of a
// deployment, each with its own rotating log file.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	ErrUnknownProcess = errors.New("unknown process")
	ErrAlreadyRunning = errors.New("process already running")
	ErrNotRunning     = errors.New("process not running")
	ErrLogNotFound    = errors.New("log file not found")
)

type ProcessSpec struct {
	Name    string
	Command string
	Args    []string
	Dir     string
	Env     []string // appended to the supervisor's own environment

	// Restart brings the process back up on the next Reconcile after it
	// exits on its own. A process stopped through Stop stays down.
	Restart   bool
	Autostart bool
}

type LogOptions struct {
	Dir        string
	MaxSizeMB  int
	MaxBackups int
}

type Status struct {
	Name      string     `json:"name"`
	Running   bool       `json:"running"`
	PID       int        `json:"pid,omitempty"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
	ExitCode  *int       `json:"exitCode,omitempty"`
	Restarts  int        `json:"restarts"`
	LastError string     `json:"lastError,omitempty"`
}

type Supervisor struct {
	logger    zerolog.Logger
	logDir    string
	processes map[string]*Process
	order     []string
}

func New(specs []ProcessSpec, opts LogOptions, logger zerolog.Logger) (*Supervisor, error) {
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	s := &Supervisor{
		logger:    logger,
		logDir:    opts.Dir,
		processes: make(map[string]*Process, len(specs)),
	}

	for _, spec := range specs {
		if _, dup := s.processes[spec.Name]; dup {
			return nil, fmt.Errorf("process %q defined twice", spec.Name)
		}

		logPath := filepath.Join(opts.Dir, spec.Name+".log")
		s.processes[spec.Name] = &Process{
			spec:    spec,
			logPath: logPath,
			logger:  logger.With().Str("process", spec.Name).Logger(),
			out: newLineWriter(&lumberjack.Logger{
				Filename:   logPath,
				MaxSize:    opts.MaxSizeMB,
				MaxBackups: opts.MaxBackups,
			}),
		}
		s.order = append(s.order, spec.Name)
	}

	return s, nil
}

func (s *Supervisor) process(name string) (*Process, error) {
	p, ok := s.processes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProcess, name)
	}
	return p, nil
}

func (s *Supervisor) Start(name string) error {
	p, err := s.process(name)
	if err != nil {
		return err
	}
	return p.start()
}

// StartAutostart starts every process marked Autostart, logging failures.
func (s *Supervisor) StartAutostart() {
	for _, name := range s.order {
		p := s.processes[name]
		if !p.spec.Autostart {
			continue
		}
		if err := p.start(); err != nil {
			p.logger.Error().Err(err).Msg("autostart failed")
		}
	}
}

// Stop terminates the named process and its children. If it is still
// alive when ctx is done it is killed.
func (s *Supervisor) Stop(ctx context.Context, name string) error {
	p, err := s.process(name)
	if err != nil {
		return err
	}
	return p.stop(ctx)
}

// StopAll stops every running process and returns the names it stopped.
func (s *Supervisor) StopAll(ctx context.Context) ([]string, error) {
	var (
		stopped []string
		errs    []error
	)

	for _, name := range s.order {
		err := s.processes[name].stop(ctx)
		switch {
		case errors.Is(err, ErrNotRunning):
		case err != nil:
			errs = append(errs, fmt.Errorf("stop %s: %w", name, err))
		default:
			stopped = append(stopped, name)
		}
	}

	return stopped, errors.Join(errs...)
}

func (s *Supervisor) Status(name string) (Status, error) {
	p, err := s.process(name)
	if err != nil {
		return Status{}, err
	}
	return p.status(), nil
}

func (s *Supervisor) Statuses() []Status {
	statuses := make([]Status, 0, len(s.order))
	for _, name := range s.order {
		statuses = append(statuses, s.processes[name].status())
	}
	return statuses
}

// Reconcile restarts processes with a restart policy that exited on their
// own, and returns their names.
func (s *Supervisor) Reconcile() []string {
	var restarted []string

	for _, name := range s.order {
		p := s.processes[name]
		if !p.needsRestart() {
			continue
		}

		p.logger.Warn().Msg("process exited, restarting")
		if err := p.start(); err != nil {
			p.logger.Error().Err(err).Msg("restart failed")
			continue
		}

		p.mu.Lock()
		p.restarts++
		p.mu.Unlock()
		restarted = append(restarted, name)
	}

	return restarted
}

func (s *Supervisor) LogPath(name string) (string, error) {
	p, err := s.process(name)
	if err != nil {
		return "", err
	}
	return p.logPath, nil
}

// ClearLog truncates the process log. Rotated backups are left alone.
func (s *Supervisor) ClearLog(name string) error {
	p, err := s.process(name)
	if err != nil {
		return err
	}
	return p.out.truncate(p.logPath)
}
