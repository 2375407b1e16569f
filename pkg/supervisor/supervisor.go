package supervisor

import (
	stderrors "errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/core-tools/hsu-mcservice/pkg/errors"
	"github.com/core-tools/hsu-mcservice/pkg/logging"
	"github.com/core-tools/hsu-mcservice/pkg/process"
)

const (
	StopCommand   = "stop"
	ReloadCommand = "reload"

	DefaultJavaBinary            = "java"
	DefaultReadinessMarker       = "[Server thread/INFO]: Done"
	DefaultReadinessPollInterval = 100 * time.Millisecond
	DefaultKillWait              = 5 * time.Second
)

type Options struct {
	ServerDirectory       string
	JavaBinary            string
	OutputLogPath         string
	ReadinessMarker       string
	ReadinessPollInterval time.Duration

	// KillWait bounds the wait for exit after a forced kill.
	KillWait time.Duration

	// Environment is the base environment; nil means the current process's.
	Environment []string

	// PIDFile records the running server's pid. Empty disables it.
	PIDFile string
}

// Supervisor owns zero or one game server process. The handle is guarded by
// mutex, which is never held across a readiness poll or an exit wait.
type Supervisor struct {
	options Options
	env     []string
	logger  logging.Logger

	mutex  sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	exited chan struct{}
}

func NewSupervisor(options Options, logger logging.Logger) *Supervisor {
	if options.JavaBinary == "" {
		options.JavaBinary = DefaultJavaBinary
	}
	if options.ReadinessMarker == "" {
		options.ReadinessMarker = DefaultReadinessMarker
	}
	if options.ReadinessPollInterval <= 0 {
		options.ReadinessPollInterval = DefaultReadinessPollInterval
	}
	if options.KillWait <= 0 {
		options.KillWait = DefaultKillWait
	}

	base := options.Environment
	if base == nil {
		base = os.Environ()
	}
	env, confined := process.ConfinedEnvironment(base)
	if confined {
		javaHome, _ := process.LookupEnv(env, "JAVA_HOME")
		logger.Infof("Confined package detected, using bundled JVM, JAVA_HOME: %s", javaHome)
	}

	return &Supervisor{
		options: options,
		env:     env,
		logger:  logger,
	}
}

// Start launches the server and blocks until the readiness marker shows up in
// the output log. A zero timeout waits forever. When the timeout expires the
// child is left running and a timeout error is returned; callers should treat
// the state as unknown and consult Status.
func (s *Supervisor) Start(options []string, relativePath string, timeout time.Duration) (bool, error) {
	s.mutex.Lock()

	if s.runningLocked() {
		pid := s.cmd.Process.Pid
		s.mutex.Unlock()
		s.logger.Warnf("Server is already running, PID: %d", pid)
		return false, nil
	}
	s.clearLocked()

	if err := s.checkStrayLocked(); err != nil {
		s.mutex.Unlock()
		return false, err
	}

	exited, err := s.spawnLocked(options, relativePath)
	s.mutex.Unlock()
	if err != nil {
		return false, err
	}

	return s.awaitReadiness(exited, timeout)
}

func (s *Supervisor) spawnLocked(options []string, relativePath string) (chan struct{}, error) {
	output, err := os.Create(s.options.OutputLogPath)
	if err != nil {
		return nil, errors.NewIOError("failed to open server output log", err).WithContext("path", s.options.OutputLogPath)
	}
	// the child keeps its own descriptor
	defer output.Close()

	execution := process.ExecutionConfig{
		ExecutablePath:   s.options.JavaBinary,
		Args:             process.JavaArgs(options, relativePath),
		Environment:      s.env,
		WorkingDirectory: s.options.ServerDirectory,
	}

	cmd, err := process.NewCommand(execution, output)
	if err != nil {
		return nil, err
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.NewSpawnError("failed to create stdin pipe", err)
	}

	s.logger.Infof("Running %q with args %v from %s", cmd.Path, execution.Args, cmd.Dir)

	if err := cmd.Start(); err != nil {
		return nil, errors.NewSpawnError("failed to start the server process", err).
			WithContext("executable_path", cmd.Path)
	}

	exited := make(chan struct{})
	s.cmd = cmd
	s.stdin = stdin
	s.exited = exited

	if s.options.PIDFile != "" {
		if err := process.WritePIDFile(s.options.PIDFile, cmd.Process.Pid); err != nil {
			s.logger.Warnf("Failed to record server PID: %v", err)
		}
	}

	go s.wait(cmd, exited)

	s.logger.Infof("Server process started, PID: %d", cmd.Process.Pid)
	return exited, nil
}

// checkStrayLocked refuses to spawn while a server recorded by an earlier run
// of the service is still alive, and clears a stale PID file otherwise.
func (s *Supervisor) checkStrayLocked() error {
	if s.options.PIDFile == "" {
		return nil
	}

	pid, err := process.ReadPIDFile(s.options.PIDFile)
	if err != nil {
		if !stderrors.Is(err, os.ErrNotExist) {
			s.logger.Warnf("Ignoring unreadable PID file: %v", err)
			s.removePIDFile()
		}
		return nil
	}

	running, err := process.IsProcessRunning(pid)
	if err != nil {
		s.logger.Debugf("Could not probe recorded PID %d: %v", pid, err)
	}
	if running {
		return errors.NewProcessError("a server from a previous run is still running", nil).
			WithContext("pid", pid).WithContext("pid_file", s.options.PIDFile)
	}

	s.logger.Infof("Removing stale PID file, PID: %d", pid)
	s.removePIDFile()
	return nil
}

func (s *Supervisor) removePIDFile() {
	if s.options.PIDFile == "" {
		return
	}
	if err := process.RemovePIDFile(s.options.PIDFile); err != nil {
		s.logger.Warnf("Failed to remove PID file: %v", err)
	}
}

func (s *Supervisor) wait(cmd *exec.Cmd, exited chan struct{}) {
	// Wait also closes our end of the stdin pipe
	if err := cmd.Wait(); err != nil {
		s.logger.Warnf("Server process PID %d exited: %v", cmd.Process.Pid, err)
	} else {
		s.logger.Infof("Server process PID %d exited cleanly", cmd.Process.Pid)
	}
	// before close so a following spawn cannot lose its fresh file
	s.removePIDFile()
	close(exited)
}

// Stop asks the server to stop and waits up to timeout (zero waits forever).
// The deadline also covers delivering the stop command. On timeout the
// process group is killed and false is returned.
func (s *Supervisor) Stop(timeout time.Duration) bool {
	s.mutex.Lock()
	cmd, stdin, exited := s.cmd, s.stdin, s.exited
	s.mutex.Unlock()

	if stdin == nil {
		return false
	}

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	// a child that stops reading its console blocks the write until it dies
	sent := make(chan bool, 1)
	go func() {
		sent <- s.Send(StopCommand)
	}()

	select {
	case ok := <-sent:
		if !ok {
			s.mutex.Lock()
			if s.cmd == cmd && !s.runningLocked() {
				s.clearLocked()
			}
			s.mutex.Unlock()
			return false
		}
		select {
		case <-exited:
			stdin.Close()
			s.release(cmd)
			s.logger.Infof("Server stopped")
			return true
		case <-deadline:
		}
	case <-deadline:
		s.logger.Warnf("Server PID %d did not accept the stop command", cmd.Process.Pid)
	}

	pid := cmd.Process.Pid
	s.logger.Warnf("Server PID %d did not stop within %v, killing it", pid, timeout)
	if err := process.KillProcessGroup(pid); err != nil {
		s.logger.Warnf("Failed to kill process group %d: %v", pid, err)
		cmd.Process.Kill()
	}

	select {
	case <-exited:
		s.logger.Infof("Server PID %d killed", pid)
	case <-time.After(s.options.KillWait):
		s.logger.Errorf("Server PID %d did not exit even after kill", pid)
	}
	stdin.Close()
	s.release(cmd)
	return false
}

// Status reports whether a started process has not exited yet.
func (s *Supervisor) Status() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.runningLocked()
}

// Send writes one command line to the server console without waiting for any
// acknowledgment.
func (s *Supervisor) Send(command string) bool {
	// the mutex is never held across the write, which blocks on a full pipe
	s.mutex.Lock()
	stdin := s.stdin
	s.mutex.Unlock()

	if stdin == nil {
		return false
	}
	if _, err := io.WriteString(stdin, command+"\n"); err != nil {
		s.logger.Warnf("Failed to send command %q: %v", command, err)
		return false
	}

	s.logger.Debugf("Sent command: %q", command)
	return true
}

// PID returns the server's process id, or 0 without a handle.
func (s *Supervisor) PID() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.cmd == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

func (s *Supervisor) release(cmd *exec.Cmd) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.cmd == cmd && !s.runningLocked() {
		s.clearLocked()
	}
}

func (s *Supervisor) runningLocked() bool {
	if s.cmd == nil {
		return false
	}
	select {
	case <-s.exited:
		return false
	default:
		return true
	}
}

func (s *Supervisor) clearLocked() {
	s.cmd = nil
	s.stdin = nil
	s.exited = nil
}
