package process

import (
	"io"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/core-tools/hsu-mcservice/pkg/errors"
)

const NoGUIFlag = "nogui"

type ExecutionConfig struct {
	ExecutablePath   string        `yaml:"executable_path"`
	Args             []string      `yaml:"args,omitempty"`
	Environment      []string      `yaml:"environment,omitempty"`
	WorkingDirectory string        `yaml:"working_directory,omitempty"`
	WaitDelay        time.Duration `yaml:"wait_delay,omitempty"`
}

// JavaArgs builds the JVM argument vector: every option gets a single dash,
// the artifact follows -jar and the server is told not to open its GUI.
func JavaArgs(options []string, artifactPath string) []string {
	args := make([]string, 0, len(options)+3)
	for _, option := range options {
		args = append(args, "-"+option)
	}
	return append(args, "-jar", artifactPath, NoGUIFlag)
}

// NewCommand prepares (but does not start) the child. Stdout and stderr both go
// to output; stdin is left for the caller to pipe.
func NewCommand(execution ExecutionConfig, output io.Writer) (*exec.Cmd, error) {
	if err := ValidateExecutionConfig(execution); err != nil {
		return nil, errors.NewValidationError("invalid execution configuration", err)
	}

	executable, err := ResolveExecutable(execution.ExecutablePath, execution.Environment)
	if err != nil {
		return nil, errors.NewSpawnError("executable not found", err).WithContext("executable_path", execution.ExecutablePath)
	}

	workDir := execution.WorkingDirectory
	if workDir == "" {
		workDir = filepath.Dir(executable)
	}

	cmd := exec.Command(executable, execution.Args...)
	cmd.Dir = workDir
	cmd.Env = execution.Environment
	cmd.Stdout = output
	cmd.Stderr = output
	cmd.WaitDelay = execution.WaitDelay

	setupProcessAttributes(cmd)

	return cmd, nil
}
