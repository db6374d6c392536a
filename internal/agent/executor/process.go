package executor

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
)

// runProcess executes conda, venv and system jobs as host processes.
// The command always runs through a shell so pipelines and redirects
// behave the way users wrote them.
func runProcess(ctx context.Context, spec Spec, workDir string, logs io.Writer) Result {
	shellCmd, err := wrapCommand(spec)
	if err != nil {
		return Result{ExitCode: -1, ErrorMessage: err.Error()}
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", shellCmd)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(), envList(spec.Env)...)

	tail := newTailBuffer(stderrTailBytes)
	cmd.Stdout = logs
	cmd.Stderr = io.MultiWriter(logs, tail)

	// ask nicely first, kill after the grace period
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = stopGracePeriod

	if err := cmd.Start(); err != nil {
		return Result{ExitCode: -1, ErrorMessage: fmt.Sprintf("start job: %v", err)}
	}

	err = cmd.Wait()
	exitCode := cmd.ProcessState.ExitCode()
	if err == nil {
		return Result{ExitCode: exitCode}
	}

	msg := fmt.Sprintf("exit code %d", exitCode)
	if tailStr := tail.String(); tailStr != "" {
		msg = fmt.Sprintf("exit code %d: %s", exitCode, tailStr)
	}
	return Result{ExitCode: exitCode, ErrorMessage: msg}
}

// wrapCommand prefixes the user command with environment activation
// for conda and venv jobs. The Image field names the environment.
func wrapCommand(spec Spec) (string, error) {
	switch spec.JobType {
	case "system":
		return spec.Command, nil
	case "conda":
		if spec.Image == "" {
			return "", fmt.Errorf("conda jobs need an environment name")
		}
		return fmt.Sprintf("conda run -n %s --no-capture-output sh -c %q", spec.Image, spec.Command), nil
	case "venv":
		if spec.Image == "" {
			return "", fmt.Errorf("venv jobs need a virtualenv path")
		}
		return fmt.Sprintf(". %s/bin/activate && %s", spec.Image, spec.Command), nil
	default:
		return "", fmt.Errorf("unsupported process job type %q", spec.JobType)
	}
}

func envList(m map[string]string) []string {
	var env []string
	for k, v := range m {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}
