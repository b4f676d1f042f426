package execx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// `Result` is what a tool left behind: its exit code and the captured
// output streams.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// `Runner` runs an external program to completion.  `Run()` returns a
// `*ProcessError` if the program cannot be started or exits non-zero.  The
// `Result` is returned together with the error if the program ran, so that
// callers can interpret specific exit codes.
type Runner interface {
	Run(ctx context.Context, program string, args ...string) (*Result, error)
}

// `ProcessError` describes a failed tool invocation.  `ExitCode` is -1 if
// the program did not exit normally.
type ProcessError struct {
	Program  string
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (err *ProcessError) Error() string {
	cmd := strings.Join(append([]string{err.Program}, err.Args...), " ")
	if err.ExitCode < 0 {
		return fmt.Sprintf("failed to execute `%s`: %v", cmd, err.Err)
	}
	return fmt.Sprintf(
		"`%s` failed with exit code %d: stderr: %s",
		cmd, err.ExitCode, strings.TrimSpace(err.Stderr),
	)
}

func (err *ProcessError) Unwrap() error {
	return err.Err
}

// `Exec` is the `Runner` that uses `os/exec`.  Subprocesses are killed when
// the context is cancelled.
type Exec struct{}

func (Exec) Run(
	ctx context.Context, program string, args ...string,
) (*Result, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, program, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Ensure English, so that error text is useful in reports.
	cmd.Env = append(os.Environ(),
		"LC_ALL=C.UTF-8",
		"LANG=C.UTF-8",
		"LANGUAGE=C.UTF-8",
	)

	err := cmd.Run()
	res := &Result{
		ExitCode: -1,
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	if err == nil {
		return res, nil
	}

	perr := &ProcessError{
		Program:  program,
		Args:     args,
		ExitCode: res.ExitCode,
		Stderr:   stderr.String(),
		Err:      err,
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		// Start failure or I/O error; no exit status to report.
		perr.ExitCode = -1
		return nil, perr
	}
	return res, perr
}
