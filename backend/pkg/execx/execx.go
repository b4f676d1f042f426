// Package `execx` provides utility functions that supplement the stdlib
// package `os/exec`.
//
// `LookTool()` reliably locates external command line tools during program
// startup.  `Runner` abstracts running a located tool, so that code that
// shells out can be tested with a fake.
package execx

import (
	"fmt"
	"os/exec"
	"strings"
)

// `ToolSpec` is used to tell `LookTool()` how to look for an external tool.
// If `CheckArgs` is nil, the tool is only located in `PATH`, which is useful
// for tools like `scp` that have no version flag.
type ToolSpec struct {
	Program   string
	CheckArgs []string
	CheckText string
}

type Tool struct {
	Path string
}

func LookTool(s ToolSpec) (*Tool, error) {
	path, err := exec.LookPath(s.Program)
	if err != nil {
		return nil, fmt.Errorf(
			"failed to find path of `%s`: %v", s.Program, err,
		)
	}

	if s.CheckArgs == nil {
		return &Tool{path}, nil
	}

	// Some tools print their version to stderr.
	o, err := exec.Command(path, s.CheckArgs...).CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf(
			"failed to execute `%s %s`: %v", path,
			strings.Join(s.CheckArgs, " "), err,
		)
	}
	if !strings.Contains(string(o), s.CheckText) {
		return nil, fmt.Errorf(
			"`%s %s` did not print `%s`", s.Program,
			strings.Join(s.CheckArgs, " "), s.CheckText,
		)
	}

	return &Tool{path}, nil
}
