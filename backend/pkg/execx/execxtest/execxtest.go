// Package `execxtest` provides a scripted `execx.Runner` for tests.
package execxtest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nogproject/luks-header-backup/backend/pkg/execx"
)

// `Handler` simulates one program.  It receives the arguments of the call.
type Handler func(args []string) (*execx.Result, error)

type Call struct {
	Program string
	Args    []string
}

// `Fake` dispatches calls by program name to `Handlers` and records them in
// call order.  It is safe for concurrent use.
type Fake struct {
	Handlers map[string]Handler

	mu    sync.Mutex
	calls []Call
}

func New() *Fake {
	return &Fake{Handlers: make(map[string]Handler)}
}

func (f *Fake) Handle(program string, h Handler) {
	f.Handlers[program] = h
}

func (f *Fake) Run(
	ctx context.Context, program string, args ...string,
) (*execx.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{
		Program: program,
		Args:    append([]string(nil), args...),
	})
	h, ok := f.Handlers[program]
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, &execx.ProcessError{
			Program: program, Args: args, ExitCode: -1, Err: err,
		}
	}
	if !ok {
		return nil, &execx.ProcessError{
			Program:  program,
			Args:     args,
			ExitCode: -1,
			Err:      errors.New("executable file not found"),
		}
	}

	res, err := h(args)
	if perr, ok := err.(*execx.ProcessError); ok {
		perr.Program = program
		perr.Args = args
	}
	return res, err
}

// `Calls()` returns a copy of the recorded calls.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// `CallsTo()` returns the recorded calls of `program`.
func (f *Fake) CallsTo(program string) []Call {
	var cs []Call
	for _, c := range f.Calls() {
		if c.Program == program {
			cs = append(cs, c)
		}
	}
	return cs
}

// `OK()` is a successful result with `stdout`.
func OK(stdout string) (*execx.Result, error) {
	return &execx.Result{Stdout: []byte(stdout)}, nil
}

// `Exit()` is a non-zero exit with `stderr`.  `Fake.Run()` fills in program
// and arguments.
func Exit(code int, stderr string) (*execx.Result, error) {
	res := &execx.Result{ExitCode: code, Stderr: []byte(stderr)}
	return res, &execx.ProcessError{
		ExitCode: code,
		Stderr:   stderr,
		Err:      fmt.Errorf("exit status %d", code),
	}
}
