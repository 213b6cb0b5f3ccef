// Package sh is the operator terminal of the flight computer.
package sh

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/abiosoft/ishell"
	"github.com/golang/glog"

	"github.com/robotalks/iris/pkg/config"
	"github.com/robotalks/iris/pkg/datalog"
	fx "github.com/robotalks/iris/pkg/framework"
)

// CommandTimeout bounds the wait for the loop to execute a command.
const CommandTimeout = 2 * time.Second

// Target is the running flight computer the shell operates. The Loop
// must have a framework.RequestServer; the Logger and Register are only
// touched from the loop goroutine.
type Target struct {
	Loop     *fx.Loop
	Logger   *datalog.Logger
	Register *config.Store
}

// Shell provides ishell backed interactive shell.
type Shell struct {
	OutputJSON bool
	Timeout    time.Duration

	Shell  *ishell.Shell
	Target *Target
}

const (
	shellKey = "$shell"
	prompt   = "iris> "
)

var (
	outputJSON bool

	commands = []*ishell.Cmd{
		&StatusCmd,
		&TelemetryCmd,
		&MemoryCmd,
		&EventCmd,
		&ConfigCmd,
	}
)

func init() {
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print terminal output in JSON.")
}

// AddCmds registers additional commands during init.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell operating target.
func New(target *Target) *Shell {
	s := &Shell{
		OutputJSON: outputJSON,
		Timeout:    CommandTimeout,
		Shell:      ishell.New(),
		Target:     target,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(prompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// SetOut redirects the output.
func (s *Shell) SetOut(w io.Writer) *Shell {
	s.Shell.SetOut(w)
	return s
}

// Call executes fn on the loop and waits for the result.
func (s *Shell) Call(fn fx.RequestFunc) (interface{}, error) {
	timeout := s.Timeout
	if timeout == 0 {
		timeout = CommandTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	val, err := s.Target.Loop.Call(ctx, fn)
	if err == context.DeadlineExceeded {
		err = fmt.Errorf("command timeout")
	}
	return val, err
}

// DoCommand runs fn on the loop and prints the result: as JSON when
// requested, otherwise with format.
func DoCommand(c *ishell.Context, fn fx.RequestFunc, format func(io.Writer, interface{})) error {
	s := ShellFrom(c)
	val, err := s.Call(fn)
	if err != nil {
		c.Err(err)
		return err
	}
	if s.OutputJSON && val != nil {
		out, err := json.Marshal(val)
		if err != nil {
			c.Err(err)
			return err
		}
		c.Println(string(out))
		return nil
	}
	if format == nil {
		c.Println("OK")
		return nil
	}
	w := &contextWriter{c: c}
	format(w, val)
	return nil
}

type contextWriter struct {
	c *ishell.Context
}

func (w *contextWriter) Write(p []byte) (int, error) {
	w.c.Print(string(p))
	return len(p), nil
}

// Run processes args when given, otherwise runs interactively until the
// operator exits or ctx is done.
func (s *Shell) Run(ctx context.Context, args ...string) error {
	if len(args) > 0 {
		return s.Shell.Process(args...)
	}
	s.Shell.Start()
	done := make(chan struct{})
	go func() {
		s.Shell.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		s.Shell.Close()
		return ctx.Err()
	case <-done:
		glog.Info("terminal closed")
		return nil
	}
}
