// Package ipmi drives a persistent interactive ipmitool shell subprocess.
//
// Each Session owns one subprocess and is run as a single-owner actor: one
// goroutine holds the process handle and its protocol state machine, and
// callers reach it only through a request channel. Commands therefore
// execute strictly one at a time in submission order, even when several
// fan zones share a session.
package ipmi

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/ipmifanctl/internal/errors"
	"codeberg.org/mutker/ipmifanctl/internal/logger"
)

// State is the session protocol state.
type State int32

const (
	StateDisconnected State = iota
	StateStarting
	StateReady
	StateBusy
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateBusy:
		return "busy"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

const (
	defaultCommand        = "ipmitool"
	defaultPrompt         = "ipmitool> "
	defaultQuitCommand    = "exit"
	defaultStartupTimeout = 10 * time.Second
	defaultCommandTimeout = 10 * time.Second
	quitWaitTimeout       = 2 * time.Second
)

// Options describe how to spawn and talk to the interactive tool.
type Options struct {
	Command        string
	Args           []string
	Prompt         string
	QuitCommand    string
	StartupTimeout time.Duration
	CommandTimeout time.Duration
}

// ShellOptions builds the options for an ipmitool shell session. The
// session arguments from the configuration are passed through and the
// "shell" subcommand is appended. An empty args list is the implicit
// default session against the local machine.
func ShellOptions(tool string, args []string) Options {
	shellArgs := make([]string, 0, len(args)+1)
	shellArgs = append(shellArgs, args...)
	shellArgs = append(shellArgs, "shell")

	return Options{
		Command: tool,
		Args:    shellArgs,
	}
}

func (o Options) withDefaults() Options {
	if o.Command == "" {
		o.Command = defaultCommand
	}
	if o.Prompt == "" {
		o.Prompt = defaultPrompt
	}
	if o.QuitCommand == "" {
		o.QuitCommand = defaultQuitCommand
	}
	if o.StartupTimeout <= 0 {
		o.StartupTimeout = defaultStartupTimeout
	}
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = defaultCommandTimeout
	}

	return o
}

type request struct {
	line  string
	reply chan result
}

type result struct {
	body string
	err  error
}

// Session is a handle to one interactive subprocess. The subprocess is
// spawned lazily by the first command and respawned once after a failure.
type Session struct {
	name string
	opts Options

	requests  chan request
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	state atomic.Int32

	// Owned exclusively by the actor goroutine.
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	output *outputReader
}

// Open creates a session and starts its actor goroutine. The subprocess
// itself is not spawned until the first command needs it.
func Open(name string, opts Options) *Session {
	s := &Session{
		name:     name,
		opts:     opts.withDefaults(),
		requests: make(chan request),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.run()

	return s
}

// Name returns the session name.
func (s *Session) Name() string {
	return s.name
}

// State returns the current protocol state.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(state State) {
	s.state.Store(int32(state))
}

// Execute submits one command line and waits for its complete response,
// the output captured between the command and the next prompt. Commands
// from all callers are serialized in submission order. Cancelling ctx
// abandons a command still waiting in the queue; a command already being
// executed always runs to completion or to its timeout.
func (s *Session) Execute(ctx context.Context, line string) (string, error) {
	errFactory := errors.New()

	req := request{line: line, reply: make(chan result, 1)}

	select {
	case s.requests <- req:
	case <-s.quit:
		return "", errFactory.New(ErrSessionClosed)
	case <-ctx.Done():
		return "", errFactory.Wrap(ErrSessionClosed, ctx.Err())
	}

	select {
	case res := <-req.reply:
		return res.body, res.err
	case <-s.done:
		return "", errFactory.New(ErrSessionClosed)
	}
}

// Close shuts the session down. An in-flight command is allowed to finish
// or time out first; the subprocess is then asked to quit and killed if it
// does not. Close blocks until the actor goroutine has exited.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.quit)
	})
	<-s.done
}

func (s *Session) run() {
	defer close(s.done)

	for {
		select {
		case <-s.quit:
			s.teardown()
			return
		case req := <-s.requests:
			body, err := s.handle(req.line)
			req.reply <- result{body: body, err: err}
		}
	}
}

// handle drives the state machine for one command. A session that is not
// ready is (re)spawned first, with exactly one retry before the command is
// failed as unavailable.
func (s *Session) handle(line string) (string, error) {
	if s.State() != StateReady {
		if err := s.connect(); err != nil {
			logger.Debug().Str("session", s.name).Err(err).Msg("Session spawn failed, retrying once")
			if err = s.connect(); err != nil {
				return "", errors.New().Wrap(ErrSessionUnavailable, err)
			}
		}
	}

	return s.command(line)
}

func (s *Session) connect() error {
	errFactory := errors.New()

	s.disconnect()

	cmd := exec.Command(s.opts.Command, s.opts.Args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		s.setState(StateFailed)
		return errFactory.Wrap(ErrSpawnFailed, err)
	}

	// stdout and stderr are merged: the tool writes errors interleaved
	// with the prompt stream and both delimit the same response.
	outR, outW, err := os.Pipe()
	if err != nil {
		s.setState(StateFailed)
		return errFactory.Wrap(ErrSpawnFailed, err)
	}
	cmd.Stdout = outW
	cmd.Stderr = outW

	if err := cmd.Start(); err != nil {
		outR.Close()
		outW.Close()
		s.setState(StateFailed)
		return errFactory.Wrap(ErrSpawnFailed, err)
	}
	outW.Close()

	s.cmd = cmd
	s.stdin = stdin
	s.output = newOutputReader(outR)
	s.setState(StateStarting)

	logger.Debug().Str("session", s.name).Str("command", s.opts.Command).Msg("Session subprocess spawned")

	if _, err := s.output.waitPrompt(s.opts.Prompt, s.opts.StartupTimeout); err != nil {
		s.fail()
		return err
	}

	s.setState(StateReady)

	return nil
}

func (s *Session) command(line string) (string, error) {
	errFactory := errors.New()

	s.setState(StateBusy)

	if _, err := io.WriteString(s.stdin, line+"\n"); err != nil {
		s.fail()
		return "", errFactory.Wrap(ErrCommandFailed, err)
	}

	body, err := s.output.waitPrompt(s.opts.Prompt, s.opts.CommandTimeout)
	if err != nil {
		s.fail()
		if errors.HasCode(err, ErrPromptTimeout) {
			return "", errFactory.Wrap(ErrCommandTimeout, err)
		}
		return "", errFactory.Wrap(ErrCommandFailed, err)
	}

	s.setState(StateReady)

	return body, nil
}

// fail kills the subprocess and marks the session Failed. The next command
// re-enters the connect path.
func (s *Session) fail() {
	s.terminate(false)
	s.setState(StateFailed)
}

func (s *Session) disconnect() {
	if s.cmd != nil {
		s.terminate(false)
	}
	s.setState(StateDisconnected)
}

func (s *Session) teardown() {
	if s.cmd == nil {
		return
	}
	s.terminate(s.State() == StateReady)
	s.setState(StateDisconnected)
}

// terminate reaps the subprocess. A ready session is asked to quit first;
// anything else, or a quit that stalls, is killed.
func (s *Session) terminate(graceful bool) {
	if s.cmd == nil {
		return
	}

	if graceful {
		if _, err := io.WriteString(s.stdin, s.opts.QuitCommand+"\n"); err != nil {
			graceful = false
		}
	}
	s.stdin.Close()

	waited := make(chan error, 1)
	go func() {
		waited <- s.cmd.Wait()
	}()

	wait := quitWaitTimeout
	if !graceful {
		wait = 0
	}

	if wait > 0 {
		select {
		case <-waited:
			s.cmd = nil
		case <-time.After(wait):
		}
	}

	if s.cmd != nil {
		if err := s.cmd.Process.Kill(); err != nil {
			logger.Debug().Str("session", s.name).Err(err).Msg("Failed to kill session subprocess")
		}
		<-waited
		s.cmd = nil
	}

	s.output.stop()
	s.output = nil
	s.stdin = nil
}
