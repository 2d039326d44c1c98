package subprocess

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/wagiedev/mcpstdio/internal/config"
	"github.com/wagiedev/mcpstdio/internal/errors"
)

// defaultShutdownGracePeriod is how long each shutdown stage waits for exit.
const defaultShutdownGracePeriod = 5 * time.Second

// Transport implements config.Transport by spawning the tool server as a
// child process and exchanging line-delimited JSON over its stdio.
type Transport struct {
	log     *slog.Logger
	options *config.Options

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser

	messages chan map[string]any
	errs     chan error

	// done is closed by Close; readers stop delivering and drain instead.
	done chan struct{}
	// exited is closed once the process has been reaped.
	exited chan struct{}

	mu          sync.Mutex // Protects the fields below
	writeMu     sync.Mutex // Serializes stdin writes
	started     bool
	closing     bool // Whether Close() has been called (intentional shutdown)
	stdinClosed bool

	closeOnce sync.Once
	closeErr  error
}

// Compile-time verification that Transport implements the Transport interface.
var _ config.Transport = (*Transport)(nil)

// NewTransport creates a transport for options.Command and options.Args.
//
// Nothing is launched until Start. The logger receives lifecycle events and,
// at debug level, every stderr line the server writes.
func NewTransport(log *slog.Logger, options *config.Options) *Transport {
	if options == nil {
		options = &config.Options{}
	}

	return &Transport{
		log:      log.With("component", "stdio_transport"),
		options:  options,
		messages: make(chan map[string]any),
		errs:     make(chan error, 1),
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
}

// Start launches the server process and begins reading its output.
//
// The process is not tied to ctx; it lives until Close or until it exits on
// its own. Returns LaunchError if the executable cannot be found or started.
func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return stderrors.New("transport already started")
	}

	if t.closing {
		return errors.ErrTransportClosed
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	command := t.options.Command
	if command == "" {
		return &errors.LaunchError{Err: stderrors.New("no server command configured")}
	}

	path, err := exec.LookPath(command)
	if err != nil {
		t.log.Error("Server executable not found", "command", command, "error", err)

		return &errors.LaunchError{Command: command, Err: err}
	}

	//nolint:gosec // G204: launching the configured server is the purpose of this transport
	cmd := exec.Command(path, t.options.Args...)
	cmd.Dir = t.options.Cwd
	cmd.Env = buildEnvironment(t.options.Env)

	if t.stdin, err = cmd.StdinPipe(); err != nil {
		return &errors.LaunchError{Command: command, Err: fmt.Errorf("stdin pipe: %w", err)}
	}

	if t.stdout, err = cmd.StdoutPipe(); err != nil {
		return &errors.LaunchError{Command: command, Err: fmt.Errorf("stdout pipe: %w", err)}
	}

	if t.stderr, err = cmd.StderrPipe(); err != nil {
		return &errors.LaunchError{Command: command, Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		t.log.Error("Failed to start server process", "command", command, "error", err)

		return &errors.LaunchError{Command: command, Err: err}
	}

	t.cmd = cmd
	t.started = true

	t.log.Info("Server process started", "command", command, "args", t.options.Args, "pid", cmd.Process.Pid)

	go t.readLoop()

	return nil
}

// ReadMessages returns the channels fed by the stdout reader.
//
// Every call returns the same pair. Decode errors for single lines are sent
// as ProtocolDecodeError and reading continues. When the process exits with
// a failure a ProcessError is sent. Both channels are closed once stdout
// reaches EOF and the process has been reaped.
func (t *Transport) ReadMessages(_ context.Context) (<-chan map[string]any, <-chan error) {
	return t.messages, t.errs
}

func (t *Transport) readLoop() {
	defer close(t.messages)
	defer close(t.errs)
	defer t.log.Debug("Reader stopped")

	var (
		stderrWg     sync.WaitGroup
		stderrMu     sync.Mutex
		stderrBuffer strings.Builder
	)

	// Stderr must be drained before Wait.
	// See: https://pkg.go.dev/os/exec#Cmd.StderrPipe
	stderrWg.Go(func() {
		scanner := newLineScanner(t.stderr, maxScanTokenSize)
		for scanner.Scan() {
			line := scanner.Text()

			stderrMu.Lock()

			if stderrBuffer.Len() < maxStderrBufferSize {
				if stderrBuffer.Len() > 0 {
					stderrBuffer.WriteString("\n")
				}

				stderrBuffer.WriteString(line)
			}

			stderrMu.Unlock()

			t.log.Debug("Server stderr", "line", line)

			if t.options.Stderr != nil {
				t.options.Stderr(line)
			}
		}

		if err := scanner.Err(); err != nil {
			t.log.Debug("Stderr scanner error", "error", err)
		}
	})

	maxSize := maxScanTokenSize
	if t.options.MaxBufferSize != nil {
		maxSize = *t.options.MaxBufferSize
	}

	scanner := newLineScanner(t.stdout, maxSize)
	discard := false
	failed := false
	messageCount := 0

	for scanner.Scan() {
		if discard {
			continue
		}

		msg, ok, err := decodeLine(scanner.Bytes())
		if !ok {
			continue
		}

		if err != nil {
			t.log.Warn("Discarding undecodable server output", "error", err, "line", scanner.Text())

			if !t.emitError(err) {
				discard = true
			}

			continue
		}

		messageCount++

		select {
		case t.messages <- msg:
		case <-t.done:
			discard = true
		}
	}

	if err := scanner.Err(); err != nil {
		t.log.Error("Scanner error while reading server output", "error", err)

		failed = true
		t.emitError(fmt.Errorf("%w: read stdout: %w", errors.ErrTransportClosed, err))

		// Nothing reads stdout any more; stop the process so Wait returns.
		_ = t.cmd.Process.Kill()
	}

	stderrWg.Wait()

	t.log.Debug("Waiting for server process to exit", "messages", messageCount)

	err := t.cmd.Wait()
	close(t.exited)

	t.mu.Lock()
	closing := t.closing
	t.mu.Unlock()

	switch {
	case closing:
		t.log.Debug("Server process terminated during shutdown")
	case failed:
	case err != nil:
		stderrMu.Lock()
		stderrOutput := cleanStderr(stderrBuffer.String())
		stderrMu.Unlock()

		exitCode := -1
		if exitErr, ok := stderrors.AsType[*exec.ExitError](err); ok {
			exitCode = exitErr.ExitCode()
		}

		t.log.Error("Server process exited with error", "exit_code", exitCode, "stderr", stderrOutput)

		t.emitError(&errors.ProcessError{ExitCode: exitCode, Stderr: stderrOutput, Err: err})
	default:
		t.log.Info("Server process exited")
	}
}

// emitError delivers err unless the transport is closing.
func (t *Transport) emitError(err error) bool {
	select {
	case t.errs <- err:
		return true
	case <-t.done:
		return false
	}
}

// SendMessage writes data to the server's stdin followed by a newline.
//
// This method is safe for concurrent use; each message is written whole.
// It respects context cancellation even during blocking writes. Once stdin
// is closed or the process has exited it returns an error matching
// ErrTransportClosed.
func (t *Transport) SendMessage(ctx context.Context, data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.mu.Lock()
	stdin, started, stdinClosed := t.stdin, t.started, t.stdinClosed
	t.mu.Unlock()

	if !started || stdin == nil {
		return errors.ErrTransportNotConnected
	}

	if stdinClosed {
		return fmt.Errorf("%w: stdin closed", errors.ErrTransportClosed)
	}

	select {
	case <-t.exited:
		return fmt.Errorf("%w: server process exited", errors.ErrTransportClosed)
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	// Use explicit copy to avoid mutating caller's backing array if slice has spare capacity
	if len(data) == 0 || data[len(data)-1] != '\n' {
		line := make([]byte, len(data)+1)
		copy(line, data)
		line[len(data)] = '\n'
		data = line
	}

	done := make(chan error, 1)

	go func() {
		_, err := stdin.Write(data)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.log.Debug("Failed to write message to server", "error", err)

			return fmt.Errorf("%w: write to stdin: %w", errors.ErrTransportClosed, err)
		}

		return nil
	case <-ctx.Done():
		t.log.Debug("Context cancelled during write, closing stdin")

		// A partial line cannot be recovered; closing stdin unblocks the write.
		_ = t.EndInput()

		select {
		case <-done:
		case <-time.After(1 * time.Second):
			t.log.Warn("Write goroutine did not exit after stdin close, potential leak")
		}

		return ctx.Err()
	}
}

// IsReady reports whether the process is running and stdin is open.
func (t *Transport) IsReady() bool {
	t.mu.Lock()
	ready := t.started && !t.closing && !t.stdinClosed
	t.mu.Unlock()

	if !ready {
		return false
	}

	select {
	case <-t.exited:
		return false
	default:
		return true
	}
}

// EndInput closes the server's stdin, signalling that no more requests follow.
func (t *Transport) EndInput() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stdin == nil || t.stdinClosed {
		return nil
	}

	t.log.Debug("Closing stdin pipe")

	t.stdinClosed = true

	return t.stdin.Close()
}

// Exited returns a channel closed once the server process has been reaped.
func (t *Transport) Exited() <-chan struct{} {
	return t.exited
}

// Close shuts the server down.
//
// Stdin is closed first so a well-behaved server exits on EOF. If it is still
// running after the grace period it receives SIGTERM, and after another grace
// period SIGKILL. Close is idempotent and safe on an unstarted transport.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.shutdown()
	})

	return t.closeErr
}

func (t *Transport) shutdown() error {
	t.mu.Lock()
	t.closing = true
	cmd := t.cmd
	t.mu.Unlock()

	_ = t.EndInput()

	close(t.done)

	if cmd == nil {
		return nil
	}

	grace := defaultShutdownGracePeriod
	if t.options.ShutdownGracePeriod != nil {
		grace = *t.options.ShutdownGracePeriod
	}

	pid := cmd.Process.Pid

	if t.waitExit(grace) {
		t.log.Debug("Server exited after stdin close", "pid", pid)

		return nil
	}

	t.log.Debug("Sending SIGTERM to server", "pid", pid)

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil && !stderrors.Is(err, os.ErrProcessDone) {
		t.log.Debug("SIGTERM failed", "pid", pid, "error", err)
	}

	if t.waitExit(grace) {
		return nil
	}

	t.log.Warn("Server ignored SIGTERM, killing", "pid", pid)

	if err := cmd.Process.Kill(); err != nil && !stderrors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill server process (pid %d): %w", pid, err)
	}

	if !t.waitExit(grace) {
		t.log.Warn("Server process not reaped after SIGKILL", "pid", pid)
	}

	return nil
}

func (t *Transport) waitExit(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-t.exited:
		return true
	case <-timer.C:
		return false
	}
}

// buildEnvironment layers overrides on the current process environment.
func buildEnvironment(overrides map[string]string) []string {
	env := os.Environ()
	if len(overrides) == 0 {
		return env
	}

	env = slices.DeleteFunc(env, func(kv string) bool {
		key, _, _ := strings.Cut(kv, "=")
		_, overridden := overrides[key]

		return overridden
	})

	for _, key := range slices.Sorted(maps.Keys(overrides)) {
		env = append(env, key+"="+overrides[key])
	}

	return env
}
