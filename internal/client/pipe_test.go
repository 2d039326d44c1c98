package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/wagiedev/mcpstdio/internal/config"
	"github.com/wagiedev/mcpstdio/internal/errors"
	"github.com/wagiedev/mcpstdio/internal/mcptest"
)

// pipeTransport serves an in-process mcptest.Server over pipes.
type pipeTransport struct {
	server *mcptest.Server

	toServer   *io.PipeWriter
	serverIn   *io.PipeReader
	serverOut  *io.PipeWriter
	fromServer *io.PipeReader

	writeMu   sync.Mutex
	mu        sync.Mutex
	ready     bool
	served    chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

var _ config.Transport = (*pipeTransport)(nil)

func newPipeTransport(server *mcptest.Server) *pipeTransport {
	serverIn, toServer := io.Pipe()
	fromServer, serverOut := io.Pipe()

	return &pipeTransport{
		server:     server,
		toServer:   toServer,
		serverIn:   serverIn,
		serverOut:  serverOut,
		fromServer: fromServer,
		served:     make(chan struct{}),
		closed:     make(chan struct{}),
	}
}

func (p *pipeTransport) Start(context.Context) error {
	p.mu.Lock()
	p.ready = true
	p.mu.Unlock()

	go func() {
		defer close(p.served)

		err := p.server.Serve(context.Background(), p.serverIn, p.serverOut)
		_ = p.serverOut.CloseWithError(err)
	}()

	return nil
}

func (p *pipeTransport) ReadMessages(context.Context) (<-chan map[string]any, <-chan error) {
	messages := make(chan map[string]any)
	errs := make(chan error, 1)

	go func() {
		defer close(messages)
		defer close(errs)

		scanner := bufio.NewScanner(p.fromServer)
		for scanner.Scan() {
			var msg map[string]any
			if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
				select {
				case errs <- &errors.ProtocolDecodeError{RawData: scanner.Text(), Err: err}:
				case <-p.closed:
				}

				continue
			}

			// After Close nothing consumes messages; keep draining the pipe.
			select {
			case messages <- msg:
			case <-p.closed:
			}
		}

		if err := scanner.Err(); err != nil {
			errs <- fmt.Errorf("%w: %w", errors.ErrTransportClosed, err)
		}
	}()

	return messages, errs
}

func (p *pipeTransport) SendMessage(_ context.Context, data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	line := append(append(make([]byte, 0, len(data)+1), data...), '\n')
	if _, err := p.toServer.Write(line); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrTransportClosed, err)
	}

	return nil
}

func (p *pipeTransport) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.ready = false
		p.mu.Unlock()

		close(p.closed)
		_ = p.toServer.Close()
		<-p.served
	})

	return nil
}

func (p *pipeTransport) IsReady() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.ready
}

func (p *pipeTransport) EndInput() error {
	return p.toServer.Close()
}

// silentTransport accepts every message and never answers.
type silentTransport struct {
	messages  chan map[string]any
	errs      chan error
	sent      chan struct{}
	closeOnce sync.Once
}

var _ config.Transport = (*silentTransport)(nil)

func newSilentTransport() *silentTransport {
	return &silentTransport{
		messages: make(chan map[string]any),
		errs:     make(chan error),
		sent:     make(chan struct{}, 1),
	}
}

func (s *silentTransport) Start(context.Context) error { return nil }

func (s *silentTransport) ReadMessages(context.Context) (<-chan map[string]any, <-chan error) {
	return s.messages, s.errs
}

func (s *silentTransport) SendMessage(context.Context, []byte) error {
	select {
	case s.sent <- struct{}{}:
	default:
	}

	return nil
}

func (s *silentTransport) Close() error {
	s.closeOnce.Do(func() {
		close(s.messages)
		close(s.errs)
	})

	return nil
}

func (s *silentTransport) IsReady() bool { return true }

func (s *silentTransport) EndInput() error { return nil }
