// Package rpc is the loopback control channel. Frames are ASCII fields
// joined by the file separator byte 0x1C and terminated by a newline; every
// frame gets a single newline terminated response line.
package rpc

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"tombot/internal/core/domain"
	"tombot/internal/core/port"
)

const (
	FieldSeparator = "\x1c"
	DefaultAddress = "127.0.0.1:10666"
	MaxFrameSize   = 64 * 1024

	ResponseOK    = "Ok."
	ResponseError = "Error."
	ResponseBye   = "Bye."
)

var ErrNotLoopback = errors.New("control channel must listen on a loopback address")

var errFrameTooLong = errors.New("control frame too long")

// Handler serves one control command. Returning domain.Exit stops the bot
// after the response is written.
type Handler func(ctx context.Context, args []string) (string, error)

type entry struct {
	handler  Handler
	disabled bool
}

type ServerOption func(*Server)

// WithRequestHook is called with the command word of every frame.
func WithRequestHook(fn func(command string)) ServerOption {
	return func(s *Server) {
		s.onRequest = fn
	}
}

type Server struct {
	transport port.Transport
	lifecycle port.Lifecycle
	onRequest func(command string)

	mu       sync.RWMutex
	commands map[string]*entry

	listener net.Listener
	closed   atomic.Bool
	wg       sync.WaitGroup
}

func NewServer(transport port.Transport, lifecycle port.Lifecycle, opts ...ServerOption) *Server {
	s := &Server{
		transport: transport,
		lifecycle: lifecycle,
		commands:  make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.Register("PING", ping)
	s.Register("LOG", logArgs)
	s.Register("SEND", s.send)
	s.Register("SHUTDOWN", exitWith(domain.ExitStop))
	s.Register("RESTART", exitWith(domain.ExitRestart))

	return s
}

// Register adds a control command. Command words are case-insensitive.
func (s *Server) Register(command string, handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.commands[strings.ToUpper(command)] = &entry{handler: handler}
}

func ping(_ context.Context, args []string) (string, error) {
	return "Pong: " + strings.Join(args, " "), nil
}

func logArgs(_ context.Context, args []string) (string, error) {
	log.Info().Str("message", strings.Join(args, " ")).Msg("forcelog")
	return ResponseOK, nil
}

func (s *Server) send(ctx context.Context, args []string) (string, error) {
	if len(args) < 2 {
		log.Warn().Int("args", len(args)).Msg("SEND needs a recipient and a body")
		return ResponseError, nil
	}

	recipient, body := args[0], args[1]
	log.Info().Str("recipient", recipient).Msg("sending message for control channel")

	if err := s.transport.Send(ctx, recipient, body); err != nil {
		log.Warn().Err(err).Str("recipient", recipient).Msg("control channel send failed")
		return ResponseError, nil
	}

	return ResponseOK, nil
}

func exitWith(code int) Handler {
	return func(_ context.Context, _ []string) (string, error) {
		return ResponseBye, domain.Exit(code)
	}
}

// Listen binds address, which must resolve to a loopback interface.
func (s *Server) Listen(address string) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("invalid control channel address: %w", err)
	}

	if host != "localhost" {
		ip := net.ParseIP(host)
		if ip == nil || !ip.IsLoopback() {
			return fmt.Errorf("%w: %s", ErrNotLoopback, address)
		}
	}

	l, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	s.listener = l

	log.Info().Str("address", l.Addr().String()).Msg("control channel listening")
	return nil
}

func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}

	return s.listener.Addr()
}

// Serve accepts connections until the listener is closed. Each connection is
// handled on its own goroutine.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return errors.New("control channel not listening")
	}

	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closed.Load() {
				s.wg.Wait()
				return nil
			}
			return fmt.Errorf("control channel accept: %w", err)
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(ctx, conn)
		}()
	}
}

func (s *Server) Close() error {
	if s.closed.Swap(true) || s.listener == nil {
		return nil
	}

	log.Info().Msg("closing control channel")
	return s.listener.Close()
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	l := log.With().Str("remote", conn.RemoteAddr().String()).Logger()
	l.Debug().Msg("control connection opened")

	reader := bufio.NewReaderSize(conn, 4096)

	for {
		frame, err := readFrame(reader)
		if errors.Is(err, errFrameTooLong) {
			l.Warn().Int("limit", MaxFrameSize).Msg("control frame too long, skipping")
			if _, err := fmt.Fprintf(conn, "%s\n", ResponseError); err != nil {
				l.Warn().Err(err).Msg("failed to write control response")
				return
			}
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				l.Warn().Err(err).Msg("control connection failed")
			}
			return
		}

		fields := strings.Split(frame, FieldSeparator)

		response, code, exit := s.call(ctx, fields)
		l.Debug().Str("command", fields[0]).Str("response", response).Msg("control request handled")

		if _, err := fmt.Fprintf(conn, "%s\n", response); err != nil {
			l.Warn().Err(err).Msg("failed to write control response")
			return
		}

		if exit {
			conn.Close()
			_ = s.Close()
			s.lifecycle.Stop(code)
			return
		}
	}
}

// readFrame returns the next frame without its line ending. A frame longer
// than MaxFrameSize is consumed up to its newline and reported as
// errFrameTooLong. An unterminated frame at EOF is still returned.
func readFrame(r *bufio.Reader) (string, error) {
	var frame []byte
	tooLong := false

	for {
		chunk, err := r.ReadSlice('\n')
		if !tooLong {
			frame = append(frame, chunk...)
			if len(bytes.TrimSuffix(frame, []byte("\n"))) > MaxFrameSize {
				tooLong, frame = true, nil
			}
		}

		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if tooLong {
			return "", errFrameTooLong
		}
		if err != nil && (!errors.Is(err, io.EOF) || len(frame) == 0) {
			return "", err
		}

		line := strings.TrimSuffix(string(frame), "\n")
		return strings.TrimSuffix(line, "\r"), nil
	}
}

// call runs the command in fields[0]. A handler that fails for any reason
// other than an exit request is disabled.
func (s *Server) call(ctx context.Context, fields []string) (string, int, bool) {
	command := strings.ToUpper(strings.TrimSpace(fields[0]))
	if s.onRequest != nil {
		s.onRequest(command)
	}

	s.mu.RLock()
	e, ok := s.commands[command]
	disabled := ok && e.disabled
	s.mu.RUnlock()

	if !ok || disabled {
		log.Warn().Str("command", command).Msg("unknown control command")
		return ResponseError, 0, false
	}

	response, err := invoke(ctx, e.handler, fields[1:])
	if err == nil {
		return response, 0, false
	}

	if code, ok := domain.ExitCode(err); ok {
		return response, code, true
	}

	log.Error().Err(err).Bool("critical", true).Str("command", command).Msg("control command failed, disabling")
	s.mu.Lock()
	e.disabled = true
	s.mu.Unlock()

	return ResponseError, 0, false
}

func invoke(ctx context.Context, h Handler, args []string) (response string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", domain.ErrHandlerFault, r)
		}
	}()

	return h(ctx, args)
}
