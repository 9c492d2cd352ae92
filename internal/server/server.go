// Package server accepts client connections and runs their commands on a single event loop.
package server

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/cryptowallet/internal/command"
	"github.com/vadiminshakov/cryptowallet/internal/domain"
	"github.com/vadiminshakov/cryptowallet/internal/protocol"
	"github.com/vadiminshakov/cryptowallet/internal/services/users"
	"go.uber.org/zap"
)

// UnregisteredUser is replied to session commands issued without a session.
const UnregisteredUser = "Unregistered user cannot execute this command"

const defaultWriteTimeout = 5 * time.Second

// Dispatcher executes parsed commands.
type Dispatcher interface {
	ExecutePublic(ctx context.Context, cmd command.Command) (string, *users.User, error)
	ExecuteSession(ctx context.Context, cmd command.Command, user *users.User) (string, error)
}

// UserLookup re-resolves the user attached to a session.
type UserLookup interface {
	User(username string) (*users.User, error)
}

// Config holds listener settings.
type Config struct {
	Addr         string
	WriteTimeout time.Duration
	MaxLineSize  int
}

// Server multiplexes client connections onto one goroutine that executes every command.
// Reader goroutines only frame input; each waits until its command has been answered before
// reading the next one, so replies keep the order of their commands.
type Server struct {
	cfg        Config
	dispatcher Dispatcher
	users      UserLookup
	logger     *zap.Logger

	listener net.Listener
	requests chan request
	active   atomic.Int64
	served   atomic.Uint64

	mu    sync.Mutex
	conns map[string]*conn
	wg    sync.WaitGroup
}

type conn struct {
	id      string
	nc      net.Conn
	reader  *protocol.Reader
	session Session
}

// request is one command line waiting for the event loop. done is closed once the reply
// has been written.
type request struct {
	conn *conn
	line string
	done chan error
}

// New creates a server. Call Listen, then Serve.
func New(cfg Config, d Dispatcher, u UserLookup, logger *zap.Logger) *Server {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:        cfg,
		dispatcher: d,
		users:      u,
		logger:     logger,
		requests:   make(chan request),
		conns:      make(map[string]*conn),
	}
}

// Listen binds the configured address.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", s.cfg.Addr)
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address, nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ActiveConnections returns the number of open client connections.
func (s *Server) ActiveConnections() int {
	return int(s.active.Load())
}

// CommandsServed returns the number of commands answered since start.
func (s *Server) CommandsServed() uint64 {
	return s.served.Load()
}

// Start listens and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve accepts connections and runs the event loop until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return errors.New("server is not listening")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.logger.Info("server listening", zap.String("addr", s.listener.Addr().String()))

	acceptErr := make(chan error, 1)
	go func() {
		acceptErr <- s.acceptLoop(ctx)
	}()

	var (
		err          error
		acceptExited bool
	)
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case err = <-acceptErr:
			acceptExited = true
			break loop
		case req := <-s.requests:
			req.done <- s.respond(ctx, req.conn, req.line)
		}
	}

	cancel()
	_ = s.listener.Close()
	if !acceptExited {
		<-acceptErr
	}
	s.closeAll()
	s.wg.Wait()

	s.logger.Info("server stopped")
	return err
}

func (s *Server) acceptLoop(ctx context.Context) error {
	for {
		nc, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return errors.Wrap(err, "accept")
		}

		c := &conn{
			id:      uuid.NewString(),
			nc:      nc,
			reader:  protocol.NewReader(nc, s.cfg.MaxLineSize),
			session: anonymous(),
		}
		s.track(c)

		s.wg.Add(1)
		go s.readLoop(ctx, c)
	}
}

// readLoop frames commands of one connection and hands them to the event loop.
func (s *Server) readLoop(ctx context.Context, c *conn) {
	defer s.wg.Done()
	defer s.untrack(c)

	for {
		line, err := c.reader.ReadCommand()
		if err != nil {
			if ctx.Err() == nil && !isClosed(err) {
				s.logger.Debug("connection read failed", zap.String("conn", c.id), zap.Error(err))
			}
			return
		}

		req := request{conn: c, line: line, done: make(chan error, 1)}
		select {
		case s.requests <- req:
		case <-ctx.Done():
			return
		}

		select {
		case err := <-req.done:
			if err != nil {
				s.logger.Debug("connection write failed", zap.String("conn", c.id), zap.Error(err))
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// respond executes line for c and writes the reply. Only socket errors are returned.
func (s *Server) respond(ctx context.Context, c *conn, line string) error {
	reply := s.execute(ctx, c, line)
	s.served.Add(1)

	if err := c.nc.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		return errors.Wrap(err, "set write deadline")
	}
	return protocol.WriteReply(c.nc, reply)
}

// execute runs one command and always produces a reply.
func (s *Server) execute(ctx context.Context, c *conn, line string) (reply string) {
	cmd := command.Parse(line)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("command panicked",
				zap.String("conn", c.id),
				zap.String("command", string(cmd.Name)),
				zap.Any("panic", r))
			reply = domain.MessageUnexpected
		}
	}()

	switch {
	case cmd.Name == command.Unknown:
		return command.UnknownCommand

	case cmd.Authenticates():
		out, u, err := s.dispatcher.ExecutePublic(ctx, cmd)
		if err != nil {
			return s.failure(c, cmd, err)
		}
		c.session = authenticated(u)
		return out

	case cmd.Public():
		out, _, err := s.dispatcher.ExecutePublic(ctx, cmd)
		if err != nil {
			return s.failure(c, cmd, err)
		}
		return out

	default:
		u, ok := c.session.User()
		if !ok {
			return UnregisteredUser
		}
		out, err := s.dispatcher.ExecuteSession(ctx, cmd, u)
		if err != nil {
			return s.failure(c, cmd, err)
		}
		s.refresh(c, cmd, u.Username())
		return out
	}
}

// refresh re-resolves the attached user after a successful session command so the next
// command observes the stored state.
func (s *Server) refresh(c *conn, cmd command.Command, username string) {
	if cmd.Name == command.Logout {
		c.session = anonymous()
		return
	}
	fresh, err := s.users.User(username)
	if err != nil {
		s.logger.Error("failed to re-resolve session user", zap.String("conn", c.id), zap.String("user", username), zap.Error(err))
		c.session = anonymous()
		return
	}
	c.session = authenticated(fresh)
}

func (s *Server) failure(c *conn, cmd command.Command, err error) string {
	msg, class := domain.ClientMessage(err)

	fields := []zap.Field{
		zap.String("conn", c.id),
		zap.String("command", string(cmd.Name)),
		zap.Stringer("session", c.session.State()),
		zap.Error(err),
	}
	switch class {
	case domain.ClassUpstream:
		s.logger.Warn("price feed rejected request", fields...)
	case domain.ClassTransport:
		s.logger.Error("price feed unreachable", fields...)
	case domain.ClassUnexpected:
		s.logger.Error("command failed", fields...)
	}

	return msg
}

func (s *Server) track(c *conn) {
	s.mu.Lock()
	s.conns[c.id] = c
	s.mu.Unlock()

	n := s.active.Add(1)
	s.logger.Info("client connected",
		zap.String("conn", c.id),
		zap.String("remote", c.nc.RemoteAddr().String()),
		zap.Int64("active", n))
}

func (s *Server) untrack(c *conn) {
	s.mu.Lock()
	_, ok := s.conns[c.id]
	delete(s.conns, c.id)
	s.mu.Unlock()

	_ = c.nc.Close()
	if ok {
		n := s.active.Add(-1)
		s.logger.Info("client disconnected", zap.String("conn", c.id), zap.Int64("active", n))
	}
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		_ = c.nc.Close()
	}
}

func isClosed(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
