// SPDX-License-Identifier: MPL-2.0

package sshserver

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"golang.org/x/term"

	"github.com/nestnet/nestnet/internal/cli"
)

// User is the login name shown in connection hints. Any name is accepted.
const User = "nestnet"

type (
	// TokenValue is the secret a client sends as its SSH password.
	TokenValue string

	// Token grants console access until it expires.
	Token struct {
		Value     TokenValue
		CreatedAt time.Time
		ExpiresAt time.Time
		// Owner names who the token was issued for.
		Owner string
	}

	// Clock is the time source for token expiry.
	Clock interface {
		Now() time.Time
	}

	realClock struct{}

	// Config holds the server settings.
	Config struct {
		// Host is the address to bind to (default: 127.0.0.1)
		Host string
		// Port is the port to listen on (0 = auto-select)
		Port int
		// TokenTTL is how long tokens are valid (default: 1 hour)
		TokenTTL time.Duration
		// ShutdownTimeout bounds the graceful shutdown (default: 10s)
		ShutdownTimeout time.Duration
		// StartupTimeout bounds Start (default: 5s)
		StartupTimeout time.Duration
		// HostKeyPath persists the host key; empty uses an ephemeral key.
		HostKeyPath string
	}

	// ConnectionInfo is what a client needs to log in.
	ConnectionInfo struct {
		Host     string
		Port     int
		User     string
		Token    TokenValue
		ExpireAt time.Time
	}

	// Server serves the command line of one network over SSH. A Server is
	// single-use: once stopped or failed, create a new one.
	Server struct {
		*lifecycle

		cfg     Config
		network cli.Network
		cliOpts cli.Options
		logger  *log.Logger
		clock   Clock

		srvMu    sync.Mutex
		srv      *ssh.Server
		listener net.Listener
		addr     string

		tokenMu sync.RWMutex
		tokens  map[TokenValue]*Token
	}

	// Option configures a Server.
	Option func(*Server)
)

func (realClock) Now() time.Time { return time.Now() }

// WithLogger sets the server's own logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithClock replaces the token clock.
func WithClock(c Clock) Option {
	return func(s *Server) { s.clock = c }
}

// WithCLIOptions sets the template for every session's command line. In,
// Lines, Out and Logger are replaced per session.
func WithCLIOptions(opts cli.Options) Option {
	return func(s *Server) { s.cliOpts = opts }
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		Host:            "127.0.0.1",
		TokenTTL:        time.Hour,
		ShutdownTimeout: 10 * time.Second,
		StartupTimeout:  5 * time.Second,
	}
}

// New returns a server for network. It is not started.
func New(cfg Config, network cli.Network, opts ...Option) *Server {
	d := DefaultConfig()
	if cfg.Host == "" {
		cfg.Host = d.Host
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = d.TokenTTL
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = d.ShutdownTimeout
	}
	if cfg.StartupTimeout == 0 {
		cfg.StartupTimeout = d.StartupTimeout
	}
	s := &Server{
		lifecycle: newLifecycle(),
		cfg:       cfg,
		network:   network,
		logger:    log.Default().WithPrefix("ssh"),
		clock:     realClock{},
		tokens:    map[TokenValue]*Token{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cliOpts.Lock == nil {
		s.cliOpts.Lock = &sync.Mutex{}
	}
	return s
}

// Start binds the listener and blocks until the server accepts
// connections, fails, or ctx ends.
func (s *Server) Start(ctx context.Context) error {
	if err := s.toStarting(ctx); err != nil {
		return err
	}
	startupCtx, cancel := context.WithTimeout(ctx, s.cfg.StartupTimeout)
	defer cancel()

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	var lc net.ListenConfig
	listener, err := lc.Listen(startupCtx, "tcp", addr)
	if err != nil {
		s.fail(fmt.Errorf("failed to listen on %s: %w", addr, err))
		return s.lastError()
	}

	opts := []ssh.Option{
		wish.WithAddress(addr),
		wish.WithPublicKeyAuth(func(ssh.Context, ssh.PublicKey) bool { return false }),
		wish.WithPasswordAuth(s.passwordHandler),
		wish.WithMiddleware(s.consoleMiddleware()),
	}
	if s.cfg.HostKeyPath != "" {
		opts = append(opts, wish.WithHostKeyPath(s.cfg.HostKeyPath))
	}
	srv, err := wish.NewServer(opts...)
	if err != nil {
		_ = listener.Close()
		s.fail(fmt.Errorf("failed to create SSH server: %w", err))
		return s.lastError()
	}

	s.srvMu.Lock()
	s.srv = srv
	s.listener = listener
	s.addr = listener.Addr().String()
	s.srvMu.Unlock()

	s.wg.Add(2)
	go s.serve()
	go s.expireTokens()

	select {
	case <-s.startedCh:
		s.logger.Info("SSH console listening", "address", s.addr)
		return nil
	case err := <-s.errCh:
		_ = listener.Close()
		s.fail(err)
		return err
	case <-startupCtx.Done():
		_ = listener.Close()
		s.fail(fmt.Errorf("startup timeout: %w", startupCtx.Err()))
		return s.lastError()
	}
}

// Stop shuts the server down and waits for open sessions up to the
// shutdown timeout. Later calls are no-ops.
func (s *Server) Stop() error {
	if !s.toStopping() {
		s.wg.Wait()
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	var err error
	s.srvMu.Lock()
	if s.srv != nil {
		if err = s.srv.Shutdown(ctx); err != nil && isClosedConnError(err) {
			err = nil
		}
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.srvMu.Unlock()

	s.wg.Wait()
	s.state.Store(int32(StateStopped))
	close(s.errCh)
	s.logger.Debug("SSH console stopped")
	return err
}

// State returns the current state.
func (s *Server) State() State { return s.current() }

// IsRunning reports whether the server accepts connections.
func (s *Server) IsRunning() bool { return s.current() == StateRunning }

// Err receives fatal errors after Start returned; it is closed by Stop.
func (s *Server) Err() <-chan error { return s.errCh }

// Wait blocks until the server stops and returns its failure, if any.
func (s *Server) Wait() error {
	s.wg.Wait()
	if s.current() == StateFailed {
		return s.lastError()
	}
	return nil
}

// Address returns the bound host:port, or "" before a successful start.
func (s *Server) Address() string {
	select {
	case <-s.startedCh:
		s.srvMu.Lock()
		defer s.srvMu.Unlock()
		return s.addr
	default:
		return ""
	}
}

// Port returns the bound port, or 0.
func (s *Server) Port() int {
	_, port, err := net.SplitHostPort(s.Address())
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return 0
	}
	return n
}

// GenerateToken issues a token for owner.
func (s *Server) GenerateToken(owner string) (*Token, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	now := s.clock.Now()
	token := &Token{
		Value:     TokenValue(hex.EncodeToString(b)),
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.TokenTTL),
		Owner:     owner,
	}
	s.tokenMu.Lock()
	s.tokens[token.Value] = token
	s.tokenMu.Unlock()
	return token, nil
}

// ValidateToken returns the token if it exists and has not expired.
// Expired tokens are revoked.
func (s *Server) ValidateToken(v TokenValue) (*Token, bool) {
	s.tokenMu.RLock()
	token, ok := s.tokens[v]
	s.tokenMu.RUnlock()
	if !ok {
		return nil, false
	}
	if s.clock.Now().After(token.ExpiresAt) {
		s.RevokeToken(v)
		return nil, false
	}
	return token, true
}

// RevokeToken invalidates a token.
func (s *Server) RevokeToken(v TokenValue) {
	s.tokenMu.Lock()
	delete(s.tokens, v)
	s.tokenMu.Unlock()
}

// ConnectionInfo issues a token for owner and returns how to log in with
// it. The server must be running.
func (s *Server) ConnectionInfo(owner string) (*ConnectionInfo, error) {
	if !s.IsRunning() {
		return nil, fmt.Errorf("SSH console is not running (state: %s)", s.State())
	}
	token, err := s.GenerateToken(owner)
	if err != nil {
		return nil, err
	}
	return &ConnectionInfo{
		Host:     s.cfg.Host,
		Port:     s.Port(),
		User:     User,
		Token:    token.Value,
		ExpireAt: token.ExpiresAt,
	}, nil
}

func (s *Server) serve() {
	defer s.wg.Done()
	s.toRunning()

	s.srvMu.Lock()
	srv, listener := s.srv, s.listener
	s.srvMu.Unlock()

	if err := srv.Serve(listener); err != nil {
		if errors.Is(err, ssh.ErrServerClosed) || errors.Is(err, net.ErrClosed) {
			return
		}
		s.sendError(fmt.Errorf("serve error: %w", err))
	}
}

func (s *Server) expireTokens() {
	defer s.wg.Done()
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			now := s.clock.Now()
			s.tokenMu.Lock()
			for v, token := range s.tokens {
				if now.After(token.ExpiresAt) {
					delete(s.tokens, v)
				}
			}
			s.tokenMu.Unlock()
		}
	}
}

func (s *Server) passwordHandler(ctx ssh.Context, password string) bool {
	token, ok := s.ValidateToken(TokenValue(password))
	if !ok {
		s.logger.Warn("rejected SSH login", "user", ctx.User(), "remote", ctx.RemoteAddr())
		return false
	}
	ctx.SetValue("owner", token.Owner)
	s.logger.Debug("SSH login", "user", ctx.User(), "owner", token.Owner)
	return true
}

func (s *Server) consoleMiddleware() wish.Middleware {
	return func(ssh.Handler) ssh.Handler {
		return func(sess ssh.Session) {
			_ = sess.Exit(s.handle(sess))
		}
	}
}

// handle runs one session and returns its exit status.
func (s *Server) handle(sess ssh.Session) int {
	opts := s.cliOpts
	ctx := context.Context(sess.Context())

	if args := sess.Command(); len(args) > 0 {
		opts.Out = sess
		opts.Logger = sessionLogger(sess.Stderr())
		c := cli.New(opts)
		opts.Lock.Lock()
		err := c.Exec(ctx, s.network, strings.Join(args, " "))
		opts.Lock.Unlock()
		if err != nil {
			fmt.Fprintln(sess.Stderr(), err)
			return 1
		}
		return 0
	}

	if _, _, isPty := sess.Pty(); isPty {
		prompt := opts.Prompt
		if prompt == "" {
			prompt = cli.DefaultPrompt
		}
		t := term.NewTerminal(sess, prompt)
		opts.Lines = t
		opts.Out = t
	} else {
		opts.In = sess
		opts.Out = sess
	}
	opts.Logger = sessionLogger(opts.Out)
	if err := cli.New(opts).Interact(ctx, s.network); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(sess.Stderr(), err)
		return 1
	}
	return 0
}

func sessionLogger(w io.Writer) *log.Logger {
	return log.NewWithOptions(w, log.Options{Level: log.GetLevel()})
}

func isClosedConnError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && errors.Is(opErr.Err, net.ErrClosed)
}
