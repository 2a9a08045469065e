package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/guseggert/procagent/agent/command"
	"github.com/guseggert/procagent/agent/discovery"
	"github.com/guseggert/procagent/agent/gateway"
	"github.com/guseggert/procagent/agent/process"
	"github.com/guseggert/procagent/agent/session"
	"github.com/guseggert/procagent/internal/pidfile"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"vawter.tech/stopper"
)

const (
	DefaultListenAddr    = "0.0.0.0:5002"
	DefaultDiscoveryAddr = "0.0.0.0:5001"

	stopGracePeriod = 5 * time.Second
)

// Agent is the process-control service.
// It accepts TCP sessions, answers UDP discovery probes with its TCP port,
// and optionally serves the same sessions over a WebSocket gateway.
type Agent struct {
	logger *zap.SugaredLogger

	listenAddr    string
	discoveryAddr string
	discovery     bool
	gatewayAddr   string

	framing     session.Framing
	readLimit   int
	idleTimeout time.Duration
	maxSessions int64

	allowListPath string
	pidFilePath   string

	lister     process.Lister
	controller process.Controller
	allowList  *process.AllowList

	sessions  *session.Server
	responder *discovery.Responder
	gateway   *gateway.Gateway

	mu              sync.Mutex
	listener        net.Listener
	gatewayListener net.Listener
	cancel          context.CancelFunc
	ran             bool
	stopped         bool
	done            chan struct{}
}

type Option func(a *Agent)

func WithListenAddr(s string) Option {
	return func(a *Agent) {
		a.listenAddr = s
	}
}

func WithDiscoveryAddr(s string) Option {
	return func(a *Agent) {
		a.discoveryAddr = s
	}
}

// WithoutDiscovery disables the UDP discovery responder.
func WithoutDiscovery() Option {
	return func(a *Agent) {
		a.discovery = false
	}
}

// WithGatewayAddr enables the WebSocket gateway on s.
func WithGatewayAddr(s string) Option {
	return func(a *Agent) {
		a.gatewayAddr = s
	}
}

func WithFraming(f session.Framing) Option {
	return func(a *Agent) {
		a.framing = f
	}
}

func WithReadLimit(n int) Option {
	return func(a *Agent) {
		a.readLimit = n
	}
}

func WithIdleTimeout(d time.Duration) Option {
	return func(a *Agent) {
		a.idleTimeout = d
	}
}

func WithMaxSessions(n int64) Option {
	return func(a *Agent) {
		a.maxSessions = n
	}
}

// WithAllowList restricts START to the programs named in the file at path.
// The file is reloaded when it changes.
func WithAllowList(path string) Option {
	return func(a *Agent) {
		a.allowListPath = path
	}
}

func WithPIDFile(path string) Option {
	return func(a *Agent) {
		a.pidFilePath = path
	}
}

func WithLister(l process.Lister) Option {
	return func(a *Agent) {
		a.lister = l
	}
}

func WithController(c process.Controller) Option {
	return func(a *Agent) {
		a.controller = c
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(a *Agent) {
		a.logger = l.Sugar()
	}
}

func WithLogLevel(l zapcore.Level) Option {
	return func(a *Agent) {
		a.logger = a.logger.WithOptions(zap.IncreaseLevel(l))
	}
}

// NewAgent constructs a new agent. Nothing is bound until Listen or Run is called.
func NewAgent(opts ...Option) (*Agent, error) {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	a := &Agent{
		logger:        logger.Named("procagent").Sugar(),
		listenAddr:    DefaultListenAddr,
		discoveryAddr: DefaultDiscoveryAddr,
		discovery:     true,
		framing:       session.FramingChunk,
		readLimit:     session.DefaultReadLimit,
		done:          make(chan struct{}),
	}
	for _, o := range opts {
		o(a)
	}

	if a.lister == nil {
		a.lister = process.NewLister()
	}
	if a.allowListPath != "" {
		a.allowList, err = process.LoadAllowList(a.allowListPath, a.logger.Named("allowlist"))
		if err != nil {
			return nil, err
		}
	}
	if a.controller == nil {
		ctrl := process.NewController(a.logger.Named("controller"))
		ctrl.AllowList = a.allowList
		a.controller = ctrl
	} else if ctrl, ok := a.controller.(*process.HostController); ok && a.allowList != nil {
		ctrl.AllowList = a.allowList
	}

	a.sessions = &session.Server{
		Log: a.logger.Named("session_server"),
		Interpreter: &command.Interpreter{
			Log:        a.logger.Named("interpreter"),
			Lister:     a.lister,
			Controller: a.controller,
		},
		Framing:     a.framing,
		ReadLimit:   a.readLimit,
		IdleTimeout: a.idleTimeout,
		MaxSessions: a.maxSessions,
	}
	if a.gatewayAddr != "" {
		a.gateway = &gateway.Gateway{
			Log:         a.logger.Named("gateway"),
			Sessions:    a.sessions,
			ReadLimit:   a.readLimit,
			IdleTimeout: a.idleTimeout,
		}
	}
	return a, nil
}

// Listen binds the agent's sockets. It is called by Run and may be called earlier to learn the bound addresses.
// Failing to bind the TCP or gateway listener is fatal.
// Failing to bind the discovery socket is logged and discovery stays disabled.
func (a *Agent) Listen() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener != nil {
		return nil
	}
	if a.stopped {
		return errors.New("agent is stopped")
	}

	l, err := net.Listen("tcp", a.listenAddr)
	if err != nil {
		return fmt.Errorf("listening TCP: %w", err)
	}

	if a.gateway != nil {
		gl, err := net.Listen("tcp", a.gatewayAddr)
		if err != nil {
			l.Close()
			return fmt.Errorf("listening gateway: %w", err)
		}
		a.gatewayListener = gl
	}
	a.listener = l

	if a.discovery {
		r := &discovery.Responder{
			Log:     a.logger.Named("discovery"),
			TCPPort: l.Addr().(*net.TCPAddr).Port,
		}
		if err := r.Listen(a.discoveryAddr); err != nil {
			a.logger.Errorw("discovery disabled", "Addr", a.discoveryAddr, "Error", err)
		} else {
			a.responder = r
		}
	}
	return nil
}

// Addr is the bound TCP address, or nil before Listen.
func (a *Agent) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}

// DiscoveryAddr is the bound discovery address, or nil if discovery is not running.
func (a *Agent) DiscoveryAddr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.responder == nil {
		return nil
	}
	return a.responder.Addr()
}

// GatewayAddr is the bound gateway address, or nil if the gateway is disabled.
func (a *Agent) GatewayAddr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.gatewayListener == nil {
		return nil
	}
	return a.gatewayListener.Addr()
}

// Run runs the agent and returns once it has stopped, either because ctx is done or Stop was called.
// An agent runs at most once.
func (a *Agent) Run(ctx context.Context) error {
	a.mu.Lock()
	if a.ran {
		a.mu.Unlock()
		return errors.New("agent has already run")
	}
	a.ran = true
	a.mu.Unlock()
	defer close(a.done)
	if err := a.Listen(); err != nil {
		return err
	}

	if a.pidFilePath != "" {
		if err := pidfile.Write(a.pidFilePath); err != nil {
			a.closeListeners()
			return err
		}
		defer func() {
			if err := pidfile.Remove(a.pidFilePath); err != nil {
				a.logger.Errorw("removing pid file", "Error", err)
			}
		}()
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		a.closeListeners()
		return nil
	}
	a.cancel = cancel
	listener := a.listener
	gatewayListener := a.gatewayListener
	a.mu.Unlock()

	sctx := stopper.WithContext(runCtx)

	if a.responder != nil {
		sctx.Go(func(*stopper.Context) error {
			if err := a.responder.Serve(runCtx); err != nil {
				a.logger.Errorw("discovery stopped", "Error", err)
			}
			return nil
		})
	}

	if a.allowList != nil {
		sctx.Go(func(sctx *stopper.Context) error {
			if err := a.allowList.Watch(sctx); err != nil {
				a.logger.Errorw("allow-list reloading disabled", "Error", err)
			}
			return nil
		})
	}

	if a.gateway != nil {
		sctx.Go(func(*stopper.Context) error {
			return a.gateway.Serve(gatewayListener)
		})
		sctx.Go(func(sctx *stopper.Context) error {
			<-sctx.Stopping()
			return a.gateway.Close()
		})
	}

	a.logger.Infow("agent running", "Addr", listener.Addr().String())
	serveErr := a.sessions.Serve(runCtx, listener)

	cancel()
	sctx.Stop(stopGracePeriod)
	waitErr := sctx.Wait()
	a.logger.Infow("agent stopped")

	if serveErr != nil {
		return serveErr
	}
	return waitErr
}

func (a *Agent) closeListeners() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener != nil {
		a.listener.Close()
	}
	if a.gatewayListener != nil {
		a.gatewayListener.Close()
	}
	if a.responder != nil {
		a.responder.Close()
	}
}

// Stop stops a running agent and waits for Run to return.
// If Run was never called, Stop releases any bound sockets.
func (a *Agent) Stop() error {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return nil
	}
	a.stopped = true
	cancel := a.cancel
	a.mu.Unlock()

	if cancel == nil {
		a.closeListeners()
		return nil
	}
	cancel()
	<-a.done
	return nil
}
