package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Server accepts connections and runs a session per connection.
type Server struct {
	Log         *zap.SugaredLogger
	Interpreter Interpreter

	Framing   Framing
	ReadLimit int
	// IdleTimeout bounds each read and write; zero means no deadline.
	IdleTimeout time.Duration
	// MaxSessions caps concurrent sessions; zero means unbounded.
	MaxSessions int64

	initOnce sync.Once
	sem      *semaphore.Weighted

	mu       sync.Mutex
	closed   bool
	sessions map[*Runner]struct{}
	wg       sync.WaitGroup
}

func (s *Server) init() {
	s.initOnce.Do(func() {
		if s.MaxSessions > 0 {
			s.sem = semaphore.NewWeighted(s.MaxSessions)
		}
		s.sessions = map[*Runner]struct{}{}
	})
}

// Serve accepts connections on l until the listener is closed or ctx is done.
// Every in-flight session is closed before Serve returns.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.init()
	defer s.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = l.Close()
		case <-done:
		}
	}()

	s.Log.Infow("accepting connections", "Addr", l.Addr().String())

	var tempDelay time.Duration
	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				tempDelay = backoff(tempDelay)
				s.Log.Debugf("accept error: %s; retrying in %s", err, tempDelay)
				time.Sleep(tempDelay)
				continue
			}
			return fmt.Errorf("accepting connection: %w", err)
		}
		tempDelay = 0

		codec, err := NewCodec(conn, s.Framing, s.ReadLimit, s.IdleTimeout)
		if err != nil {
			_ = conn.Close()
			return err
		}
		go s.ServeCodec(ctx, codec)
	}
}

func backoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	d *= 2
	if d > time.Second {
		d = time.Second
	}
	return d
}

// ServeCodec runs one session over codec and returns when it ends.
// The codec is closed right away if the server is at MaxSessions or already closed.
func (s *Server) ServeCodec(ctx context.Context, codec Codec) {
	s.init()

	if s.sem != nil && !s.sem.TryAcquire(1) {
		s.Log.Debugw("session limit reached, refusing connection", "Remote", codec.RemoteAddr(), "MaxSessions", s.MaxSessions)
		_ = codec.Close()
		return
	}
	if s.sem != nil {
		defer s.sem.Release(1)
	}

	runner := NewRunner(s.Log.Named("session"), codec, s.Interpreter)
	if !s.track(runner) {
		runner.Close()
		return
	}
	defer s.untrack(runner)

	runner.Run(ctx)
}

func (s *Server) track(r *Runner) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.sessions[r] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(r *Runner) {
	s.mu.Lock()
	delete(s.sessions, r)
	s.mu.Unlock()
	s.wg.Done()
}

// Sessions returns the number of sessions in flight.
func (s *Server) Sessions() int {
	s.init()
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close ends every in-flight session and refuses new ones, then waits for the sessions to finish.
// It does not close listeners.
func (s *Server) Close() {
	s.init()
	s.mu.Lock()
	s.closed = true
	for r := range s.sessions {
		r.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}
