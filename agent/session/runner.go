package session

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Interpreter turns one command message into a reply.
type Interpreter interface {
	Interpret(ctx context.Context, line string) (reply string, closeSession bool)
}

// Runner owns one client connection for the lifetime of a session.
type Runner struct {
	ID uuid.UUID

	log    *zap.SugaredLogger
	codec  Codec
	interp Interpreter

	closeOnce sync.Once
}

// NewRunner builds a session over codec. The codec is owned by the runner from here on.
func NewRunner(log *zap.SugaredLogger, codec Codec, interp Interpreter) *Runner {
	id := uuid.New()
	return &Runner{
		ID:     id,
		log:    log.With("Session", id.String(), "Remote", codec.RemoteAddr()),
		codec:  codec,
		interp: interp,
	}
}

// Run processes commands in order until the session ends, then closes the connection.
func (r *Runner) Run(ctx context.Context) {
	defer r.Close()
	r.log.Debug("session started")

	for {
		msg, err := r.codec.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				r.log.Debug("peer closed the connection")
			} else {
				r.log.Debugf("read error: %s", err)
			}
			return
		}

		reply, closeSession := r.interp.Interpret(ctx, string(msg))
		if reply != "" {
			err := r.codec.WriteMessage(ctx, []byte(reply))
			if err != nil {
				r.log.Debugf("write error: %s", err)
				return
			}
		}
		if closeSession {
			r.log.Debug("client ended the session")
			return
		}
	}
}

// Close closes the connection. It is safe to call more than once and from other goroutines,
// which unblocks a pending read and ends Run.
func (r *Runner) Close() {
	r.closeOnce.Do(func() {
		err := r.codec.Close()
		if err != nil {
			r.log.Debugf("error closing conn: %s", err)
		}
		r.log.Debug("session closed")
	})
}
