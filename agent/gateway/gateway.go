// Package gateway serves the process-control protocol over WebSockets, for clients that can only speak HTTP.
//
// GET /session upgrades to a WebSocket on which every text or binary message is one command and every reply is one text message.
// Sessions behave exactly like TCP sessions: same interpreter, same session limit and idle timeout, EXIT closes the socket.
// GET /heartbeat reports the current time and the number of sessions in flight.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/guseggert/procagent/agent/session"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

type Gateway struct {
	Log      *zap.SugaredLogger
	Sessions *session.Server
	// ReadLimit bounds one command message; zero means session.DefaultReadLimit.
	ReadLimit int
	// IdleTimeout bounds each message read and write; zero means no deadline.
	IdleTimeout time.Duration

	mu         sync.Mutex
	closed     bool
	httpServer *http.Server
}

// Handler returns the gateway routes.
func (g *Gateway) Handler() http.Handler {
	router := httprouter.New()
	router.GET("/heartbeat", g.heartbeat)
	router.GET("/session", g.session)
	return router
}

// Serve serves HTTP on l until Close is called.
func (g *Gateway) Serve(l net.Listener) error {
	srv := &http.Server{Handler: g.Handler(), ReadHeaderTimeout: 10 * time.Second}
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return l.Close()
	}
	g.httpServer = srv
	g.mu.Unlock()
	g.Log.Infow("serving WebSocket gateway", "Addr", l.Addr().String())
	err := srv.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Close stops the HTTP server. Upgraded sessions belong to the session server and are closed by it.
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	if g.httpServer == nil {
		return nil
	}
	return g.httpServer.Close()
}

// heartbeat reports that the agent is up and how many sessions it is serving.
func (g *Gateway) heartbeat(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	response := struct {
		Time     string
		Sessions int
	}{
		Time:     time.Now().UTC().Format(time.RFC3339),
		Sessions: g.Sessions.Sessions(),
	}
	b, err := json.Marshal(response)
	if err != nil {
		g.Log.Debugf("error marshaling heartbeat response: %s", err)
	}
	w.Header().Add("Content-Type", "application/json")
	w.Write(b)
}

func (g *Gateway) session(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionContextTakeover,
	})
	if err != nil {
		g.Log.Debugf("error accepting WebSocket conn: %s", err)
		return
	}
	readLimit := g.ReadLimit
	if readLimit <= 0 {
		readLimit = session.DefaultReadLimit
	}
	wsConn.SetReadLimit(int64(readLimit))

	g.Sessions.ServeCodec(r.Context(), &wsCodec{conn: wsConn, remote: r.RemoteAddr, timeout: g.IdleTimeout})
}

// wsCodec frames one command or reply per WebSocket message.
type wsCodec struct {
	conn    *websocket.Conn
	remote  string
	timeout time.Duration
}

func (c *wsCodec) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *wsCodec) ReadMessage(ctx context.Context) ([]byte, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	_, b, err := c.conn.Read(ctx)
	if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
		return nil, io.EOF
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (c *wsCodec) WriteMessage(ctx context.Context, b []byte) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.conn.Write(ctx, websocket.MessageText, b)
}

func (c *wsCodec) Close() error {
	err := c.conn.Close(websocket.StatusNormalClosure, "")
	if err != nil {
		return fmt.Errorf("closing WebSocket: %w", err)
	}
	return nil
}

func (c *wsCodec) RemoteAddr() string {
	return c.remote
}
