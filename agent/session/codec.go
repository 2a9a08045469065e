package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// DefaultReadLimit is the largest command message read in one go.
const DefaultReadLimit = 4096

// Codec reads command messages from, and writes reply messages to, one client connection.
type Codec interface {
	ReadMessage(ctx context.Context) ([]byte, error)
	WriteMessage(ctx context.Context, b []byte) error
	Close() error
	RemoteAddr() string
}

// Framing selects how commands and replies are delimited on a TCP connection.
type Framing string

const (
	FramingChunk Framing = "chunk"
	FramingLine  Framing = "line"
)

// ParseFraming validates a framing name.
func ParseFraming(s string) (Framing, error) {
	switch f := Framing(s); f {
	case FramingChunk, FramingLine:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported framing %q", s)
	}
}

// NewCodec wraps a connection with the given framing.
// A zero readLimit means DefaultReadLimit, and a zero timeout disables deadlines.
func NewCodec(conn net.Conn, framing Framing, readLimit int, timeout time.Duration) (Codec, error) {
	if readLimit <= 0 {
		readLimit = DefaultReadLimit
	}
	base := connCodec{conn: conn, timeout: timeout}
	switch framing {
	case FramingChunk, "":
		return &chunkCodec{connCodec: base, buf: make([]byte, readLimit)}, nil
	case FramingLine:
		return &lineCodec{connCodec: base, r: bufio.NewReaderSize(conn, readLimit), limit: readLimit}, nil
	default:
		return nil, fmt.Errorf("unsupported framing %q", framing)
	}
}

type connCodec struct {
	conn    net.Conn
	timeout time.Duration
}

func (c *connCodec) setReadDeadline() error {
	if c.timeout <= 0 {
		return nil
	}
	return c.conn.SetReadDeadline(time.Now().Add(c.timeout))
}

func (c *connCodec) write(b []byte) error {
	if c.timeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
			return err
		}
	}
	_, err := c.conn.Write(b)
	return err
}

func (c *connCodec) Close() error {
	return c.conn.Close()
}

func (c *connCodec) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// chunkCodec treats each Read as one message.
type chunkCodec struct {
	connCodec
	buf []byte
}

func (c *chunkCodec) ReadMessage(ctx context.Context) ([]byte, error) {
	if err := c.setReadDeadline(); err != nil {
		return nil, err
	}
	for {
		n, err := c.conn.Read(c.buf)
		if n > 0 {
			msg := make([]byte, n)
			copy(msg, c.buf[:n])
			return msg, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func (c *chunkCodec) WriteMessage(ctx context.Context, b []byte) error {
	return c.write(b)
}

// lineCodec reads newline-terminated messages of at most limit bytes.
type lineCodec struct {
	connCodec
	r     *bufio.Reader
	limit int
}

func (c *lineCodec) ReadMessage(ctx context.Context) ([]byte, error) {
	if err := c.setReadDeadline(); err != nil {
		return nil, err
	}
	line, err := c.r.ReadSlice('\n')
	if errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("command exceeds %d bytes: %w", c.limit, err)
	}
	// an unterminated final line still counts
	if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
		return nil, err
	}
	msg := make([]byte, len(line))
	copy(msg, line)
	return msg, nil
}

func (c *lineCodec) WriteMessage(ctx context.Context, b []byte) error {
	msg := make([]byte, 0, len(b)+1)
	msg = append(msg, b...)
	msg = append(msg, '\n')
	return c.write(msg)
}
