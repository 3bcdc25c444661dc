package chat

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"
)

const DefaultMaxLineLength = 4096

// LineConn is a connection carrying newline-delimited protocol lines.
// NextLine is called only by the owning session goroutine; SendLine and
// SendLines may be called from any goroutine.
type LineConn interface {
	NextLine() (string, error)
	SendLine(line string) error
	// SendLines writes all lines as one block that no other writer can
	// interleave with.
	SendLines(lines ...string) error
	Close() error
	RemoteAddr() string
}

// FramedConn reassembles lines from a byte stream regardless of how the
// transport segments it.
type FramedConn struct {
	conn         net.Conn
	r            *bufio.Reader
	maxLine      int
	writeTimeout time.Duration

	wmu sync.Mutex
	w   *bufio.Writer

	closeOnce sync.Once
	closeErr  error
}

func NewFramedConn(conn net.Conn, maxLine int, writeTimeout time.Duration) *FramedConn {
	if maxLine <= 0 {
		maxLine = DefaultMaxLineLength
	}
	return &FramedConn{
		conn: conn,
		// Room for the content plus "\r\n"; anything longer fills the buffer.
		r:            bufio.NewReaderSize(conn, maxLine+2),
		maxLine:      maxLine,
		writeTimeout: writeTimeout,
		w:            bufio.NewWriter(conn),
	}
}

func (c *FramedConn) NextLine() (string, error) {
	b, err := c.r.ReadSlice('\n')
	if err != nil {
		if errors.Is(err, bufio.ErrBufferFull) {
			return "", ErrLineTooLong
		}
		return "", closedError(err)
	}
	line := strings.TrimSuffix(strings.TrimSuffix(string(b), "\n"), "\r")
	if len(line) > c.maxLine {
		return "", ErrLineTooLong
	}
	return strings.ToValidUTF8(line, "\uFFFD"), nil
}

func (c *FramedConn) SendLine(line string) error {
	return c.SendLines(line)
}

func (c *FramedConn) SendLines(lines ...string) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	for _, line := range lines {
		if _, err := c.w.WriteString(line); err != nil {
			return fmt.Errorf("write: %w", err)
		}
		if err := c.w.WriteByte('\n'); err != nil {
			return fmt.Errorf("write: %w", err)
		}
	}
	if err := c.w.Flush(); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (c *FramedConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *FramedConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func closedError(err error) error {
	if errors.Is(err, io.EOF) {
		return ErrConnectionClosed
	}
	return fmt.Errorf("%w: %w", ErrConnectionClosed, err)
}
