// Package ws carries the line protocol over WebSocket text messages.
package ws

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/andy6609/roomchat/internal/chat"
)

// Conn adapts a *websocket.Conn to chat.LineConn. An inbound text message
// may hold several newline-separated lines; each outbound line is sent as
// its own text message.
type Conn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
	pending      []string

	wmu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps ws. Inbound messages larger than maxLine (plus a line
// terminator) fail with chat.ErrLineTooLong; gorilla has already sent the
// peer a 1009 close frame by then, so no error line reaches it.
func NewConn(ws *websocket.Conn, maxLine int, writeTimeout time.Duration) *Conn {
	if maxLine <= 0 {
		maxLine = chat.DefaultMaxLineLength
	}
	ws.SetReadLimit(int64(maxLine) + 2)
	return &Conn{ws: ws, writeTimeout: writeTimeout}
}

func (c *Conn) NextLine() (string, error) {
	for len(c.pending) == 0 {
		typ, data, err := c.ws.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				return "", chat.ErrLineTooLong
			}
			return "", fmt.Errorf("%w: %w", chat.ErrConnectionClosed, err)
		}
		if typ != websocket.TextMessage {
			continue
		}
		c.pending = splitLines(string(data))
	}
	line := c.pending[0]
	c.pending = c.pending[1:]
	return line, nil
}

func (c *Conn) SendLine(line string) error {
	return c.SendLines(line)
}

func (c *Conn) SendLines(lines ...string) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if c.writeTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	for _, line := range lines {
		if err := c.ws.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
			return fmt.Errorf("write: %w", err)
		}
	}
	return nil
}

// Close sends a normal-closure frame on a best-effort basis and closes the
// underlying connection.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

func (c *Conn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}

func splitLines(data string) []string {
	lines := strings.Split(strings.TrimSuffix(data, "\n"), "\n")
	for i, l := range lines {
		lines[i] = strings.ToValidUTF8(strings.TrimSuffix(l, "\r"), "\uFFFD")
	}
	return lines
}
