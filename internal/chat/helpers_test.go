package chat

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeConn is an in-memory LineConn recording everything sent to it.
type fakeConn struct {
	in      chan string
	inClose sync.Once

	mu      sync.Mutex
	sent    []string
	sendErr error
	closed  bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan string, 16)}
}

func (f *fakeConn) NextLine() (string, error) {
	line, ok := <-f.in
	if !ok {
		return "", ErrConnectionClosed
	}
	return line, nil
}

func (f *fakeConn) SendLine(line string) error {
	return f.SendLines(line)
}

func (f *fakeConn) SendLines(lines ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	if f.closed {
		return errors.New("write on closed fake conn")
	}
	f.sent = append(f.sent, lines...)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.EndInput()
	return nil
}

// EndInput makes NextLine fail once the queued lines are consumed, while
// sends keep working.
func (f *fakeConn) EndInput() {
	f.inClose.Do(func() { close(f.in) })
}

func (f *fakeConn) RemoteAddr() string { return "fake" }

func (f *fakeConn) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func (f *fakeConn) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func newTestSession(t *testing.T, reg *Registry, nick string) (*Session, *fakeConn) {
	t.Helper()
	fc := newFakeConn()
	s := NewSession(fc, discardLogger())
	require.NoError(t, reg.RegisterNickname(nick, s))
	return s, fc
}

// checkSymmetry asserts r in s.rooms iff s in rooms[r].members.
func checkSymmetry(t *testing.T, reg *Registry, sessions []*Session) {
	t.Helper()
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	for name, rm := range reg.rooms {
		for s := range rm.members {
			_, ok := s.rooms[name]
			require.Truef(t, ok, "%s is in %s but does not list it", s.nick, name)
		}
	}
	for _, s := range sessions {
		for name := range s.rooms {
			rm, ok := reg.rooms[name]
			require.Truef(t, ok, "%s lists unknown room %s", s.nick, name)
			_, member := rm.members[s]
			require.Truef(t, member, "%s lists %s but is not a member", s.nick, name)
		}
	}
}

func startTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	opts.Addr = "127.0.0.1:0"
	if opts.AcceptWakeInterval == 0 {
		opts.AcceptWakeInterval = 50 * time.Millisecond
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 2 * time.Second
	}
	srv := NewServer(opts, discardLogger())
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)
	return srv
}

// testClient speaks the wire protocol over a real TCP connection.
type testClient struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func dial(t *testing.T, addr string) *testClient {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &testClient{t: t, conn: conn, r: bufio.NewReader(conn)}
}

// connect dials and registers nick, consuming the prompt and welcome.
func connect(t *testing.T, addr, nick string) *testClient {
	t.Helper()
	c := dial(t, addr)
	c.expectLine(PromptNick)
	c.send(nick)
	c.expectLine(welcomeLine(nick))
	return c
}

func (c *testClient) send(line string) {
	c.t.Helper()
	_, err := c.conn.Write([]byte(line + "\n"))
	require.NoError(c.t, err)
}

func (c *testClient) readLine() (string, error) {
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := c.r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *testClient) expectLine(want string) {
	c.t.Helper()
	got, err := c.readLine()
	require.NoError(c.t, err)
	require.Equal(c.t, want, got)
}

// expectPrefix skips lines until one starts with prefix.
func (c *testClient) expectPrefix(prefix string) string {
	c.t.Helper()
	for {
		line, err := c.readLine()
		require.NoErrorf(c.t, err, "waiting for prefix %q", prefix)
		if strings.HasPrefix(line, prefix) {
			return line
		}
	}
}

// expectClosed asserts the server closes the connection.
func (c *testClient) expectClosed() {
	c.t.Helper()
	line, err := c.readLine()
	require.ErrorIsf(c.t, err, io.EOF, "expected EOF, got line %q", line)
}

// blockingConn is a fakeConn whose sends hang until it is closed, like a
// write to a peer that stopped reading.
type blockingConn struct {
	*fakeConn
	unblock chan struct{}
	once    sync.Once
}

func newBlockingConn() *blockingConn {
	return &blockingConn{fakeConn: newFakeConn(), unblock: make(chan struct{})}
}

func (b *blockingConn) SendLine(line string) error {
	return b.SendLines(line)
}

func (b *blockingConn) SendLines(lines ...string) error {
	<-b.unblock
	return errors.New("write on closed blocking conn")
}

func (b *blockingConn) Close() error {
	b.once.Do(func() { close(b.unblock) })
	return b.fakeConn.Close()
}
