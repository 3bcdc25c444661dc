package chat

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// State is the lifecycle position of a Session.
type State int32

const (
	StateAwaitingNick State = iota
	StateRegistered
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateAwaitingNick:
		return "awaiting_nick"
	case StateRegistered:
		return "registered"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Session is the server-side state of one client connection.
type Session struct {
	ID   string
	Conn LineConn

	// nick is written once by Registry.RegisterNickname under the registry
	// lock, before the session becomes visible to any other goroutine.
	nick string

	// rooms and removed are guarded by Registry.mu.
	rooms   map[string]struct{}
	removed bool

	state       atomic.Int32
	cleanupOnce sync.Once
	logger      *slog.Logger
}

func NewSession(conn LineConn, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	return &Session{
		ID:     id,
		Conn:   conn,
		rooms:  make(map[string]struct{}),
		logger: logger.With("session", id, "addr", conn.RemoteAddr()),
	}
}

// Nick returns the registered nickname, or "" before registration.
func (s *Session) Nick() string {
	return s.nick
}

func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

// RoomInfo is a point-in-time view of one room for LIST.
type RoomInfo struct {
	Name    string
	Members int
}

var (
	ErrNicknameTaken      = errorString("nickname already in use")
	ErrInvalidNickname    = errorString("invalid nickname")
	ErrRoomExists         = errorString("room already exists")
	ErrRoomNotFound       = errorString("room not found")
	ErrNotAMember         = errorString("not a member of room")
	ErrInvalidRoomName    = errorString("invalid room name")
	ErrUnknownCommand     = errorString("unknown command")
	ErrMalformedArguments = errorString("malformed arguments")
	ErrConnectionClosed   = errorString("connection closed")
	ErrLineTooLong        = errorString("line too long")
	ErrServerFull         = errorString("server full")
	ErrServerClosed       = errorString("server closed")
)

type errorString string

func (e errorString) Error() string { return string(e) }
