package chat

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	DefaultMaxNickLength     = 32
	DefaultMaxRoomNameLength = 64
)

// Limits bounds client-chosen names.
type Limits struct {
	MaxNickLength     int
	MaxRoomNameLength int
}

func (l Limits) withDefaults() Limits {
	if l.MaxNickLength <= 0 {
		l.MaxNickLength = DefaultMaxNickLength
	}
	if l.MaxRoomNameLength <= 0 {
		l.MaxRoomNameLength = DefaultMaxRoomNameLength
	}
	return l
}

// Handler runs the per-connection protocol state machine against a
// shared Registry and Broadcaster.
type Handler struct {
	Registry    *Registry
	Broadcaster *Broadcaster
	Limits      Limits
	Logger      *slog.Logger
}

func NewHandler(reg *Registry, bc *Broadcaster, limits Limits, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Registry:    reg,
		Broadcaster: bc,
		Limits:      limits.withDefaults(),
		Logger:      logger,
	}
}

// HandleSession drives s from handshake to termination. It returns once
// the connection is done and cleanup has run.
func (h *Handler) HandleSession(s *Session) {
	defer h.Cleanup(s)

	if !h.handshake(s) {
		return
	}

	for {
		line, err := s.Conn.NextLine()
		if err != nil {
			if errors.Is(err, ErrLineTooLong) {
				_ = s.Conn.SendLine(ReplyLineTooLong)
			}
			s.logger.Debug("read loop ended", "error", err)
			return
		}

		cmd, ok := ParseCommand(line)
		if !ok {
			continue
		}

		start := time.Now()
		reply, quit := h.dispatch(s, cmd)
		label := metricLabel(cmd.Name)
		CommandsTotal.WithLabelValues(label).Inc()
		CommandDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())

		if len(reply) > 0 {
			if err := s.Conn.SendLines(reply...); err != nil {
				s.logger.Debug("reply failed", "error", err)
				return
			}
		}
		if quit {
			return
		}
	}
}

func (h *Handler) handshake(s *Session) bool {
	if err := s.Conn.SendLine(PromptNick); err != nil {
		return false
	}
	line, err := s.Conn.NextLine()
	if err != nil {
		return false
	}

	nick := parseNickname(line)
	if nick == "" {
		return false
	}
	if !validName(nick, h.Limits.MaxNickLength) {
		_ = s.Conn.SendLine(errorReply(ErrInvalidNickname, nick))
		return false
	}

	if err := h.Registry.RegisterNickname(nick, s); err != nil {
		if errors.Is(err, ErrNicknameTaken) {
			_ = s.Conn.SendLine(errorReply(err, nick))
		}
		s.logger.Info("registration rejected", "nick", nick, "error", err)
		return false
	}
	s.logger = s.logger.With("nick", nick)

	return s.Conn.SendLine(welcomeLine(nick)) == nil
}

// dispatch executes one command and returns the lines to send back to
// the issuing session. Fan-out to other members happens before it
// returns.
func (h *Handler) dispatch(s *Session, cmd Command) (reply []string, quit bool) {
	switch cmd.Name {
	case "CREATE":
		return h.roomCommand(cmd, h.create(s)), false
	case "JOIN":
		return h.roomCommand(cmd, h.join(s)), false
	case "LEAVE":
		return h.roomCommand(cmd, h.leave(s)), false
	case "WHO":
		return h.roomCommand(cmd, h.who), false
	case "MSG":
		if len(cmd.Args) != 2 {
			return []string{errorReply(ErrMalformedArguments, cmd.Name)}, false
		}
		return h.msg(s, cmd.Args[0], cmd.Args[1]), false
	case "LIST":
		return roomListLines(h.Registry.ListRooms()), false
	case "ROOMS":
		rooms := h.Registry.RoomsOf(s)
		if len(rooms) == 0 {
			return []string{ReplyNotInRooms}, false
		}
		return []string{"INFO: You are in: " + strings.Join(rooms, ", ")}, false
	case "HELP":
		return helpLines(), false
	case "QUIT":
		return []string{ReplyGoodbye}, true
	default:
		return []string{errorReply(ErrUnknownCommand, cmd.Name)}, false
	}
}

// roomCommand validates the single room argument shared by CREATE, JOIN,
// LEAVE and WHO before running fn.
func (h *Handler) roomCommand(cmd Command, fn func(room string) []string) []string {
	if len(cmd.Args) != 1 {
		return []string{errorReply(ErrMalformedArguments, cmd.Name)}
	}
	room := cmd.Args[0]
	if !validName(room, h.Limits.MaxRoomNameLength) {
		return []string{errorReply(ErrInvalidRoomName, room)}
	}
	return fn(room)
}

func (h *Handler) create(s *Session) func(string) []string {
	return func(room string) []string {
		if err := h.Registry.CreateRoom(room); err != nil {
			return []string{errorReply(err, room)}
		}
		s.logger.Info("room created by user", "room", room)
		return []string{fmt.Sprintf("SUCCESS: Room '%s' created.", room)}
	}
}

func (h *Handler) join(s *Session) func(string) []string {
	return func(room string) []string {
		joined, err := h.Registry.JoinRoom(room, s)
		if err != nil {
			return []string{errorReply(err, room)}
		}
		if !joined {
			return []string{fmt.Sprintf("INFO: You are already in room '%s'.", room)}
		}
		h.Broadcaster.Broadcast(room, joinedNotice(s.Nick(), room), s)
		return []string{fmt.Sprintf("SUCCESS: Joined room '%s'.", room)}
	}
}

func (h *Handler) leave(s *Session) func(string) []string {
	return func(room string) []string {
		if err := h.Registry.LeaveRoom(room, s); err != nil {
			return []string{errorReply(err, room)}
		}
		h.Broadcaster.Broadcast(room, leftNotice(s.Nick(), room), s)
		return []string{fmt.Sprintf("SUCCESS: Left room '%s'.", room)}
	}
}

func (h *Handler) who(room string) []string {
	nicks, err := h.Registry.ListMembers(room)
	if err != nil {
		return []string{errorReply(err, room)}
	}
	return memberListLines(room, nicks)
}

func (h *Handler) msg(s *Session, room, text string) []string {
	if err := h.Registry.IsMember(room, s); err != nil {
		return []string{errorReply(err, room)}
	}
	h.Broadcaster.Broadcast(room, roomMessage(room, s.Nick(), text), s)
	return []string{messageSentLine(room, text)}
}

// Cleanup releases everything s holds: its nickname, its room
// memberships (with a departure notice to each room) and its connection.
// Only the first call has any effect.
func (h *Handler) Cleanup(s *Session) {
	s.cleanupOnce.Do(func() {
		s.setState(StateTerminated)
		left := h.Registry.RemoveSession(s)
		if nick := s.Nick(); nick != "" {
			notice := disconnectedNotice(nick)
			for _, room := range left {
				h.Broadcaster.Broadcast(room, notice, s)
			}
		}
		_ = s.Conn.Close()
		s.logger.Info("session closed", "rooms_left", len(left))
	})
}

func metricLabel(name string) string {
	switch name {
	case "CREATE", "JOIN", "LEAVE", "LIST", "WHO", "MSG", "ROOMS", "HELP", "QUIT":
		return strings.ToLower(name)
	default:
		return "unknown"
	}
}
