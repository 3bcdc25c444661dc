package chat

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/samber/lo"
)

type room struct {
	name    string
	members map[*Session]struct{}
}

// Registry owns the nickname table and room membership. Every read and
// write goes through mu, and for every session s and room r:
// r in s.rooms iff s in rooms[r].members.
type Registry struct {
	mu        sync.RWMutex
	nicknames map[string]*Session
	rooms     map[string]*room
	order     []string // room names in creation order
	logger    *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		nicknames: make(map[string]*Session),
		rooms:     make(map[string]*room),
		logger:    logger,
	}
}

// RegisterNickname claims name for s and moves it to StateRegistered.
func (r *Registry) RegisterNickname(name string, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.removed {
		return ErrConnectionClosed
	}
	if _, taken := r.nicknames[name]; taken {
		return ErrNicknameTaken
	}
	s.nick = name
	s.setState(StateRegistered)
	r.nicknames[name] = s
	RegisteredSessions.Set(float64(len(r.nicknames)))

	r.logger.Info("user registered", "nick", name, "session", s.ID)
	return nil
}

func (r *Registry) CreateRoom(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rooms[name]; exists {
		return ErrRoomExists
	}
	r.rooms[name] = &room{
		name:    name,
		members: make(map[*Session]struct{}),
	}
	r.order = append(r.order, name)
	Rooms.Set(float64(len(r.rooms)))

	r.logger.Info("room created", "room", name)
	return nil
}

// JoinRoom adds s to the room. Joining a room s is already in is a no-op
// reported as joined == false.
func (r *Registry) JoinRoom(name string, s *Session) (joined bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[name]
	if !ok {
		return false, ErrRoomNotFound
	}
	if s.removed {
		return false, ErrConnectionClosed
	}
	if _, member := rm.members[s]; member {
		return false, nil
	}
	rm.members[s] = struct{}{}
	s.rooms[name] = struct{}{}
	return true, nil
}

func (r *Registry) LeaveRoom(name string, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[name]
	if !ok {
		return ErrRoomNotFound
	}
	if _, member := rm.members[s]; !member {
		return ErrNotAMember
	}
	delete(rm.members, s)
	delete(s.rooms, name)
	return nil
}

// IsMember reports ErrRoomNotFound or ErrNotAMember, or nil if s is in the room.
func (r *Registry) IsMember(name string, s *Session) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[name]
	if !ok {
		return ErrRoomNotFound
	}
	if _, member := rm.members[s]; !member {
		return ErrNotAMember
	}
	return nil
}

// ListRooms returns every room in creation order, empty rooms included.
func (r *Registry) ListRooms() []RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.Map(r.order, func(name string, _ int) RoomInfo {
		return RoomInfo{Name: name, Members: len(r.rooms[name].members)}
	})
}

// ListMembers returns the sorted nicknames of the room's members.
func (r *Registry) ListMembers(name string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[name]
	if !ok {
		return nil, ErrRoomNotFound
	}
	nicks := lo.Map(lo.Keys(rm.members), func(s *Session, _ int) string {
		return s.nick
	})
	sort.Strings(nicks)
	return nicks, nil
}

// Members snapshots the room's member sessions, leaving out exclude.
// The caller must not hold the snapshot across a later registry call
// expecting it to be current.
func (r *Registry) Members(name string, exclude *Session) ([]*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[name]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return lo.Filter(lo.Keys(rm.members), func(s *Session, _ int) bool {
		return s != exclude
	}), nil
}

// RoomsOf returns the sorted names of the rooms s belongs to.
func (r *Registry) RoomsOf(s *Session) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := lo.Keys(s.rooms)
	sort.Strings(names)
	return names
}

// RemoveSession drops s from every room and releases its nickname. It
// returns the sorted rooms s was removed from, nil when there were none.
// Calls after the first return nil.
func (r *Registry) RemoveSession(s *Session) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.removed {
		return nil
	}
	s.removed = true

	var left []string
	for name := range s.rooms {
		if rm, ok := r.rooms[name]; ok {
			delete(rm.members, s)
		}
		left = append(left, name)
	}
	s.rooms = make(map[string]struct{})
	sort.Strings(left)

	if s.nick != "" && r.nicknames[s.nick] == s {
		delete(r.nicknames, s.nick)
		RegisteredSessions.Set(float64(len(r.nicknames)))
		r.logger.Info("user left", "nick", s.nick, "session", s.ID, "rooms", len(left))
	}
	return left
}

// Stats returns the number of registered nicknames and rooms.
func (r *Registry) Stats() (sessions, rooms int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nicknames), len(r.rooms)
}
