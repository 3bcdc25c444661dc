package chat

import (
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

const DefaultBroadcastFanout = 64

// Broadcaster delivers lines to a snapshot of a room's members.
type Broadcaster struct {
	registry *Registry
	fanout   int
	logger   *slog.Logger
}

func NewBroadcaster(reg *Registry, fanout int, logger *slog.Logger) *Broadcaster {
	if fanout <= 0 {
		fanout = DefaultBroadcastFanout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{registry: reg, fanout: fanout, logger: logger}
}

// Broadcast sends message to every member of roomName except exclude and
// returns the number of successful deliveries. The member set is
// snapshotted under the registry lock and written to after it is released,
// so a session leaving mid-broadcast may still get this one message.
//
// A recipient whose write fails is removed from the room and its
// connection closed; delivery to the others continues.
func (b *Broadcaster) Broadcast(roomName, message string, exclude *Session) int {
	recipients, err := b.registry.Members(roomName, exclude)
	if err != nil {
		b.logger.Debug("broadcast skipped", "room", roomName, "error", err)
		return 0
	}

	var delivered atomic.Int64
	var g errgroup.Group
	g.SetLimit(b.fanout)
	for _, s := range recipients {
		g.Go(func() error {
			if err := s.Conn.SendLine(message); err != nil {
				BroadcastDeliveries.WithLabelValues("failed").Inc()
				b.drop(roomName, s, err)
				return nil
			}
			BroadcastDeliveries.WithLabelValues("delivered").Inc()
			delivered.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return int(delivered.Load())
}

func (b *Broadcaster) drop(roomName string, s *Session, cause error) {
	b.logger.Warn("dropping recipient after failed send",
		"room", roomName, "session", s.ID, "nick", s.Nick(), "error", cause)
	// The session may already be gone from the room; that is fine.
	_ = b.registry.LeaveRoom(roomName, s)
	_ = s.Conn.Close()
}
