package chat

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster_ExcludesSender(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry(discardLogger())
	bc := NewBroadcaster(reg, 0, discardLogger())

	alice, aliceConn := newTestSession(t, reg, "alice")
	bob, bobConn := newTestSession(t, reg, "bob")
	_, carolConn := newTestSession(t, reg, "carol")
	req.NoError(reg.CreateRoom("lobby"))
	for _, s := range []*Session{alice, bob} {
		_, err := reg.JoinRoom("lobby", s)
		req.NoError(err)
	}

	n := bc.Broadcast("lobby", "[lobby] alice: hi", alice)

	req.Equal(1, n)
	req.Empty(aliceConn.Sent())
	req.Equal([]string{"[lobby] alice: hi"}, bobConn.Sent())
	req.Empty(carolConn.Sent(), "non-members receive nothing")
}

func TestBroadcaster_UnknownRoomDeliversNothing(t *testing.T) {
	reg := NewRegistry(discardLogger())
	bc := NewBroadcaster(reg, 0, discardLogger())

	require.Zero(t, bc.Broadcast("nowhere", "hello", nil))
}

func TestBroadcaster_FailedRecipientIsIsolated(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry(discardLogger())
	bc := NewBroadcaster(reg, 2, discardLogger())

	alice, _ := newTestSession(t, reg, "alice")
	bob, bobConn := newTestSession(t, reg, "bob")
	dave, daveConn := newTestSession(t, reg, "dave")
	daveConn.sendErr = errors.New("broken pipe")

	req.NoError(reg.CreateRoom("lobby"))
	req.NoError(reg.CreateRoom("other"))
	for _, s := range []*Session{alice, bob, dave} {
		_, err := reg.JoinRoom("lobby", s)
		req.NoError(err)
	}
	_, err := reg.JoinRoom("other", dave)
	req.NoError(err)

	failedBefore := testutil.ToFloat64(BroadcastDeliveries.WithLabelValues("failed"))

	n := bc.Broadcast("lobby", "[lobby] alice: hi", alice)

	req.Equal(1, n)
	req.Equal([]string{"[lobby] alice: hi"}, bobConn.Sent())
	req.Equal(failedBefore+1, testutil.ToFloat64(BroadcastDeliveries.WithLabelValues("failed")))

	// dave is out of the room it failed in and its connection is closed so
	// its own handler cleans up the rest.
	req.ErrorIs(reg.IsMember("lobby", dave), ErrNotAMember)
	req.NoError(reg.IsMember("other", dave))
	req.True(daveConn.IsClosed())

	checkSymmetry(t, reg, []*Session{alice, bob, dave})
}
