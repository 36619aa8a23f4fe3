package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pairchat/internal/models"
)

func TestPresenceAnnounceCounterpartOnline(t *testing.T) {
	d := NewDirectory(testRoster())
	p := NewPresence(d, testLogger())

	bobConn := &mockConn{}
	d.Bind("bob", bobConn)

	p.Announce("alice", true)

	events := bobConn.events()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventPartnerOnlineStatus, events[0].Event)
	assert.Equal(t, models.PartnerOnlineStatus{Username: "alice", Online: true}, events[0].Data)
}

func TestPresenceAnnounceOffline(t *testing.T) {
	d := NewDirectory(testRoster())
	p := NewPresence(d, testLogger())

	bobConn := &mockConn{}
	d.Bind("bob", bobConn)

	p.Announce("alice", false)

	events := bobConn.events()
	require.Len(t, events, 1)
	assert.Equal(t, models.PartnerOnlineStatus{Username: "alice", Online: false}, events[0].Data)
}

func TestPresenceAnnounceCounterpartOffline(t *testing.T) {
	d := NewDirectory(testRoster())
	p := NewPresence(d, testLogger())

	// No session for bob: the announcement is dropped, not queued.
	p.Announce("alice", true)

	bobConn := &mockConn{}
	d.Bind("bob", bobConn)
	assert.Empty(t, bobConn.events())
}

func TestPresenceAnnounceUnknownIdentity(t *testing.T) {
	d := NewDirectory(testRoster())
	p := NewPresence(d, testLogger())

	assert.NotPanics(t, func() {
		p.Announce("mallory", true)
	})
}

func TestPresenceAnnounceSendFailure(t *testing.T) {
	d := NewDirectory(testRoster())
	p := NewPresence(d, testLogger())

	bobConn := &mockConn{sendErr: assert.AnError}
	d.Bind("bob", bobConn)

	// Fire-and-forget: a failed send is logged and dropped.
	assert.NotPanics(t, func() {
		p.Announce("alice", true)
	})
}
