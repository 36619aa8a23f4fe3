package service

import (
	"crypto/subtle"
	"sync"
	"time"

	"pairchat/internal/errors"
	"pairchat/internal/models"
)

// Directory maps configured identities to their live connections. The
// roster is fixed at construction; sessions come and go with logins.
type Directory struct {
	mu         sync.RWMutex
	identities map[string]models.Identity
	sessions   map[string]*boundSession
}

type boundSession struct {
	conn Conn
	info models.Session
}

func NewDirectory(roster []models.IdentityConfig) *Directory {
	identities := make(map[string]models.Identity, len(roster))
	for _, id := range roster {
		identities[id.Name] = models.Identity{
			Name:        id.Name,
			Credential:  id.Credential,
			Counterpart: id.Counterpart,
		}
	}
	return &Directory{
		identities: identities,
		sessions:   make(map[string]*boundSession),
	}
}

// Authenticate validates credentials for a configured identity. It fails
// when the name is unknown, the credential mismatches, or the identity
// already has an active session; it never displaces an existing session.
func (d *Directory) Authenticate(name, credential string) (*models.Identity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	identity, ok := d.identities[name]
	if !ok {
		return nil, errors.New(errors.ErrCodeUnknownIdentity, "identity not configured").
			WithContext("name", name).
			WithUserMessage("Invalid username.")
	}

	if subtle.ConstantTimeCompare([]byte(identity.Credential), []byte(credential)) != 1 {
		return nil, errors.New(errors.ErrCodeBadCredential, "credential mismatch").
			WithContext("name", name).
			WithUserMessage("Incorrect password.")
	}

	if _, active := d.sessions[name]; active {
		return nil, errors.New(errors.ErrCodeAlreadyActive, "identity already has an active session").
			WithContext("name", name).
			WithUserMessage("User already logged in.")
	}

	return &identity, nil
}

// Bind registers a session for the identity. It must only be called after a
// successful Authenticate on the same dispatch turn.
func (d *Directory) Bind(name string, conn Conn) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.sessions[name] = &boundSession{
		conn: conn,
		info: models.Session{Identity: name, EstablishedAt: time.Now()},
	}
}

// Resolve returns the identity's live connection, or nil when offline. It
// has no side effects.
func (d *Directory) Resolve(name string) Conn {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if session, ok := d.sessions[name]; ok {
		return session.conn
	}
	return nil
}

// Session returns the session info for a bound identity.
func (d *Directory) Session(name string) (models.Session, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if session, ok := d.sessions[name]; ok {
		return session.info, true
	}
	return models.Session{}, false
}

// Unbind removes the identity's session. Safe to call when no session is
// active.
func (d *Directory) Unbind(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.sessions, name)
}

// Counterpart returns the configured peer of the identity.
func (d *Directory) Counterpart(name string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	identity, ok := d.identities[name]
	if !ok {
		return "", false
	}
	return identity.Counterpart, true
}

// Known reports whether the name is part of the configured roster.
func (d *Directory) Known(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, ok := d.identities[name]
	return ok
}

// ActiveSessions returns the number of currently bound sessions.
func (d *Directory) ActiveSessions() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return len(d.sessions)
}
