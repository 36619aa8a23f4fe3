package models

import "time"

// Identity is a configured party with exactly one counterpart it may
// exchange messages with. The roster is fixed at process start.
type Identity struct {
	Name        string
	Credential  string
	Counterpart string
}

// Session binds one Identity to one live connection. At most one Session
// exists per Identity at any time.
type Session struct {
	Identity      string
	EstablishedAt time.Time
}
