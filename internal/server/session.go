package server

import "github.com/vadiminshakov/cryptowallet/internal/services/users"

// SessionState tags the variant held by a Session.
type SessionState int

const (
	Anonymous SessionState = iota
	Authenticated
)

func (s SessionState) String() string {
	if s == Authenticated {
		return "authenticated"
	}
	return "anonymous"
}

// Session is the per-connection authentication state. It is owned by the event loop.
type Session struct {
	state SessionState
	user  *users.User
}

func anonymous() Session {
	return Session{state: Anonymous}
}

func authenticated(u *users.User) Session {
	if u == nil {
		return anonymous()
	}
	return Session{state: Authenticated, user: u}
}

// State returns the session variant.
func (s Session) State() SessionState {
	return s.state
}

// User returns the attached user of an authenticated session.
func (s Session) User() (*users.User, bool) {
	if s.state != Authenticated {
		return nil, false
	}
	return s.user, true
}
