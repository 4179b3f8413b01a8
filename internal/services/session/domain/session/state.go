package session

import "time"

// State captures the replayed projection of one session row.
//
// The zero value represents an absent row. Reducers materialize rows with
// reverse-merge defaults when an update event arrives before an explicit
// create, so command deciders and replay both observe the same shape.
type State struct {
	// Exists indicates whether a row has materialized for this session id.
	// Once true it never transitions back to false.
	Exists bool
	// UserID is the owning user identifier, empty while logged out. The
	// session holds only the identifier; the user entity is foreign.
	UserID string
	// Roles is the role snapshot taken from the owning user at login time
	// and kept in sync by the user cascade.
	Roles []string
	// Expire is the login expiry, nil while logged out.
	Expire *time.Time
	// Language is a locale preference, defaulted at materialization and
	// never cleared by logout.
	Language string
	// Timezone is a locale preference, defaulted at materialization and
	// never cleared by logout.
	Timezone string
}

// Defaults carries the process-wide locale fallbacks injected at startup.
type Defaults struct {
	Language string
	Timezone string
}

// LoggedIn reports whether the session currently has an owning user.
func (s State) LoggedIn() bool {
	return s.UserID != ""
}

// cloneRoles copies a role slice so folded states never alias event payloads.
func cloneRoles(roles []string) []string {
	if len(roles) == 0 {
		return nil
	}
	return append([]string(nil), roles...)
}
