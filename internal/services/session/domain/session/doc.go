// Package session holds the session aggregate: replayed state, the decider
// that turns commands into events, and the fold that reduces events into the
// next state.
//
// The aggregate never owns the user entity — sessions hold only the owning
// user identifier, and the user cascade keeps denormalized login state (roles,
// expiry) consistent when the foreign user changes.
package session
