package domain

// AuthState is the lifecycle state of the client session.
type AuthState string

const (
	StateLoading         AuthState = "loading"
	StateAuthenticated   AuthState = "authenticated"
	StateUnauthenticated AuthState = "unauthenticated"
)

// validAuthTransitions defines the allowed session state machine transitions.
var validAuthTransitions = map[AuthState][]AuthState{
	StateLoading:         {StateAuthenticated, StateUnauthenticated},
	StateUnauthenticated: {StateAuthenticated},
	StateAuthenticated:   {StateUnauthenticated},
}

// CanTransitionTo reports whether a transition from s to next is valid.
func (s AuthState) CanTransitionTo(next AuthState) bool {
	for _, allowed := range validAuthTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// AuthEvent is a session transition signalled by the auth backend.
type AuthEvent string

const (
	EventInitialSession AuthEvent = "INITIAL_SESSION"
	EventSignedIn       AuthEvent = "SIGNED_IN"
	EventSignedOut      AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
	EventUserUpdated    AuthEvent = "USER_UPDATED"
)

// SessionSnapshot is an immutable revision of the session state.
type SessionSnapshot struct {
	State    AuthState `json:"state"`
	Identity *Identity `json:"identity"`
	Revision uint64    `json:"revision"`
}

// Authenticated reports whether the snapshot carries a signed-in identity.
func (s SessionSnapshot) Authenticated() bool {
	return s.State == StateAuthenticated && s.Identity != nil
}
