package sessionmodel

// StateKind distinguishes the two session states the presentation layer renders.
type StateKind int

const (
	Anonymous StateKind = iota
	Authenticated
)

func (k StateKind) String() string {
	switch k {
	case Authenticated:
		return "authenticated"
	default:
		return "anonymous"
	}
}

// State is the single answer to "is the user logged in". Profile is only
// meaningful when Kind is Authenticated.
type State struct {
	Kind    StateKind
	Profile Profile
}

// AnonymousState is the logged out state.
func AnonymousState() State {
	return State{Kind: Anonymous}
}

// AuthenticatedState is the logged in state carrying the profile snapshot.
func AuthenticatedState(p Profile) State {
	return State{Kind: Authenticated, Profile: p}
}

// IsAuthenticated reports whether the state is Authenticated.
func (s State) IsAuthenticated() bool {
	return s.Kind == Authenticated
}
