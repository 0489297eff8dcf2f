package session

// State is the session validity as seen by the console. Transitions happen
// only on backend rejection and refresh outcomes; nothing expires on a timer.
type State int

const (
	// Anonymous: no access credential stored.
	Anonymous State = iota
	// Authenticated: an access credential is stored and not known to be rejected.
	Authenticated
	// Expired: the access credential was rejected and a refresh is in flight.
	Expired
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Authenticated:
		return "authenticated"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}
