package pagination

import (
	"github.com/rs/zerolog"
)

// State is the lifecycle state of one fetch session.
type State string

const (
	StateIdle           State = "idle"
	StateAuthenticating State = "authenticating"
	StateFetchingPage   State = "fetching_page"
	StateDone           State = "done"
	StateFailed         State = "failed"
)

// transitions lists the states reachable from each state. Done and Failed
// are terminal.
var transitions = map[State][]State{
	StateIdle:           {StateAuthenticating, StateFetchingPage},
	StateAuthenticating: {StateFetchingPage, StateFailed},
	StateFetchingPage:   {StateFetchingPage, StateDone, StateFailed},
}

// CanTransition reports whether a session may move from one state to another.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s State) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// session tracks the state of one GetAllPages or FetchPage call.
type session struct {
	state    State
	endpoint string
	logger   zerolog.Logger
}

func newSession(logger zerolog.Logger, endpoint string) *session {
	return &session{state: StateIdle, endpoint: endpoint, logger: logger}
}

// transition moves the session to next. Illegal moves are logged and ignored.
func (s *session) transition(next State, page int) bool {
	if !CanTransition(s.state, next) {
		s.logger.Warn().
			Str("endpoint", s.endpoint).
			Str("from", string(s.state)).
			Str("to", string(next)).
			Msg("Ignoring illegal session transition")
		return false
	}

	s.logger.Debug().
		Str("endpoint", s.endpoint).
		Str("from", string(s.state)).
		Str("to", string(next)).
		Int("page", page).
		Msg("Session transition")
	s.state = next
	return true
}
