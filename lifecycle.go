// Game lifecycle rules.
//
// The state machine runs lobby → pregame → question(0..N-1) → results →
// lobby (next generation). There is no server-side timer: the host's
// client polls past each advisory deadline and issues the next transition
// as a patch, so the server's job is only to decide which state changes
// are legal. If the host disconnects mid-game the room stalls in place
// until the host returns; that gap is deliberate.

package main

// validStates is the phase enumeration; a state patch outside it is
// dropped like any other malformed field.
var validStates = map[string]bool{
	stateLobby:    true,
	statePregame:  true,
	stateQuestion: true,
	stateResults:  true,
}

// canEnterState reports whether the room may move to the requested phase.
// It is evaluated after the rest of the same patch has been merged, so a
// start-game patch carrying settings and questions alongside the state
// change is judged against the resulting document.
//
// Re-asserting the current state is always legal: transition patches are
// retried by polling clients and must converge.
func (r *Room) canEnterState(state string) bool {
	if !validStates[state] {
		return false
	}
	if state == r.State {
		return true
	}

	// Leaving the lobby requires the game to be fully configured and the
	// question set attached.
	if state == statePregame && r.State == stateLobby {
		return r.readyToStart()
	}

	return true
}

// readyToStart holds the three lobby readiness predicates plus the
// attached question set: at least one category picked, a question count
// chosen, a question time chosen, questions present.
func (r *Room) readyToStart() bool {
	return len(r.Settings.CategoryIDs) > 0 &&
		r.Settings.QuestionCount != nil &&
		r.Settings.QuestionTimeSec != nil &&
		len(r.Questions) > 0
}
