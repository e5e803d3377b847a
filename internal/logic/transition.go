package logic

// NextState applies the button edges of one cycle to state s.
//
// Edges are applied in a fixed order (start, stop, reset), each against the
// state left by the previous one, so a later edge overrides an earlier one:
// start and stop together from IDLE end STOPPED. Only the resulting state is
// returned; the controller applies the effects of that state alone.
//
//	IDLE    --start--> RUNNING
//	RUNNING --stop---> STOPPED
//	any     --reset--> RESETTING (then IDLE once the reset pulse is done)
//
// It returns false when the state does not change.
func NextState(s ProcessState, edges Buttons) (ProcessState, bool) {
	next := s
	if edges.Start && next == StateIdle {
		next = StateRunning
	}
	if edges.Stop && next == StateRunning {
		next = StateStopped
	}
	if edges.Reset && next != StateResetting {
		next = StateResetting
	}
	return next, next != s
}

// States lists every process state.
func States() []ProcessState {
	return []ProcessState{StateIdle, StateRunning, StateStopped, StateResetting}
}
