package models

// PreflightCheck is the outcome of one remote-side validation.
type PreflightCheck struct {
	Name   string // Short check identifier
	Fatal  bool   // Whether a failure blocks the server start
	Passed bool
	Detail string // Human-readable finding, empty when passed without remarks
}

// PreflightReport collects the checks run before a server start.
type PreflightReport struct {
	Checks []PreflightCheck
}

// OK reports whether no fatal check failed.
func (r PreflightReport) OK() bool {
	for _, c := range r.Checks {
		if c.Fatal && !c.Passed {
			return false
		}
	}
	return true
}

// Failures returns the checks that did not pass.
func (r PreflightReport) Failures() []PreflightCheck {
	var failed []PreflightCheck
	for _, c := range r.Checks {
		if !c.Passed {
			failed = append(failed, c)
		}
	}
	return failed
}

// SessionStatus is the state reported by the status command.
type SessionStatus struct {
	Target        string `json:"target"`         // user@host form of the remote machine
	ServerRunning bool   `json:"server_running"` // Whether the VNC server process exists remotely
	LocalViewers  int    `json:"local_viewers"`  // Viewer processes running on the local machine
}
