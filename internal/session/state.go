package session

import (
	"github.com/calificaprofe/calificaprofe-api/internal/models"
	"github.com/calificaprofe/calificaprofe-api/pkg/metrics"
)

// Phase is the controller's position in the session state machine
type Phase string

const (
	PhaseBootstrapping   Phase = "bootstrapping"
	PhaseGuest           Phase = "guest"
	PhaseProfilePending  Phase = "profile_pending"
	PhaseProfileComplete Phase = "profile_complete"
)

var phases = []Phase{PhaseBootstrapping, PhaseGuest, PhaseProfilePending, PhaseProfileComplete}

// State is the authoritative session signal consumed by the rest of the application
type State struct {
	Identity        *models.Identity
	IsAuthenticated bool
	Loading         bool
	SessionReady    bool
	Phase           Phase

	// Confirmed is set once a session event vouched for Identity. An identity
	// hydrated from the local cache alone is never confirmed.
	Confirmed bool
}

// Authorized reports whether protected resources may be served
func (s State) Authorized() bool {
	return s.IsAuthenticated && s.Confirmed
}

func (s State) clone() State {
	s.Identity = s.Identity.Clone()
	return s
}

// phaseFor derives the phase of an authenticated identity
func phaseFor(identity *models.Identity) Phase {
	if identity == nil {
		return PhaseGuest
	}
	if identity.Complete() {
		return PhaseProfileComplete
	}
	return PhaseProfilePending
}

func recordPhase(current Phase) {
	for _, p := range phases {
		v := 0.0
		if p == current {
			v = 1
		}
		metrics.SessionPhase.WithLabelValues(string(p)).Set(v)
	}
}
