package session

import "time"

// RedirectPolicy decides navigation from auth state. Decide is a pure
// function: same inputs, same decision.
type RedirectPolicy struct {
	LoginPath   string
	LandingPath string
	// Delay is attached to every navigation to let fast auth transitions
	// settle before the UI acts, avoiding redirect flicker.
	Delay time.Duration
}

// RedirectState is everything a decision depends on.
type RedirectState struct {
	Authenticated  bool
	Loading        bool
	CurrentPath    string
	RememberedPath string
}

// Navigation is an optional navigation action.
type Navigation struct {
	Navigate bool
	Target   string
	// Remember carries the path to restore after login, "" when nothing
	// should be remembered.
	Remember string
	Delay    time.Duration
}

// Decide maps auth state to a navigation action.
//
// While loading, never navigate: the state is not yet trustworthy. An
// unauthenticated user anywhere but the login path is sent there, with the
// original path remembered for the post-login return. An authenticated user
// sitting on the login path is sent to the remembered path, falling back to
// the landing path.
func (p RedirectPolicy) Decide(s RedirectState) Navigation {
	if s.Loading {
		return Navigation{}
	}

	if !s.Authenticated {
		if s.CurrentPath == p.LoginPath {
			return Navigation{}
		}
		return Navigation{
			Navigate: true,
			Target:   p.LoginPath,
			Remember: s.CurrentPath,
			Delay:    p.Delay,
		}
	}

	if s.CurrentPath == p.LoginPath {
		target := s.RememberedPath
		if target == "" {
			target = p.LandingPath
		}
		return Navigation{Navigate: true, Target: target, Delay: p.Delay}
	}

	return Navigation{}
}

// Redirector wraps the pure policy with the bookkeeping a UI shell needs: it
// remembers the pre-login path across evaluations and suppresses repeats of
// the previous decision unless forced.
type Redirector struct {
	policy     RedirectPolicy
	remembered string
	last       Navigation
	hasLast    bool
}

// NewRedirector creates a Redirector for the given policy.
func NewRedirector(policy RedirectPolicy) *Redirector {
	return &Redirector{policy: policy}
}

// Evaluate runs the policy against the current state. With force set, the
// decision is re-issued even when identical to the previous one.
func (r *Redirector) Evaluate(authenticated, loading bool, currentPath string, force bool) Navigation {
	nav := r.policy.Decide(RedirectState{
		Authenticated:  authenticated,
		Loading:        loading,
		CurrentPath:    currentPath,
		RememberedPath: r.remembered,
	})

	if nav.Navigate {
		if nav.Remember != "" {
			r.remembered = nav.Remember
		} else if authenticated {
			// Returning to the remembered path consumes it.
			r.remembered = ""
		}
	}

	if !force && r.hasLast && nav == r.last {
		return Navigation{}
	}
	r.last = nav
	r.hasLast = true
	return nav
}
