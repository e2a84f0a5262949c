package orchestrator

import "errors"

// errNoPersistedSession is returned by ResumeForContinue when the
// conversation has no stored agent-session binding to resume.
var errNoPersistedSession = errors.New("no persisted agent session for conversation")

// IsNoPersistedSession reports whether err means there was nothing to resume.
func IsNoPersistedSession(err error) bool {
	return errors.Is(err, errNoPersistedSession)
}
