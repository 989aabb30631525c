// Package guardianerr defines the sentinel error taxonomy shared across
// Guardian's packages so callers can classify a failure with errors.Is
// instead of matching on message text.
package guardianerr

import "errors"

var (
	ErrConfigInvalid        = errors.New("config invalid")
	ErrSpawnFailed          = errors.New("spawn failed")
	ErrStopTimeout          = errors.New("stop timeout")
	ErrProbeIO              = errors.New("probe io error")
	ErrRecoveryActionFailed = errors.New("recovery action failed")
	ErrBackupMissing        = errors.New("backup missing")
	ErrCollaborator         = errors.New("collaborator error")
)
