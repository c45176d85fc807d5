package control

import "codeberg.org/mutker/ipmifanctl/internal/errors"

const (
	ErrAlreadyRunning = errors.ErrorCode("control_already_running")
	ErrNotRunning     = errors.ErrorCode("control_not_running")
	ErrSessionInit    = errors.ErrorCode("control_session_init_failed")
	ErrZoneInit       = errors.ErrorCode("control_zone_init_failed")
)
