package ipmi

import "codeberg.org/mutker/ipmifanctl/internal/errors"

const (
	// Session lifecycle errors
	ErrSpawnFailed        = errors.ErrorCode("ipmi_spawn_failed")
	ErrPromptTimeout      = errors.ErrorCode("ipmi_prompt_timeout")
	ErrProcessExited      = errors.ErrorCode("ipmi_process_exited")
	ErrSessionUnavailable = errors.ErrorCode("ipmi_session_unavailable")
	ErrSessionClosed      = errors.ErrorCode("ipmi_session_closed")

	// Command errors
	ErrCommandFailed  = errors.ErrorCode("ipmi_command_failed")
	ErrCommandTimeout = errors.ErrorCode("ipmi_command_timeout")
	ErrOutputParse    = errors.ErrorCode("ipmi_output_parse_failed")
	ErrSensorNotFound = errors.ErrorCode("ipmi_sensor_not_found")
)
