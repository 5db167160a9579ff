package service

import (
	appErr "pvjudge/pkg/errors"

	"github.com/google/shlex"
)

// ParseCommand splits a shell-like command template into arguments.
// Quoting follows POSIX shell rules; no expansion is performed.
func ParseCommand(template string) ([]string, error) {
	parts, err := shlex.Split(template)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.SubjectCommandInvalid, "parse command: %v", err)
	}
	if len(parts) == 0 {
		return nil, appErr.New(appErr.SubjectCommandInvalid).WithMessage("command is empty")
	}
	return parts, nil
}
