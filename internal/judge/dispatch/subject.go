package dispatch

import (
	"strings"

	"pvjudge/internal/judge/model"
	"pvjudge/internal/judge/service"
	appErr "pvjudge/pkg/errors"
)

// Subject is a program the operator allows requests to judge, named in
// configuration so callers never choose argv themselves.
type Subject struct {
	// Command is a shell-style template; suite arguments are appended.
	Command string   `yaml:"command"`
	Env     []string `yaml:"env"`
	// PassEnv lists the variable names a request may set.
	PassEnv []string `yaml:"passEnv"`
}

// resolveSubject returns the argv and environment for req.
func (r *Runner) resolveSubject(req model.JudgeRequest) ([]string, []string, error) {
	if req.Subject == "" {
		if !r.rawCommands {
			return nil, nil, appErr.New(appErr.SubjectCommandInvalid).WithMessage("subject is required")
		}
		if len(req.Args) > 0 {
			return req.Args, req.Env, nil
		}
		command, err := service.ParseCommand(req.Command)
		return command, req.Env, err
	}

	subject, ok := r.subjects[req.Subject]
	if !ok {
		return nil, nil, appErr.Newf(appErr.SubjectNotFound, "subject %q is not configured", req.Subject)
	}
	if req.Command != "" || len(req.Args) > 0 {
		return nil, nil, appErr.New(appErr.SubjectCommandInvalid).WithMessage("command and args cannot be combined with a subject")
	}
	command, err := service.ParseCommand(subject.Command)
	if err != nil {
		return nil, nil, err
	}
	for _, kv := range req.Env {
		name, _, _ := strings.Cut(kv, "=")
		if !contains(subject.PassEnv, name) {
			return nil, nil, appErr.Newf(appErr.SubjectCommandInvalid, "subject %q does not accept %s", req.Subject, name)
		}
	}
	env := make([]string, 0, len(subject.Env)+len(req.Env))
	env = append(env, subject.Env...)
	env = append(env, req.Env...)
	return command, env, nil
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
