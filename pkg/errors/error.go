package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
)

// DetailRunID is the detail key carrying the run an error belongs to.
const DetailRunID = "run_id"

// Error is a coded error. Callers and HTTP handlers branch on Code; the
// message is for people.
type Error struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Err     error
	Stack   string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Code.Message()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, msg string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: msg,
		Details: make(map[string]interface{}),
		Err:     cause,
		Stack:   getStack(3),
	}
}

// New creates an Error carrying the default message of code.
func New(code ErrorCode) *Error {
	return newError(code, code.Message(), nil)
}

// Newf creates an Error with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return newError(code, fmt.Sprintf(format, args...), nil)
}

// Wrap attaches code to err. An *Error is recoded in place.
func Wrap(err error, code ErrorCode) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		e.Code = code
		return e
	}
	return newError(code, err.Error(), err)
}

// Wrapf wraps err with code and a formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return newError(code, fmt.Sprintf(format, args...), err)
}

// Infrastructure wraps a judge-side failure as JudgeSystemError so it is
// never reported as a subject fault. A nil err yields a bare error.
func Infrastructure(err error, format string, args ...interface{}) *Error {
	return infrastructure(JudgeSystemError, err, fmt.Sprintf(format, args...))
}

// InfrastructureAs is Infrastructure with a narrower judge-side code such
// as KillFailed or ProbeFailed. Codes outside the infrastructure range fall
// back to JudgeSystemError.
func InfrastructureAs(code ErrorCode, err error, format string, args ...interface{}) *Error {
	if !code.IsInfrastructure() {
		code = JudgeSystemError
	}
	return infrastructure(code, err, fmt.Sprintf(format, args...))
}

func infrastructure(code ErrorCode, err error, msg string) *Error {
	if err != nil {
		msg += ": " + err.Error()
	}
	return newError(code, msg, err)
}

// WithMessage replaces the message.
func (e *Error) WithMessage(msg string) *Error {
	e.Message = msg
	return e
}

// ForRun records the run the error happened in.
func (e *Error) ForRun(runID string) *Error {
	if runID == "" {
		return e
	}
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[DetailRunID] = runID
	return e
}

// RunID returns the run recorded by ForRun anywhere in err's chain.
func RunID(err error) string {
	var e *Error
	for err != nil {
		if !stderrors.As(err, &e) {
			return ""
		}
		if id, ok := e.Details[DetailRunID].(string); ok {
			return id
		}
		err = e.Err
	}
	return ""
}

// ValidationError reports a missing or malformed request field.
func ValidationError(field, reason string) *Error {
	e := Newf(ValidationFailed, "%s: %s", field, reason)
	e.Details["field"] = field
	e.Details["reason"] = reason
	return e
}

// GetCode returns err's code, InternalServerError for foreign errors and
// Success for nil.
func GetCode(err error) ErrorCode {
	if err == nil {
		return Success
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return InternalServerError
}

// GetError returns the *Error in err's chain, wrapping foreign errors as
// InternalServerError.
func GetError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e
	}
	return Wrap(err, InternalServerError)
}

// Is reports whether err carries code.
func Is(err error, code ErrorCode) bool {
	var e *Error
	return stderrors.As(err, &e) && e.Code == code
}

// IsInfrastructure reports whether err blames the judge rather than the subject.
func IsInfrastructure(err error) bool {
	if err == nil {
		return false
	}
	return GetCode(err).IsInfrastructure()
}

func getStack(skip int) string {
	const maxDepth = 10
	var pcs [maxDepth]uintptr
	n := runtime.Callers(skip+1, pcs[:])
	if n == 0 {
		return ""
	}

	frames := runtime.CallersFrames(pcs[:n])
	var b strings.Builder
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.Function, "runtime.") {
			fmt.Fprintf(&b, "\n\t%s:%d %s", frame.File, frame.Line, frame.Function)
		}
		if !more {
			break
		}
	}
	return b.String()
}
