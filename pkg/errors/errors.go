package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
)

// Error codes. The zero value means an unclassified internal failure.
const (
	CodeInternal   = 0
	CodeValidation = 400
	CodeNotFound   = 404
	CodeConflict   = 409
	// CodeTransient marks collaborator failures (push, directory) that are logged and swallowed.
	// It is an internal code; HTTPStatus answers 500 for it.
	CodeTransient = 503
)

// Error carries a code, a caller-facing message and an optional cause.
type Error struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Err     error      `json:"-"`
	Stack   string     `json:"stack,omitempty"`
	Context []KeyValue `json:"context,omitempty"`
}

type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (e *Error) Error() string {
	if e.Message != "" {
		if e.Err != nil {
			return e.Message + ": " + e.Err.Error()
		}
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "unknown error"
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithCode creates a new error with code
func WithCode(code int, message string) *Error {
	return &Error{Code: code, Message: message, Stack: captureStack()}
}

// WithCodef creates a new error with code and formatted message
func WithCodef(code int, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Stack: captureStack()}
}

func Validationf(format string, args ...interface{}) *Error {
	return WithCodef(CodeValidation, format, args...)
}

func NotFoundf(format string, args ...interface{}) *Error {
	return WithCodef(CodeNotFound, format, args...)
}

func Conflictf(format string, args ...interface{}) *Error {
	return WithCodef(CodeConflict, format, args...)
}

// Transient wraps a collaborator failure.
func Transient(err error, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: CodeTransient, Message: message, Err: err, Stack: captureStack()}
}

// Wrap wraps an error with message. The code of a wrapped *Error is kept.
func Wrap(err error, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: GetCode(err), Message: message, Err: err, Stack: captureStack()}
}

// Wrapf wraps an error with formatted message
func Wrapf(err error, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: GetCode(err), Message: fmt.Sprintf(format, args...), Err: err, Stack: captureStack()}
}

func New(message string) *Error {
	return &Error{Message: message, Stack: captureStack()}
}

func Errorf(format string, args ...interface{}) *Error {
	return &Error{Message: fmt.Sprintf(format, args...), Stack: captureStack()}
}

// WithContext returns a copy of e with one more context pair.
func (e *Error) WithContext(key, value string) *Error {
	if e == nil {
		return nil
	}
	ne := *e
	ne.Context = append(append([]KeyValue(nil), e.Context...), KeyValue{Key: key, Value: value})
	return &ne
}

func captureStack() string {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)
	lines := strings.Split(string(buf[:n]), "\n")
	// drop goroutine header plus captureStack and its constructor
	if len(lines) > 5 {
		lines = lines[5:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// GetCode returns the first non-zero code found along the chain.
func GetCode(err error) int {
	for err != nil {
		var e *Error
		if !stderrors.As(err, &e) {
			return CodeInternal
		}
		if e.Code != CodeInternal {
			return e.Code
		}
		err = e.Err
	}
	return CodeInternal
}

// GetMessage returns the outermost caller-facing message.
func GetMessage(err error) string {
	var e *Error
	if stderrors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

func GetStack(err error) string {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Stack
	}
	return ""
}

func IsCode(err error, code int) bool {
	return err != nil && GetCode(err) == code
}

func IsNotFound(err error) bool   { return IsCode(err, CodeNotFound) }
func IsValidation(err error) bool { return IsCode(err, CodeValidation) }

// Is reports whether target is in err's chain.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// Cause returns the innermost error.
func Cause(err error) error {
	for err != nil {
		u := stderrors.Unwrap(err)
		if u == nil {
			return err
		}
		err = u
	}
	return err
}

// HTTPStatus maps an error to the status the API answers with. Everything
// that is not a client error, transient failures included, is a 500.
func HTTPStatus(err error) int {
	switch GetCode(err) {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Format implements fmt.Formatter; %+v adds the stack.
func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			fmt.Fprintf(s, "%s", e.Error())
			if e.Stack != "" {
				fmt.Fprintf(s, "\n%s", e.Stack)
			}
			return
		}
		fallthrough
	case 's':
		fmt.Fprintf(s, "%s", e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}
