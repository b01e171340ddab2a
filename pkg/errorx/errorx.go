package errorx

import (
	"fmt"
	"net/http"
	"sync"
)

// Coder describes a registered error code: the business code, the HTTP
// status it maps to, and the user-facing message.
type Coder interface {
	// Code returns the business error code.
	Code() int

	// HTTPStatus returns the associated HTTP status code.
	HTTPStatus() int

	// String returns the user-safe error message.
	String() string

	// Reference returns a documentation link for the error, if any.
	Reference() string
}

var (
	codesMu sync.Mutex
	codes   = map[int]Coder{}
)

// Register registers a Coder, replacing any previous registration for
// the same code.
func Register(coder Coder) {
	codesMu.Lock()
	defer codesMu.Unlock()
	codes[coder.Code()] = coder
}

// MustRegister registers a Coder and panics if the code is already
// taken. Intended for init-time registration.
func MustRegister(coder Coder) {
	codesMu.Lock()
	defer codesMu.Unlock()
	if _, ok := codes[coder.Code()]; ok {
		panic(fmt.Sprintf("error code %d already registered", coder.Code()))
	}
	codes[coder.Code()] = coder
}

// unknownCoder is returned for errors carrying no registered code.
type unknownCoder struct{}

func (unknownCoder) Code() int         { return 1 }
func (unknownCoder) HTTPStatus() int   { return http.StatusInternalServerError }
func (unknownCoder) String() string    { return "An internal server error occurred" }
func (unknownCoder) Reference() string { return "" }

// withCode is an error annotated with a registered code.
type withCode struct {
	err   error
	code  int
	cause error
}

func (w *withCode) Error() string {
	return w.err.Error()
}

func (w *withCode) Unwrap() error {
	return w.cause
}

// WithCode creates an error with the given code and formatted message.
func WithCode(code int, format string, args ...interface{}) error {
	return &withCode{
		err:  fmt.Errorf(format, args...),
		code: code,
	}
}

// WrapC wraps an existing error with a code and formatted context.
func WrapC(err error, code int, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &withCode{
		err:   fmt.Errorf(format+": %w", append(args, err)...),
		code:  code,
		cause: err,
	}
}

// ParseCoder resolves an error to its registered Coder. Errors without a
// code resolve to the unknown coder.
func ParseCoder(err error) Coder {
	if err == nil {
		return nil
	}
	if wc, ok := err.(*withCode); ok {
		codesMu.Lock()
		coder, found := codes[wc.code]
		codesMu.Unlock()
		if found {
			return coder
		}
	}
	return unknownCoder{}
}

// IsCode reports whether the error carries the given code.
func IsCode(err error, code int) bool {
	wc, ok := err.(*withCode)
	return ok && wc.code == code
}
