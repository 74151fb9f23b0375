// Package apperr defines the engine's closed error-kind taxonomy.
package apperr

import "fmt"

// Code is a closed set of error kinds surfaced across the persistence
// gateway, the operator queue, and the service façade.
type Code int

const (
	// InvalidInput covers out-of-bounds input, e.g. an oversized deployment
	// file or a duplicate process name on create.
	InvalidInput Code = iota + 1
	// ParseError covers malformed BPMN: missing attributes, duplicate
	// element ids, or a structural-validation failure.
	ParseError
	// NotFound covers a missing deployment, procdef, task, execution or
	// variable.
	NotFound
	// NotAuthorized covers a candidate-user/group check failing on complete.
	NotAuthorized
	// NotSupportError covers an operator invoked against the wrong element
	// variant (e.g. TakeOutgoingFlows on a node instead of an edge).
	NotSupportError
	// InternalError covers an optimistic-lock miss, an affected-rows
	// mismatch, or any other unexpected downstream failure.
	InternalError
	// UnexpectedError is the catch-all for branches that should be
	// unreachable.
	UnexpectedError
)

func (c Code) String() string {
	switch c {
	case InvalidInput:
		return "InvalidInput"
	case ParseError:
		return "ParseError"
	case NotFound:
		return "NotFound"
	case NotAuthorized:
		return "NotAuthorized"
	case NotSupportError:
		return "NotSupportError"
	case InternalError:
		return "InternalError"
	case UnexpectedError:
		return "UnexpectedError"
	default:
		return "Unknown"
	}
}

// EngineError is the error type returned across the engine. Op names the
// failing operation (e.g. "ru_exec_dao.mark_begin") rather than a source
// location, since Go has no direct equivalent to the Rust source's
// file!():line!() macro pair.
type EngineError struct {
	Code Code
	Op   string
	Msg  string
	Err  error
}

func (e *EngineError) Error() string {
	if e.Msg == "" && e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Op, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Code, e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Op, e.Msg)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

func new(code Code, op, msg string, err error) *EngineError {
	return &EngineError{Code: code, Op: op, Msg: msg, Err: err}
}

func New(code Code, op, msg string) *EngineError           { return new(code, op, msg, nil) }
func Wrap(code Code, op, msg string, err error) *EngineError { return new(code, op, msg, err) }

func InvalidInputf(op, format string, args ...any) *EngineError {
	return new(InvalidInput, op, fmt.Sprintf(format, args...), nil)
}

func ParseErrorf(op, format string, args ...any) *EngineError {
	return new(ParseError, op, fmt.Sprintf(format, args...), nil)
}

func NotFoundf(op, format string, args ...any) *EngineError {
	return new(NotFound, op, fmt.Sprintf(format, args...), nil)
}

func NotAuthorizedf(op, format string, args ...any) *EngineError {
	return new(NotAuthorized, op, fmt.Sprintf(format, args...), nil)
}

func NotSupportf(op, format string, args ...any) *EngineError {
	return new(NotSupportError, op, fmt.Sprintf(format, args...), nil)
}

func InternalErrorf(op, format string, args ...any) *EngineError {
	return new(InternalError, op, fmt.Sprintf(format, args...), nil)
}

func Unexpectedf(op, format string, args ...any) *EngineError {
	return new(UnexpectedError, op, fmt.Sprintf(format, args...), nil)
}

// CodeOf extracts the Code from err if it is (or wraps) an *EngineError,
// reporting ok=false otherwise.
func CodeOf(err error) (Code, bool) {
	var ee *EngineError
	if ok := As(err, &ee); ok {
		return ee.Code, true
	}
	return 0, false
}

// As is a small local indirection so callers of this package don't need to
// import "errors" just to unwrap an EngineError chain.
func As(err error, target **EngineError) bool {
	for err != nil {
		if ee, ok := err.(*EngineError); ok {
			*target = ee
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
