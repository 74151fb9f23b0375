package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeOf(t *testing.T) {
	base := New(NotFound, "repository.GetProcDefByID", "no such procdef")
	wrapped := fmt.Errorf("loading procdef: %w", base)

	code, ok := CodeOf(wrapped)
	if !ok {
		t.Fatalf("expected CodeOf to find the wrapped EngineError")
	}
	if code != NotFound {
		t.Fatalf("want NotFound, got %s", code)
	}

	if _, ok := CodeOf(errors.New("plain error")); ok {
		t.Fatalf("plain errors must not report a Code")
	}
}

func TestEngineError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *EngineError
		want string
	}{
		{
			name: "msg only",
			err:  New(InvalidInput, "service.CreateProcDef", "name already deployed"),
			want: "InvalidInput: service.CreateProcDef: name already deployed",
		},
		{
			name: "wrapped only",
			err:  Wrap(InternalError, "dao.MarkEnd", "", errors.New("rows affected mismatch")),
			want: "InternalError: dao.MarkEnd: rows affected mismatch",
		},
		{
			name: "msg and wrapped",
			err:  Wrap(InternalError, "dao.MarkEnd", "optimistic lock miss", errors.New("rev changed underneath")),
			want: "InternalError: dao.MarkEnd: optimistic lock miss: rev changed underneath",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Fatalf("want %q, got %q", tt.want, got)
			}
		})
	}
}

func TestEngineError_Unwrap(t *testing.T) {
	cause := errors.New("rev changed underneath")
	err := Wrap(InternalError, "dao.MarkEnd", "optimistic lock miss", cause)

	if !errors.Is(err, cause) {
		t.Fatalf("errors.Is should follow Unwrap to the cause")
	}
}

func TestFormattedConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  *EngineError
		code Code
	}{
		{"InvalidInputf", InvalidInputf("op", "bad %s", "input"), InvalidInput},
		{"ParseErrorf", ParseErrorf("op", "bad %s", "xml"), ParseError},
		{"NotFoundf", NotFoundf("op", "missing %s", "task"), NotFound},
		{"NotAuthorizedf", NotAuthorizedf("op", "denied %s", "user"), NotAuthorized},
		{"NotSupportf", NotSupportf("op", "wrong %s", "operator"), NotSupportError},
		{"InternalErrorf", InternalErrorf("op", "boom %s", "reason"), InternalError},
		{"Unexpectedf", Unexpectedf("op", "unreachable %s", "branch"), UnexpectedError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Fatalf("want code %s, got %s", tt.code, tt.err.Code)
			}
		})
	}
}
