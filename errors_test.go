package singstorage

import (
	"errors"
	"testing"

	"github.com/HKUST-SING/singstorage-go/internal/errs"
	"github.com/HKUST-SING/singstorage-go/internal/wire"
)

func TestPathNotFoundError(t *testing.T) {
	var err error = &PathNotFoundError{Op: "read", Path: "/missing"}

	var notFound *PathNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatal("expected errors.As to match *PathNotFoundError")
	}
	if notFound.Path != "/missing" {
		t.Errorf("expected Path=/missing, got %q", notFound.Path)
	}
	if err.Error() == "" {
		t.Error("expected non-empty error message")
	}
}

func TestPathDeniedError(t *testing.T) {
	var err error = &PathDeniedError{Op: "write", Path: "/locked"}

	var denied *PathDeniedError
	if !errors.As(err, &denied) {
		t.Fatal("expected errors.As to match *PathDeniedError")
	}
	if denied.Op != "write" {
		t.Errorf("expected Op=write, got %q", denied.Op)
	}
}

func TestQuotaError(t *testing.T) {
	err := &QuotaError{Op: "write", Path: "/big", Attempted: 100, Allowed: 50}

	expected := "singstorage: write \"/big\": quota exceeded (attempted=100, allowed=50)"
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}
}

func TestAuthErrorMessages(t *testing.T) {
	tests := []struct {
		status wire.Status
		want   string
	}{
		{wire.StatusErrAuthUser, "singstorage: connect: unknown user"},
		{wire.StatusErrAuthPass, "singstorage: connect: bad password"},
	}
	for _, tc := range tests {
		err := &AuthError{Op: "connect", Status: tc.status}
		if err.Error() != tc.want {
			t.Errorf("status %v: expected %q, got %q", tc.status, tc.want, err.Error())
		}
	}
}

func TestPropertyError(t *testing.T) {
	err := &PropertyError{Op: "set_property", Key: "encoding", Value: "latin1"}
	if err.Error() == "" {
		t.Error("expected non-empty error message")
	}
}

func TestInternalErrorUnwrapAndIs(t *testing.T) {
	inner := errors.New("boom")
	err := &InternalError{Op: "write", Kind: IntIPC, Inner: inner}

	if !errors.Is(err, inner) {
		t.Error("expected errors.Is to find the wrapped inner error")
	}

	other := &InternalError{Op: "read", Kind: IntIPC}
	if !errors.Is(err, other) {
		t.Error("expected two InternalErrors with the same Kind to satisfy errors.Is")
	}

	mismatched := &InternalError{Op: "read", Kind: IntMemory}
	if errors.Is(err, mismatched) {
		t.Error("expected InternalErrors with different Kinds not to satisfy errors.Is")
	}
}

func TestFromAdmissionStatus(t *testing.T) {
	tests := []struct {
		name   string
		status wire.Status
		check  func(error) bool
	}{
		{"path not found", wire.StatusErrPath, func(err error) bool {
			var e *PathNotFoundError
			return errors.As(err, &e)
		}},
		{"denied", wire.StatusErrDeny, func(err error) bool {
			var e *PathDeniedError
			return errors.As(err, &e)
		}},
		{"quota", wire.StatusErrQuota, func(err error) bool {
			var e *QuotaError
			return errors.As(err, &e)
		}},
		{"success is nil", wire.StatusSuccess, func(err error) bool {
			return err == nil
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := errs.FromAdmissionStatus("test", "/obj", tc.status, 0)
			if !tc.check(err) {
				t.Errorf("unexpected error for status %v: %v", tc.status, err)
			}
		})
	}
}
