package errors

import (
	stdErrors "errors"
	"net/http"
	"testing"
)

func TestErrorIncludesInternal(t *testing.T) {
	internal := stdErrors.New("boom")
	err := Wrap(internal, "failed")

	if err.Error() != "failed: boom" {
		t.Fatalf("unexpected error string: %s", err.Error())
	}
}

func TestWithInternalCopies(t *testing.T) {
	base := New("TEST", "test", 400)
	with := base.WithInternal(stdErrors.New("oops"))

	if with == base {
		t.Fatal("expected WithInternal to return a copy")
	}

	if base.Internal != nil {
		t.Fatal("expected original error to remain unchanged")
	}

	if with.Internal == nil {
		t.Fatal("expected internal error to be set")
	}
}

func TestFromError(t *testing.T) {
	appErr := ErrNotFound
	if out := FromError(appErr); out != appErr {
		t.Fatal("expected FromError to return the same AppError instance")
	}

	raw := stdErrors.New("raw")
	out := FromError(raw)
	if out.Code != ErrInternalServer.Code {
		t.Fatalf("expected internal server code, got %s", out.Code)
	}
	if out.Internal == nil {
		t.Fatal("expected internal error to be attached")
	}
}

func TestNewValidation(t *testing.T) {
	err := NewValidation("title is required")
	if err.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", err.StatusCode)
	}
	if err.Code != "VALIDATION_ERROR" {
		t.Fatalf("unexpected code %s", err.Code)
	}
}

func TestTaxonomyStatusCodes(t *testing.T) {
	cases := map[*AppError]int{
		ErrUnauthenticated:   http.StatusUnauthorized,
		ErrForbidden:         http.StatusForbidden,
		ErrNotFound:          http.StatusNotFound,
		ErrConflict:          http.StatusConflict,
		ErrInvalidAssignee:   http.StatusBadRequest,
		ErrInvalidInvitation: http.StatusBadRequest,
		ErrAlreadyMember:     http.StatusBadRequest,
	}

	for err, want := range cases {
		if err.StatusCode != want {
			t.Fatalf("%s: expected status %d, got %d", err.Code, want, err.StatusCode)
		}
	}
}
