package errs

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestNewCapturesCaller(t *testing.T) {
	err := New(NotFound, errors.New("task not found"))

	if err.Code != NotFound {
		t.Fatalf("Code = %v, want NotFound", err.Code)
	}
	if err.Message != "task not found" {
		t.Fatalf("Message = %q", err.Message)
	}
	if !strings.Contains(err.FileName, "errs_test.go") {
		t.Fatalf("FileName = %q, want this test file", err.FileName)
	}
	if err.FuncName == "" {
		t.Fatal("FuncName is empty")
	}
}

func TestNewf(t *testing.T) {
	err := Newf(InvalidArgument, "bad field %q", "title")
	if err.Error() != `bad field "title"` {
		t.Fatalf("Error() = %q", err.Error())
	}
}

func TestIsCode(t *testing.T) {
	base := Newf(Unavailable, "down")
	wrapped := fmt.Errorf("calling backend: %w", base)

	if !IsCode(base, Unavailable) {
		t.Fatal("IsCode(base, Unavailable) = false")
	}
	if !IsCode(wrapped, Unavailable) {
		t.Fatal("IsCode(wrapped, Unavailable) = false")
	}
	if IsCode(base, NotFound) {
		t.Fatal("IsCode(base, NotFound) = true")
	}
	if IsCode(errors.New("plain"), Unavailable) {
		t.Fatal("IsCode(plain, Unavailable) = true")
	}
}

func TestCode(t *testing.T) {
	if got := Code(Newf(NotFound, "x")); got != NotFound {
		t.Fatalf("Code() = %v, want NotFound", got)
	}
	if got := Code(errors.New("plain")); got != Unknown {
		t.Fatalf("Code() = %v, want Unknown", got)
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrCode
		want int
	}{
		{InvalidArgument, http.StatusBadRequest},
		{Unauthenticated, http.StatusUnauthorized},
		{PermissionDenied, http.StatusForbidden},
		{NotFound, http.StatusNotFound},
		{DeadlineExceeded, http.StatusGatewayTimeout},
		{Unavailable, http.StatusServiceUnavailable},
		{Internal, http.StatusInternalServerError},
		{InternalOnlyLog, http.StatusInternalServerError},
		{Unknown, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			err := Newf(tt.code, "x")
			if got := err.HTTPStatus(); got != tt.want {
				t.Fatalf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestEncode(t *testing.T) {
	err := Newf(NotFound, "task not found")

	data, contentType, encErr := err.Encode()
	if encErr != nil {
		t.Fatalf("Encode() error = %v", encErr)
	}
	if contentType != "application/json; charset=utf-8" {
		t.Fatalf("content type = %q", contentType)
	}

	want := `{"error":{"code":"not_found","message":"task not found"}}`
	if string(data) != want {
		t.Fatalf("Encode() = %s, want %s", data, want)
	}
}

func TestErrCodeTextRoundTrip(t *testing.T) {
	var code ErrCode
	if err := code.UnmarshalText([]byte("permission_denied")); err != nil {
		t.Fatalf("UnmarshalText() error = %v", err)
	}
	if code != PermissionDenied {
		t.Fatalf("code = %v, want PermissionDenied", code)
	}

	if err := code.UnmarshalText([]byte("no_such_code")); err == nil {
		t.Fatal("UnmarshalText(unknown) expected error")
	}
}
