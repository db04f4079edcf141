package errs

import (
	"errors"
	"strings"
	"testing"

	pkgerrors "github.com/pkg/errors"
)

func TestCodeErrorIs(t *testing.T) {
	err := ErrTokenMissing.WrapMsg("cookie absent", "path", "/session")

	if !ErrTokenMissing.Is(err) {
		t.Fatal("wrapped error should match its own code")
	}
	if !ErrTokenInvalid.Is(err) {
		t.Fatal("TokenMissing should be related to TokenInvalid")
	}
	if ErrArgs.Is(err) {
		t.Fatal("ArgsError must not match TokenMissing")
	}
	if ErrArgs.Is(errors.New("plain")) {
		t.Fatal("plain error must not match")
	}
}

func TestWrapMsgDetail(t *testing.T) {
	err := ErrArgs.WrapMsg("username required", "len", 0)
	got := As(err)
	if got.Code != ArgsError {
		t.Fatalf("code = %d, want %d", got.Code, ArgsError)
	}
	if got.Detail != "username required, len=0" {
		t.Fatalf("detail = %q", got.Detail)
	}
	if !strings.Contains(err.Error(), "1001 ArgsError") {
		t.Fatalf("error string = %q", err.Error())
	}
}

func TestAsFallback(t *testing.T) {
	if got := As(pkgerrors.New("boom")); got.Code != ServerInternalError {
		t.Fatalf("fallback code = %d", got.Code)
	}
}

func TestErrPanic(t *testing.T) {
	if ErrPanic(nil) != nil {
		t.Fatal("nil recover value should produce nil error")
	}
	err := ErrPanic("kaboom")
	if got := As(err); got.Detail != "kaboom" || got.Code != ServerInternalError {
		t.Fatalf("unexpected panic error %+v", got)
	}
}
