package global

import (
	"net/http"

	"github.com/Virstriker/ChatApp/tools/errs"
)

// Msg is the JSON body of every plain HTTP response.
type Msg struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
}

func Success(data any) *Msg {
	return &Msg{
		Code: 200,
		Msg:  "",
		Data: data,
	}
}

// Fail renders a coded error; the detail goes into msg when present.
func Fail(e errs.CodeError) *Msg {
	m := &Msg{Code: e.Code, Msg: e.Msg}
	if e.Detail != "" {
		m.Msg = e.Msg + ": " + e.Detail
	}
	return m
}

// FailErr renders whatever CodeError err carries, ErrServerInternal otherwise.
func FailErr(err error) *Msg {
	return Fail(errs.As(err))
}

// HTTPStatus maps a coded error to its response status.
// TokenMissing is related to TokenInvalid, so both are 401.
func HTTPStatus(err error) int {
	switch {
	case errs.ErrTokenInvalid.Is(err):
		return http.StatusUnauthorized
	case errs.ErrArgs.Is(err):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
