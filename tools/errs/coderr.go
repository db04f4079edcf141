package errs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

const (
	ServerInternalError = 500
	ArgsError           = 1001
	TokenInvalidError   = 1501
	TokenMissingError   = 1502
)

var (
	ErrServerInternal = NewCodeError(ServerInternalError, "ServerInternalError")
	ErrArgs           = NewCodeError(ArgsError, "ArgsError")
	ErrTokenInvalid   = NewCodeError(TokenInvalidError, "TokenInvalidError")
	ErrTokenMissing   = NewCodeError(TokenMissingError, "TokenMissingError")
)

var DefaultCodeRelation = newCodeRelation()

func init() {
	_ = DefaultCodeRelation.Add(TokenInvalidError, TokenMissingError)
}

func NewCodeError(code int, msg string) CodeError {
	return CodeError{
		Code: code,
		Msg:  msg,
	}
}

// CodeError is the error body handed to HTTP clients.
type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func (e CodeError) WithDetail(detail string) CodeError {
	d := detail
	if e.Detail != "" {
		d = e.Detail + ", " + detail
	}
	return CodeError{
		Code:   e.Code,
		Msg:    e.Msg,
		Detail: d,
	}
}

// Wrap attaches a stack trace to a copy of e.
func (e CodeError) Wrap() error {
	c := e
	return pkgerrors.WithStack(&c)
}

func (e CodeError) WrapMsg(msg string, kv ...any) error {
	c := e
	if msg != "" || len(kv) > 0 {
		detail := toString(msg, kv)
		if c.Detail == "" {
			c.Detail = detail
		} else {
			c.Detail += ", " + detail
		}
	}
	return pkgerrors.WithStack(&c)
}

// Is reports whether err carries a CodeError whose code equals e.Code or is
// related to it through DefaultCodeRelation.
func (e CodeError) Is(err error) bool {
	var codeErr *CodeError
	if !errors.As(err, &codeErr) {
		return false
	}
	return e.Code == codeErr.Code || DefaultCodeRelation.Is(e.Code, codeErr.Code)
}

func (e *CodeError) Error() string {
	v := make([]string, 0, 3)
	v = append(v, strconv.Itoa(e.Code), e.Msg)
	if e.Detail != "" {
		v = append(v, e.Detail)
	}
	return strings.Join(v, " ")
}

// As extracts the CodeError carried by err, falling back to ErrServerInternal.
func As(err error) CodeError {
	var codeErr *CodeError
	if errors.As(err, &codeErr) {
		return *codeErr
	}
	return ErrServerInternal
}

func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return pkgerrors.WithStack(err)
}

func WrapMsg(err error, msg string, kv ...any) error {
	if err == nil {
		return nil
	}
	return pkgerrors.Wrap(err, toString(msg, kv))
}

type CodeRelation interface {
	Add(codes ...int) error
	Is(parent, child int) bool
}

func newCodeRelation() CodeRelation {
	return &codeRelation{m: make(map[int]map[int]struct{})}
}

type codeRelation struct {
	m map[int]map[int]struct{}
}

func (r *codeRelation) Add(codes ...int) error {
	if len(codes) < 2 {
		return pkgerrors.Errorf("codes length must be at least 2, got %v", codes)
	}
	for i := 1; i < len(codes); i++ {
		parent := codes[i-1]
		s, ok := r.m[parent]
		if !ok {
			s = make(map[int]struct{})
			r.m[parent] = s
		}
		for _, code := range codes[i:] {
			s[code] = struct{}{}
		}
	}
	return nil
}

func (r *codeRelation) Is(parent, child int) bool {
	if parent == child {
		return true
	}
	s, ok := r.m[parent]
	if !ok {
		return false
	}
	_, ok = s[child]
	return ok
}

func toString(msg string, kv []any) string {
	if len(kv) == 0 {
		return msg
	}
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(kv); i += 2 {
		if b.Len() > 0 {
			b.WriteString(", ")
		}
		b.WriteString(anyString(kv[i]))
		b.WriteString("=")
		if i+1 < len(kv) {
			b.WriteString(anyString(kv[i+1]))
		} else {
			b.WriteString("MISSING")
		}
	}
	return b.String()
}

func anyString(v any) string {
	switch t := v.(type) {
	case nil:
		return "<nil>"
	case string:
		return t
	case error:
		return t.Error()
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
