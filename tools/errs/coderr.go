package errs

import (
	stderr "errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ===== error codes =====
//
// 1xxx codes are protocol-visible: they travel back to the client on the
// messageError event. Grouping: 11xx auth, 12xx validation, 13xx authz,
// 14xx lookup, 15xx infrastructure.
const (
	CodeTokenInvalid     = 1101
	CodeIdentityBanned   = 1102
	CodeValidation       = 1201
	CodeUnauthorized     = 1301
	CodeNotFound         = 1404
	CodeStoreUnavailable = 1500
)

var (
	ErrTokenInvalid     = NewCodeError(CodeTokenInvalid, "token invalid or expired")
	ErrIdentityBanned   = NewCodeError(CodeIdentityBanned, "identity banned")
	ErrValidation       = NewCodeError(CodeValidation, "validation failed")
	ErrUnauthorized     = NewCodeError(CodeUnauthorized, "unauthorized")
	ErrNotFound         = NewCodeError(CodeNotFound, "record not found")
	ErrStoreUnavailable = NewCodeError(CodeStoreUnavailable, "store unavailable")
)

func NewCodeError(code int, msg string) *CodeError {
	return &CodeError{
		Code: code,
		Msg:  msg,
	}
}

type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func (e *CodeError) clone() *CodeError {
	return &CodeError{
		Code:   e.Code,
		Msg:    e.Msg,
		Detail: e.Detail,
	}
}

func (e *CodeError) WithDetail(detail string) *CodeError {
	ret := e.clone()
	if ret.Detail == "" {
		ret.Detail = detail
	} else {
		ret.Detail += ", " + detail
	}
	return ret
}

// WrapMsg clones the sentinel, appends detail and captures a stack.
func (e *CodeError) WrapMsg(msg string, kv ...any) error {
	ret := e.clone()
	if msg != "" || len(kv) > 0 {
		detail := toString(msg, kv)
		if ret.Detail == "" {
			ret.Detail = detail
		} else {
			ret.Detail += ", " + detail
		}
	}
	return errors.WithStack(ret)
}

// Is lets std errors.Is match any CodeError carrying the same code,
// so wrapped copies still compare equal to their sentinel.
func (e *CodeError) Is(target error) bool {
	var t *CodeError
	if !stderr.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

func (e *CodeError) Error() string {
	v := make([]string, 0, 3)
	v = append(v, strconv.Itoa(e.Code), e.Msg)
	if e.Detail != "" {
		v = append(v, e.Detail)
	}
	return strings.Join(v, " ")
}

// Code extracts the code from an error chain; 0 if none.
func Code(err error) int {
	var ce *CodeError
	if stderr.As(err, &ce) {
		return ce.Code
	}
	return 0
}

func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(err)
}

func WrapMsg(err error, msg string, kv ...any) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(errors.WithMessage(err, toString(msg, kv)))
}

func toString(msg string, kv []any) string {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(kv); i += 2 {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(fmt.Sprint(kv[i]))
		b.WriteString("=")
		if i+1 < len(kv) {
			b.WriteString(fmt.Sprint(kv[i+1]))
		}
	}
	return b.String()
}
