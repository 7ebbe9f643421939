package db

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gorm.io/gorm"
)

// ErrorCode classifies accounting outcomes that are reported to the caller
// rather than treated as failures.
type ErrorCode int

const (
	CodeInvalid ErrorCode = iota + 1
	CodeNotFound
	CodeForbidden
	CodeCapReached
)

func (c ErrorCode) String() string {
	switch c {
	case CodeInvalid:
		return "INVALID"
	case CodeNotFound:
		return "NOT_FOUND"
	case CodeForbidden:
		return "FORBIDDEN"
	case CodeCapReached:
		return "CAP_REACHED"
	default:
		return "UNKNOWN"
	}
}

// Error is an expected accounting outcome with a stable message. Cap and due
// date rejections carry the data the caller needs to explain them.
type Error struct {
	Code         ErrorCode
	Message      string
	LimitHours   *float64
	TrackedHours *float64
	DueDate      *time.Time
}

func (e *Error) Error() string {
	return e.Message
}

// AsError unwraps err into an *Error if it is one.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func errInvalid(format string, args ...any) *Error {
	return &Error{Code: CodeInvalid, Message: fmt.Sprintf(format, args...)}
}

func errNotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

func errForbidden(msg string) *Error {
	return &Error{Code: CodeForbidden, Message: msg}
}

func errCapReached(capSeconds, trackedSeconds int) *Error {
	limit := hours(capSeconds)
	tracked := hours(trackedSeconds)
	return &Error{
		Code:         CodeCapReached,
		Message:      "Time limit reached for this task",
		LimitHours:   &limit,
		TrackedHours: &tracked,
	}
}

func errPastDue(due time.Time) *Error {
	return &Error{Code: CodeForbidden, Message: "Task is past its due date", DueDate: &due}
}

func hours(seconds int) float64 {
	return math.Round(float64(seconds)/3600*100) / 100
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
