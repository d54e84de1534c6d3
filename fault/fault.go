// Package fault classifies every error the arena produces into one of four
// kinds. The scheduler decides retry, feedback or halt purely from the kind.
package fault

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	_ error = (*Error)(nil)
)

type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation is malformed input. Never retried.
	KindValidation
	// KindRisk is a policy rejection, fed back to the decider.
	KindRisk
	// KindTransient is a timeout or unavailable collaborator. Retried.
	KindTransient
	// KindFatal halts the agent until it is reactivated.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindRisk:
		return "risk"
	case KindTransient:
		return "transient"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is a classified error. Two Errors match under errors.Is when their
// codes are equal, so sentinels below compare against annotated copies.
type Error struct {
	Kind    Kind
	Code    string
	AgentID string
	Cycle   uint64
	Err     error
}

const sep = ", err: "

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Code)
	if e.AgentID != "" {
		fmt.Fprintf(&b, " agent=%s", e.AgentID)
	}
	if e.Cycle > 0 {
		fmt.Fprintf(&b, " cycle=%d", e.Cycle)
	}
	if e.Err != nil {
		b.WriteString(sep)
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Code == "" {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrValidation = &Error{Kind: KindValidation, Code: "Validation"}

	ErrLeverageExceeded   = &Error{Kind: KindRisk, Code: "LeverageExceeded"}
	ErrInsufficientMargin = &Error{Kind: KindRisk, Code: "InsufficientMargin"}
	ErrSizeTooSmall       = &Error{Kind: KindRisk, Code: "SizeTooSmall"}
	ErrRateLimited        = &Error{Kind: KindRisk, Code: "RateLimited"}

	ErrTimeout     = &Error{Kind: KindTransient, Code: "Timeout"}
	ErrStaleQuote  = &Error{Kind: KindTransient, Code: "StaleQuote"}
	ErrUnavailable = &Error{Kind: KindTransient, Code: "Unavailable"}

	ErrLiquidated   = &Error{Kind: KindFatal, Code: "Liquidated"}
	ErrUnauthorized = &Error{Kind: KindFatal, Code: "Unauthorized"}

	ErrAgentNotFound       = &Error{Kind: KindValidation, Code: "AgentNotFound"}
	ErrAgentTerminal       = &Error{Kind: KindValidation, Code: "AgentTerminal"}
	ErrCompetitionNotFound = &Error{Kind: KindValidation, Code: "CompetitionNotFound"}
	ErrCompetitionFull     = &Error{Kind: KindValidation, Code: "CompetitionFull"}
	ErrCompetitionClosed   = &Error{Kind: KindValidation, Code: "CompetitionClosed"}
	ErrNotQualified        = &Error{Kind: KindValidation, Code: "NotQualified"}
)

// New returns a copy of sentinel carrying a formatted detail message.
func New(sentinel *Error, format string, args ...any) error {
	e := *sentinel
	e.Err = fmt.Errorf(format, args...)
	return &e
}

// Validation is shorthand for New(ErrValidation, ...).
func Validation(format string, args ...any) error {
	return New(ErrValidation, format, args...)
}

// Transient marks err as retryable. Already classified errors keep their kind.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	e := *ErrUnavailable
	if errors.Is(err, context.DeadlineExceeded) {
		e = *ErrTimeout
	}
	e.Err = err
	return &e
}

// Fatal marks err as agent-halting. Already classified errors keep their kind.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	return &Error{Kind: KindFatal, Code: "Fatal", Err: err}
}

// Annotate attaches agent and cycle to a classified error. Unclassified
// errors are returned unchanged.
func Annotate(err error, agentID string, cycle uint64) error {
	var fe *Error
	if !errors.As(err, &fe) {
		return err
	}
	cp := *fe
	cp.AgentID = agentID
	cp.Cycle = cycle
	return &cp
}

// KindOf reports the classification of err. Bare context deadlines count as
// transient.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	return KindUnknown
}

// Code returns the error code of a classified error, or "".
func Code(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

func IsRetryable(err error) bool { return KindOf(err) == KindTransient }
