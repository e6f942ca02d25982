// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package apperr defines the business error kinds returned by the content
// core. Every manager operation fails with an *Error carrying one Kind, so
// the boundary layer can map it to a stable response code.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a business failure.
type Kind string

const (
	KindNotFound               Kind = "not_found"
	KindConflict               Kind = "conflict"
	KindValidationFailed       Kind = "validation_failed"
	KindUnauthorized           Kind = "unauthorized"
	KindInvalidStateTransition Kind = "invalid_state_transition"
	KindCycleDetected          Kind = "cycle_detected"
	KindAuthenticationFailed   Kind = "authentication_failed"
	KindInternal               Kind = "internal"
)

// InvalidCredentials is the only message ever attached to an
// authentication failure, whatever the underlying cause.
const InvalidCredentials = "invalid credentials"

// Violation is a single failed field or business rule.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is a business error of a specific Kind.
type Error struct {
	Kind       Kind
	Message    string
	Violations []Violation
	Err        error
}

func (e *Error) Error() string {
	if len(e.Violations) == 0 {
		return e.Message
	}
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.Field + ": " + v.Message
	}
	return e.Message + " (" + strings.Join(parts, "; ") + ")"
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, or KindInternal if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err is a business error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// ViolationsOf returns the violations carried by a validation error.
func ViolationsOf(err error) []Violation {
	var e *Error
	if errors.As(err, &e) {
		return e.Violations
	}
	return nil
}

// NotFound reports a referenced entity that does not exist.
func NotFound(entity string, key any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %v not found", entity, key)}
}

// Conflict reports a uniqueness violation. err is the storage error, if any.
func Conflict(msg string, err error) *Error {
	return &Error{Kind: KindConflict, Message: msg, Err: err}
}

// Unauthorized reports a caller lacking rights for a mutation.
func Unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

// InvalidTransition reports a lifecycle event that is illegal from the
// current state.
func InvalidTransition(event, from string) *Error {
	return &Error{
		Kind:    KindInvalidStateTransition,
		Message: fmt.Sprintf("cannot %s a post in status %s", event, from),
	}
}

// Cycle reports a re-parent that would make a category its own ancestor.
func Cycle(msg string) *Error {
	return &Error{Kind: KindCycleDetected, Message: msg}
}

// AuthenticationFailed returns the generic credential failure.
func AuthenticationFailed(err error) *Error {
	return &Error{Kind: KindAuthenticationFailed, Message: InvalidCredentials, Err: err}
}

// Internal wraps an unexpected failure.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", Err: err}
}

// Invalid returns a validation error with a single violation.
func Invalid(field, msg string) *Error {
	return &Error{
		Kind:       KindValidationFailed,
		Message:    "validation failed",
		Violations: []Violation{{Field: field, Message: msg}},
	}
}

// Validation accumulates violations so that every failed rule is reported,
// not just the first.
type Validation struct {
	violations []Violation
}

// Add records a violation.
func (v *Validation) Add(field, msg string) {
	v.violations = append(v.violations, Violation{Field: field, Message: msg})
}

// Check records a violation when ok is false.
func (v *Validation) Check(ok bool, field, msg string) {
	if !ok {
		v.Add(field, msg)
	}
}

// Merge appends the violations of another validation error. Errors of any
// other kind are returned unchanged so the caller can propagate them.
func (v *Validation) Merge(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) && e.Kind == KindValidationFailed {
		v.violations = append(v.violations, e.Violations...)
		return nil
	}
	return err
}

// Err returns nil if no violations were recorded.
func (v *Validation) Err() error {
	if len(v.violations) == 0 {
		return nil
	}
	return &Error{
		Kind:       KindValidationFailed,
		Message:    "validation failed",
		Violations: v.violations,
	}
}
