package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when an operation references a record that does not exist.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// InvariantViolation reports an attempt to break a store invariant, such as
// deleting the sentinel category or allocating an already allocated key.
// The store state is left untouched when it is returned.
type InvariantViolation struct {
	Rule    string
	Entity  EntityType
	ID      string
	Message string
}

func (e InvariantViolation) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("invariant %s violated: %s", e.Rule, e.Message)
	}
	return fmt.Sprintf("invariant %s violated for %s %s: %s", e.Rule, e.Entity, e.ID, e.Message)
}

// PersistenceError reports a failed snapshot write. The in-memory mutation that
// preceded the write has already been committed and remains authoritative.
type PersistenceError struct {
	Slot string
	Err  error
}

func (e PersistenceError) Error() string {
	if e.Slot == "" {
		return fmt.Sprintf("persist snapshot: %v", e.Err)
	}
	return fmt.Sprintf("persist slot %s: %v", e.Slot, e.Err)
}

func (e PersistenceError) Unwrap() error { return e.Err }

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return fmt.Sprintf("transaction blocked by rule %s: %s", v.Rule, v.Message)
		}
	}
	return "transaction blocked by rules"
}

// Unwrap exposes the first blocking violation as an InvariantViolation so
// callers can match a single error class with errors.As.
func (e RuleViolationError) Unwrap() error {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return InvariantViolation{Rule: v.Rule, Entity: v.Entity, ID: v.EntityID, Message: v.Message}
		}
	}
	return nil
}

// IsNotFound reports whether err wraps an ErrNotFound.
func IsNotFound(err error) bool {
	var target ErrNotFound
	return errors.As(err, &target)
}

// IsInvariantViolation reports whether err wraps an InvariantViolation.
func IsInvariantViolation(err error) bool {
	var target InvariantViolation
	return errors.As(err, &target)
}

// IsPersistenceError reports whether err wraps a PersistenceError.
func IsPersistenceError(err error) bool {
	var target PersistenceError
	return errors.As(err, &target)
}
