package model

import (
	"errors"
	"fmt"
	"strings"
)

// Error is the typed failure returned across the cooperation protocol.
//
// Callers branch on Code; Message is human-readable. Database and Table are
// set when the failure concerns a specific object.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Database is the affected database, if any.
	Database string

	// Table is the affected table, if any.
	Table string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes failures.
type ErrorCode string

const (
	// ErrCodeAuthenticationFailure indicates bad credentials. Never retried.
	ErrCodeAuthenticationFailure ErrorCode = "AUTHENTICATION_FAILURE"

	// ErrCodeNotAllTablesSet indicates a contract was requested for a database
	// containing a table without a logical storage policy.
	ErrCodeNotAllTablesSet ErrorCode = "NOT_ALL_TABLES_SET"

	// ErrCodeContractNotFound indicates no contract matches the given id.
	ErrCodeContractNotFound ErrorCode = "CONTRACT_NOT_FOUND"

	// ErrCodePolicyNotSet indicates the table has no logical storage policy.
	ErrCodePolicyNotSet ErrorCode = "POLICY_NOT_SET"

	// ErrCodeTableNotFound indicates the table does not exist.
	ErrCodeTableNotFound ErrorCode = "TABLE_NOT_FOUND"

	// ErrCodeDbNotFound indicates the database does not exist.
	ErrCodeDbNotFound ErrorCode = "DB_NOT_FOUND"

	// ErrCodeRemoteNotifyFailure indicates a remote call failed or timed out.
	ErrCodeRemoteNotifyFailure ErrorCode = "REMOTE_NOTIFY_FAILURE"

	// ErrCodeParseError indicates a malformed incoming payload or statement.
	ErrCodeParseError ErrorCode = "PARSE_ERROR"

	// ErrCodeDecodeFailure indicates an undefined enum code or name.
	ErrCodeDecodeFailure ErrorCode = "DECODE_FAILURE"

	// ErrCodeNotImplemented indicates an unknown or unconfigured variant.
	ErrCodeNotImplemented ErrorCode = "NOT_IMPLEMENTED"

	// ErrCodeInvalidTransition indicates a contract status regression.
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"

	// ErrCodePolicyViolation indicates a mutation the table's policy forbids.
	ErrCodePolicyViolation ErrorCode = "POLICY_VIOLATION"

	// ErrCodePendingNotFound indicates no pending action exists for the row.
	ErrCodePendingNotFound ErrorCode = "PENDING_NOT_FOUND"

	// ErrCodeBehaviorNotSet indicates a behavior setting holds Unknown.
	ErrCodeBehaviorNotSet ErrorCode = "BEHAVIOR_NOT_SET"

	// ErrCodeNameCollision indicates a user table uses a reserved name.
	ErrCodeNameCollision ErrorCode = "NAME_COLLISION"

	// ErrCodeParticipantNotFound indicates no participant has the alias.
	ErrCodeParticipantNotFound ErrorCode = "PARTICIPANT_NOT_FOUND"
)

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	switch {
	case e.Database != "" && e.Table != "":
		fmt.Fprintf(&b, " (db=%s, table=%s)", e.Database, e.Table)
	case e.Database != "":
		fmt.Fprintf(&b, " (db=%s)", e.Database)
	case e.Table != "":
		fmt.Fprintf(&b, " (table=%s)", e.Table)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsCode reports whether err (or anything it wraps) is an *Error with code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// NewDecodeError reports an undefined numeric code for enum.
func NewDecodeError(enum string, code int) *Error {
	return &Error{
		Code:    ErrCodeDecodeFailure,
		Message: fmt.Sprintf("undefined %s code %d", enum, code),
	}
}

// NewAuthError reports a credential failure for subject.
func NewAuthError(subject string) *Error {
	return &Error{
		Code:    ErrCodeAuthenticationFailure,
		Message: fmt.Sprintf("authentication failed for %s", subject),
	}
}

// NewNotAllTablesSetError lists the tables missing a policy.
func NewNotAllTablesSetError(db string, missing []string) *Error {
	return &Error{
		Code:     ErrCodeNotAllTablesSet,
		Message:  fmt.Sprintf("tables without a logical storage policy: %s", strings.Join(missing, ", ")),
		Database: db,
	}
}

// NewContractNotFoundError reports an unknown contract id.
func NewContractNotFoundError(contractID string) *Error {
	return &Error{
		Code:    ErrCodeContractNotFound,
		Message: fmt.Sprintf("contract %s not found", contractID),
	}
}

// NewPolicyNotSetError reports a table without a policy.
func NewPolicyNotSetError(db, table string) *Error {
	return &Error{
		Code:     ErrCodePolicyNotSet,
		Message:  "logical storage policy not set",
		Database: db,
		Table:    table,
	}
}

// NewTableNotFoundError reports a missing table.
func NewTableNotFoundError(db, table string) *Error {
	return &Error{
		Code:     ErrCodeTableNotFound,
		Message:  "table not found",
		Database: db,
		Table:    table,
	}
}

// NewDbNotFoundError reports a missing database.
func NewDbNotFoundError(db string) *Error {
	return &Error{
		Code:     ErrCodeDbNotFound,
		Message:  "database not found",
		Database: db,
	}
}

// NewRemoteNotifyError wraps a transport failure for call.
func NewRemoteNotifyError(call string, err error) *Error {
	return &Error{
		Code:    ErrCodeRemoteNotifyFailure,
		Message: fmt.Sprintf("%s failed", call),
		Err:     err,
	}
}

// NewParseError reports a malformed payload or statement.
func NewParseError(message string, err error) *Error {
	return &Error{
		Code:    ErrCodeParseError,
		Message: message,
		Err:     err,
	}
}

// NewInvalidTransitionError reports a contract status regression.
func NewInvalidTransitionError(contractID string, from, to ContractStatus) *Error {
	return &Error{
		Code:    ErrCodeInvalidTransition,
		Message: fmt.Sprintf("contract %s cannot move from %s to %s", contractID, from, to),
	}
}

// NewPolicyViolationError reports a mutation forbidden by the table's policy.
func NewPolicyViolationError(db, table string, policy LogicalStoragePolicy, action Action) *Error {
	return &Error{
		Code:     ErrCodePolicyViolation,
		Message:  fmt.Sprintf("%s not permitted under policy %s", action, policy),
		Database: db,
		Table:    table,
	}
}

// NewParticipantNotFoundError reports an unknown participant alias.
func NewParticipantNotFoundError(db, alias string) *Error {
	return &Error{
		Code:     ErrCodeParticipantNotFound,
		Message:  fmt.Sprintf("participant %q not found", alias),
		Database: db,
	}
}
