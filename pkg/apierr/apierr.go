// Package apierr separates caller-fault errors from server-fault
// errors. Business-outcome decisions (allow/deny) are never represented
// as errors at all — see pkg/contracts.Decision for those.
//
// A StructuralError means the caller's request was malformed or
// referenced something that doesn't exist; it is returned synchronously
// with no allow/deny receipt attached. A CoreFault means something broke
// on this side of the boundary; its cause is logged in full and the
// caller only ever sees an opaque code.
package apierr

import "fmt"

// StructuralCode is the closed vocabulary of caller-fault errors.
type StructuralCode string

const (
	CodeInvalidInput     StructuralCode = "INVALID_INPUT"
	CodeAmountOverflow   StructuralCode = "AMOUNT_OVERFLOW"
	CodeCapNotFound      StructuralCode = "CAP_NOT_FOUND"
	CodeAlreadyRevoked   StructuralCode = "ALREADY_REVOKED"
)

// StructuralError is a caller-fault error returned synchronously, without
// an allow/deny receipt (the ACTION_ATTEMPT receipt, if already emitted
// before the input was found invalid, still stands).
type StructuralError struct {
	Code      StructuralCode
	Detail    string
	FieldPath string // populated for CodeInvalidInput
}

func (e *StructuralError) Error() string {
	if e.FieldPath != "" {
		return fmt.Sprintf("%s: %s (field: %s)", e.Code, e.Detail, e.FieldPath)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

// StatusCode maps a structural error to its 4xx-equivalent HTTP status.
func (e *StructuralError) StatusCode() int {
	switch e.Code {
	case CodeCapNotFound:
		return 404
	case CodeAlreadyRevoked:
		return 409
	default:
		return 400
	}
}

func InvalidInput(fieldPath, detail string) *StructuralError {
	return &StructuralError{Code: CodeInvalidInput, Detail: detail, FieldPath: fieldPath}
}

func AmountOverflow(detail string) *StructuralError {
	return &StructuralError{Code: CodeAmountOverflow, Detail: detail}
}

func CapNotFound(capID string) *StructuralError {
	return &StructuralError{Code: CodeCapNotFound, Detail: "no such capability: " + capID}
}

func AlreadyRevoked(capID string) *StructuralError {
	return &StructuralError{Code: CodeAlreadyRevoked, Detail: "already revoked: " + capID}
}

// CoreFaultCode is the closed vocabulary of server-fault errors. These are
// logged with full detail and surfaced to the caller only as an opaque
// code — implementation detail must never leak across the boundary.
type CoreFaultCode string

const (
	CodeCapdocSchemaFailure CoreFaultCode = "CAPDOC_SCHEMA_FAILURE"
	CodeSigningFailure      CoreFaultCode = "SIGNING_FAILURE"
	CodeStoreError          CoreFaultCode = "STORE_ERROR"
)

// CoreFault is a server-fault error. Cause is logged internally; it is
// never serialized to the caller.
type CoreFault struct {
	Code  CoreFaultCode
	Cause error
}

func (e *CoreFault) Error() string {
	return fmt.Sprintf("%s: %v", e.Code, e.Cause)
}

func (e *CoreFault) Unwrap() error { return e.Cause }

func SchemaFailure(cause error) *CoreFault {
	return &CoreFault{Code: CodeCapdocSchemaFailure, Cause: cause}
}

func SigningFailure(cause error) *CoreFault {
	return &CoreFault{Code: CodeSigningFailure, Cause: cause}
}

func StoreError(cause error) *CoreFault {
	return &CoreFault{Code: CodeStoreError, Cause: cause}
}
