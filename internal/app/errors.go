package app

import (
	"database/sql"
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"

	"manuscripts/api/internal/compare"
	"manuscripts/api/internal/gitrepo"
	"manuscripts/api/internal/manuscript"
	"manuscripts/api/internal/objectstore"
)

// Error codes returned in the "code" field of JSON error bodies.
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeInvalidBody      = "INVALID_BODY"
	CodeInvalidSnapshot  = "INVALID_SNAPSHOT"
	CodeSnapshotExists   = "SNAPSHOT_EXISTS"
	CodeNotFound         = "NOT_FOUND"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeComparisonFailed = "COMPARISON_FAILED"
	CodeServerError      = "SERVER_ERROR"
)

// DomainError is an error with the HTTP status and code it is reported with. Cause,
// when set, is the underlying failure and is never sent to clients.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
	Cause   error
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func validationError(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, CodeValidation, message, nil)
}

// validateIdentifier rejects document and snapshot ids that could escape the
// repository directory or the object key namespace.
func validateIdentifier(field, value string) error {
	if identifierPattern.MatchString(value) {
		return nil
	}
	return validationError(field + " must be 1-128 letters, digits, '.', '_' or '-'")
}

// toDomainError classifies err by the sentinels it wraps. Unclassified errors become
// SERVER_ERROR with err kept as the cause.
func toDomainError(err error) *DomainError {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	var classified *DomainError
	switch {
	case errors.Is(err, manuscript.ErrMalformedTree) || errors.Is(err, manuscript.ErrUnknownNodeType):
		details := map[string]any{"reason": err.Error()}
		if hints := errors.GetAllHints(err); len(hints) > 0 {
			details["hints"] = hints
		}
		classified = domainError(http.StatusUnprocessableEntity, CodeInvalidSnapshot, "Snapshot is not a valid manuscript tree", details)
	case errors.Is(err, gitrepo.ErrInvalidDocumentID):
		classified = validationError("documentId must be 1-128 letters, digits, '.', '_' or '-'")
	case errors.Is(err, sql.ErrNoRows) || errors.Is(err, gitrepo.ErrNotFound) || errors.Is(err, objectstore.ErrNotFound):
		classified = domainError(http.StatusNotFound, CodeNotFound, "Not found", nil)
	case errors.Is(err, compare.ErrNodeNotFound):
		classified = domainError(http.StatusInternalServerError, CodeComparisonFailed, "Comparison failed", nil)
	default:
		classified = domainError(http.StatusInternalServerError, CodeServerError, "Server error", nil)
	}
	classified.Cause = err
	return classified
}
