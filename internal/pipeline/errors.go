package pipeline

import (
	"errors"
	"fmt"
)

// ReasonCode classifies a filing-level failure.
type ReasonCode string

// Filing-level failure reasons.
const (
	ReasonFilingRejected     ReasonCode = "filing_rejected"
	ReasonConfigurationError ReasonCode = "configuration_error"
	ReasonInvalidInput       ReasonCode = "invalid_input"
	ReasonPersistenceFailed  ReasonCode = "persistence_failed"
)

// FilingError is a failure scoped to a whole filing. Problems scoped to one
// ratio or one concept are recorded as data and never become a FilingError.
type FilingError struct {
	Code     ReasonCode
	FilingID string
	Err      error
}

func (e *FilingError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("pipeline: filing %s: %s", e.FilingID, e.Code)
	}
	return fmt.Sprintf("pipeline: filing %s: %s: %v", e.FilingID, e.Code, e.Err)
}

func (e *FilingError) Unwrap() error { return e.Err }

// Reason returns the reason code carried by err, or "" when err is not a
// FilingError.
func Reason(err error) ReasonCode {
	var fe *FilingError
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}
