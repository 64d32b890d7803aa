package domain

import (
	"errors"
	"fmt"
	"time"
)

// Draft holds the mutable fields of a create/update form before the
// backend assigns (or replaces) the canonical record.
type Draft struct {
	Type              AbsenceType
	StartDate         time.Time
	EndDate           *time.Time
	DeclarationToDean bool
	Attachment        *Document
}

// Required form fields, keyed by absence category.
const (
	FieldStartDate   = "startDate"
	FieldEndDate     = "endDate"
	FieldAttachment  = "attachment"
	FieldDeclaration = "declarationToDean"
)

var ErrUnknownType = errors.New("unknown absence type")

// RequiredFields maps an absence category to the fields the form must
// fill before submission. Family is special-cased in Validate because
// its attachment and declaration substitute for each other.
func RequiredFields(t AbsenceType) ([]string, error) {
	switch t {
	case AbsenceSick:
		return []string{FieldStartDate}, nil
	case AbsenceFamily:
		return []string{FieldStartDate}, nil
	case AbsenceAcademic:
		return []string{FieldStartDate, FieldEndDate, FieldAttachment}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
}

// ValidationError reports which form field blocks submission.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid draft: %s %s", e.Field, e.Reason)
}

// Validate applies the client-side rules before any network call:
// every category needs a start date, Academic needs both dates and an
// attached document, Family needs either a document or the declaration
// flag. An end date, when present, may not precede the start date.
func (d Draft) Validate() error {
	required, err := RequiredFields(d.Type)
	if err != nil {
		return err
	}
	for _, field := range required {
		switch field {
		case FieldStartDate:
			if d.StartDate.IsZero() {
				return &ValidationError{Field: FieldStartDate, Reason: "is required"}
			}
		case FieldEndDate:
			if d.EndDate == nil {
				return &ValidationError{Field: FieldEndDate, Reason: "is required"}
			}
		case FieldAttachment:
			if d.Attachment == nil {
				return &ValidationError{Field: FieldAttachment, Reason: "is required"}
			}
		}
	}
	if d.Type == AbsenceFamily && d.Attachment == nil && !d.DeclarationToDean {
		return &ValidationError{Field: FieldAttachment, Reason: "or a declaration to the dean is required"}
	}
	if d.EndDate != nil && d.EndDate.Before(d.StartDate) {
		return &ValidationError{Field: FieldEndDate, Reason: "precedes start date"}
	}
	return nil
}
