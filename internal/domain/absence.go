package domain

import "time"

// AbsenceType is the category of a leave request.
type AbsenceType string

const (
	AbsenceSick     AbsenceType = "Sick"
	AbsenceFamily   AbsenceType = "Family"
	AbsenceAcademic AbsenceType = "Academic"
)

// AbsenceStatus is the review state of a request.
type AbsenceStatus string

const (
	StatusPending  AbsenceStatus = "Pending"
	StatusApproved AbsenceStatus = "Approved"
	StatusRejected AbsenceStatus = "Rejected"
)

// Sort orders accepted by the list endpoint.
const (
	SortCreateDesc = "CreateDesc"
	SortCreateAsc  = "CreateAsc"
)

// Document points either at a local file pending upload or at an
// attachment already stored by the backend.
type Document struct {
	ID       string `json:"Id,omitempty"`
	Name     string `json:"Name"`
	MimeType string `json:"MimeType,omitempty"`
	URI      string `json:"Uri,omitempty"`
}

// AbsenceRequest is one leave request as the backend returns it.
// RejectionReason carries meaning only when Status is Rejected.
type AbsenceRequest struct {
	ID                string        `json:"Id"`
	UserID            string        `json:"UserId"`
	Type              AbsenceType   `json:"Type"`
	StartDate         time.Time     `json:"StartDate"`
	EndDate           *time.Time    `json:"EndDate,omitempty"`
	Status            AbsenceStatus `json:"Status"`
	RejectionReason   string        `json:"RejectionReason,omitempty"`
	DeclarationToDean bool          `json:"DeclarationToDean"`
	Documents         []Document    `json:"Documents,omitempty"`
}

// Merge overlays a detail payload onto a summary record. Fields absent
// from the detail keep the summary's value, so a sparse detail fetch
// never erases what the list already knew.
func (a AbsenceRequest) Merge(detail AbsenceRequest) AbsenceRequest {
	out := a
	if detail.ID != "" {
		out.ID = detail.ID
	}
	if detail.UserID != "" {
		out.UserID = detail.UserID
	}
	if detail.Type != "" {
		out.Type = detail.Type
	}
	if !detail.StartDate.IsZero() {
		out.StartDate = detail.StartDate
	}
	if detail.EndDate != nil {
		out.EndDate = detail.EndDate
	}
	if detail.Status != "" {
		out.Status = detail.Status
	}
	if detail.RejectionReason != "" {
		out.RejectionReason = detail.RejectionReason
	}
	if detail.DeclarationToDean {
		out.DeclarationToDean = true
	}
	if len(detail.Documents) > 0 {
		out.Documents = detail.Documents
	}
	return out
}

// ListParams are the query parameters of the absence list endpoint.
// Pagination is page-numbered; accumulating pages is the caller's job.
type ListParams struct {
	Page    int
	Size    int
	Sorting string
	Status  AbsenceStatus
}
