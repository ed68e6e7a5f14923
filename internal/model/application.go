package model

import "time"

// Status is the lifecycle state of a tracked application.
type Status string

const (
	StatusApplied      Status = "Applied"
	StatusInterviewing Status = "Interviewing"
	StatusOffer        Status = "Offer"
	StatusRejected     Status = "Rejected"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusApplied, StatusInterviewing, StatusOffer, StatusRejected:
		return true
	}
	return false
}

// ApplicationRecord is a tracked job application.
//
// JobTitle, Company, JobURL and ContactEmail are a snapshot of the job taken
// when the application was sent; the correlator matches against them.
type ApplicationRecord struct {
	ID             string    `db:"id" json:"id"`
	Owner          string    `db:"owner" json:"owner"`
	JobID          string    `db:"job_id" json:"job_id"`
	ResumeID       string    `db:"resume_id" json:"resume_id"`
	Status         Status    `db:"status" json:"status"`
	EmailMessageID string    `db:"email_message_id" json:"email_message_id,omitempty"`
	ThreadID       string    `db:"thread_id" json:"thread_id,omitempty"`
	JobTitle       string    `db:"job_title" json:"job_title,omitempty"`
	Company        string    `db:"company" json:"company,omitempty"`
	JobURL         string    `db:"job_url" json:"job_url,omitempty"`
	ContactEmail   string    `db:"contact_email" json:"contact_email,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// EventType classifies an ApplicationEvent.
type EventType string

const (
	EventSent          EventType = "sent"
	EventEmailReceived EventType = "email_received"
	EventStatusChange  EventType = "status_change"
)

// Keys recognized in ApplicationEvent.Payload.
const (
	PayloadMessageID  = "message_id"
	PayloadThreadID   = "thread_id"
	PayloadSubject    = "subject"
	PayloadSnippet    = "snippet"
	PayloadTo         = "to"
	PayloadFromStatus = "from_status"
	PayloadToStatus   = "to_status"
	PayloadMatchedBy  = "matched_by"
)

// ApplicationEvent is an append-only audit entry. A nil ApplicationID marks an
// inbound email that matched no application.
type ApplicationEvent struct {
	ID                string    `db:"id" json:"id"`
	ApplicationID     *string   `db:"application_id" json:"application_id"`
	Owner             string    `db:"owner" json:"owner"`
	Type              EventType `db:"type" json:"type"`
	Payload           Metadata  `db:"payload" json:"payload"`
	ProviderMessageID string    `db:"provider_message_id" json:"provider_message_id,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// Job is the subset of a saved job posting the mail workflows read.
type Job struct {
	ID           string `db:"id" json:"id"`
	Owner        string `db:"owner" json:"owner"`
	Title        string `db:"title" json:"title"`
	Company      string `db:"company" json:"company"`
	URL          string `db:"url" json:"url"`
	ContactEmail string `db:"contact_email" json:"contact_email"`
}

// Resume is the subset of a resume the send workflow reads. PDFURL is empty
// until the renderer has produced the document.
type Resume struct {
	ID     string `db:"id" json:"id"`
	Owner  string `db:"owner" json:"owner"`
	Title  string `db:"title" json:"title"`
	PDFURL string `db:"pdf_url" json:"pdf_url"`
}
