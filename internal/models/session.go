package models

import "time"

type SessionStatus string

const (
	SessionStatusRunning         SessionStatus = "running"
	SessionStatusSuccess         SessionStatus = "success"
	SessionStatusFailedExhausted SessionStatus = "failed_exhausted"
	SessionStatusFailedFault     SessionStatus = "failed_fault"
)

func (s SessionStatus) Terminal() bool {
	return s == SessionStatusSuccess || s == SessionStatusFailedExhausted || s == SessionStatusFailedFault
}

// SessionResult is the terminal artifact of a session.
type SessionResult struct {
	ID                 string            `json:"id"`
	Spec               ProjectSpec       `json:"spec"`
	Status             SessionStatus     `json:"status"`
	Fault              string            `json:"fault,omitempty"`
	FinalFiles         FileSet           `json:"final_files"`
	Iterations         []IterationRecord `json:"iterations"`
	MergedDependencies []string          `json:"merged_dependencies"`
	Markers            TemplateMarkers   `json:"markers"`
	StartedAt          time.Time         `json:"started_at"`
	CompletedAt        time.Time         `json:"completed_at"`
}

// SessionSummary is the listing view of a stored session.
type SessionSummary struct {
	ID          string
	CreatedAt   time.Time
	CompletedAt *time.Time
	ProjectName string
	TemplateID  string
	Language    Language
	Requirement string
	Status      SessionStatus
	Iterations  int
	Fault       string
}
