package models

type IssueKind string

const (
	IssueCircularDependency   IssueKind = "CircularDependency"
	IssueUnresolvedImport     IssueKind = "UnresolvedImport"
	IssueMalformedImport      IssueKind = "MalformedImport"
	IssueMissingPackageMarker IssueKind = "MissingPackageMarker"
	IssuePackagePathMismatch  IssueKind = "PackagePathMismatch"
)

type ValidationIssue struct {
	Kind        IssueKind `json:"kind"`
	FilePath    string    `json:"file_path"`
	Detail      string    `json:"detail"`
	RelatedPath string    `json:"related_path,omitempty"`
}

type ValidationReport struct {
	Errors   []ValidationIssue `json:"errors"`
	Warnings []ValidationIssue `json:"warnings"`
}

func (r *ValidationReport) Success() bool {
	return len(r.Errors) == 0
}
