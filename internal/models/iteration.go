package models

import "time"

type Stage string

const (
	StageScaffold Stage = "scaffold"
	StageGenerate Stage = "generate"
	StageValidate Stage = "validate"
	StageBuild    Stage = "build"
	StageTest     Stage = "test"
)

// ErrorSummary is one failure fed back into the next generation attempt.
type ErrorSummary struct {
	Stage     Stage  `json:"stage"`
	IssueKind string `json:"issue_kind"`
	FilePath  string `json:"file_path,omitempty"`
	Detail    string `json:"detail"`
}

type TemplateMarkers struct {
	HasDockerfile bool `json:"has_dockerfile"`
	HasCI         bool `json:"has_ci"`
}

type TestCounts struct {
	Discovered int `json:"discovered"`
	Passed     int `json:"passed"`
	Failed     int `json:"failed"`
}

// StageOutcome is the normalized result of any stage.
type StageOutcome struct {
	Stage    Stage          `json:"stage"`
	Success  bool           `json:"success"`
	Errors   []string       `json:"errors,omitempty"`
	Issues   []ErrorSummary `json:"issues,omitempty"`
	RawLog   string         `json:"raw_log,omitempty"`
	Duration time.Duration  `json:"duration"`

	// Stage payloads.
	Files        FileSet           `json:"-"`
	FileCount    int               `json:"file_count,omitempty"`
	Dependencies []string          `json:"dependencies,omitempty"`
	Markers      *TemplateMarkers  `json:"markers,omitempty"`
	Tests        *TestCounts       `json:"tests,omitempty"`
	Validation   *ValidationReport `json:"validation,omitempty"`
}

// IterationRecord captures one attempt. Stages that did not run are nil.
type IterationRecord struct {
	Index          int            `json:"index"`
	StartedAt      time.Time      `json:"started_at"`
	CompletedAt    time.Time      `json:"completed_at"`
	Scaffold       *StageOutcome  `json:"scaffold,omitempty"`
	Generate       *StageOutcome  `json:"generate,omitempty"`
	Validate       *StageOutcome  `json:"validate,omitempty"`
	Build          *StageOutcome  `json:"build,omitempty"`
	Test           *StageOutcome  `json:"test,omitempty"`
	OverallSuccess bool           `json:"overall_success"`
	ErrorContext   []ErrorSummary `json:"error_context,omitempty"`
}

// Outcomes returns the stages that ran, in pipeline order.
func (r *IterationRecord) Outcomes() []*StageOutcome {
	var out []*StageOutcome
	for _, o := range []*StageOutcome{r.Scaffold, r.Generate, r.Validate, r.Build, r.Test} {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

// FailedStage returns the first stage that failed, or "" if none did.
func (r *IterationRecord) FailedStage() Stage {
	for _, o := range r.Outcomes() {
		if !o.Success {
			return o.Stage
		}
	}
	return ""
}
