package delivery

// Step names used in StageError and in the run report.
const (
	StepVectorMask    = "vector mask"
	StepAcquisition   = "acquisition"
	StepNaturalMap    = "natural map"
	StepPipeline      = "pipeline"
	StepExpressions   = "expressions"
	StepLSTMap        = "lst map"
	StepExport        = "export"
	StepConfiguration = "configuration"
)

// StageError tells which step of a run failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return e.Stage + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageError(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}
