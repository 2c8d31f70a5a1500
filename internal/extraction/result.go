package extraction

import (
	"github.com/tenderhub/extraction-pipeline/internal/fault"
)

// Result is the explicit outcome of one file-processing attempt. The task
// never lets an error escape: failures travel back as classified state the
// caller persists, so retry decisions are driven by data, not exceptions.
type Result struct {
	Payload map[string]any
	Kind    fault.Kind
	Message string
}

func Success(payload map[string]any) Result {
	if payload == nil {
		payload = map[string]any{}
	}
	return Result{Payload: payload}
}

func Failure(err error) Result {
	return Result{
		Kind:    fault.Classify(err),
		Message: err.Error(),
	}
}

func (r Result) Failed() bool {
	return r.Kind != ""
}
