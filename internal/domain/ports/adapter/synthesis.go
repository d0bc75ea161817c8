package adapter

import (
	"context"

	"voiceforge/internal/domain/model"
)

// ProgressFunc reports synthesis progress as a fraction in [0,1] plus a
// short status message. Implementations may call it from any goroutine.
type ProgressFunc func(fraction float64, message string)

// SynthesisRequest carries everything an engine needs for one job.
type SynthesisRequest struct {
	JobID  string
	Params model.SynthesisParams
}

// SynthesisAdapter is the port for the external speech engine. Run blocks
// from seconds to minutes, writes the produced artifact through the
// adapter's artifact store and returns its reference. Errors are captured
// by the caller into the job's terminal state, never surfaced to pollers.
type SynthesisAdapter interface {
	Name() string
	Run(ctx context.Context, req SynthesisRequest, onProgress ProgressFunc) (resultRef string, err error)
}
