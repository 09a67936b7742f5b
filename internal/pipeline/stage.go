package pipeline

import "fmt"

// Stage is a state of a translation run.
type Stage int

const (
	StageIdle Stage = iota
	StageOpened
	StageFontResolved
	StageExtracted
	StageTranslated
	StageFitted
	StageReconstructed
	StageSaved
	StageAborted
)

var stageNames = [...]string{
	StageIdle:          "idle",
	StageOpened:        "opened",
	StageFontResolved:  "font_resolved",
	StageExtracted:     "extracted",
	StageTranslated:    "translated",
	StageFitted:        "fitted",
	StageReconstructed: "reconstructed",
	StageSaved:         "saved",
	StageAborted:       "aborted",
}

func (s Stage) String() string {
	if s >= 0 && int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// AbortError ends a run. Stage is the stage that was being entered.
type AbortError struct {
	Stage Stage
	Err   error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("aborted before %s: %v", e.Stage, e.Err)
}

func (e *AbortError) Unwrap() error { return e.Err }
