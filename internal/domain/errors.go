package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrSessionRequired     = errors.New("session required")
	ErrQuotaExceeded       = errors.New("quota exceeded")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrInvalidIntent       = errors.New("invalid intent")
	ErrUploadFailed        = errors.New("upload failed")
	ErrProviderFailure     = errors.New("provider failure")
	ErrTimeout             = errors.New("generation timed out")
	ErrNormalization       = errors.New("unexpected provider response shape")
	ErrConversion          = errors.New("result conversion failed")
	ErrLedger              = errors.New("ledger update failed")
)

// Pipeline stages used to tag failures in logs and errors.
const (
	StageGate      = "gate"
	StageUpload    = "upload"
	StageBuild     = "build"
	StageExecute   = "execute"
	StageNormalize = "normalize"
	StageConvert   = "convert"
	StageCleanup   = "cleanup"
	StageLedger    = "ledger"
)

// StageError wraps an error with the orchestration stage it occurred in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// StageOf returns the pipeline stage recorded on err, or "" when none is.
func StageOf(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
